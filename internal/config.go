package internal

import "time"

type Config struct {
	LogLevel         string        `env:"LOG_LEVEL,default=info"`
	ActivityCooldown time.Duration `env:"ACTIVITY_COOLDOWN,default=1s"`
	TaskBufferSize   int           `env:"TASK_BUFFER_SIZE,default=128"`
	SinkTimeout      time.Duration `env:"SINK_TIMEOUT,default=5s"`
	JournalEnabled   bool          `env:"JOURNAL_ENABLED,default=false"`
	BadgerFilepath   string        `env:"BADGER_FILEPATH"`
	LimitEntries     *int          `env:"LIMIT_ENTRIES"`
}
