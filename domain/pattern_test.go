package domain

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCommandPattern_Exact(t *testing.T) {
	req := require.New(t)
	pattern := NewCommandPattern("help")

	req.True(pattern.Matches("help"))
	req.False(pattern.Matches("status"))
	// Anchored at both ends: prefixes and suffixes never match.
	req.False(pattern.Matches("helper"))
	req.False(pattern.Matches("xhelp"))
}

func TestCommandPattern_Wildcard(t *testing.T) {
	req := require.New(t)
	pattern := NewCommandPattern("ai-.*")

	req.True(pattern.Matches("ai-generate"))
	req.True(pattern.Matches("ai-review"))
	req.False(pattern.Matches("help"))
}

func TestCommandPattern_Groups(t *testing.T) {
	req := require.New(t)
	pattern := NewCommandPattern("export-(json|csv|xml)")

	req.True(pattern.Matches("export-json"))
	req.True(pattern.Matches("export-csv"))
	req.True(pattern.Matches("export-xml"))
	req.False(pattern.Matches("export-pdf"))
}

func TestCommandPattern_Alternation_Is_Anchored_As_A_Whole(t *testing.T) {
	req := require.New(t)
	pattern := NewCommandPattern("a|b")

	req.True(pattern.Matches("a"))
	req.True(pattern.Matches("b"))
	req.False(pattern.Matches("ab"))
}

func TestCommandPattern_Invalid_Matches_Nothing(t *testing.T) {
	req := require.New(t)
	pattern := NewCommandPattern("[invalid")

	req.False(pattern.Matches("help"))
	req.False(pattern.Matches(""))
	req.False(pattern.Matches("[invalid"))
}
