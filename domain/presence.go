package domain

import "strings"

// NotebookTag prefixes the Current field of a presence state when the client
// has a notebook document focused.
const NotebookTag = "notebook:"

// ClientState is one client's entry in a presence map. The same shape is
// used for the global presence map and for per-room awareness.
type ClientState struct {
	Username     string
	ActiveCellID string
	NotebookPath string
	Current      string // tagged focus, e.g. "notebook:analysis.ipynb"
}

// NotebookPathFromCurrent extracts the notebook path from a tagged focus
// string. It returns "" when the focus does not denote a notebook; other
// tags are not interpreted by the router.
func NotebookPathFromCurrent(current string) string {
	if !strings.HasPrefix(current, NotebookTag) {
		return ""
	}
	return strings.TrimPrefix(current, NotebookTag)
}
