package process

import (
	"strings"
	"time"
)

// Result holds the output and status of a completed subprocess.
type Result struct {
	// Stdout is the captured standard output.
	Stdout []byte
	// Stderr is the captured standard error.
	Stderr []byte
	// ExitCode is the process exit code. -1 if the process was killed or never started.
	ExitCode int
	// Duration is how long the process ran.
	Duration time.Duration
}

// Field returns the n-th whitespace-separated field of stdout (zero based)
// and whether it exists.
func (r *Result) Field(n int) (string, bool) {
	if r == nil {
		return "", false
	}
	fields := strings.Fields(string(r.Stdout))
	if n < 0 || n >= len(fields) {
		return "", false
	}
	return fields[n], true
}
