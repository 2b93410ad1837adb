package process

import (
	stderrors "errors"
	"fmt"
)

// ToolError describes a failed tool run.
type ToolError struct {
	Tool        string
	CommandLine string
	// ExitCode is -1 when the process did not start or was killed.
	ExitCode int
	Stdout   string
	Stderr   string
	Timeout  bool
	Err      error
}

func (e *ToolError) Error() string {
	switch {
	case e.Timeout:
		return fmt.Sprintf("%s timed out: %s", e.Tool, e.CommandLine)
	case e.ExitCode < 0:
		return fmt.Sprintf("%s could not be started: %s: %v", e.Tool, e.CommandLine, e.Err)
	default:
		return fmt.Sprintf("%s exited with code %d: %s", e.Tool, e.ExitCode, e.CommandLine)
	}
}

func (e *ToolError) Unwrap() error { return e.Err }

// AsToolError extracts the ToolError from err's chain.
func AsToolError(err error) (*ToolError, bool) {
	var te *ToolError
	if stderrors.As(err, &te) {
		return te, true
	}
	return nil, false
}
