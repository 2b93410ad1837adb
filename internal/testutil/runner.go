package testutil

import (
	"context"
	"io"
	"sync"

	"github.com/turtacn/SMARTSexplore/internal/infrastructure/process"
	"github.com/turtacn/SMARTSexplore/pkg/errors"
)

// ToolScript is the canned behaviour of one tool. Run may create output
// files (e.g. rendered images) from the command's arguments.
type ToolScript struct {
	Stdout   string
	Stderr   string
	ExitCode int
	Run      func(cmd process.Command) error
}

// ScriptedRunner is a process.Runner that never starts a process. It answers
// each command by its Tool label and records every call.
type ScriptedRunner struct {
	mu      sync.Mutex
	scripts map[string]ToolScript
	calls   []process.Command
}

var _ process.Runner = (*ScriptedRunner)(nil)

func NewScriptedRunner() *ScriptedRunner {
	return &ScriptedRunner{scripts: map[string]ToolScript{}}
}

// On sets the script for tool.
func (r *ScriptedRunner) On(tool string, s ToolScript) *ScriptedRunner {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.scripts[tool] = s
	return r
}

// Calls returns the commands run so far.
func (r *ScriptedRunner) Calls() []process.Command {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]process.Command(nil), r.calls...)
}

// CallCount returns how many times tool was run.
func (r *ScriptedRunner) CallCount(tool string) int {
	n := 0
	for _, c := range r.Calls() {
		if c.Tool == tool {
			n++
		}
	}
	return n
}

// Run mirrors ExecRunner's contract: failures are returned as errors only in
// strict mode.
func (r *ScriptedRunner) Run(ctx context.Context, cmd process.Command) (*process.Result, error) {
	r.mu.Lock()
	r.calls = append(r.calls, cmd)
	s, ok := r.scripts[cmd.Tool]
	r.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeExternalTool, "cancelled")
	}

	res := &process.Result{ExitCode: s.ExitCode, Stderr: []byte(s.Stderr)}
	if !ok {
		res.ExitCode = -1
	}
	if cmd.Stdout != nil {
		if _, err := io.WriteString(cmd.Stdout, s.Stdout); err != nil {
			return nil, err
		}
	} else {
		res.Stdout = []byte(s.Stdout)
	}
	if cmd.Stderr != nil && s.Stderr != "" {
		io.WriteString(cmd.Stderr, s.Stderr)
	}
	if ok && s.Run != nil && s.ExitCode == 0 {
		if err := s.Run(cmd); err != nil {
			res.ExitCode = 1
			res.Stderr = []byte(err.Error())
		}
	}

	if res.ExitCode == 0 {
		return res, nil
	}
	res.Failure = &process.ToolError{
		Tool:        cmd.Tool,
		CommandLine: cmd.Line(),
		ExitCode:    res.ExitCode,
		Stdout:      s.Stdout,
		Stderr:      string(res.Stderr),
	}
	if cmd.Strict {
		return res, errors.Wrapf(res.Failure, errors.ErrCodeExternalTool, "%s failed", cmd.Tool)
	}
	return res, nil
}
