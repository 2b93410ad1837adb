// Package process runs the external native tools (comparison, matching and
// rendering binaries) with an argument vector, never through a shell.
package process

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"time"

	"github.com/turtacn/SMARTSexplore/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/SMARTSexplore/pkg/errors"
)

// Command describes one tool invocation.
type Command struct {
	// Tool is a short label used in logs and metrics ("compare", "match", ...).
	Tool string
	Path string
	Args []string
	Dir  string
	// Timeout overrides the runner default; zero keeps the default, a
	// negative value disables it.
	Timeout time.Duration
	// Stdout and Stderr redirect the streams. Nil streams are captured into
	// the Result.
	Stdout io.Writer
	Stderr io.Writer
	// Strict turns a failed run into a returned error instead of a logged,
	// degraded Result.
	Strict bool
}

// Line renders the command line for diagnostics.
func (c Command) Line() string {
	return strings.Join(append([]string{c.Path}, c.Args...), " ")
}

// Result carries the outcome of a run.
type Result struct {
	ExitCode int
	Stdout   []byte
	Stderr   []byte
	Duration time.Duration
	// Failure is set when the tool could not start or exited non-zero.
	Failure *ToolError
}

// Failed reports whether the run did not succeed.
func (r *Result) Failed() bool { return r != nil && r.Failure != nil }

// Runner executes commands.
type Runner interface {
	Run(ctx context.Context, cmd Command) (*Result, error)
}

// Observer receives one observation per run. outcome is "ok", "failed" or
// "timeout".
type Observer interface {
	ObserveTool(tool, outcome string, d time.Duration)
}

// Option configures an ExecRunner.
type Option func(*ExecRunner)

// WithDefaultTimeout sets the timeout used by commands that do not set one.
func WithDefaultTimeout(d time.Duration) Option {
	return func(r *ExecRunner) { r.timeout = d }
}

// WithObserver records tool metrics.
func WithObserver(o Observer) Option {
	return func(r *ExecRunner) { r.observer = o }
}

// ExecRunner is the os/exec backed Runner.
type ExecRunner struct {
	logger   logging.Logger
	timeout  time.Duration
	observer Observer
}

// NewExecRunner returns a Runner that logs failures to logger.
func NewExecRunner(logger logging.Logger, opts ...Option) *ExecRunner {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	r := &ExecRunner{logger: logger.Named("process")}
	for _, o := range opts {
		o(r)
	}
	return r
}

// diagCap bounds the bytes of a redirected stderr kept for diagnostics.
const diagCap = 64 << 10

// Run executes cmd. A launch failure or non-zero exit is logged with the
// command line and both streams; it is returned as an ErrCodeExternalTool
// error when cmd.Strict is set and reported through Result.Failure otherwise.
// A timeout is always returned as ErrCodeExternalToolTimeout, and a cancelled
// ctx is returned as is.
func (r *ExecRunner) Run(ctx context.Context, cmd Command) (*Result, error) {
	timeout := cmd.Timeout
	if timeout == 0 {
		timeout = r.timeout
	}
	runCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	c := exec.CommandContext(runCtx, cmd.Path, cmd.Args...)
	c.Dir = cmd.Dir

	var stdout, stderr bytes.Buffer
	if cmd.Stdout != nil {
		c.Stdout = cmd.Stdout
	} else {
		c.Stdout = &stdout
	}
	diag := &capped{max: diagCap}
	if cmd.Stderr != nil {
		c.Stderr = io.MultiWriter(cmd.Stderr, diag)
	} else {
		c.Stderr = &stderr
	}

	start := time.Now()
	runErr := c.Run()
	res := &Result{
		ExitCode: exitCode(c, runErr),
		Stdout:   stdout.Bytes(),
		Stderr:   stderr.Bytes(),
		Duration: time.Since(start),
	}
	if cmd.Stderr != nil {
		res.Stderr = diag.Bytes()
	}

	if runErr == nil {
		r.observe(cmd, "ok", res.Duration)
		r.logger.Debug("tool finished",
			logging.String("tool", cmd.Tool),
			logging.Duration("duration", res.Duration))
		return res, nil
	}

	if ctx.Err() != nil {
		r.observe(cmd, "failed", res.Duration)
		return res, errors.Wrapf(ctx.Err(), errors.ErrCodeExternalTool, "%s cancelled", toolName(cmd))
	}

	te := &ToolError{
		Tool:        toolName(cmd),
		CommandLine: cmd.Line(),
		ExitCode:    res.ExitCode,
		Stdout:      string(res.Stdout),
		Stderr:      string(res.Stderr),
		Timeout:     runCtx.Err() == context.DeadlineExceeded,
		Err:         runErr,
	}
	res.Failure = te
	r.logFailure(cmd, te, res.Duration)

	if te.Timeout {
		r.observe(cmd, "timeout", res.Duration)
		return res, errors.Wrapf(te, errors.ErrCodeExternalToolTimeout, "%s timed out after %s", te.Tool, timeout)
	}
	r.observe(cmd, "failed", res.Duration)
	if cmd.Strict {
		return res, errors.Wrapf(te, errors.ErrCodeExternalTool, "%s failed", te.Tool)
	}
	return res, nil
}

func (r *ExecRunner) logFailure(cmd Command, te *ToolError, d time.Duration) {
	msg := "process failed during runtime"
	if te.ExitCode < 0 && !te.Timeout {
		msg = "process failed starting up"
	}
	stdout := te.Stdout
	if cmd.Stdout != nil {
		stdout = "(redirected)"
	}
	r.logger.Error(msg,
		logging.String("tool", te.Tool),
		logging.String("command", te.CommandLine),
		logging.Int("exit_code", te.ExitCode),
		logging.Bool("timeout", te.Timeout),
		logging.Duration("duration", d),
		logging.String("stdout", stdout),
		logging.String("stderr", te.Stderr),
		logging.Err(te.Err))
}

func (r *ExecRunner) observe(cmd Command, outcome string, d time.Duration) {
	if r.observer != nil {
		r.observer.ObserveTool(toolName(cmd), outcome, d)
	}
}

func toolName(cmd Command) string {
	if cmd.Tool != "" {
		return cmd.Tool
	}
	return cmd.Path
}

func exitCode(c *exec.Cmd, err error) int {
	if c.ProcessState != nil {
		return c.ProcessState.ExitCode()
	}
	if err != nil {
		return -1
	}
	return 0
}

// LookPath reports whether path resolves to an executable.
func LookPath(path string) error {
	if _, err := exec.LookPath(path); err != nil {
		return fmt.Errorf("tool %q not found: %w", path, err)
	}
	return nil
}

// capped keeps the first max bytes written to it and discards the rest.
type capped struct {
	buf bytes.Buffer
	max int
}

func (c *capped) Write(p []byte) (int, error) {
	if room := c.max - c.buf.Len(); room > 0 {
		if len(p) > room {
			c.buf.Write(p[:room])
		} else {
			c.buf.Write(p)
		}
	}
	return len(p), nil
}

func (c *capped) Bytes() []byte { return c.buf.Bytes() }
