package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/abdul-hamid-achik/tally/packages/assertions"
	"github.com/abdul-hamid-achik/tally/packages/errclass"
)

var (
	// CommandError is the category of commands that could not be run to
	// completion.
	CommandError = errclass.New("CommandError", nil)
	// Timeout marks commands killed at their deadline.
	Timeout = errclass.New("Timeout", CommandError)
	// SuiteError is the category of tests whose definition cannot be used.
	SuiteError = errclass.New("SuiteError", nil)
)

const waitDelay = 2 * time.Second

// shellCommand is one command to run through the shell.
type shellCommand struct {
	Shell   string
	Command string
	Dir     string
	Env     []string
	Timeout time.Duration
	// Stdout receives a copy of the command's stdout as it is produced.
	Stdout io.Writer
}

// executeShellCommand runs cmd via "<shell> -c". A non-zero exit is not an
// error; it is reported in the output's exit code.
func (r *Runner) executeShellCommand(ctx context.Context, cmd shellCommand) (*assertions.Output, error) {
	if cmd.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cmd.Timeout)
		defer cancel()
	}

	var stdout, stderr bytes.Buffer
	execCmd := exec.CommandContext(ctx, cmd.Shell, "-c", cmd.Command)
	execCmd.Dir = cmd.Dir
	execCmd.Env = cmd.Env
	execCmd.Stderr = &stderr
	// Background children can hold stdout open after the shell exits.
	execCmd.WaitDelay = waitDelay
	if cmd.Stdout != nil {
		execCmd.Stdout = io.MultiWriter(&stdout, cmd.Stdout)
	} else {
		execCmd.Stdout = &stdout
	}

	start := time.Now()
	err := execCmd.Run()
	out := &assertions.Output{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: time.Since(start),
	}

	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		return out, errclass.Errorf(Timeout, "command timed out after %s", cmd.Timeout)
	case ctx.Err() != nil:
		return out, errclass.Wrap(CommandError, ctx.Err())
	}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			out.ExitCode = exitErr.ExitCode()
			return out, nil
		}
		return out, errclass.Wrap(CommandError, fmt.Errorf("run %q: %w", cmd.Command, err))
	}
	return out, nil
}

// resolveDir joins a test directory onto the suite directory.
func resolveDir(baseDir, dir string) string {
	if dir == "" {
		return baseDir
	}
	if filepath.IsAbs(dir) {
		return dir
	}
	return filepath.Join(baseDir, dir)
}

// describeCommand renders the trace attached to a failed command.
func describeCommand(command string, out *assertions.Output) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "$ %s", command)
	if out == nil {
		return sb.String()
	}
	fmt.Fprintf(&sb, "\nexit code: %d", out.ExitCode)
	if stderr := strings.TrimRight(out.Stderr, "\n"); stderr != "" {
		sb.WriteString("\nstderr:\n")
		sb.WriteString(stderr)
	}
	return sb.String()
}
