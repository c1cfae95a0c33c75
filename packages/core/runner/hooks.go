package runner

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// executeSetup runs setup commands in order and stops at the first failure.
func (r *Runner) executeSetup(ctx context.Context, commands []string, rc *runContext) error {
	for _, c := range commands {
		if err := r.executeHook(ctx, c, rc); err != nil {
			return fmt.Errorf("setup failed: %w", err)
		}
	}
	return nil
}

// executeTeardown runs every teardown command and returns the first failure.
func (r *Runner) executeTeardown(ctx context.Context, commands []string, rc *runContext) error {
	var firstErr error
	for _, c := range commands {
		if err := r.executeHook(ctx, c, rc); err != nil {
			r.logger.Warn("teardown command failed", "command", c, "err", err)
			if firstErr == nil {
				firstErr = fmt.Errorf("teardown failed: %w", err)
			}
		}
	}
	return firstErr
}

// executeHook runs a setup or teardown command. Its output is not captured.
func (r *Runner) executeHook(ctx context.Context, command string, rc *runContext) error {
	cmdStr := strings.TrimSpace(rc.resolver.Resolve(command))
	if cmdStr == "" {
		return nil
	}
	cmdStr = resolveExecutable(cmdStr, rc.baseDir)

	out, err := r.executeShellCommand(ctx, shellCommand{
		Shell:   rc.shell,
		Command: cmdStr,
		Dir:     rc.baseDir,
		Env:     rc.environ(nil),
		Timeout: rc.timeout,
	})
	if err != nil {
		return err
	}
	if out.ExitCode != 0 {
		return fmt.Errorf("command %q exited %d\n%s", command, out.ExitCode, strings.TrimSpace(out.Stdout+out.Stderr))
	}
	r.logger.Debug("hook finished", "command", command, "duration", out.Duration)
	return nil
}

// resolveExecutable makes a leading ./script or a bare script name found in
// baseDir relative to baseDir. The rest of the command is left untouched.
func resolveExecutable(cmdStr, baseDir string) string {
	parts := strings.Fields(cmdStr)
	if len(parts) == 0 {
		return cmdStr
	}
	executable := parts[0]
	var resolved string
	switch {
	case strings.HasPrefix(executable, "./"), strings.HasPrefix(executable, "../"):
		resolved = filepath.Join(baseDir, executable)
	case !filepath.IsAbs(executable) && !isInPath(executable):
		candidate := filepath.Join(baseDir, executable)
		if _, err := os.Stat(candidate); err != nil {
			return cmdStr
		}
		resolved = candidate
	default:
		return cmdStr
	}
	i := strings.Index(cmdStr, executable)
	return cmdStr[:i] + resolved + cmdStr[i+len(executable):]
}

// isInPath checks if a command is available in the system PATH
func isInPath(cmd string) bool {
	_, err := exec.LookPath(cmd)
	return err == nil
}
