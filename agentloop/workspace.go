package agentloop

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"syscall"
	"time"
)

// ExecResult holds the result of a command execution.
type ExecResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
	TimedOut bool
}

// Workspace anchors tool execution to a working directory and carries the
// output budget shared by the tool suite.
type Workspace struct {
	dir            string
	maxOutputChars int
}

// NewWorkspace creates a Workspace rooted at dir. An empty dir means the
// process working directory.
func NewWorkspace(dir string, maxOutputChars int) *Workspace {
	if dir == "" {
		dir, _ = os.Getwd()
	}
	if maxOutputChars <= 0 {
		maxOutputChars = DefaultMaxToolOutputChars
	}
	return &Workspace{
		dir:            dir,
		maxOutputChars: maxOutputChars,
	}
}

// Dir returns the workspace root.
func (w *Workspace) Dir() string { return w.dir }

// Resolve returns path unchanged if absolute, otherwise joined onto the
// workspace root.
func (w *Workspace) Resolve(path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(w.dir, path)
}

// runCommand executes name with args in dir, feeding stdin when non-empty.
// Commands run in their own process group so a timeout kills the whole tree.
// A zero timeout means no deadline beyond ctx.
func (w *Workspace) runCommand(ctx context.Context, dir, stdin string, timeout time.Duration, name string, args ...string) (*ExecResult, error) {
	if dir == "" {
		dir = w.dir
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	// The default Cancel kills only the direct child, and Run then blocks
	// until any descendants holding the stdout/stderr pipes exit. Kill the
	// whole process group at the deadline instead, and cap the pipe drain
	// with WaitDelay in case a descendant escapes the group.
	cmd.Cancel = func() error {
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
	cmd.WaitDelay = 5 * time.Second
	if stdin != "" {
		cmd.Stdin = strings.NewReader(stdin)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()

	result := &ExecResult{
		Stdout: stdout.String(),
		Stderr: stderr.String(),
	}

	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			result.TimedOut = true
			result.ExitCode = -1
		} else if exitErr, ok := err.(*exec.ExitError); ok {
			result.ExitCode = exitErr.ExitCode()
		} else {
			return nil, fmt.Errorf("failed to run %s: %w", name, err)
		}
	}

	return result, nil
}
