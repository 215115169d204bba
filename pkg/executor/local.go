package executor

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"strings"
	"time"
)

// Local runs commands directly on the host via os/exec.
type Local struct{}

// NewLocal returns an Executor that runs commands on the local host.
func NewLocal() *Local {
	return &Local{}
}

// Run implements Executor.
func (l *Local) Run(ctx context.Context, argv []string, timeout time.Duration) (string, error) {
	if len(argv) == 0 {
		return "", errors.New("executor: empty argv")
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, argv[0], argv[1:]...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if runCtx.Err() == context.DeadlineExceeded {
		return "", ErrTimeout
	}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return "", &NonZeroExit{Code: exitErr.ExitCode(), Stderr: stderr.String()}
		}
		return "", ErrTransport
	}

	return strings.TrimSpace(stdout.String()), nil
}
