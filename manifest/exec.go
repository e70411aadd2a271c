package manifest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// ExecReader runs an external loader in a subprocess and parses its stdout as a
// manifest. The unit path is appended as the last argument. Use it when reading
// the metadata requires executing the unit's own code.
type ExecReader struct {
	Command []string
	Timeout time.Duration
	Env     []string
}

func (r ExecReader) ReadName(ctx context.Context, path string) (string, error) {
	if len(r.Command) == 0 {
		return "", errors.New("manifest: exec reader has no command")
	}
	timeout := r.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	args := append(append([]string(nil), r.Command[1:]...), path)
	cmd := exec.CommandContext(ctx, r.Command[0], args...)
	if len(r.Env) > 0 {
		cmd.Env = r.Env
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.WaitDelay = time.Second

	if err := cmd.Run(); err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return "", fmt.Errorf("%w: %s", ErrTimeout, path)
		}
		return "", fmt.Errorf("run %s: %w: %s", r.Command[0], err, strings.TrimSpace(stderr.String()))
	}
	m, err := Parse(stdout.Bytes())
	if err != nil {
		return "", err
	}
	return m.Name, nil
}
