package pricing

import (
	"bytes"
	"context"
	"os/exec"
	"strings"

	"bonita/internal/errors"
)

// CommandRefresher rebuilds the cache by running an external program. The
// cache path is passed as the last argument. A non-zero exit is a refresh
// failure.
type CommandRefresher struct {
	Argv []string
}

// Refresh runs the command
func (c *CommandRefresher) Refresh(ctx context.Context, path string) error {
	if len(c.Argv) == 0 {
		return errors.New(errors.TypeConfig, "empty refresh command")
	}
	args := append(append([]string(nil), c.Argv[1:]...), path)
	cmd := exec.CommandContext(ctx, c.Argv[0], args...)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		msg := "refresh command failed"
		if s := strings.TrimSpace(stderr.String()); s != "" {
			msg += ": " + s
		}
		return errors.Wrap(errors.TypeRefresh, msg, err)
	}
	return nil
}
