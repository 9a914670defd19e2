//go:build windows

package hook

import (
	"context"
	"os/exec"
)

// createCommand builds the exec.Cmd for one hook on Windows.
func (e *Executor) createCommand(ctx context.Context, command string) *exec.Cmd {
	return e.commandContext(ctx, "cmd", "/C", command)
}
