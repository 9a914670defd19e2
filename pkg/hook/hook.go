// Package hook executes user-configured shell commands around a source's
// sync run.
package hook

import (
	"context"
	"fmt"
	"os"
	"os/exec"

	"strmsync/pkg/hints"
	"strmsync/pkg/plog"
)

var ErrNothingToExecute = hints.New("nothing to execute")

// Executor runs hook command lists through a shell.
type Executor struct {
	// commandContext allows mocking os/exec for testing hooks.
	commandContext func(ctx context.Context, name string, arg ...string) *exec.Cmd
}

// NewExecutor creates an Executor. Pass exec.CommandContext outside of
// tests.
func NewExecutor(commandContext func(ctx context.Context, name string, arg ...string) *exec.Cmd) *Executor {
	return &Executor{commandContext: commandContext}
}

// Run executes the commands in order. stage names the hook point in logs
// ("pre-sync", "post-sync"). A failing command aborts the remaining
// commands and returns its error; cancellation is reported as the context's
// error.
func (e *Executor) Run(ctx context.Context, stage string, commands []string) error {
	if len(commands) == 0 {
		return ErrNothingToExecute
	}

	plog.Info(fmt.Sprintf("Running %s hook commands", stage), "count", len(commands))

	for _, command := range commands {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		plog.Info("Executing command", "command", command)

		cmd := e.createCommand(ctx, command)

		// Pipe output through for visibility
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr

		if err := cmd.Run(); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("command '%s' failed: %w", command, err)
		}
	}
	return nil
}
