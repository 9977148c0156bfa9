package device

import (
	"context"
	"os/exec"
)

// CommandRunner runs an external program and returns its output
type CommandRunner func(ctx context.Context, name string, args ...string) ([]byte, error)

// runOutput returns stdout only; listing tools write their payload there
func runOutput(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).Output()
}

// runCombined returns stdout and stderr; ffmpeg prints device lists on stderr and
// exits non-zero even when listing succeeds
func runCombined(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}
