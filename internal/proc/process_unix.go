//go:build !windows

package proc

import (
	"os/exec"
	"syscall"
)

// setSysProcAttr detaches the child from the terminal's process group so a Ctrl+C aimed
// at the CLI does not reach the capture program before the orchestrator stops it
func setSysProcAttr(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

// interrupt sends SIGINT for graceful shutdown, falling back to SIGTERM
func interrupt(p *Process) error {
	if err := p.cmd.Process.Signal(syscall.SIGINT); err != nil {
		return p.cmd.Process.Signal(syscall.SIGTERM)
	}
	return nil
}
