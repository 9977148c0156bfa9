//go:build windows

package proc

import (
	"fmt"
	"os/exec"
)

func setSysProcAttr(cmd *exec.Cmd) {}

// interrupt asks ffmpeg to quit through its interactive "q" command; Windows has no SIGINT
// for child processes
func interrupt(p *Process) error {
	if _, err := fmt.Fprint(p.stdin, "q"); err != nil {
		return err
	}
	return nil
}
