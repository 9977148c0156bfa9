// Package proc supervises the external capture programs (wl-screenrec, pw-record, ffmpeg).
package proc

import (
	"bytes"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"time"
)

// DefaultStopGrace is how long a capture program gets to flush its file after an interrupt
const DefaultStopGrace = 5 * time.Second

const stderrTail = 8 * 1024

// Process is a running external program
type Process struct {
	name  string
	cmd   *exec.Cmd
	stdin io.WriteCloser

	done    chan struct{}
	waitErr error

	stderrMu sync.Mutex
	stderr   bytes.Buffer

	stopOnce sync.Once
	stopErr  error
}

// Start launches name with args. The process outlives the caller; Stop ends it.
func Start(name string, args ...string) (*Process, error) {
	p := &Process{
		name: name,
		cmd:  exec.Command(name, args...),
		done: make(chan struct{}),
	}
	setSysProcAttr(p.cmd)
	p.cmd.Stderr = (*tailWriter)(p)

	stdin, err := p.cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to open stdin for %s: %w", name, err)
	}
	p.stdin = stdin

	if err := p.cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start %s: %w", name, err)
	}

	go func() {
		p.waitErr = p.cmd.Wait()
		close(p.done)
	}()

	return p, nil
}

// tailWriter keeps the last stderrTail bytes of stderr for error reports
type tailWriter Process

func (w *tailWriter) Write(b []byte) (int, error) {
	w.stderrMu.Lock()
	defer w.stderrMu.Unlock()
	w.stderr.Write(b)
	if over := w.stderr.Len() - stderrTail; over > 0 {
		w.stderr.Next(over)
	}
	return len(b), nil
}

// Name returns the program name
func (p *Process) Name() string {
	return p.name
}

// PID returns the process ID
func (p *Process) PID() int {
	return p.cmd.Process.Pid
}

// Done is closed when the process has exited
func (p *Process) Done() <-chan struct{} {
	return p.done
}

// Exited reports whether the process has already exited
func (p *Process) Exited() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

// Err returns the wait error once the process has exited
func (p *Process) Err() error {
	select {
	case <-p.done:
		return p.waitErr
	default:
		return nil
	}
}

// Stderr returns the tail of the process's stderr
func (p *Process) Stderr() string {
	p.stderrMu.Lock()
	defer p.stderrMu.Unlock()
	return p.stderr.String()
}

// CheckStartup waits up to d for an early exit, which means the program rejected its
// arguments or device
func (p *Process) CheckStartup(d time.Duration) error {
	select {
	case <-p.done:
		return fmt.Errorf("%s exited during startup: %v: %s", p.name, p.waitErr, p.Stderr())
	case <-time.After(d):
		return nil
	}
}

// Stop interrupts the process so it can finalize its output, and kills it if it has not
// exited within grace. Safe to call more than once.
func (p *Process) Stop(grace time.Duration) error {
	p.stopOnce.Do(func() {
		if p.Exited() {
			return
		}
		if grace <= 0 {
			grace = DefaultStopGrace
		}

		if err := interrupt(p); err != nil {
			_ = p.cmd.Process.Kill()
		}

		select {
		case <-p.done:
		case <-time.After(grace):
			_ = p.cmd.Process.Kill()
			<-p.done
			p.stopErr = fmt.Errorf("%s did not exit within %s and was killed", p.name, grace)
		}
		_ = p.stdin.Close()
	})
	return p.stopErr
}

// Kill terminates the process immediately
func (p *Process) Kill() {
	if !p.Exited() {
		_ = p.cmd.Process.Kill()
		<-p.done
	}
}
