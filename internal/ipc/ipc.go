// Package ipc connects the CLI to a running capture daemon through files in the runtime
// directory: the client drops a command file, the daemon watches for it and publishes
// its state to a status file.
package ipc

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/shirou/gopsutil/v4/process"
)

const (
	commandFile = "cmd.json"
	statusFile  = "status.json"
	pidFile     = "daemon.pid"
)

// ErrNoDaemon is returned when no live daemon owns the runtime directory
var ErrNoDaemon = errors.New("capture daemon is not running")

// Dir is a runtime directory shared by one daemon and its clients
type Dir string

func (d Dir) commandPath() string { return filepath.Join(string(d), commandFile) }
func (d Dir) statusPath() string  { return filepath.Join(string(d), statusFile) }
func (d Dir) pidPath() string     { return filepath.Join(string(d), pidFile) }

// Ensure creates the directory
func (d Dir) Ensure() error {
	return os.MkdirAll(string(d), 0700)
}

// Claim records pid as the daemon owning the directory. It fails when another live
// daemon already holds it; a stale pid file is replaced.
func (d Dir) Claim(pid int) error {
	if err := d.Ensure(); err != nil {
		return err
	}
	if other := d.readPID(); other > 0 && other != pid && pidAlive(other) {
		return fmt.Errorf("daemon already running with pid %d", other)
	}
	return os.WriteFile(d.pidPath(), []byte(strconv.Itoa(pid)), 0644)
}

// Release removes the pid file when it still names pid
func (d Dir) Release(pid int) {
	if d.readPID() == pid {
		_ = os.Remove(d.pidPath())
	}
}

// DaemonPID returns the pid of the live daemon, or ErrNoDaemon
func (d Dir) DaemonPID() (int, error) {
	pid := d.readPID()
	if pid <= 0 || !pidAlive(pid) {
		return 0, ErrNoDaemon
	}
	return pid, nil
}

func (d Dir) readPID() int {
	data, err := os.ReadFile(d.pidPath())
	if err != nil {
		return 0
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0
	}
	return pid
}

func pidAlive(pid int) bool {
	ok, err := process.PidExists(int32(pid))
	return err == nil && ok
}

// atomicWriteJSON writes v to path through a temp file and rename so readers never see
// a partial document
func atomicWriteJSON(path string, v any) error {
	dir := filepath.Dir(path)
	tmpFile, err := os.CreateTemp(dir, "."+filepath.Base(path)+"-*.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmpFile.Name()

	defer func() {
		if tmpFile != nil {
			tmpFile.Close()
			os.Remove(tmpPath)
		}
	}()

	encoder := json.NewEncoder(tmpFile)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(v); err != nil {
		return err
	}
	if err := tmpFile.Sync(); err != nil {
		return err
	}
	if err := tmpFile.Close(); err != nil {
		return err
	}
	tmpFile = nil

	return os.Rename(tmpPath, path)
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}
