//go:build !windows

package proc

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStop_GracefulInterrupt(t *testing.T) {
	p, err := Start("sh", "-c", "trap 'echo flushed >&2; exit 0' INT; while true; do sleep 0.05; done")
	require.NoError(t, err)
	require.NoError(t, p.CheckStartup(100*time.Millisecond))
	assert.False(t, p.Exited())
	assert.Greater(t, p.PID(), 0)

	require.NoError(t, p.Stop(2*time.Second))
	assert.True(t, p.Exited())
	assert.NoError(t, p.Err())
	assert.Contains(t, p.Stderr(), "flushed")

	// second stop is a no-op
	assert.NoError(t, p.Stop(time.Second))
}

func TestStop_KillsAfterGrace(t *testing.T) {
	p, err := Start("sh", "-c", "trap '' INT TERM; while true; do sleep 0.05; done")
	require.NoError(t, err)

	err = p.Stop(200 * time.Millisecond)
	assert.Error(t, err)
	assert.True(t, p.Exited())
}

func TestCheckStartup_EarlyExit(t *testing.T) {
	p, err := Start("sh", "-c", "echo 'no such device' >&2; exit 3")
	require.NoError(t, err)

	err = p.CheckStartup(2 * time.Second)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no such device")
	assert.Error(t, p.Err())
}

func TestStart_MissingProgram(t *testing.T) {
	_, err := Start("definitely-not-a-capture-tool")
	assert.Error(t, err)
}

func TestTailWriter_KeepsLastBytes(t *testing.T) {
	p := &Process{}
	w := (*tailWriter)(p)
	big := make([]byte, stderrTail+100)
	for i := range big {
		big[i] = 'a'
	}
	_, _ = w.Write(big)
	_, _ = w.Write([]byte("end"))

	out := p.Stderr()
	assert.Len(t, out, stderrTail)
	assert.True(t, len(out) > 3 && out[len(out)-3:] == "end")
}
