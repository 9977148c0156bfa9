// Package beep plays the short tones that count down to a recording.
package beep

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"time"
)

// Descending frequencies for countdown beeps (Hz)
// 5=880Hz, 4=784Hz, 3=698Hz, 2=622Hz, 1=554Hz (descending A5 to C#5), 0 is the start cue
var Frequencies = map[int]int{
	5: 880,
	4: 784,
	3: 698,
	2: 622,
	1: 554,
	0: 1047,
}

const toneDuration = "0.1"

// ErrNoPlayer is returned when no audio player could play the tone
var ErrNoPlayer = errors.New("no audio player available")

// players read a WAV stream on stdin
var players = [][]string{
	{"pw-cat", "--playback", "-"},
	{"paplay"},
	{"aplay", "-q", "-"},
}

var lookPath = exec.LookPath

// Player generates tones with ffmpeg and plays them through the first working player
type Player struct {
	ffmpeg  string
	timeout time.Duration
}

// New creates a Player
func New(ffmpegPath string) *Player {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	return &Player{ffmpeg: ffmpegPath, timeout: 2 * time.Second}
}

// Play plays the tone for a countdown number. Numbers without a tone are ignored.
func (p *Player) Play(ctx context.Context, count int) error {
	freq, ok := Frequencies[count]
	if !ok {
		return nil
	}
	if _, err := lookPath(p.ffmpeg); err != nil {
		return fmt.Errorf("%w: %v", ErrNoPlayer, err)
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	for _, player := range players {
		if _, err := lookPath(player[0]); err != nil {
			continue
		}
		if err := p.pipe(ctx, freq, player); err == nil {
			return nil
		}
	}
	return ErrNoPlayer
}

func (p *Player) pipe(ctx context.Context, freq int, player []string) error {
	gen := exec.CommandContext(ctx, p.ffmpeg,
		"-hide_banner", "-loglevel", "error",
		"-f", "lavfi", "-i", fmt.Sprintf("sine=frequency=%d:duration=%s", freq, toneDuration),
		"-f", "wav", "-")
	play := exec.CommandContext(ctx, player[0], player[1:]...)

	out, err := gen.StdoutPipe()
	if err != nil {
		return err
	}
	play.Stdin = out

	if err := play.Start(); err != nil {
		return err
	}
	if err := gen.Run(); err != nil {
		_ = play.Process.Kill()
		_ = play.Wait()
		return err
	}
	return play.Wait()
}
