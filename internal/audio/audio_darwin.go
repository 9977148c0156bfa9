//go:build darwin

package audio

// ":0" means no video input, audio device 0
const defaultDevice = "0"

// recordCommand uses ffmpeg avfoundation with an audio-only input ":<index>"
func recordCommand(ffmpeg, device, outputFile string) (string, []string) {
	return ffmpeg, []string{
		"-f", "avfoundation",
		"-i", ":" + device,
		"-c:a", "pcm_s16le",
		"-y",
		outputFile,
	}
}
