//go:build !linux && !darwin

package audio

// Users can run: ffmpeg -f dshow -list_devices true -i dummy
const defaultDevice = "Microphone"

// recordCommand uses ffmpeg dshow
func recordCommand(ffmpeg, device, outputFile string) (string, []string) {
	return ffmpeg, []string{
		"-f", "dshow",
		"-i", "audio=" + device,
		"-c:a", "pcm_s16le",
		"-y",
		outputFile,
	}
}
