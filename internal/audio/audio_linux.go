//go:build linux

package audio

const defaultDevice = "@DEFAULT_SOURCE@"

// recordCommand uses pw-record; monitor sources capture system audio
func recordCommand(_ string, device, outputFile string) (string, []string) {
	return "pw-record", []string{"--target", device, outputFile}
}
