package device

import (
	"bufio"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/kartoza/kartoza-capture-orchestrator/internal/models"
)

// hyprMonitor is one entry of `hyprctl monitors -j`
type hyprMonitor struct {
	ID          int     `json:"id"`
	Name        string  `json:"name"`
	Description string  `json:"description,omitempty"`
	Width       int     `json:"width"`
	Height      int     `json:"height"`
	X           int     `json:"x"`
	Y           int     `json:"y"`
	Focused     bool    `json:"focused"`
	Scale       float64 `json:"scale"`
}

func parseHyprMonitors(output []byte) ([]models.DeviceDescriptor, error) {
	var monitors []hyprMonitor
	if err := json.Unmarshal(output, &monitors); err != nil {
		return nil, fmt.Errorf("failed to parse monitors JSON: %w", err)
	}

	screens := make([]models.DeviceDescriptor, 0, len(monitors))
	for _, m := range monitors {
		name := m.Name
		if m.Description != "" {
			name = fmt.Sprintf("%s (%s)", m.Name, m.Description)
		}
		screens = append(screens, models.DeviceDescriptor{
			ID:      models.SurfaceID(models.KindDisplay, m.ID),
			Name:    name,
			Kind:    models.KindDisplay,
			Width:   m.Width,
			Height:  m.Height,
			X:       m.X,
			Y:       m.Y,
			Primary: m.Focused,
			Native:  m.Name,
		})
	}
	return screens, nil
}

// 0: +*eDP-1 1920/344x1080/193+0+0  eDP-1
var xrandrMonitorRe = regexp.MustCompile(`^\s*(\d+):\s+\+?(\*?)(\S+)\s+(\d+)/\d+x(\d+)/\d+\+(\d+)\+(\d+)`)

func parseXrandrMonitors(output []byte) ([]models.DeviceDescriptor, error) {
	var screens []models.DeviceDescriptor
	scanner := bufio.NewScanner(strings.NewReader(string(output)))
	for scanner.Scan() {
		m := xrandrMonitorRe.FindStringSubmatch(scanner.Text())
		if m == nil {
			continue
		}
		idx, _ := strconv.Atoi(m[1])
		w, _ := strconv.Atoi(m[4])
		h, _ := strconv.Atoi(m[5])
		x, _ := strconv.Atoi(m[6])
		y, _ := strconv.Atoi(m[7])
		screens = append(screens, models.DeviceDescriptor{
			ID:      models.SurfaceID(models.KindDisplay, idx),
			Name:    m[3],
			Kind:    models.KindDisplay,
			Width:   w,
			Height:  h,
			X:       x,
			Y:       y,
			Primary: m[2] == "*",
			Native:  m[3],
		})
	}
	if len(screens) == 0 {
		return nil, fmt.Errorf("no monitors in xrandr output")
	}
	return screens, nil
}

// pactlSource is one entry of `pactl -f json list sources`
type pactlSource struct {
	Index         int    `json:"index"`
	Name          string `json:"name"`
	Description   string `json:"description"`
	MonitorOfSink string `json:"monitor_of_sink"`
}

func parsePactlSources(output []byte) ([]models.DeviceDescriptor, error) {
	var sources []pactlSource
	if err := json.Unmarshal(output, &sources); err != nil {
		return nil, fmt.Errorf("failed to parse sources JSON: %w", err)
	}

	devices := make([]models.DeviceDescriptor, 0, len(sources))
	for _, s := range sources {
		isMonitor := strings.HasSuffix(s.Name, ".monitor") ||
			(s.MonitorOfSink != "" && s.MonitorOfSink != "n/a")
		kind := models.KindAudioInput
		if isMonitor {
			kind = models.KindAudioMonitor
		}
		name := s.Description
		if name == "" {
			name = s.Name
		}
		devices = append(devices, models.DeviceDescriptor{
			ID:                   s.Name,
			Name:                 name,
			Kind:                 kind,
			CanSupplySystemAudio: isMonitor,
			Native:               s.Name,
		})
	}
	return devices, nil
}

var (
	avfEntryRe   = regexp.MustCompile(`\]\s+\[(\d+)\]\s+(.+)$`)
	avfScreenRe  = regexp.MustCompile(`^Capture screen (\d+)$`)
	dshowEntryRe = regexp.MustCompile(`"([^"]+)"\s+\((audio|video|audio, video|none)\)`)
)

// loopbackNames are virtual devices that route system output back as an input
var loopbackNames = []string{"blackhole", "soundflower", "loopback", "stereo mix", "what u hear"}

func isLoopbackName(name string) bool {
	lower := strings.ToLower(name)
	for _, n := range loopbackNames {
		if strings.Contains(lower, n) {
			return true
		}
	}
	return false
}

// parseAVFoundationDevices splits `ffmpeg -f avfoundation -list_devices true -i ""` output
// into capturable screens and audio inputs
func parseAVFoundationDevices(output []byte) (screens, audio []models.DeviceDescriptor) {
	section := ""
	scanner := bufio.NewScanner(strings.NewReader(string(output)))
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.Contains(line, "AVFoundation video devices"):
			section = "video"
			continue
		case strings.Contains(line, "AVFoundation audio devices"):
			section = "audio"
			continue
		}

		m := avfEntryRe.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		idx, name := m[1], strings.TrimSpace(m[2])

		switch section {
		case "video":
			sm := avfScreenRe.FindStringSubmatch(name)
			if sm == nil {
				continue // cameras are not capture surfaces
			}
			n, _ := strconv.Atoi(sm[1])
			screens = append(screens, models.DeviceDescriptor{
				ID:      models.SurfaceID(models.KindDisplay, n),
				Name:    fmt.Sprintf("Display %d", n+1),
				Kind:    models.KindDisplay,
				Primary: n == 0,
				Native:  idx,
			})
		case "audio":
			loop := isLoopbackName(name)
			kind := models.KindAudioInput
			if loop {
				kind = models.KindAudioMonitor
			}
			audio = append(audio, models.DeviceDescriptor{
				ID:                   "avfoundation:" + idx,
				Name:                 name,
				Kind:                 kind,
				CanSupplySystemAudio: loop,
				Native:               idx,
			})
		}
	}
	return screens, audio
}

// parseDshowAudioDevices extracts audio devices from `ffmpeg -list_devices true -f dshow -i dummy`
func parseDshowAudioDevices(output []byte) []models.DeviceDescriptor {
	var devices []models.DeviceDescriptor
	inAudio := false
	scanner := bufio.NewScanner(strings.NewReader(string(output)))
	for scanner.Scan() {
		line := scanner.Text()
		if strings.Contains(line, "DirectShow audio devices") {
			inAudio = true
			continue
		}
		if strings.Contains(line, "DirectShow video devices") {
			inAudio = false
			continue
		}
		if strings.Contains(line, "Alternative name") {
			continue
		}

		var name string
		if m := dshowEntryRe.FindStringSubmatch(line); m != nil {
			if !strings.Contains(m[2], "audio") {
				continue
			}
			name = m[1]
		} else if inAudio {
			start := strings.Index(line, `"`)
			end := strings.LastIndex(line, `"`)
			if start < 0 || end <= start {
				continue
			}
			name = line[start+1 : end]
		} else {
			continue
		}

		loop := isLoopbackName(name)
		kind := models.KindAudioInput
		if loop {
			kind = models.KindAudioMonitor
		}
		devices = append(devices, models.DeviceDescriptor{
			ID:                   "dshow:" + name,
			Name:                 name,
			Kind:                 kind,
			CanSupplySystemAudio: loop,
			Native:               name,
		})
	}
	return devices
}

// compareVersions compares dotted numeric versions, returning -1, 0 or 1
func compareVersions(a, b string) int {
	pa := strings.Split(strings.TrimSpace(a), ".")
	pb := strings.Split(strings.TrimSpace(b), ".")
	for len(pa) < len(pb) {
		pa = append(pa, "0")
	}
	for len(pb) < len(pa) {
		pb = append(pb, "0")
	}
	for i := range pa {
		x, _ := strconv.Atoi(pa[i])
		y, _ := strconv.Atoi(pb[i])
		switch {
		case x < y:
			return -1
		case x > y:
			return 1
		}
	}
	return 0
}

// VersionAtLeast reports whether version is >= min; an empty min always passes
func VersionAtLeast(version, min string) bool {
	if min == "" {
		return true
	}
	if version == "" {
		return false
	}
	return compareVersions(version, min) >= 0
}
