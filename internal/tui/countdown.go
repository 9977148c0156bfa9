package tui

import (
	"github.com/charmbracelet/lipgloss"
)

// Big segment-style digit patterns, 7 lines tall
var bigDigits = map[rune][]string{
	'5': {
		" ███████ ",
		" █       ",
		" █       ",
		" ███████ ",
		"       █ ",
		"       █ ",
		" ███████ ",
	},
	'4': {
		" █     █ ",
		" █     █ ",
		" █     █ ",
		" ███████ ",
		"       █ ",
		"       █ ",
		"       █ ",
	},
	'3': {
		" ███████ ",
		"       █ ",
		"       █ ",
		" ███████ ",
		"       █ ",
		"       █ ",
		" ███████ ",
	},
	'2': {
		" ███████ ",
		"       █ ",
		"       █ ",
		" ███████ ",
		" █       ",
		" █       ",
		" ███████ ",
	},
	'1': {
		"    █    ",
		"   ██    ",
		"    █    ",
		"    █    ",
		"    █    ",
		"    █    ",
		"   ███   ",
	},
}

// getBigDigit returns the big digit pattern for a count from 1 to 5
func getBigDigit(count int) []string {
	if count < 1 || count > 5 {
		return nil
	}
	return bigDigits[rune('0'+count)]
}

// "GO!" in big letters
var bigGO = []string{
	"  ██████   ██████  ██ ",
	" ██       ██    ██ ██ ",
	" ██   ███ ██    ██ ██ ",
	" ██    ██ ██    ██ ██ ",
	" ██    ██ ██    ██    ",
	"  ██████   ██████  ██ ",
}

// renderCountdown renders the pre-recording countdown centered on screen
func renderCountdown(count, width, height int) string {
	bigText := getBigDigit(count)
	var color lipgloss.Color

	switch {
	case bigText == nil:
		bigText = bigGO
		color = ColorGreen
	case count >= 4:
		color = ColorOrange
	case count >= 2:
		color = lipgloss.Color("#FF8C00") // Dark orange
	default:
		color = ColorRed
	}

	digitStyle := lipgloss.NewStyle().Foreground(color).Bold(true)

	var lines string
	for i, line := range bigText {
		lines += digitStyle.Render(line)
		if i < len(bigText)-1 {
			lines += "\n"
		}
	}

	subtitleStyle := lipgloss.NewStyle().Foreground(ColorGray).Italic(true)
	subtitle := subtitleStyle.Render("Get ready... Recording starts soon!")
	if count <= 0 {
		subtitle = subtitleStyle.Render("Recording!")
	}
	hint := lipgloss.NewStyle().Foreground(ColorGray).Render("Press ESC to cancel")

	content := lipgloss.JoinVertical(lipgloss.Center, "", lines, "", subtitle, "", hint)
	return lipgloss.Place(width, height, lipgloss.Center, lipgloss.Center, content)
}
