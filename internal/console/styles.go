package console

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/koscakluka/ema-realtime/core/transcript"
)

type styles struct {
	header    lipgloss.Style
	state     lipgloss.Style
	speakers  map[transcript.Speaker]lipgloss.Style
	truncated lipgloss.Style
	footer    lipgloss.Style
	err       lipgloss.Style
	input     lipgloss.Style
}

func defaultStyles() styles {
	sun := lipgloss.Color("#ffb703")
	sky := lipgloss.Color("#8ecae6")
	leaf := lipgloss.Color("#90be6d")
	muted := lipgloss.Color("#8d99ae")
	red := lipgloss.Color("#ef476f")

	return styles{
		header: lipgloss.NewStyle().
			Foreground(sun).
			Bold(true).
			Padding(0, 1),
		state: lipgloss.NewStyle().Foreground(muted),
		speakers: map[transcript.Speaker]lipgloss.Style{
			transcript.SpeakerUser:  lipgloss.NewStyle().Foreground(sky).Bold(true),
			transcript.SpeakerAgent: lipgloss.NewStyle().Foreground(sun).Bold(true),
			transcript.SpeakerTool:  lipgloss.NewStyle().Foreground(leaf),
		},
		truncated: lipgloss.NewStyle().Foreground(muted).Italic(true),
		footer:    lipgloss.NewStyle().Foreground(muted).Padding(0, 1),
		err:       lipgloss.NewStyle().Foreground(red).Bold(true).Padding(0, 1),
		input: lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(muted),
	}
}
