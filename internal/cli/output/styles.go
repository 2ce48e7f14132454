package output

import (
	"io"

	"github.com/charmbracelet/lipgloss"
)

// Styles holds the lipgloss styles used for terminal output. Without a
// terminal every style renders its text unchanged.
type Styles struct {
	Header1 lipgloss.Style
	Header2 lipgloss.Style
	Bold    lipgloss.Style
	Muted   lipgloss.Style
	Success lipgloss.Style
	Warning lipgloss.Style
	Error   lipgloss.Style
	Info    lipgloss.Style

	StatusSuccess lipgloss.Style
	StatusFailed  lipgloss.Style
	StatusSkipped lipgloss.Style
}

// NewStyles builds styles for w.
func NewStyles(w io.Writer, isTTY bool) *Styles {
	re := lipgloss.NewRenderer(w)
	plain := re.NewStyle()
	if !isTTY {
		return &Styles{
			Header1:       plain,
			Header2:       plain,
			Bold:          plain,
			Muted:         plain,
			Success:       plain,
			Warning:       plain,
			Error:         plain,
			Info:          plain,
			StatusSuccess: plain.SetString("[ok]"),
			StatusFailed:  plain.SetString("[failed]"),
			StatusSkipped: plain.SetString("[skipped]"),
		}
	}

	green := lipgloss.AdaptiveColor{Light: "#1a7f37", Dark: "#3fb950"}
	yellow := lipgloss.AdaptiveColor{Light: "#9a6700", Dark: "#d29922"}
	red := lipgloss.AdaptiveColor{Light: "#cf222e", Dark: "#f85149"}
	blue := lipgloss.AdaptiveColor{Light: "#0969da", Dark: "#58a6ff"}
	gray := lipgloss.AdaptiveColor{Light: "#6e7781", Dark: "#8b949e"}

	return &Styles{
		Header1:       re.NewStyle().Bold(true).Underline(true).Foreground(blue),
		Header2:       re.NewStyle().Bold(true).Foreground(blue),
		Bold:          re.NewStyle().Bold(true),
		Muted:         re.NewStyle().Foreground(gray),
		Success:       re.NewStyle().Foreground(green),
		Warning:       re.NewStyle().Foreground(yellow),
		Error:         re.NewStyle().Bold(true).Foreground(red),
		Info:          re.NewStyle().Foreground(blue),
		StatusSuccess: re.NewStyle().Foreground(green).SetString("✓"),
		StatusFailed:  re.NewStyle().Foreground(red).SetString("✗"),
		StatusSkipped: re.NewStyle().Foreground(yellow).SetString("○"),
	}
}
