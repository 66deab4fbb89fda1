package output

import "github.com/charmbracelet/lipgloss"

// Styles are the lipgloss styles used in text mode.
type Styles struct {
	Header1       lipgloss.Style
	Header2       lipgloss.Style
	Header3       lipgloss.Style
	Bold          lipgloss.Style
	Muted         lipgloss.Style
	Success       lipgloss.Style
	Warning       lipgloss.Style
	Error         lipgloss.Style
	Info          lipgloss.Style
	Key           lipgloss.Style
	NodeID        lipgloss.Style
	StatusSuccess lipgloss.Style
	StatusFailed  lipgloss.Style
	StatusPaused  lipgloss.Style
	StatusRunning lipgloss.Style
}

// DefaultStyles returns the terminal palette.
func DefaultStyles() Styles {
	return Styles{
		Header1:       lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12")).MarginBottom(1),
		Header2:       lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("14")),
		Header3:       lipgloss.NewStyle().Bold(true),
		Bold:          lipgloss.NewStyle().Bold(true),
		Muted:         lipgloss.NewStyle().Foreground(lipgloss.Color("8")),
		Success:       lipgloss.NewStyle().Foreground(lipgloss.Color("10")),
		Warning:       lipgloss.NewStyle().Foreground(lipgloss.Color("11")),
		Error:         lipgloss.NewStyle().Foreground(lipgloss.Color("9")),
		Info:          lipgloss.NewStyle().Foreground(lipgloss.Color("12")),
		Key:           lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Width(14),
		NodeID:        lipgloss.NewStyle().Foreground(lipgloss.Color("13")),
		StatusSuccess: lipgloss.NewStyle().Foreground(lipgloss.Color("10")).SetString("✓"),
		StatusFailed:  lipgloss.NewStyle().Foreground(lipgloss.Color("9")).SetString("✗"),
		StatusPaused:  lipgloss.NewStyle().Foreground(lipgloss.Color("11")).SetString("⏸"),
		StatusRunning: lipgloss.NewStyle().Foreground(lipgloss.Color("12")).SetString("•"),
	}
}

// plainStyles renders every style without decoration.
func plainStyles() Styles {
	plain := lipgloss.NewStyle()
	return Styles{
		Header1:       plain,
		Header2:       plain,
		Header3:       plain,
		Bold:          plain,
		Muted:         plain,
		Success:       plain,
		Warning:       plain,
		Error:         plain,
		Info:          plain,
		Key:           plain.Width(14),
		NodeID:        plain,
		StatusSuccess: plain.SetString("[ok]"),
		StatusFailed:  plain.SetString("[failed]"),
		StatusPaused:  plain.SetString("[paused]"),
		StatusRunning: plain.SetString("[running]"),
	}
}
