// Package styles holds the colors, icons and text styles of the dugout CLI.
package styles

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
)

// Palette.
var (
	Primary      = lipgloss.Color("#15803D") // infield grass
	PrimaryLight = lipgloss.Color("#4ADE80")
	Secondary    = lipgloss.Color("#C2410C") // clay
	Chalk        = lipgloss.Color("#F5F5F4")

	Success      = lipgloss.Color("#10B981")
	Warning      = lipgloss.Color("#F59E0B")
	WarningLight = lipgloss.Color("#FBBF24")
	Error        = lipgloss.Color("#EF4444")
	Info         = lipgloss.Color("#3B82F6")

	Text      = lipgloss.Color("#F9FAFB")
	TextMuted = lipgloss.Color("#9CA3AF")
	TextDim   = lipgloss.Color("#6B7280")
	Surface   = lipgloss.Color("#1F2937")
	Border    = lipgloss.Color("#374151")
)

// Text styles. They are rebuilt by DisableColors.
var (
	Bold      lipgloss.Style
	Title     lipgloss.Style
	Subtitle  lipgloss.Style
	Normal    lipgloss.Style
	Muted     lipgloss.Style
	Dim       lipgloss.Style
	Highlight lipgloss.Style
	Code      lipgloss.Style

	SuccessStyle lipgloss.Style
	WarningStyle lipgloss.Style
	ErrorStyle   lipgloss.Style
	InfoStyle    lipgloss.Style

	Box        lipgloss.Style
	BoxSuccess lipgloss.Style
	BoxError   lipgloss.Style
	InfoBox    lipgloss.Style
)

// Icons.
const (
	IconSuccess  = "✓"
	IconError    = "✗"
	IconWarning  = "⚠"
	IconInfo     = "ℹ"
	IconArrow    = "→"
	IconDot      = "•"
	IconPending  = "◌"
	IconBall     = "⚾"
	IconUndo     = "↶"
	IconRedo     = "↷"
	IconRunner   = "◆"
	IconEmpty    = "◇"
	IconDatabase = "🗄️"
	IconHealth   = "❤️"
)

func init() {
	build()
}

func newRoundedBox(borderColor lipgloss.Color) lipgloss.Style {
	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(borderColor).
		Padding(1, 2)
}

func build() {
	Bold = lipgloss.NewStyle().Bold(true)
	Title = lipgloss.NewStyle().Bold(true).Foreground(Primary).MarginBottom(1)
	Subtitle = lipgloss.NewStyle().Bold(true).Foreground(PrimaryLight)
	Normal = lipgloss.NewStyle().Foreground(Text)
	Muted = lipgloss.NewStyle().Foreground(TextMuted)
	Dim = lipgloss.NewStyle().Foreground(TextDim)
	Highlight = lipgloss.NewStyle().Bold(true).Foreground(Chalk)
	Code = lipgloss.NewStyle().Foreground(WarningLight).Background(Surface).Padding(0, 1)

	SuccessStyle = lipgloss.NewStyle().Foreground(Success)
	WarningStyle = lipgloss.NewStyle().Foreground(Warning)
	ErrorStyle = lipgloss.NewStyle().Foreground(Error)
	InfoStyle = lipgloss.NewStyle().Foreground(Info)

	Box = newRoundedBox(Border)
	BoxSuccess = newRoundedBox(Success)
	BoxError = newRoundedBox(Error)
	InfoBox = newRoundedBox(Info).MarginTop(1)
}

// FormatSuccess formats a success message with icon.
func FormatSuccess(msg string) string {
	return SuccessStyle.Render(IconSuccess) + " " + Normal.Render(msg)
}

// FormatError formats an error message with icon.
func FormatError(msg string) string {
	return ErrorStyle.Render(IconError) + " " + Normal.Render(msg)
}

// FormatWarning formats a warning message with icon.
func FormatWarning(msg string) string {
	return WarningStyle.Render(IconWarning) + " " + Normal.Render(msg)
}

// FormatInfo formats an info message with icon.
func FormatInfo(msg string) string {
	return InfoStyle.Render(IconInfo) + " " + Normal.Render(msg)
}

// FormatStep formats step n of total.
func FormatStep(step, total int, msg string) string {
	return Muted.Width(8).Render(fmt.Sprintf("[%d/%d]", step, total)) + " " + msg
}

// FormatKeyValue formats a labelled value.
func FormatKeyValue(key, value string) string {
	return Muted.Width(20).Render(key+":") + " " + Highlight.Render(value)
}

// DisableColors drops every color, for terminals or pipes without support.
func DisableColors() {
	for _, c := range []*lipgloss.Color{
		&Primary, &PrimaryLight, &Secondary, &Chalk,
		&Success, &Warning, &WarningLight, &Error, &Info,
		&Text, &TextMuted, &TextDim, &Surface, &Border,
	} {
		*c = lipgloss.Color("")
	}
	build()
}
