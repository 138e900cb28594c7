// Package ui renders match state for the dugout CLI: scoreboard, bases,
// lineups, history tables and a spinner for slow store operations.
package ui

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/AshkanYarmoradi/go-dugout/cli/styles"
	"github.com/AshkanYarmoradi/go-dugout/game"
	"github.com/AshkanYarmoradi/go-dugout/scorebook"
)

// SpinnerModel shows a message until a SpinnerDoneMsg arrives.
type SpinnerModel struct {
	spinner  spinner.Model
	message  string
	quitting bool
	done     bool
	result   string
	err      error
}

// SpinnerDoneMsg ends the spinner.
type SpinnerDoneMsg struct {
	Result string
	Err    error
}

// NewSpinner creates a spinner with message.
func NewSpinner(message string) SpinnerModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(styles.Primary)
	return SpinnerModel{spinner: s, message: message}
}

func (m SpinnerModel) Init() tea.Cmd {
	return m.spinner.Tick
}

func (m SpinnerModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "esc", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		}
	case SpinnerDoneMsg:
		m.done = true
		m.result = msg.Result
		m.err = msg.Err
		return m, tea.Quit
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m SpinnerModel) View() string {
	switch {
	case m.done && m.err != nil:
		return styles.FormatError(m.result) + "\n"
	case m.done:
		return styles.FormatSuccess(m.result) + "\n"
	case m.quitting:
		return styles.FormatWarning("Cancelled") + "\n"
	}
	return m.spinner.View() + " " + styles.Normal.Render(m.message) + "\n"
}

// RunWithSpinner runs fn while a spinner renders to out. done formats the
// final line from fn's error.
func RunWithSpinner(out io.Writer, message string, fn func() error, done func(error) string) error {
	p := tea.NewProgram(NewSpinner(message), tea.WithOutput(out), tea.WithInput(nil))
	var fnErr error
	go func() {
		fnErr = fn()
		p.Send(SpinnerDoneMsg{Result: done(fnErr), Err: fnErr})
	}()
	if _, err := p.Run(); err != nil {
		return err
	}
	return fnErr
}

// Scoreboard renders the score line, inning, outs and bases of v.
func Scoreboard(v *scorebook.MatchView) string {
	half := "Bot"
	if v.IsTopHalf {
		half = "Top"
	}
	team := lipgloss.NewStyle().Width(16)
	runs := lipgloss.NewStyle().Width(4).Align(lipgloss.Right).Bold(true)

	away := team.Render(v.AwayTeam) + runs.Render(fmt.Sprint(v.Score.Away))
	home := team.Render(v.HomeTeam) + runs.Render(fmt.Sprint(v.Score.Home))
	if v.BattingSide == game.Away {
		away = styles.Highlight.Render(styles.IconBall+" ") + away
		home = "   " + home
	} else {
		away = "   " + away
		home = styles.Highlight.Render(styles.IconBall+" ") + home
	}

	lines := []string{away, home, ""}
	switch v.Status {
	case game.StatusCompleted:
		lines = append(lines, StatusBadge("final"))
	default:
		lines = append(lines,
			fmt.Sprintf("%s %d   %s   %s", half, v.CurrentInning, Outs(v.Outs, v.Rules.OutsPerHalf), Diamond(v.Bases)))
		if v.CurrentBatter != nil {
			b := v.CurrentBatter
			lines = append(lines, styles.Muted.Render(fmt.Sprintf("At bat: #%s %s (%s)", b.Jersey, b.Name, b.Position)))
		}
	}
	if v.PlaceholderOpponent {
		lines = append(lines, styles.Dim.Render("Opponent roster is a placeholder"))
	}
	return styles.Box.Render(strings.Join(lines, "\n"))
}

// Outs renders filled and empty markers for the outs of the half.
func Outs(outs, max int) string {
	if max <= 0 {
		max = 3
	}
	if outs > max {
		outs = max
	}
	return styles.ErrorStyle.Render(strings.Repeat("●", outs)) + styles.Dim.Render(strings.Repeat("○", max-outs))
}

// Diamond renders first, second and third base occupancy.
func Diamond(b game.Bases) string {
	parts := make([]string, 0, 3)
	for i, runner := range b {
		icon := styles.Dim.Render(styles.IconEmpty)
		if runner != "" {
			icon = styles.WarningStyle.Render(styles.IconRunner)
		}
		parts = append(parts, fmt.Sprintf("%d%s", i+1, icon))
	}
	return strings.Join(parts, " ")
}

// LineupTable renders a side's batting order.
func LineupTable(l scorebook.LineupView) string {
	rows := make([][]string, 0, len(l.Slots))
	for _, s := range l.Slots {
		subs := ""
		if s.Substitutions > 0 {
			subs = fmt.Sprint(s.Substitutions)
		}
		rows = append(rows, []string{fmt.Sprint(s.Order), s.Jersey, s.Name, string(s.Position), subs})
	}
	return newTable("#", "No.", "Player", "Pos", "Subs").Rows(rows...).String()
}

// HistoryTable renders the action history. Undone entries are dimmed.
func HistoryTable(h *scorebook.ActionHistory) string {
	rows := make([][]string, 0, len(h.Entries))
	for i, e := range h.Entries {
		state := "applied"
		if i >= h.Position {
			state = "undone"
		}
		rows = append(rows, []string{fmt.Sprint(e.Seq), string(e.Type), e.Description, state})
	}
	return newTable("Seq", "Action", "Description", "State").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			base := lipgloss.NewStyle().Padding(0, 1)
			switch {
			case row == table.HeaderRow:
				return base.Bold(true).Foreground(styles.Primary)
			case row >= h.Position:
				return base.Foreground(styles.TextDim)
			}
			return base.Foreground(styles.Text)
		}).
		String()
}

// CompensationTable renders the entries processed by an undo or redo.
func CompensationTable(res *scorebook.UndoResult) string {
	icon := styles.IconUndo
	if res.Direction == "redo" {
		icon = styles.IconRedo
	}
	rows := make([][]string, 0, len(res.Processed))
	for _, p := range res.Processed {
		rows = append(rows, []string{
			icon + " " + fmt.Sprint(p.Seq),
			string(p.Action),
			p.Description,
			fmt.Sprint(p.Events),
			strings.Join(p.Aggregates, ", "),
		})
	}
	return newTable("Seq", "Action", "Description", "Events", "Aggregates").Rows(rows...).String()
}

func newTable(headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(styles.Border)).
		Headers(headers...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return lipgloss.NewStyle().Bold(true).Foreground(styles.Primary).Padding(0, 1)
			}
			return lipgloss.NewStyle().Foreground(styles.Text).Padding(0, 1)
		})
}

// StatusBadge returns a colored badge for a match or check status.
func StatusBadge(status string) string {
	bg, fg := styles.Surface, styles.Text
	switch strings.ToLower(status) {
	case "in_progress", "ok", "applied", "final":
		bg, fg = styles.Success, lipgloss.Color("#000000")
	case "not_started", "pending", "warning":
		bg, fg = styles.Warning, lipgloss.Color("#000000")
	case "error", "failed":
		bg, fg = styles.Error, lipgloss.Color("#FFFFFF")
	}
	return lipgloss.NewStyle().Background(bg).Foreground(fg).Padding(0, 1).Render(status)
}

// Banner returns the one-line CLI banner.
func Banner() string {
	return styles.IconBall + " " +
		lipgloss.NewStyle().Bold(true).Foreground(styles.Primary).Render("dugout") + " " +
		styles.Muted.Render("- play-by-play scorebook")
}

// Divider returns a horizontal rule.
func Divider(width int) string {
	return styles.Dim.Render(strings.Repeat("─", width))
}

// Confirmation renders a yes/no answer.
func Confirmation(confirmed bool) string {
	if confirmed {
		return styles.SuccessStyle.Render("Yes")
	}
	return styles.ErrorStyle.Render("No")
}
