package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/dkeye/Mesh/internal/adapters/rtc"
	"github.com/dkeye/Mesh/internal/core"
	"github.com/dkeye/Mesh/internal/session"
)

var (
	Primary   = lipgloss.Color("#22d3ee")
	Secondary = lipgloss.Color("#7C3AED")
	Success   = lipgloss.Color("#10B981")
	Warning   = lipgloss.Color("#F59E0B")
	Error     = lipgloss.Color("#EF4444")
	Muted     = lipgloss.Color("#6B7280")
)

var (
	TitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(Primary)

	SuccessStyle = lipgloss.NewStyle().
			Foreground(Success).
			Bold(true)

	ErrorStyle = lipgloss.NewStyle().
			Foreground(Error).
			Bold(true)

	WarningStyle = lipgloss.NewStyle().
			Foreground(Warning)

	MutedStyle = lipgloss.NewStyle().
			Foreground(Muted)

	ChatNameStyle = lipgloss.NewStyle().
			Foreground(Secondary).
			Bold(true)

	TableHeaderStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(Primary).
				Align(lipgloss.Center)

	tableCellStyle = lipgloss.NewStyle().Padding(0, 1)

	TableRowStyle = tableCellStyle.Foreground(lipgloss.Color("255"))

	TableRowAltStyle = tableCellStyle.Foreground(lipgloss.Color("245"))
)

func styledTable(headers []string, rows [][]string) string {
	tbl := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(Primary)).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return TableHeaderStyle
			case row%2 == 0:
				return TableRowStyle
			default:
				return TableRowAltStyle
			}
		})
	return tbl.Render()
}

// RoomsView renders the relay's room list.
func RoomsView(rooms []core.RoomInfo) string {
	if len(rooms) == 0 {
		return MutedStyle.Render("No rooms")
	}
	rows := make([][]string, 0, len(rooms))
	for _, r := range rooms {
		rows = append(rows, []string{string(r.ID), fmt.Sprintf("%d", r.MemberCount), string(r.Admin)})
	}
	return styledTable([]string{"Room", "Members", "Admin"}, rows)
}

// StatsFunc reports media counters for one participant.
type StatsFunc func(peer string) (rtc.FeedStats, bool)

// ParticipantsView renders the remote participants of the current room.
// stats may be nil.
func ParticipantsView(ps []session.Participant, stats StatsFunc) string {
	if len(ps) == 0 {
		return MutedStyle.Render("Nobody else here")
	}
	rows := make([][]string, 0, len(ps))
	for _, p := range ps {
		name := p.Name
		if name == "" {
			name = "-"
		}
		link := p.Link
		if link == "" {
			link = "-"
		}
		packets := "-"
		if stats != nil {
			if st, ok := stats(p.ID); ok {
				packets = fmt.Sprintf("%d", st.Packets)
			}
		}
		rows = append(rows, []string{p.ID, name, link, packets})
	}
	return styledTable([]string{"ID", "Name", "Link", "Packets"}, rows)
}

// printer writes styled lines to out.
type printer struct {
	out io.Writer
}

func (p printer) info(format string, args ...any) {
	fmt.Fprintln(p.out, fmt.Sprintf(format, args...))
}

func (p printer) success(format string, args ...any) {
	fmt.Fprintln(p.out, SuccessStyle.Render(fmt.Sprintf(format, args...)))
}

func (p printer) warn(format string, args ...any) {
	fmt.Fprintln(p.out, WarningStyle.Render(fmt.Sprintf(format, args...)))
}

func (p printer) err(e error) {
	fmt.Fprintln(p.out, ErrorStyle.Render(e.Error()))
}

func (p printer) chat(name, text string) {
	if strings.TrimSpace(name) == "" {
		name = "anonymous"
	}
	fmt.Fprintf(p.out, "%s %s\n", ChatNameStyle.Render(name+":"), text)
}

func (p printer) block(s string) {
	fmt.Fprintln(p.out, s)
}
