package presenter

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/fatih/color"

	"github.com/claude-collective/collective/pkg/resolver"
)

var (
	headerStyle  = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle    = lipgloss.NewStyle().Padding(0, 1)
	statusStyles = map[resolver.StatusKind]lipgloss.Style{
		resolver.Available:   cellStyle,
		resolver.Recommended: cellStyle.Foreground(lipgloss.Color("86")),
		resolver.Discouraged: cellStyle.Foreground(lipgloss.Color("214")),
		resolver.Disabled:    cellStyle.Foreground(lipgloss.Color("240")),
	}
)

const statusColumn = 3

// ResolutionTable renders resolved skills as a table. Unless all is set only
// active skills and skills carrying an annotation are listed.
func ResolutionTable(res *resolver.Result, all bool) string {
	var rows [][]string
	var kinds []resolver.StatusKind
	for _, s := range res.Skills {
		if !all && !s.Active() && s.Status.Kind == resolver.Available {
			continue
		}
		category := ""
		if s.Entry != nil {
			category = string(s.Entry.Category)
		}
		rows = append(rows, []string{string(s.ID), category, state(s), s.Status.String()})
		kinds = append(kinds, s.Status.Kind)
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("SKILL", "CATEGORY", "STATE", "STATUS").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			if col == statusColumn && row >= 0 && row < len(kinds) {
				return statusStyles[kinds[row]]
			}
			return cellStyle
		})
	return t.String()
}

func state(s resolver.ResolvedSkill) string {
	switch {
	case s.Selected:
		return "selected"
	case s.AutoIncluded:
		return "auto"
	default:
		return "-"
	}
}

// Resolution prints the resolution table followed by unknown ids and
// validation errors
func (p *TerminalPresenter) Resolution(res *resolver.Result, all bool) {
	if !p.quiet {
		fmt.Fprintln(p.output, ResolutionTable(res, all))
	}

	for _, u := range res.Unknown {
		msg := fmt.Sprintf("unknown skill %s", u.ID)
		if len(u.Suggestions) > 0 {
			ids := make([]string, len(u.Suggestions))
			for i, s := range u.Suggestions {
				ids[i] = string(s)
			}
			msg += fmt.Sprintf(" (did you mean %s?)", strings.Join(ids, ", "))
		}
		p.Warning(msg)
	}

	for _, e := range res.Errors {
		if e.Blocking() {
			color.New(color.FgRed, color.Bold).Fprintf(p.errorOutput, "✗ %s\n", e.Error())
		} else {
			p.Warning(e.Error())
		}
	}

	if res.Valid() {
		p.Success(fmt.Sprintf("%d skills active (%d auto-included)", len(res.Active()), len(res.AutoIncluded)))
	}
}
