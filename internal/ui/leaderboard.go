package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/dalgonaburger/stageboard/internal/progress"

	"github.com/charmbracelet/lipgloss"
)

func (m BoardModel) View() string {
	if m.loading && m.boards == nil {
		return m.renderLoading()
	}

	if m.err != "" {
		return m.renderError()
	}

	tables := lipgloss.JoinHorizontal(
		lipgloss.Top,
		m.renderTable("Fewest tokens", progress.ByLength),
		"  ",
		m.renderTable("Fastest clear", progress.ByTime),
	)

	content := lipgloss.JoinVertical(
		lipgloss.Left,
		m.renderHeader(),
		"",
		tables,
		"",
		m.renderFeed(),
		"",
		m.renderInstructions(),
	)

	return lipgloss.Place(
		m.width, m.height,
		lipgloss.Center, lipgloss.Center,
		content,
	)
}

func (m BoardModel) renderHeader() string {
	title := titleStyle.Render("🏆 Stage " + m.Stage())

	var tabs []string
	for i, code := range m.stages {
		if i == m.current {
			tabs = append(tabs, boldStyle.Render("["+code+"]"))
			continue
		}
		tabs = append(tabs, mutedStyle.Render(code))
	}

	return lipgloss.JoinVertical(lipgloss.Left, title, strings.Join(tabs, " "))
}

func (m BoardModel) renderTable(title string, dim progress.Dimension) string {
	var entries []progress.LeaderboardEntry
	if m.boards != nil {
		if dim == progress.ByTime {
			entries = m.boards.TimeTop10
		} else {
			entries = m.boards.PromptTop10
		}
	}

	headerStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("14"))
	rankStyle := lipgloss.NewStyle().Width(4).Align(lipgloss.Right)
	nameStyle := lipgloss.NewStyle().Width(18).Align(lipgloss.Left)
	valueStyle := lipgloss.NewStyle().Width(10).Align(lipgloss.Right)

	rows := []string{
		headerStyle.Render(title),
		lipgloss.JoinHorizontal(
			lipgloss.Top,
			headerStyle.Inherit(rankStyle).Render("#"),
			"  ",
			headerStyle.Inherit(nameStyle).Render("Player"),
			"  ",
			headerStyle.Inherit(valueStyle).Render(dimLabel(dim)),
		),
		mutedStyle.Render(strings.Repeat("─", 36)),
	}

	if len(entries) == 0 {
		rows = append(rows, mutedStyle.Render("No clears yet"))
	}

	for i, entry := range entries {
		style := lipgloss.NewStyle()
		if m.me != "" && entry.UserID == m.me {
			style = highlightStyle
		}
		rows = append(rows, lipgloss.JoinHorizontal(
			lipgloss.Top,
			style.Inherit(rankStyle).Render(fmt.Sprintf("#%d", i+1)),
			"  ",
			style.Inherit(nameStyle).Render(truncate(entry.UserID, 18)),
			"  ",
			style.Inherit(valueStyle).Render(entryValue(entry, dim)),
		))
	}

	return panelStyle.Render(lipgloss.JoinVertical(lipgloss.Left, rows...))
}

func (m BoardModel) renderFeed() string {
	status := mutedStyle.Render("○ offline")
	if m.live {
		status = liveStyle.Render("● live")
	} else if m.feedErr != "" {
		status = errorStyle.Render("○ " + m.feedErr)
	}

	lines := []string{boldStyle.Render("Recent runs") + "  " + status}
	if len(m.feed) == 0 {
		lines = append(lines, mutedStyle.Render("Waiting for run logs..."))
	}
	for _, ev := range m.feed {
		line := fmt.Sprintf("%s  %-4s %-18s %6d tok  %s",
			ev.RecordedAt.Local().Format("15:04:05"),
			ev.StageCode,
			truncate(ev.UserID, 18),
			ev.PromptLength,
			formatMillis(ev.ClearTimeMS),
		)
		switch {
		case m.me != "" && ev.UserID == m.me:
			line = highlightStyle.Render(line)
		case ev.ImprovedAt != nil:
			line = boldStyle.Render(line + " ★")
		default:
			line = mutedStyle.Render(line)
		}
		lines = append(lines, line)
	}
	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

func (m BoardModel) renderInstructions() string {
	var lines []string
	if m.me != "" {
		lines = append(lines, liveStyle.Render("✓ Playing as "+m.me))
	} else {
		lines = append(lines, mutedStyle.Render("Use 'stageboard register <user_id>' to highlight your runs"))
	}
	lines = append(lines, mutedStyle.Render("←/→ switch stage • 'r' to refresh • 'q' to quit"))
	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

func (m BoardModel) renderLoading() string {
	spinner := []rune("⣾⣽⣻⢿⡿⣟⣯⣷")
	frame := int(time.Now().UnixMilli()/100) % len(spinner)

	content := lipgloss.JoinVertical(
		lipgloss.Center,
		titleStyle.Render(string(spinner[frame])+" Loading stage "+m.Stage()+"..."),
		"",
		mutedStyle.Render("Fetching the latest rankings..."),
	)

	return lipgloss.Place(
		m.width, m.height,
		lipgloss.Center, lipgloss.Center,
		content,
	)
}

func (m BoardModel) renderError() string {
	content := lipgloss.JoinVertical(
		lipgloss.Center,
		errorStyle.Render("❌ Error Loading Leaderboard"),
		"",
		mutedStyle.Render(m.err),
		"",
		mutedStyle.Render("Press 'r' to retry • 'q' to quit"),
	)

	return lipgloss.Place(
		m.width, m.height,
		lipgloss.Center, lipgloss.Center,
		content,
	)
}

func dimLabel(dim progress.Dimension) string {
	if dim == progress.ByTime {
		return "Time"
	}
	return "Tokens"
}

func entryValue(e progress.LeaderboardEntry, dim progress.Dimension) string {
	if dim == progress.ByTime {
		if e.ClearTimeMS == nil {
			return "-"
		}
		return formatMillis(*e.ClearTimeMS)
	}
	if e.PromptLength == nil {
		return "-"
	}
	return fmt.Sprintf("%d", *e.PromptLength)
}

func formatMillis(ms int64) string {
	return fmt.Sprintf("%.2fs", float64(ms)/1000)
}

func truncate(s string, width int) string {
	r := []rune(s)
	if len(r) <= width {
		return s
	}
	return string(r[:width-3]) + "..."
}
