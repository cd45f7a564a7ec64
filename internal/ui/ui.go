package ui

import (
	"context"
	"fmt"

	"github.com/dalgonaburger/stageboard/internal/api"
	"github.com/dalgonaburger/stageboard/internal/progress"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

const feedSize = 8

// Styles for the TUI
var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("12"))

	boldStyle = lipgloss.NewStyle().
			Bold(true)

	mutedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("8"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("9")).
			Bold(true)

	highlightStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("11")).
			Bold(true)

	liveStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("10"))

	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("8")).
			Padding(0, 1)
)

// BoardModel shows the two top-10 boards of one stage next to a live feed of
// accepted run logs.
type BoardModel struct {
	ctx     context.Context
	width   int
	height  int
	client  *api.Client
	stages  []string
	current int
	me      string

	boards  *progress.Leaderboards
	loading bool
	err     string

	feed    []progress.Event
	feedCh  chan api.StreamMessage
	live    bool
	feedErr string
}

// Message types for async operations
type boardLoadedMsg struct {
	stage  string
	boards progress.Leaderboards
}

type loadErrorMsg struct {
	stage string
	error string
}

type streamMsg struct {
	msg api.StreamMessage
}

type feedClosedMsg struct {
	err error
}

// NewBoardModel builds a board for stages, starting at start. me is the
// player to highlight and may be empty. The live feed stops when ctx is done.
func NewBoardModel(ctx context.Context, client *api.Client, stages []string, start, me string) BoardModel {
	current := 0
	for i, code := range stages {
		if code == start {
			current = i
			break
		}
	}
	return BoardModel{
		ctx:     ctx,
		client:  client,
		stages:  stages,
		current: current,
		me:      me,
		loading: true,
		feedCh:  make(chan api.StreamMessage, feedSize),
	}
}

// Stage is the code of the board on screen.
func (m BoardModel) Stage() string {
	if len(m.stages) == 0 {
		return ""
	}
	return m.stages[m.current]
}

func (m BoardModel) Init() tea.Cmd {
	return tea.Batch(m.loadBoard(), m.watch(), m.waitForFeed())
}

func (m BoardModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "esc", "q":
			return m, tea.Quit
		case "r", "f5":
			m.loading = true
			m.err = ""
			return m, m.loadBoard()
		case "right", "l", "tab":
			return m.move(1)
		case "left", "h", "shift+tab":
			return m.move(-1)
		}
		return m, nil

	case boardLoadedMsg:
		if msg.stage != m.Stage() {
			return m, nil
		}
		boards := msg.boards
		m.boards = &boards
		m.loading = false
		return m, nil

	case loadErrorMsg:
		if msg.stage != m.Stage() {
			return m, nil
		}
		m.err = msg.error
		m.loading = false
		return m, nil

	case streamMsg:
		m.live = true
		var cmd tea.Cmd
		if msg.msg.Snapshot {
			m.feed = m.feed[:0]
			for _, row := range msg.msg.Rows {
				m.pushFeed(progress.Event{
					UserID:       row.UserID,
					StageCode:    row.StageCode,
					PromptLength: row.LengthUsed,
					ClearTimeMS:  row.TimeMS,
					RecordedAt:   row.RecordedAt,
				})
			}
		} else {
			ev := msg.msg.Event
			m.pushFeed(ev)
			if ev.StageCode == m.Stage() && ev.ImprovedAt != nil {
				cmd = m.loadBoard()
			}
		}
		return m, tea.Batch(cmd, m.waitForFeed())

	case feedClosedMsg:
		m.live = false
		if msg.err != nil {
			m.feedErr = msg.err.Error()
		}
		return m, nil
	}

	return m, nil
}

func (m BoardModel) move(step int) (tea.Model, tea.Cmd) {
	if len(m.stages) < 2 {
		return m, nil
	}
	m.current = (m.current + step + len(m.stages)) % len(m.stages)
	m.boards = nil
	m.loading = true
	m.err = ""
	return m, m.loadBoard()
}

// pushFeed keeps the newest feedSize events, newest first.
func (m *BoardModel) pushFeed(ev progress.Event) {
	m.feed = append([]progress.Event{ev}, m.feed...)
	if len(m.feed) > feedSize {
		m.feed = m.feed[:feedSize]
	}
}

func (m BoardModel) loadBoard() tea.Cmd {
	stage := m.Stage()
	return func() tea.Msg {
		board, err := m.client.GetLeaderboard(m.ctx, stage)
		if err != nil {
			return loadErrorMsg{stage: stage, error: fmt.Sprintf("Failed to load leaderboard: %v", err)}
		}
		return boardLoadedMsg{stage: stage, boards: board.Leaderboards}
	}
}

// watch runs the observer stream for the life of the program and hands every
// frame to waitForFeed through feedCh.
func (m BoardModel) watch() tea.Cmd {
	ch := m.feedCh
	return func() tea.Msg {
		err := m.client.Watch(m.ctx, func(sm api.StreamMessage) error {
			select {
			case ch <- sm:
				return nil
			case <-m.ctx.Done():
				return m.ctx.Err()
			}
		})
		return feedClosedMsg{err: err}
	}
}

func (m BoardModel) waitForFeed() tea.Cmd {
	ch := m.feedCh
	ctx := m.ctx
	return func() tea.Msg {
		select {
		case sm := <-ch:
			return streamMsg{msg: sm}
		case <-ctx.Done():
			return nil
		}
	}
}
