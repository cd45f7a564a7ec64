package cmd

import (
	"context"
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/dalgonaburger/stageboard/internal/stage"
	"github.com/dalgonaburger/stageboard/internal/ui"
)

// boardCmd represents the board command
var boardCmd = &cobra.Command{
	Use:   "board [stage_code]",
	Short: "View a stage's leaderboards with a live feed of runs",
	Long: `View the top 10 players of a stage by prompt tokens and by clear time.

New run logs from every player stream in below the boards while it is
open. Use the arrow keys to move between stages.`,
	Example: `  stageboard board
  stageboard board C2
  stageboard lb`,
	Aliases: []string{"lb", "leaderboard", "top"},
	Args:    cobra.MaximumNArgs(1),
	RunE:    runBoard,
}

func init() {
	rootCmd.AddCommand(boardCmd)
}

func runBoard(cmd *cobra.Command, args []string) error {
	start := "A1"
	if len(args) == 1 {
		start = strings.ToUpper(args[0])
		if !stage.ValidCode(start) {
			return fmt.Errorf("unknown stage %q", args[0])
		}
	}

	client, err := newClient()
	if err != nil {
		return err
	}
	me := ""
	if players, err := newPlayer(); err == nil && players.Current() != nil {
		me = players.Current().UserID
	}

	var codes []string
	for _, st := range stage.Default().Stages() {
		codes = append(codes, st.Code)
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	model := ui.NewBoardModel(ctx, client, codes, start, me)
	p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("error running leaderboard: %w", err)
	}
	return nil
}
