package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var progressCmd = &cobra.Command{
	Use:     "progress [user_id]",
	Short:   "Show which stages a player has unlocked and cleared",
	Example: "  stageboard progress\n  stageboard progress alice",
	Aliases: []string{"me"},
	Args:    cobra.MaximumNArgs(1),
	RunE:    runProgress,
}

func init() {
	rootCmd.AddCommand(progressCmd)
}

func runProgress(cmd *cobra.Command, args []string) error {
	players, err := newPlayer()
	if err != nil {
		return err
	}
	explicit := ""
	if len(args) == 1 {
		explicit = args[0]
	}
	userID, err := players.UserID(explicit)
	if err != nil {
		return err
	}

	client, err := newClient()
	if err != nil {
		return err
	}
	p, err := client.GetProgress(cmd.Context(), userID)
	if err != nil {
		return err
	}

	fmt.Printf("🎮 %s (profile image %d)\n\n", p.UserID, p.ProfileImage)
	if len(p.Stages) == 0 {
		fmt.Println("   No stages played yet")
		return nil
	}
	cleared := 0
	for _, st := range p.Stages {
		switch {
		case st.Cleared:
			cleared++
			when := ""
			if st.ClearedAt != nil {
				when = st.ClearedAt.Local().Format("Jan 02 15:04")
			}
			fmt.Printf("   ✓ %-3s %6d tok  %8.2fs  %s\n",
				st.Code, deref(st.PromptLength), float64(deref(st.ClearTimeMS))/1000, when)
		case st.Unlocked:
			fmt.Printf("   · %-3s unlocked\n", st.Code)
		default:
			fmt.Printf("   ✗ %-3s locked\n", st.Code)
		}
	}
	fmt.Printf("\n   %d of %d stages cleared\n", cleared, len(p.Stages))
	return nil
}
