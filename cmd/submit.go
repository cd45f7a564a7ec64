package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dalgonaburger/stageboard/internal/api"
	"github.com/dalgonaburger/stageboard/internal/progress"
)

var submitCmd = &cobra.Command{
	Use:   "submit <stage_code>",
	Short: "Submit a run log for a cleared stage",
	Long: `Submit one run log: the stage cleared, the prompt length used and the
clear time in milliseconds. The server answers with your rank on both
boards and whether this run improved your best.`,
	Example: `  stageboard submit A1 --length 10 --time 5000
  stageboard submit B3 -n 42 -t 12500 --user bob`,
	Args: cobra.ExactArgs(1),
	RunE: runSubmit,
}

var (
	submitUser   string
	submitLength int64
	submitTime   int64
)

func init() {
	submitCmd.Flags().StringVarP(&submitUser, "user", "u", "", "User id (default the registered player)")
	submitCmd.Flags().Int64VarP(&submitLength, "length", "n", 0, "Prompt length used, in tokens")
	submitCmd.Flags().Int64VarP(&submitTime, "time", "t", 0, "Clear time in milliseconds")
	_ = submitCmd.MarkFlagRequired("length")
	_ = submitCmd.MarkFlagRequired("time")
	rootCmd.AddCommand(submitCmd)
}

func runSubmit(cmd *cobra.Command, args []string) error {
	players, err := newPlayer()
	if err != nil {
		return err
	}
	userID, err := players.UserID(submitUser)
	if err != nil {
		return err
	}

	attempt := progress.Attempt{
		UserID:     userID,
		StageCode:  strings.ToUpper(args[0]),
		LengthUsed: submitLength,
		TimeMS:     submitTime,
	}.Normalize()
	if err := attempt.Validate(); err != nil {
		return err
	}
	if err := progress.ValidateStageCode(attempt.StageCode); err != nil {
		return err
	}

	client, err := newClient()
	if err != nil {
		return err
	}
	res, err := client.Submit(cmd.Context(), attempt)
	if err != nil {
		if api.IsRetryable(err) {
			fmt.Println("⚠ The server could not record the run right now; try again shortly")
		}
		return err
	}

	fmt.Printf("✅ %s cleared %s\n", res.UserID, res.Stage)
	fmt.Println()
	fmt.Printf("   Tokens: rank #%d of %d (top %.2f%%)  best %d%s\n",
		res.RankTokens, res.TotalRecordsTokens, res.RankTokensPercent, res.BestPromptLength, improvedMark(res.ImprovedLength))
	fmt.Printf("   Time:   rank #%d of %d (top %.2f%%)  best %.2fs%s\n",
		res.RankClearTime, res.TotalRecords, res.RankClearTimePercent, float64(res.BestClearTimeMS)/1000, improvedMark(res.ImprovedTime))
	fmt.Println()
	printTop("Fewest tokens", res.Leaderboards.PromptTop10, userID, func(e progress.LeaderboardEntry) string {
		return fmt.Sprintf("%d", deref(e.PromptLength))
	})
	printTop("Fastest clear", res.Leaderboards.TimeTop10, userID, func(e progress.LeaderboardEntry) string {
		return fmt.Sprintf("%.2fs", float64(deref(e.ClearTimeMS))/1000)
	})
	return nil
}

func improvedMark(improved bool) string {
	if improved {
		return "  ★ new best"
	}
	return ""
}

func printTop(title string, entries []progress.LeaderboardEntry, me string, value func(progress.LeaderboardEntry) string) {
	fmt.Printf("🏆 %s\n", title)
	if len(entries) == 0 {
		fmt.Println("   No clears yet")
	}
	for i, e := range entries {
		marker := " "
		if e.UserID == me {
			marker = "›"
		}
		fmt.Printf(" %s #%-2d %-20s %s\n", marker, i+1, e.UserID, value(e))
	}
	fmt.Println(strings.Repeat("─", 36))
}

func deref(p *int64) int64 {
	if p == nil {
		return 0
	}
	return *p
}
