package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/dalgonaburger/stageboard/internal/player"
	"github.com/dalgonaburger/stageboard/internal/progress"
)

// registerCmd represents the register command
var registerCmd = &cobra.Command{
	Use:   "register [user_id]",
	Short: "Register a player and remember it on this machine",
	Long: `Register a player with the stageboard server.

This command will:
1. Create the user on the server (registering twice is harmless)
2. Optionally set the profile image (0, 1 or 2)
3. Save the user id locally so other commands can omit --user`,
	Example: `  stageboard register alice
  stageboard register alice --image 2
  stageboard register --status
  stageboard register --forget`,
	Args: cobra.MaximumNArgs(1),
	RunE: runRegister,
}

var (
	registerImage  int
	registerForget bool
	registerStatus bool
)

func init() {
	registerCmd.Flags().IntVar(&registerImage, "image", -1, "Profile image (0-2)")
	registerCmd.Flags().BoolVar(&registerForget, "forget", false, "Forget the saved player")
	registerCmd.Flags().BoolVar(&registerStatus, "status", false, "Show the saved player")
	rootCmd.AddCommand(registerCmd)
}

func runRegister(cmd *cobra.Command, args []string) error {
	players, err := newPlayer()
	if err != nil {
		return err
	}

	if registerForget {
		if players.Current() == nil {
			fmt.Println("✓ No player saved")
			return nil
		}
		if err := players.Forget(); err != nil {
			return fmt.Errorf("failed to forget player: %w", err)
		}
		fmt.Println("✓ Player forgotten")
		return nil
	}

	client, err := newClient()
	if err != nil {
		return err
	}

	if registerStatus {
		p := players.Current()
		if p == nil {
			fmt.Println("✗ No player saved")
			fmt.Println("  Run 'stageboard register <user_id>' to pick one")
			return nil
		}
		fmt.Printf("✓ Playing as: %s\n", p.UserID)
		fmt.Printf("  Profile image: %d\n", p.ProfileImage)
		fmt.Printf("  Server: %s\n", p.Server)
		fmt.Printf("  Registered: %s\n", p.RegisteredAt.Format("Jan 2, 2006 15:04"))
		if err := client.CheckHealth(cmd.Context()); err != nil {
			fmt.Printf("  ⚠ API Status: Offline (%v)\n", err)
		} else {
			fmt.Printf("  ✓ API Status: Online\n")
		}
		return nil
	}

	if len(args) == 0 {
		return fmt.Errorf("user_id is required")
	}
	userID := args[0]
	if err := progress.ValidateUserID(userID); err != nil {
		return err
	}

	var image *int
	if cmd.Flags().Changed("image") {
		if err := progress.ValidateProfileImage(registerImage); err != nil {
			return err
		}
		image = &registerImage
	}

	if err := client.CheckHealth(cmd.Context()); err != nil {
		fmt.Printf("❌ Cannot connect to stageboard server at %s\n", client.BaseURL())
		fmt.Printf("Error: %v\n", err)
		fmt.Println()
		fmt.Println("Make sure the server is running:")
		fmt.Println("  stageboard serve")
		return fmt.Errorf("API server unavailable")
	}

	reg, err := client.Register(cmd.Context(), userID, image)
	if err != nil {
		return err
	}
	// An existing user keeps their image unless a new one was asked for.
	if !reg.Created && image != nil && reg.ProfileImage != *image {
		if err := client.SetProfileImage(cmd.Context(), userID, *image); err != nil {
			return err
		}
		reg.ProfileImage = *image
	}

	err = players.Save(player.Profile{
		UserID:       reg.UserID,
		ProfileImage: reg.ProfileImage,
		Server:       client.BaseURL(),
		RegisteredAt: time.Now(),
	})
	if err != nil {
		return fmt.Errorf("failed to save player: %w", err)
	}

	fmt.Println()
	if reg.Created {
		fmt.Printf("✅ Registered %s\n", reg.UserID)
	} else {
		fmt.Printf("✅ Welcome back, %s\n", reg.UserID)
	}
	fmt.Println()
	fmt.Println("🎯 You can now submit run logs!")
	fmt.Println("   Run 'stageboard submit A1 --length 10 --time 5000' to log a clear")
	fmt.Println("   Run 'stageboard board A1' to view the rankings")
	return nil
}
