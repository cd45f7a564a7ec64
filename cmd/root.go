package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/dalgonaburger/stageboard/internal/api"
	"github.com/dalgonaburger/stageboard/internal/config"
	"github.com/dalgonaburger/stageboard/internal/player"
)

var (
	version     = "v0.1.0"
	showVersion bool
	envFile     string
	apiURL      string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "stageboard",
	Short: "Stage progress and rankings for a prompt puzzle game",
	Long: `Stageboard records how players clear puzzle stages and ranks them by
prompt tokens used and clear time.

Run 'stageboard serve' to start the API server, then use the other
commands to register, submit run logs and watch the leaderboards.`,
	Example: `  stageboard serve --memory
  stageboard register alice
  stageboard submit A1 --length 10 --time 5000
  stageboard board A1`,
	SilenceUsage: true,
}

// versionCmd prints the current version of stageboard
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show the version of stageboard",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("stageboard version", version)
	},
}

// Execute adds all child commands to the root command and sets flags appropriately
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	rootCmd.PersistentFlags().BoolVarP(&showVersion, "version", "v", false, "Show the version and exit")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Read settings from this file before the environment")
	rootCmd.PersistentFlags().StringVar(&apiURL, "api-url", "", "Server URL (default $STAGEBOARD_API_URL or http://localhost:8080)")

	rootCmd.AddCommand(versionCmd)

	cobra.OnInitialize(func() {
		if showVersion {
			fmt.Println("stageboard version", version)
			os.Exit(0)
		}
	})
}

func loadConfig() (config.Config, error) {
	cfg, err := config.Load(envFile)
	if err != nil {
		return cfg, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// newClient builds an API client from --api-url or the configuration.
func newClient() (*api.Client, error) {
	if apiURL != "" {
		return api.NewClient(apiURL), nil
	}
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return api.NewClient(cfg.APIURL), nil
}

func newPlayer() (*player.Manager, error) {
	m, err := player.NewManager("")
	if err != nil {
		return nil, fmt.Errorf("failed to initialize player profile: %w", err)
	}
	return m, nil
}
