package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create the database schema and seed the stages",
	Long: `Create the stageboard tables if they are missing and seed stages A1..E5.
Running it again is harmless. 'stageboard serve' migrates on start too.`,
	Example: `  stageboard migrate
  stageboard migrate --db postgres://localhost/stageboard`,
	RunE: runMigrate,
}

var migrateDB string

func init() {
	migrateCmd.Flags().StringVar(&migrateDB, "db", "", "Database URL or SQLite path (default $DATABASE_URL or stageboard.db)")
	rootCmd.AddCommand(migrateCmd)
}

func runMigrate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if migrateDB != "" {
		cfg.DatabaseURL = migrateDB
	}

	db, err := openDatabase(cmd.Context(), cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	catalog, err := db.LoadCatalog(cmd.Context())
	if err != nil {
		return err
	}
	fmt.Printf("✅ Schema ready on %s (%d stages)\n", db.Driver(), catalog.Len())
	return nil
}
