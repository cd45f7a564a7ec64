package cmd

import (
	"bufio"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/dalgonaburger/stageboard/internal/export"
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write every run log to an Excel workbook",
	Example: `  stageboard export
  stageboard export -o runs.xlsx --db postgres://localhost/stageboard`,
	RunE: runExport,
}

var (
	exportOut string
	exportDB  string
)

func init() {
	exportCmd.Flags().StringVarP(&exportOut, "out", "o", "run_logs.xlsx", "Output file")
	exportCmd.Flags().StringVar(&exportDB, "db", "", "Database URL or SQLite path (default $DATABASE_URL or stageboard.db)")
	rootCmd.AddCommand(exportCmd)
}

func runExport(cmd *cobra.Command, args []string) (err error) {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if exportDB != "" {
		cfg.DatabaseURL = exportDB
	}

	db, err := openDatabase(cmd.Context(), cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	f, err := os.Create(exportOut)
	if err != nil {
		return fmt.Errorf("create %s: %w", exportOut, err)
	}
	defer func() {
		if cerr := f.Close(); err == nil && cerr != nil {
			err = cerr
		}
	}()

	w := bufio.NewWriter(f)
	n, err := export.WriteAttempts(cmd.Context(), db, w)
	if err != nil {
		return err
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("write %s: %w", exportOut, err)
	}
	fmt.Printf("✅ Exported %d run logs to %s\n", n, exportOut)
	return nil
}
