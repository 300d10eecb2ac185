// Selahctl performs maintenance on the Selah database: schema creation and repair of derived counters.
package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/silktrader/selah/pkg/storage"
)

var (
	// driver and dsn are set by the persistent flags, defaulting to the web server's environment
	driver string
	dsn    string
	debug  bool

	logger = logrus.New()

	// db is opened before every command runs
	db *storage.Storage
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "selahctl",
	Short: "Maintenance tasks for the Selah database",
	Long: `Selahctl creates the Selah schema and repairs counters derived from other tables,
such as reflection likes and theme tallies.`,
	SilenceUsage:      true,
	PersistentPreRunE: openStorage,
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if db != nil {
			return db.Close()
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&driver, "driver", envOr("SELAH_DB_DRIVER", storage.SQLite),
		"database driver, sqlite3 or postgres")
	rootCmd.PersistentFlags().StringVar(&dsn, "dsn", envOr("SELAH_DB_DSN", "/tmp/selah.db"),
		"database file path or connection string")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "verbose logging")

	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(reconcileCmd)
}

// openStorage connects to the database; opening it creates or verifies the schema.
func openStorage(cmd *cobra.Command, args []string) error {
	logger.SetOutput(os.Stderr)
	if debug {
		logger.SetLevel(logrus.DebugLevel)
	}

	var err error
	if db, err = storage.New(logger, storage.Config{Driver: driver, DSN: dsn}); err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	return nil
}

func envOr(key, fallback string) string {
	if value, found := os.LookupEnv(key); found && value != "" {
		return value
	}
	return fallback
}
