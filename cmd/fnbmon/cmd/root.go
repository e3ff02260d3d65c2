package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/fnb-tools/fnbmon/internal/config"
	"github.com/fnb-tools/fnbmon/internal/session"
	"github.com/fnb-tools/fnbmon/internal/storage"
)

var (
	cfgPath  string
	logLevel string
	dbPath   string

	cfg      *config.Config
	levelVar slog.LevelVar
	logger   *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "fnbmon",
	Short: "Telemetry tool for FNIRSI USB power meters",
	Long: `fnbmon streams live measurements from FNIRSI FNB48, FNB58 and C1
USB power meters over USB HID or Bluetooth LE, records sessions to a
local database and exports or plots them afterwards.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		if cfgPath != "" {
			cfg, err = config.Load(cfgPath)
			if err != nil {
				return err
			}
		} else {
			cfg = config.Default()
		}

		if logLevel != "" {
			cfg.Settings.LogLevel = logLevel
		}
		level, err := cfg.Settings.SlogLevel()
		if err != nil {
			return err
		}
		levelVar.Set(level)
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: &levelVar,
		}))
		return nil
	},
}

// Execute runs the root command. Called once from main.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "path to configuration file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "path to the session database")
}

// openStore opens the session database, creating the data directory on
// first use.
func openStore() (*storage.SqliteStore, error) {
	path := dbPath
	if path == "" {
		path = filepath.Join(cfg.Storage.DataDirectory, "fnbmon.db")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}
	return storage.NewSqliteStore(path), nil
}

func closeStore(store *storage.SqliteStore) {
	if err := store.Close(); err != nil {
		logger.Error("closing store", "error", err)
	}
}

// resolveSession looks a session up by numeric ID or, failing that, by name.
func resolveSession(cmd *cobra.Command, store *storage.SqliteStore, arg string) (*session.Session, error) {
	if id, err := strconv.ParseInt(arg, 10, 64); err == nil {
		return store.Session(cmd.Context(), id)
	}
	return store.SessionByName(cmd.Context(), arg)
}
