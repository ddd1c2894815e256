package cmd

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/andresmejia3/rollcall/internal/config"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

var (
	// cfg is loaded once in PersistentPreRunE and shared by subcommands
	cfg *config.Config

	cfgPath  string
	logLevel string

	// Ledger flags shared by run, report, serve and reset
	mode          string
	ledgerBackend string
	ledgerPath    string
	dbURL         string
)

// Version is the application version.
const Version = "0.1.0"

var rootCmd = &cobra.Command{
	Use:     "rollcall",
	Short:   "Face-recognition attendance logger for live camera streams",
	Version: Version, // This enables the --version flag
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		level, err := parseLevel(logLevel)
		if err != nil {
			return err
		}
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

		cfg, err = config.Load(cfgPath)
		if err != nil {
			return err
		}
		applyLedgerFlags(cmd, cfg)
		return nil
	},
}

func Execute() {
	// Create a context that listens for Ctrl+C (SIGINT) or Kill (SIGTERM)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(loadDotEnv)

	rootCmd.SilenceUsage = true
	rootCmd.SilenceErrors = true

	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "Path to YAML config (default: ./"+config.DefaultPath+" if present)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level: debug, info, warn, error")
	addLedgerFlags(rootCmd.PersistentFlags())
}

func addLedgerFlags(f *pflag.FlagSet) {
	f.StringVar(&mode, "mode", "", "identity (one row per person per day) or presence (one row per frame with a face)")
	f.StringVar(&ledgerBackend, "ledger", "", "Ledger backend: xlsx, postgres or memory")
	f.StringVarP(&ledgerPath, "output", "o", "", "Path to the xlsx ledger (default: attendance_record.xlsx)")
	f.StringVar(&dbURL, "db", "", "PostgreSQL connection string for the postgres ledger")
}

// loadDotEnv reads .env into the environment. Real environment variables win.
func loadDotEnv() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "⚠️  Failed to load .env: %v\n", err)
	}
}

// applyLedgerFlags overrides the loaded config with explicitly set persistent flags.
func applyLedgerFlags(cmd *cobra.Command, c *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("mode") {
		c.Mode = mode
	}
	if flags.Changed("ledger") {
		c.Ledger.Backend = ledgerBackend
	}
	if flags.Changed("output") {
		c.Ledger.Path = ledgerPath
	}
	if flags.Changed("db") {
		c.Ledger.DatabaseURL = dbURL
		if !flags.Changed("ledger") {
			c.Ledger.Backend = "postgres"
		}
	}
}

func parseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
}
