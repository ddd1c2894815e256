package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/andresmejia3/rollcall/internal/ledger"
	"github.com/andresmejia3/rollcall/internal/utils"
	"github.com/spf13/cobra"
)

var (
	resetLedger bool
	resetDebug  bool
	resetYes    bool
	resetDir    string
)

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Clear the attendance ledger and debug frames",
	Long:  "Clears all recorded rows. By default, it resets everything. Use flags to clear specific components.",
	Run: func(cmd *cobra.Command, args []string) {
		// If no flags are set, default to clearing EVERYTHING
		if !resetLedger && !resetDebug {
			resetLedger = true
			resetDebug = true
		}

		reader := bufio.NewReader(os.Stdin)
		ctx := cmd.Context()

		if resetLedger {
			if resetYes || confirm(reader, fmt.Sprintf("⚠️  Are you sure you want to delete every %s row from the %s ledger?", cfg.Mode, cfg.Ledger.Backend)) {
				fmt.Println("🗑️  Clearing ledger...")
				led, err := ledger.Open(ctx, cfg.Ledger, cfg.Mode)
				if err != nil {
					utils.Die("Failed to open ledger", err, nil)
				}
				err = led.Reset(ctx)
				led.Close(ctx)
				if err != nil {
					utils.Die("Failed to reset ledger", err, nil)
				}
			}
		}

		if resetDebug {
			dir := cfg.Display.DebugDir
			if cmd.Flags().Changed("debug-dir") {
				dir = resetDir
			}
			if dir == "" {
				fmt.Println("ℹ️  No debug directory configured, skipping.")
			} else if resetYes || confirm(reader, fmt.Sprintf("⚠️  Are you sure you want to delete all debug frames in %s?", dir)) {
				fmt.Println("🗑️  Clearing debug frames...")
				removeDir(dir)
			}
		}

		fmt.Println("✨ Reset complete.")
	},
}

func init() {
	resetCmd.Flags().BoolVar(&resetLedger, "rows", false, "Clear the attendance ledger")
	resetCmd.Flags().BoolVar(&resetDebug, "debug", false, "Clear debug frames")
	resetCmd.Flags().StringVar(&resetDir, "debug-dir", "", "Debug frame directory (default: display.debug_dir)")
	resetCmd.Flags().BoolVarP(&resetYes, "yes", "y", false, "Do not ask for confirmation")
	rootCmd.AddCommand(resetCmd)
}

func confirm(r *bufio.Reader, prompt string) bool {
	fmt.Printf("%s [y/N]: ", prompt)
	res, _ := r.ReadString('\n')
	res = strings.TrimSpace(strings.ToLower(res))
	return res == "y" || res == "yes"
}

func removeDir(path string) {
	if err := os.RemoveAll(path); err != nil {
		fmt.Fprintf(os.Stderr, "⚠️  Failed to remove %s: %v\n", path, err)
	}
}
