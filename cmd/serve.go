package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/andresmejia3/rollcall/internal/ledger"
	"github.com/andresmejia3/rollcall/internal/utils"
	"github.com/andresmejia3/rollcall/internal/web"
	"github.com/spf13/cobra"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the ledger as a read-only JSON API",
	Run: func(cmd *cobra.Command, args []string) {
		if cmd.Flags().Changed("addr") {
			cfg.Server.Addr = serveAddr
		}
		ctx := cmd.Context()

		led, err := ledger.Open(ctx, cfg.Ledger, cfg.Mode)
		if err != nil {
			utils.Die("Failed to open ledger", err, nil)
		}
		defer led.Close(context.Background())

		srv := web.NewServer(led, cfg.Server.Addr)
		errCh := make(chan error, 1)
		go func() { errCh <- srv.Start() }()
		fmt.Fprintf(os.Stderr, "🌐 Serving %s ledger on %s\n", cfg.Mode, cfg.Server.Addr)

		select {
		case err := <-errCh:
			if err != nil {
				led.Close(context.Background())
				utils.Die("Report server failed", err, nil)
			}
		case <-ctx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				utils.ShowError("Shutdown failed", err, nil)
			}
		}
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", ":8080", "Listen address")
	rootCmd.AddCommand(serveCmd)
}
