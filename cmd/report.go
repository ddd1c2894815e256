package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/andresmejia3/rollcall/internal/config"
	"github.com/andresmejia3/rollcall/internal/ledger"
	"github.com/andresmejia3/rollcall/internal/types"
	"github.com/andresmejia3/rollcall/internal/utils"
	"github.com/spf13/cobra"
)

var (
	reportDate  string
	reportName  string
	reportToday bool
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Print the rows recorded in the ledger",
	Run: func(cmd *cobra.Command, args []string) {
		if reportToday {
			reportDate = time.Now().Format(types.DateLayout)
		}
		if err := runReport(cmd.Context(), os.Stdout, cfg, reportDate, reportName); err != nil {
			utils.Die("Failed to read ledger", err, nil)
		}
	},
}

func init() {
	reportCmd.Flags().StringVar(&reportDate, "date", "", "Only show rows for this day (YYYY-MM-DD)")
	reportCmd.Flags().BoolVar(&reportToday, "today", false, "Only show rows for today")
	reportCmd.Flags().StringVar(&reportName, "name", "", "Show every day a single employee was seen (identity mode)")
	rootCmd.AddCommand(reportCmd)
}

func runReport(ctx context.Context, out io.Writer, c *config.Config, date, name string) error {
	if date != "" {
		if _, err := time.Parse(types.DateLayout, date); err != nil {
			return fmt.Errorf("invalid --date %q: want YYYY-MM-DD", date)
		}
	}

	led, err := ledger.Open(ctx, c.Ledger, c.Mode)
	if err != nil {
		return err
	}
	defer led.Close(context.Background())

	if c.Mode == config.ModePresence {
		rows, err := led.Presence(ctx, date)
		if err != nil {
			return err
		}
		printPresence(out, rows)
		return nil
	}

	var rows []types.AttendanceEvent
	if name != "" {
		rows, err = ledger.History(ctx, led, name)
	} else {
		rows, err = led.Events(ctx, date)
	}
	if err != nil {
		return err
	}
	printAttendance(out, rows)
	return nil
}

func printAttendance(out io.Writer, rows []types.AttendanceEvent) {
	if len(rows) == 0 {
		fmt.Fprintln(out, "No attendance recorded.")
		return
	}
	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "NAME\tDATE\tTIME")
	fmt.Fprintln(w, "----\t----\t----")
	for _, r := range rows {
		fmt.Fprintf(w, "%s\t%s\t%s\n", r.Name, r.Date, r.Time)
	}
	w.Flush()
}

func printPresence(out io.Writer, rows []types.PresenceEvent) {
	if len(rows) == 0 {
		fmt.Fprintln(out, "No presence recorded.")
		return
	}
	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "TIMESTAMP\tSTATUS")
	fmt.Fprintln(w, "---------\t------")
	for _, r := range rows {
		fmt.Fprintf(w, "%s\t%s\n", r.Timestamp, r.Status)
	}
	w.Flush()
}
