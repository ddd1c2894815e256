package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/andresmejia3/rollcall/internal/config"
	"github.com/andresmejia3/rollcall/internal/types"
	"github.com/andresmejia3/rollcall/internal/utils"
	"github.com/spf13/cobra"
)

var subjectsCmd = &cobra.Command{
	Use:   "subjects",
	Short: "List the employees that can be recognised",
	Long:  "Encodes every reference image in the employees directory and prints the resulting roster.",
	Run: func(cmd *cobra.Command, args []string) {
		if cmd.Flags().Changed("employees") {
			cfg.EmployeesDir = runOpts.EmployeesDir
		}
		runSubjects(cmd.Context(), cfg)
	},
}

func init() {
	subjectsCmd.Flags().StringVarP(&runOpts.EmployeesDir, "employees", "e", config.Default().EmployeesDir, "Directory with one reference image per employee")
	rootCmd.AddCommand(subjectsCmd)
}

func runSubjects(ctx context.Context, c *config.Config) {
	backend, workerCmd, err := newBackend(ctx, c)
	if err != nil {
		utils.Die("Failed to start detector", err, workerCmd)
	}
	reg, err := loadRegistry(ctx, c, backend)
	backend.Close()
	if err != nil {
		utils.Die("Failed to load employees", err, workerCmd)
	}
	printSubjects(os.Stdout, reg.Subjects())
}

func printSubjects(out io.Writer, subjects []types.KnownSubject) {
	if len(subjects) == 0 {
		fmt.Fprintln(out, "No employees found.")
		return
	}

	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "NAME\tFILE\tDIM")
	fmt.Fprintln(w, "----\t----\t---")
	for _, s := range subjects {
		fmt.Fprintf(w, "%s\t%s\t%d\n", s.Name, s.Source, len(s.Embedding))
	}
	w.Flush()
}
