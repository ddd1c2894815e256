package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"unicode"

	"github.com/andresmejia3/rollcall/internal/detector"
	"github.com/andresmejia3/rollcall/internal/registry"
	"github.com/andresmejia3/rollcall/internal/utils"
	"github.com/spf13/cobra"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var enrollForce bool

var enrollCmd = &cobra.Command{
	Use:   "enroll <image_path> <name>",
	Short: "Add an employee reference image",
	Long: `Checks that the image contains exactly one face and copies it into the
employees directory as first_last.jpg so the next run recognises it.`,
	Args: cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		if cmd.Flags().Changed("employees") {
			cfg.EmployeesDir = runOpts.EmployeesDir
		}
		runEnroll(cmd.Context(), args[0], args[1])
	},
}

func init() {
	enrollCmd.Flags().StringVarP(&runOpts.EmployeesDir, "employees", "e", "employees", "Directory with one reference image per employee")
	enrollCmd.Flags().BoolVarP(&enrollForce, "force", "f", false, "Replace an existing reference image")
	rootCmd.AddCommand(enrollCmd)
}

// nonName matches runs of characters that cannot appear in a reference filename.
// Apostrophes and hyphens survive so "O'Brien" and "Mary-Jane" round-trip.
var nonName = regexp.MustCompile(`[^\p{L}\p{N}'-]+`)

// referenceFile turns "José  García" into "josé_garcía.jpg". The name must be
// spelled the way registry.SubjectName will read it back, otherwise the ledger
// would record a different name than the one enrolled.
func referenceFile(name string) (string, error) {
	display := strings.Join(strings.Fields(name), " ")
	base := strings.Trim(nonName.ReplaceAllString(cases.Lower(language.Und).String(display), "_"), "_")
	if strings.IndexFunc(base, unicode.IsLetter) < 0 {
		return "", fmt.Errorf("invalid employee name %q", name)
	}
	file := base + ".jpg"
	if got := registry.SubjectName(file); got != display {
		return "", fmt.Errorf("%q would be recorded as %q, enroll it with that spelling", display, got)
	}
	return file, nil
}

func runEnroll(ctx context.Context, imagePath, name string) {
	file, err := referenceFile(name)
	if err != nil {
		utils.Die("Invalid name", err, nil)
	}
	dst := filepath.Join(cfg.EmployeesDir, file)
	if _, err := os.Stat(dst); err == nil && !enrollForce {
		utils.Die("Employee already enrolled", fmt.Errorf("%s exists (use --force to replace it)", dst), nil)
	}

	raw, err := os.ReadFile(imagePath)
	if err != nil {
		utils.Die("Failed to read image file", err, nil)
	}
	data, err := detector.ToJPEG(raw)
	if err != nil {
		utils.Die("Unsupported image", err, nil)
	}

	backend, workerCmd, err := newBackend(ctx, cfg)
	if err != nil {
		utils.Die("Failed to start detector", err, workerCmd)
	}
	faces, err := backend.Encode(ctx, data)
	backend.Close()
	if err != nil {
		utils.Die("Face processing failed", err, workerCmd)
	}
	switch {
	case len(faces) == 0:
		utils.Die("Cannot enroll", registry.ErrNoFace, nil)
	case len(faces) > 1:
		utils.Die("Cannot enroll", fmt.Errorf("found %d faces, a reference image must show one person", len(faces)), nil)
	case len(faces[0].Descriptor) == 0:
		utils.Die("Cannot enroll", errors.New("the detector backend does not produce embeddings, use dlib or python"), nil)
	}

	if err := os.MkdirAll(cfg.EmployeesDir, 0755); err != nil {
		utils.Die("Failed to create employees directory", err, nil)
	}
	if err := os.WriteFile(dst, data, 0644); err != nil {
		utils.Die("Failed to write reference image", err, nil)
	}
	fmt.Printf("✅ Enrolled '%s' as %s\n", registry.SubjectName(file), dst)
}
