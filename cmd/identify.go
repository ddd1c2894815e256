package cmd

import (
	"context"
	"fmt"
	"image"
	"io"
	"os"
	"text/tabwriter"

	"github.com/andresmejia3/rollcall/internal/config"
	"github.com/andresmejia3/rollcall/internal/detector"
	"github.com/andresmejia3/rollcall/internal/ledger"
	"github.com/andresmejia3/rollcall/internal/overlay"
	"github.com/andresmejia3/rollcall/internal/registry"
	"github.com/andresmejia3/rollcall/internal/types"
	"github.com/andresmejia3/rollcall/internal/utils"
	"github.com/spf13/cobra"
)

var (
	identifyOut     string
	identifyHistory bool
)

var identifyCmd = &cobra.Command{
	Use:   "identify <image_path>",
	Short: "Recognise the employees in a still image",
	Long: `Runs the same detection and matching as the run command on a single image.
Nothing is written to the ledger. Use --history to list the days each
recognised employee was recorded.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Flags().Changed("tolerance") {
			cfg.Detector.Tolerance = runOpts.Tolerance
		}
		return runIdentify(cmd.Context(), args[0])
	},
}

func init() {
	identifyCmd.Flags().Float64VarP(&runOpts.Tolerance, "tolerance", "t", 0.6, "Face matching tolerance")
	identifyCmd.Flags().StringVar(&identifyOut, "annotate", "", "Write the annotated image to this path")
	identifyCmd.Flags().BoolVar(&identifyHistory, "history", false, "Show the attendance history of every recognised employee")
	rootCmd.AddCommand(identifyCmd)
}

// identified is one face in a still image.
type identified struct {
	Region image.Rectangle
	Match  registry.Match
}

func runIdentify(ctx context.Context, imagePath string) error {
	imgData, err := os.ReadFile(imagePath)
	if err != nil {
		utils.ShowError("Failed to read image file", err, nil)
		return err
	}
	data, err := detector.ToJPEG(imgData)
	if err != nil {
		utils.ShowError("Unsupported image", err, nil)
		return err
	}

	fmt.Fprintln(os.Stderr, "🚀 Starting face engine...")
	backend, workerCmd, err := newBackend(ctx, cfg)
	if err != nil {
		utils.ShowError("Failed to start detector", err, workerCmd)
		return err
	}
	det := detector.NewScaled(backend, cfg.Detector.EffectiveScale())
	defer det.Close()

	reg, err := loadRegistry(ctx, cfg, backend)
	if err != nil {
		utils.ShowError("Failed to load employees", err, workerCmd)
		return err
	}
	m, err := newMatcher(cfg, reg)
	if err != nil {
		return err
	}

	fmt.Fprintln(os.Stderr, "🔍 Analyzing faces...")
	faces, err := identifyFaces(ctx, det, m, data)
	if err != nil {
		utils.ShowError("Face processing failed", err, workerCmd)
		return err
	}
	if len(faces) == 0 {
		fmt.Println("❌ No faces detected in the provided image.")
		return nil
	}
	printIdentified(os.Stdout, faces)

	if identifyOut != "" {
		out, err := overlay.DrawJPEG(data, identifyAnnotations(faces))
		if err != nil {
			return fmt.Errorf("failed to annotate image: %w", err)
		}
		if err := os.WriteFile(identifyOut, out, 0644); err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "🖼️  Annotated image written to %s\n", identifyOut)
	}

	if identifyHistory {
		led, err := ledger.Open(ctx, cfg.Ledger, cfg.Mode)
		if err != nil {
			utils.ShowError("Failed to open ledger", err, nil)
			return err
		}
		defer led.Close(context.Background())
		for _, f := range faces {
			if !f.Match.Known {
				continue
			}
			rows, err := ledger.History(ctx, led, f.Match.Subject)
			if err != nil {
				return err
			}
			fmt.Printf("\n📅 %s\n", f.Match.Subject)
			printAttendance(os.Stdout, rows)
		}
	}
	return nil
}

func identifyFaces(ctx context.Context, det detector.Detector, m *registry.Matcher, data []byte) ([]identified, error) {
	dets, err := det.Detect(ctx, types.Frame{Data: data})
	if err != nil {
		return nil, err
	}
	out := make([]identified, 0, len(dets))
	for _, d := range dets {
		out = append(out, identified{Region: d.Region, Match: m.Match(d.Descriptor)})
	}
	return out, nil
}

// identifyAnnotations draws recognised faces in green. Nothing is recorded, so yellow is never used.
func identifyAnnotations(faces []identified) []overlay.Annotation {
	results := make([]overlay.Result, 0, len(faces))
	for _, f := range faces {
		r := overlay.Result{Region: f.Region, Subject: f.Match.Subject, Outcome: overlay.Recorded}
		if !f.Match.Known {
			r.Outcome = overlay.Unrecognised
		}
		results = append(results, r)
	}
	return overlay.Annotate(config.ModeIdentity, results)
}

func printIdentified(out io.Writer, faces []identified) {
	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "NAME\tDISTANCE\tREGION")
	fmt.Fprintln(w, "----\t--------\t------")
	for _, f := range faces {
		dist := "-"
		if f.Match.Known {
			dist = fmt.Sprintf("%.3f", f.Match.Distance)
		}
		fmt.Fprintf(w, "%s\t%s\t%v\n", f.Match.Subject, dist, f.Region)
	}
	w.Flush()
}
