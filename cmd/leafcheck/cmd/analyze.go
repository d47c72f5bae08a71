package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/MeKo-Tech/leafcheck/internal/diagnosis"
	"github.com/MeKo-Tech/leafcheck/internal/orchestrator"
	"github.com/MeKo-Tech/leafcheck/internal/utils"
	"github.com/spf13/cobra"
)

const (
	outputFormatJSON = "json"
	outputFormatText = "text"
)

// analyzeCmd represents the analyze command.
var analyzeCmd = &cobra.Command{
	Use:   "analyze <image>",
	Short: "Diagnose a tomato leaf photo",
	Long: `Diagnose one tomato leaf photo. The remote prediction service is tried
first when the network is reachable; otherwise, or when it fails, the photo is
classified on this machine.

Supported formats: JPEG, PNG, BMP, WebP, GIF

Examples:
  leafcheck analyze leaf.jpg
  leafcheck analyze leaf.jpg --offline
  leafcheck analyze leaf.jpg --format json --output diagnosis.json`,
	Args:         cobra.MaximumNArgs(1),
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 0 {
			return orchestrator.ErrNoImage
		}

		cfg := GetConfig()

		format := cfg.Output.Format
		if cmd.Flags().Changed("format") {
			format, _ = cmd.Flags().GetString("format")
		}
		if format == "" {
			format = outputFormatText
		}
		if format != outputFormatText && format != outputFormatJSON {
			return fmt.Errorf("unsupported format %q (use text or json)", format)
		}

		outputFile := cfg.Output.File
		if cmd.Flags().Changed("output") {
			outputFile, _ = cmd.Flags().GetString("output")
		}
		offline, _ := cmd.Flags().GetBool("offline")

		data, err := utils.ReadImageFile(args[0])
		if err != nil {
			return fmt.Errorf("failed to read image: %w", err)
		}

		logger := slog.Default()
		comps, err := buildComponents(cfg, logger)
		if err != nil {
			return err
		}
		defer func() { _ = comps.Close() }()

		observer := orchestrator.ObserverFuncs{
			State: func(s orchestrator.State) { logger.Debug("Analysis stage", "state", s.String()) },
			Notice: func(n orchestrator.Notice) {
				logger.Info(n.Message, "kind", n.Kind, "reason", n.Reason)
			},
		}
		session, err := orchestrator.New(comps.deps, orchestrator.WithObserver(observer), orchestrator.WithLogger(logger))
		if err != nil {
			return err
		}

		res, err := session.Analyze(cmd.Context(), &orchestrator.Image{Name: filepath.Base(args[0]), Data: data}, offline)
		if err != nil {
			return err
		}

		var out io.Writer = cmd.OutOrStdout()
		if outputFile != "" {
			f, err := os.Create(outputFile) //nolint:gosec // G304: user-selected output path
			if err != nil {
				return fmt.Errorf("failed to create output file: %w", err)
			}
			defer func() { _ = f.Close() }()
			out = f
		}

		if format == outputFormatJSON {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(res)
		}
		_, err = io.WriteString(out, formatResultText(res, comps.interpreter.Catalog()))
		return err
	},
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func writeList(b *strings.Builder, title string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(b, "%s:\n", title)
	for _, it := range items {
		fmt.Fprintf(b, "  - %s\n", it)
	}
}

// formatResultText renders a result for terminals.
func formatResultText(res *orchestrator.Result, catalog *diagnosis.Catalog) string {
	d := res.Diagnosis
	var b strings.Builder

	fmt.Fprintf(&b, "Analysis %s (%s)\n", res.ID, res.Path)
	fmt.Fprintf(&b, "Tomato leaf: %s\n", yesNo(d.IsTomatoLeaf == diagnosis.Tomato))
	fmt.Fprintf(&b, "Health: %s\n", strings.ReplaceAll(string(d.HealthStatus), "_", " "))
	fmt.Fprintf(&b, "Confidence: %.0f%%\n", d.ConfidenceScore*100)

	if len(d.DiseasesDetected) > 0 {
		names := make([]string, len(d.DiseasesDetected))
		for i, id := range d.DiseasesDetected {
			names[i] = catalog.DisplayName(id)
		}
		fmt.Fprintf(&b, "Diseases: %s\n", strings.Join(names, ", "))
	}
	if s := d.Severity(); s != "" {
		fmt.Fprintf(&b, "Severity: %s\n", s)
	}

	writeList(&b, "Symptoms", d.SymptomsObserved)
	writeList(&b, "Treatment", d.TreatmentRecommendations)
	writeList(&b, "Prevention", d.PreventionTips)
	if d.AdditionalNotes != "" {
		fmt.Fprintf(&b, "Notes: %s\n", d.AdditionalNotes)
	}
	if res.FallbackReason != "" {
		fmt.Fprintf(&b, "Fallback reason: %s\n", res.FallbackReason)
	}

	notices := make([]string, 0, len(res.Notices))
	for _, n := range res.Notices {
		notices = append(notices, n.Message)
	}
	writeList(&b, "Notices", notices)
	return b.String()
}

func init() {
	rootCmd.AddCommand(analyzeCmd)
	analyzeCmd.Flags().Bool("offline", false, "skip the prediction service and analyze on this machine")
	analyzeCmd.Flags().StringP("format", "f", outputFormatText, "output format (text, json)")
	analyzeCmd.Flags().StringP("output", "o", "", "write the diagnosis to a file instead of stdout")
}
