package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/MeKo-Tech/leafcheck/internal/diagnosis"
	"github.com/spf13/cobra"
)

// diseasesCmd prints the knowledge base.
var diseasesCmd = &cobra.Command{
	Use:   "diseases [id]",
	Short: "Show the disease knowledge base",
	Long: `List every known tomato leaf condition, or show the full record for one
of them: symptoms, treatments, prevention and farming tips.

Examples:
  leafcheck diseases
  leafcheck diseases late_blight
  leafcheck diseases early_blight --format json`,
	Args:         cobra.MaximumNArgs(1),
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		format, _ := cmd.Flags().GetString("format")
		out := cmd.OutOrStdout()
		catalog := diagnosis.DefaultCatalog()

		var records []diagnosis.Info
		if len(args) == 1 {
			key := strings.ToLower(strings.TrimSpace(args[0]))
			info, ok := catalog.Lookup(key)
			if !ok {
				return fmt.Errorf("unknown disease %q", args[0])
			}
			records = []diagnosis.Info{info}
		} else {
			records = catalog.All()
		}

		switch format {
		case outputFormatJSON:
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			if len(args) == 1 {
				return enc.Encode(records[0])
			}
			return enc.Encode(records)
		case outputFormatText:
			if len(args) == 1 {
				return writeDiseaseDetail(out, records[0])
			}
			for _, info := range records {
				sev := string(info.Severity)
				if sev == "" {
					sev = "-"
				}
				if _, err := fmt.Fprintf(out, "%-20s %-9s %s\n", info.Key, sev, info.Name); err != nil {
					return err
				}
			}
			return nil
		default:
			return fmt.Errorf("unsupported format %q (use text or json)", format)
		}
	},
}

func writeDiseaseDetail(w io.Writer, info diagnosis.Info) error {
	var b strings.Builder
	fmt.Fprintf(&b, "%s (%s)\n", info.Name, info.Key)
	if info.Severity != "" {
		fmt.Fprintf(&b, "Severity: %s\n", info.Severity)
	}
	if info.Description != "" {
		fmt.Fprintf(&b, "\n%s\n\n", info.Description)
	}
	writeList(&b, "Symptoms", info.Symptoms)

	treatments := make([]string, len(info.Treatments))
	for i, t := range info.Treatments {
		treatments[i] = t.Summary()
	}
	writeList(&b, "Treatments", treatments)
	writeList(&b, "Prevention", info.Prevention)
	writeList(&b, "Farming tips", info.FarmingTips)
	if info.ExpectedRecovery != "" {
		fmt.Fprintf(&b, "Expected recovery: %s\n", info.ExpectedRecovery)
	}
	_, err := io.WriteString(w, b.String())
	return err
}

func init() {
	rootCmd.AddCommand(diseasesCmd)
	diseasesCmd.Flags().StringP("format", "f", outputFormatText, "output format (text, json)")
}
