package cmd

import (
	"fmt"

	"github.com/MeKo-Tech/leafcheck/internal/models"
	"github.com/MeKo-Tech/leafcheck/internal/onnx"
	"github.com/spf13/cobra"
)

// testCmd represents the test command.
var testCmd = &cobra.Command{
	Use:   "test",
	Short: "Test ONNX Runtime setup and model files",
	Long: `Test the ONNX Runtime installation and verify that the classifier
models needed for offline analysis are present.

This command performs basic checks to ensure:
- ONNX Runtime is properly installed
- Library paths are correctly set
- The primary and fallback classifier models exist`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		cfg := GetConfig()

		_, _ = fmt.Fprintln(out, cmd.Short)
		_, _ = fmt.Fprintln(out, "Testing ONNX Runtime setup...")
		_, _ = fmt.Fprintln(out)

		failed := false
		info, err := onnx.CheckRuntime(cfg.GPU.Enabled)
		if err != nil {
			failed = true
			_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "❌ ONNX Runtime test failed: %v\n", err)
			_, _ = fmt.Fprintln(out, "Please ensure ONNX Runtime is installed, or set "+onnx.EnvLibraryPath+
				" to the shared library path.")
		} else {
			_, _ = fmt.Fprintf(out, "✅ ONNX Runtime loaded from %s (gpu: %t)\n", info.LibraryPath, info.GPU)
		}

		modelsDir := models.GetModelsDir(cfg.ModelsDir)
		_, _ = fmt.Fprintf(out, "\nModels in %s:\n", modelsDir)
		for _, m := range models.ListAvailableModels() {
			path := models.ClassifierPath(modelsDir, m.Filename)
			if m.Type == models.TypeLabels {
				path = models.LabelsPath(modelsDir, m.Filename)
			}
			mark := "✅"
			if models.ValidateModelExists(path) != nil {
				mark = "➖"
			}
			_, _ = fmt.Fprintf(out, "  %s %-18s %s\n", mark, m.Name, m.Description)
		}
		_, _ = fmt.Fprintln(out)

		cc := cfg.ToClassifierConfig()
		for _, check := range []struct {
			role, path string
		}{
			{"primary", cc.Primary.ModelPath},
			{"fallback", cc.Fallback.ModelPath},
			{"labels", cc.Primary.LabelsPath},
		} {
			if check.path == "" {
				continue
			}
			if err := models.ValidateModelExists(check.path); err != nil {
				failed = true
				_, _ = fmt.Fprintf(out, "❌ %s: %v\n", check.role, err)
				continue
			}
			_, _ = fmt.Fprintf(out, "✅ %s: %s\n", check.role, check.path)
		}

		_, _ = fmt.Fprintln(out)
		if failed {
			_, _ = fmt.Fprintln(out, "Offline analysis will use the last-resort diagnosis until the problems above are fixed.")
			return nil
		}
		_, _ = fmt.Fprintln(out, "🎉 All tests passed! Offline analysis is ready for use.")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(testCmd)
}
