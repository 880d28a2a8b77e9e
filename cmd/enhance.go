// File: cmd/enhance.go
package cmd

import (
	"fmt"
	"io"
	"os"
	"strings"

	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cobra"

	"github.com/xkilldash9x/scriptforge/internal/enhance"
	"github.com/xkilldash9x/scriptforge/internal/observability"
)

func newEnhanceCmd() *cobra.Command {
	enhanceCmd := &cobra.Command{
		Use:   "enhance <file>",
		Short: "Suggest improvements for a local Playwright script",
		Long: "Runs the rule based enhancement engine over a script file and prints the suggestions.\n" +
			"Use '-' to read the script from stdin.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := getConfig(cmd)
			if err != nil {
				return err
			}

			code, err := readScript(cmd.InOrStdin(), args[0])
			if err != nil {
				return err
			}

			raw, _ := cmd.Flags().GetStringSlice("categories")
			if !cmd.Flags().Changed("categories") {
				raw = nil
				if len(cfg.Enhance().Categories) > 0 {
					raw = cfg.Enhance().Categories
				}
			}
			categories, err := enhance.ParseCategories(raw)
			if err != nil {
				return err
			}
			priority, err := enhance.ParseCategories(cfg.Enhance().Priority)
			if err != nil {
				return err
			}

			engine := enhance.NewEngine(observability.GetLogger())
			result := engine.Generate(code, enhance.Options{Categories: categories, Priority: priority})

			if outPath, _ := cmd.Flags().GetString("output"); outPath != "" {
				if err := os.WriteFile(outPath, []byte(result.EnhancedCode), 0o644); err != nil {
					return fmt.Errorf("failed to write enhanced script: %w", err)
				}
			}

			out := cmd.OutOrStdout()
			if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
				enc := jsoniter.ConfigCompatibleWithStandardLibrary.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(result)
			}
			return printSuggestions(out, args[0], result)
		},
	}

	enhanceCmd.Flags().StringSlice("categories", nil, "Comma separated categories to evaluate (default: all or config)")
	enhanceCmd.Flags().Bool("json", false, "Print the full result as JSON")
	enhanceCmd.Flags().StringP("output", "o", "", "Write the enhanced script to this file")

	return enhanceCmd
}

func readScript(stdin io.Reader, path string) (string, error) {
	if path == "-" {
		b, err := io.ReadAll(stdin)
		if err != nil {
			return "", fmt.Errorf("failed to read script from stdin: %w", err)
		}
		return string(b), nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read script: %w", err)
	}
	return string(b), nil
}

func printSuggestions(w io.Writer, name string, result enhance.Result) error {
	if len(result.Suggestions) == 0 {
		_, err := fmt.Fprintf(w, "%s: no suggestions\n", name)
		return err
	}
	var b strings.Builder
	for _, s := range result.Suggestions {
		// Suggestions count lines from zero; editors count from one.
		fmt.Fprintf(&b, "%s:%d [%s] %s (confidence %.2f)\n", name, s.LineNumber+1, s.Category, s.Reason, s.Confidence)
		fmt.Fprintf(&b, "  - %s\n", strings.TrimSpace(s.OriginalCode))
		for _, line := range strings.Split(s.SuggestedCode, "\n") {
			fmt.Fprintf(&b, "  + %s\n", strings.TrimSpace(line))
		}
	}
	sum := result.Summary
	fmt.Fprintf(&b, "\n%d suggestion(s), estimated improvement %d%%\n", sum.TotalSuggestions, sum.EstimatedImprovement)
	for _, c := range enhance.AllCategories {
		if n := sum.ByCategory[c]; n > 0 {
			fmt.Fprintf(&b, "  %-18s %d\n", c, n)
		}
	}
	_, err := io.WriteString(w, b.String())
	return err
}
