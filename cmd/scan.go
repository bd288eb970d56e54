package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/CodeMonkeyCybersecurity/clguess/internal/core"
	"github.com/CodeMonkeyCybersecurity/clguess/pkg/smuggling"
	"github.com/CodeMonkeyCybersecurity/clguess/pkg/types"
)

var scanCmd = &cobra.Command{
	Use:   "scan <url>",
	Short: "Run the guesser and report accepted mutations as findings",
	Long: `Run one guessing pass against an http(s) URL and print every accepted
mutation as a finding with its evidence.

Examples:
  clguess scan https://example.com/api
  clguess scan https://example.com/ --mutations uppercase,nospace --output json`,
	Args: cobra.ExactArgs(1),
	RunE: runScan,
}

func init() {
	rootCmd.AddCommand(scanCmd)

	scanCmd.Flags().StringP("request", "r", "", "file holding the raw base request")
	scanCmd.Flags().StringSlice("mutations", nil, "only try these mutations")
	scanCmd.Flags().StringP("output", "o", "text", "output format (text, json)")
}

func runScan(cmd *cobra.Command, args []string) error {
	catalog, err := loadCatalog(cfg.Guess.CatalogFile, nil)
	if err != nil {
		return err
	}
	guesser, err := newGuesser(cfg)
	if err != nil {
		return err
	}

	var scanner core.Scanner = smuggling.NewScanner(guesser, catalog)

	options := map[string]string{}
	if names, _ := cmd.Flags().GetStringSlice("mutations"); len(names) > 0 {
		options["mutations"] = strings.Join(names, ",")
	}
	if reqFile, _ := cmd.Flags().GetString("request"); reqFile != "" {
		data, err := os.ReadFile(reqFile)
		if err != nil {
			return fmt.Errorf("failed to read request file: %w", err)
		}
		options["request"] = string(data)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	findings, err := scanner.Scan(ctx, args[0], options)
	if err != nil {
		return fmt.Errorf("%s scan failed: %w", scanner.Name(), err)
	}

	output, _ := cmd.Flags().GetString("output")
	if output == "json" {
		enc := json.NewEncoder(reportOut)
		enc.SetIndent("", "  ")
		return enc.Encode(findings)
	}
	printFindings(findings)
	return nil
}

func colorSeverity(severity types.Severity) string {
	switch severity {
	case types.SeverityCritical:
		return color.New(color.FgRed, color.Bold).Sprint("CRITICAL")
	case types.SeverityHigh:
		return color.New(color.FgRed).Sprint("HIGH")
	case types.SeverityMedium:
		return color.New(color.FgYellow).Sprint("MEDIUM")
	case types.SeverityLow:
		return color.New(color.FgCyan).Sprint("LOW")
	case types.SeverityInfo:
		return color.New(color.FgWhite).Sprint("INFO")
	default:
		return string(severity)
	}
}

func printFindings(findings []types.Finding) {
	w := reportOut
	if len(findings) == 0 {
		color.New(color.FgYellow).Fprintln(w, "ℹ No findings")
		return
	}

	for _, f := range findings {
		fmt.Fprintf(w, "[%s] %s\n", colorSeverity(f.Severity), f.Title)
		if f.Evidence != "" {
			fmt.Fprintf(w, "    %s\n", f.Evidence)
		}
	}

	summary := types.Summarize(findings)
	fmt.Fprintf(w, "\n%d finding(s)", summary.Total)
	for _, sev := range []types.Severity{types.SeverityCritical, types.SeverityHigh, types.SeverityMedium, types.SeverityLow, types.SeverityInfo} {
		if n := summary.BySeverity[sev]; n > 0 {
			fmt.Fprintf(w, ", %d %s", n, colorSeverity(sev))
		}
	}
	fmt.Fprintln(w)
}
