package cmd

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/fatih/color"

	"github.com/CodeMonkeyCybersecurity/clguess/internal/transport"
	"github.com/CodeMonkeyCybersecurity/clguess/pkg/smuggling"
)

var reportOut io.Writer = os.Stdout

func colorState(state smuggling.State) string {
	switch {
	case state == smuggling.StateConfirmed:
		return color.New(color.FgGreen).Sprint("✓ " + string(state))
	case state.Terminal():
		return color.New(color.FgWhite).Sprint("✗ " + string(state))
	default:
		return color.New(color.FgYellow).Sprint("⟳ " + string(state))
	}
}

func summary(s *smuggling.ResponseSummary) string {
	if s == nil {
		return "-"
	}
	return fmt.Sprintf("%d/%d", s.Status, s.Length)
}

func printReport(report *smuggling.Report) {
	cyan := color.New(color.FgCyan, color.Bold)
	w := reportOut

	cyan.Fprintf(w, "\n═══ %s (%s: %s) ═══\n", transport.Addr(report.Target), report.HeaderName, report.RunID)
	fmt.Fprintf(w, "  front error baseline: %d/%d\n", report.FrontError.Status, report.FrontError.Length)
	fmt.Fprintf(w, "  normal baseline:      %d/%d\n", report.NoErr.Status, report.NoErr.Length)

	if report.NoSignal {
		color.New(color.FgYellow).Fprintln(w, "\nℹ The target answers the invalid and valid header the same way; nothing to distinguish mutations by")
		return
	}

	if len(report.Trials) > 0 {
		fmt.Fprintln(w)
		for _, trial := range report.Trials {
			line := fmt.Sprintf("  %-32s %s", trial.Mutation, colorState(trial.State))
			if trial.Gate != smuggling.GateNone {
				line += fmt.Sprintf(" [%s]", trial.Gate)
			}
			line += fmt.Sprintf("  invalid=%s valid=%s", summary(trial.Invalid), summary(trial.Valid))
			if trial.Attempts > 1 {
				line += fmt.Sprintf(" votes=%d/%d", trial.Confirmations, trial.Attempts)
			}
			fmt.Fprintln(w, line)
			if trial.Error != "" {
				color.New(color.FgRed).Fprintf(w, "    Error: %s\n", trial.Error)
			}
		}
	}

	if report.Aborted != "" {
		color.New(color.FgRed, color.Bold).Fprintf(w, "\n✗ Run aborted: %s\n", report.Aborted)
	}

	fmt.Fprintf(w, "\n  %d probes in %s\n", report.Probes, report.Duration.Round(time.Millisecond))
	if len(report.Confirmed) == 0 {
		color.New(color.FgYellow).Fprintln(w, "ℹ No accepted mutations found")
		return
	}
	color.New(color.FgGreen, color.Bold).Fprintf(w, "✓ %d accepted mutation(s):\n", len(report.Confirmed))
	for _, name := range report.Confirmed {
		fmt.Fprintf(w, "    %s\n", name)
	}
}
