package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/CodeMonkeyCybersecurity/clguess/internal/transport"
	"github.com/CodeMonkeyCybersecurity/clguess/pkg/smuggling"
)

var guessCmd = &cobra.Command{
	Use:   "guess <target>",
	Short: "Guess which Content-Length mutations the target accepts",
	Long: `Calibrate the target and try every mutation in the catalog.

The target is host, host:port or an http(s) URL. Without -r a minimal POST
request is built for the URL path. A request file is sent as written, with
bare LF line endings in the head converted to CRLF.

Examples:
  clguess guess https://example.com/login
  clguess guess example.com:8080 -r request.txt --mutations colon-prefix-space,colon-prefix-tab
  clguess guess example.com --tls --concurrency 4 --rechecks 2 --json report.json`,
	Args: cobra.ExactArgs(1),
	RunE: runGuess,
}

func init() {
	rootCmd.AddCommand(guessCmd)

	f := guessCmd.Flags()
	f.StringP("request", "r", "", "file holding the raw base request")
	f.StringSlice("mutations", nil, "only try these mutations")
	f.String("json", "", "write the JSON report to this file (- for stdout)")

	f.Int("concurrency", 0, "mutations tried in parallel (default 1)")
	f.Int("rechecks", 0, "extra attempts to re-confirm a hit by majority vote")
	f.Int("max-failures", 0, "consecutive probe failures before giving up (default 5)")
	f.Bool("cache-buster", false, "add a random query parameter to every probe")
	f.String("header", "", "canonical header name (default Content-Length)")
	f.String("invalid-value", "", "value that forces a framing error (default z)")
	f.String("valid-value", "", "value that frames an empty body (default 0)")
	viper.BindPFlag("guess.concurrency", f.Lookup("concurrency"))
	viper.BindPFlag("guess.rechecks", f.Lookup("rechecks"))
	viper.BindPFlag("guess.max_consecutive_failures", f.Lookup("max-failures"))
	viper.BindPFlag("guess.cache_buster", f.Lookup("cache-buster"))
	viper.BindPFlag("guess.header_name", f.Lookup("header"))
	viper.BindPFlag("guess.invalid_value", f.Lookup("invalid-value"))
	viper.BindPFlag("guess.valid_value", f.Lookup("valid-value"))
}

func runGuess(cmd *cobra.Command, args []string) error {
	target, path, err := transport.ParseTarget(args[0], cfg.Transport.TLS)
	if err != nil {
		return err
	}

	base := smuggling.DefaultRequest(transport.HostHeader(target), path)
	if reqFile, _ := cmd.Flags().GetString("request"); reqFile != "" {
		data, err := os.ReadFile(reqFile)
		if err != nil {
			return fmt.Errorf("failed to read request file: %w", err)
		}
		base = smuggling.NormalizeRequest(data)
	}

	names, _ := cmd.Flags().GetStringSlice("mutations")
	catalog, err := loadCatalog(cfg.Guess.CatalogFile, names)
	if err != nil {
		return err
	}

	guesser, err := newGuesser(cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Infow("Starting mutation guess",
		"target", transport.Addr(target),
		"tls", target.TLS,
		"mutations", catalog.Len(),
		"concurrency", cfg.Guess.Concurrency,
	)

	report, runErr := guesser.GuessMutations(ctx, base, target, catalog)
	if report == nil {
		return runErr
	}

	printReport(report)

	if out, _ := cmd.Flags().GetString("json"); out != "" {
		if err := writeReport(out, report); err != nil {
			return errors.Join(runErr, err)
		}
	}
	return runErr
}

func writeReport(path string, report *smuggling.Report) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}
	data = append(data, '\n')

	if path == "-" {
		_, err = os.Stdout.Write(data)
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}
