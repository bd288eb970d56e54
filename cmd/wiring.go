package cmd

import (
	"fmt"

	"github.com/CodeMonkeyCybersecurity/clguess/internal/config"
	"github.com/CodeMonkeyCybersecurity/clguess/internal/ratelimit"
	"github.com/CodeMonkeyCybersecurity/clguess/internal/transport"
	"github.com/CodeMonkeyCybersecurity/clguess/pkg/httpmsg"
	"github.com/CodeMonkeyCybersecurity/clguess/pkg/mutations"
	"github.com/CodeMonkeyCybersecurity/clguess/pkg/smuggling"
)

// newGuesser assembles the request pipeline: raw transport behind the
// per-host limiter, feeding the guesser.
func newGuesser(cfg *config.Config) (*smuggling.Guesser, error) {
	g, _, err := newLimitedGuesser(cfg)
	return g, err
}

// newLimitedGuesser is newGuesser that also hands back the limiter so
// callers can report on it.
func newLimitedGuesser(cfg *config.Config) (*smuggling.Guesser, *ratelimit.Limiter, error) {
	raw, err := transport.NewRawTransport(cfg.Transport)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create transport: %w", err)
	}
	limiter := ratelimit.NewLimiter(cfg.RateLimit)
	limited := transport.NewRateLimited(raw, limiter)

	opts := smuggling.OptionsFromConfig(cfg.Guess)
	opts.Logger = log
	opts.Telemetry = tel
	return smuggling.NewGuesser(limited, httpmsg.New(), opts), limiter, nil
}

// serveConfig returns cfg as serve runs it. Unless server.allow_private is
// set, private and loopback targets are refused at dial time.
func serveConfig(cfg *config.Config) *config.Config {
	out := *cfg
	if !out.Server.AllowPrivate {
		out.Transport.BlockPrivate = true
	}
	return &out
}

// loadCatalog returns the configured catalog restricted to names, if any.
func loadCatalog(path string, names []string) (*mutations.Catalog, error) {
	catalog := mutations.Default()
	if path != "" {
		var err error
		catalog, err = mutations.LoadFile(path)
		if err != nil {
			return nil, err
		}
	}
	if len(names) == 0 {
		return catalog, nil
	}
	return catalog.Subset(names...)
}
