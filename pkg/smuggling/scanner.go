package smuggling

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/CodeMonkeyCybersecurity/clguess/internal/core"
	"github.com/CodeMonkeyCybersecurity/clguess/internal/transport"
	"github.com/CodeMonkeyCybersecurity/clguess/pkg/mutations"
	"github.com/CodeMonkeyCybersecurity/clguess/pkg/types"
)

const toolName = "clguess"

// Scanner adapts a Guesser to core.Scanner so confirmed mutations come out
// as findings.
type Scanner struct {
	guesser *Guesser
	catalog *mutations.Catalog
}

var _ core.Scanner = (*Scanner)(nil)

// NewScanner creates a scanner that tries every mutation in catalog.
func NewScanner(guesser *Guesser, catalog *mutations.Catalog) *Scanner {
	return &Scanner{guesser: guesser, catalog: catalog}
}

// Name returns the scanner name
func (s *Scanner) Name() string {
	return "smuggling"
}

// Type returns the scan type
func (s *Scanner) Type() types.ScanType {
	return types.ScanTypeSmuggling
}

// Validate validates the target URL
func (s *Scanner) Validate(target string) error {
	if target == "" {
		return fmt.Errorf("target URL cannot be empty")
	}

	parsedURL, err := url.Parse(target)
	if err != nil {
		return fmt.Errorf("invalid target URL: %w", err)
	}

	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return fmt.Errorf("target URL must use HTTP or HTTPS scheme")
	}
	if parsedURL.Hostname() == "" {
		return fmt.Errorf("target URL has no host")
	}

	return nil
}

// Scan runs one guessing pass against target.
//
// Recognized options: "request" (raw base request, replaces the default),
// "mutations" (comma separated subset of the catalog).
func (s *Scanner) Scan(ctx context.Context, target string, options map[string]string) ([]types.Finding, error) {
	if err := s.Validate(target); err != nil {
		return nil, fmt.Errorf("target validation failed: %w", err)
	}

	endpoint, base, err := targetFromURL(target)
	if err != nil {
		return nil, err
	}
	if raw, ok := options["request"]; ok && raw != "" {
		base = NormalizeRequest([]byte(raw))
	}

	catalog := s.catalog
	if list, ok := options["mutations"]; ok && list != "" {
		catalog, err = catalog.Subset(splitList(list)...)
		if err != nil {
			return nil, err
		}
	}

	report, err := s.guesser.GuessMutations(ctx, base, endpoint, catalog)
	if err != nil {
		return nil, err
	}
	return s.findings(target, report), nil
}

func (s *Scanner) findings(target string, report *Report) []types.Finding {
	findings := []types.Finding{}
	if report.NoSignal {
		return findings
	}

	byName := make(map[string]TrialResult, len(report.Trials))
	for _, tr := range report.Trials {
		byName[tr.Mutation] = tr
	}

	for _, name := range report.Confirmed {
		tr := byName[name]
		findings = append(findings, types.Finding{
			ID:       uuid.New().String(),
			ScanID:   report.RunID,
			Tool:     toolName,
			Type:     "CL_MUTATION",
			Severity: types.SeverityMedium,
			Title:    fmt.Sprintf("%s mutation %q accepted by back-end", report.HeaderName, name),
			Description: fmt.Sprintf("With an invalid value the %q rendering of %s produced a response that differs from both baselines, "+
				"and with a valid value it behaved like the canonical header. A front-end and back-end that disagree on this "+
				"header can be desynchronized.", name, report.HeaderName),
			Evidence: fmt.Sprintf("baseline invalid %s, baseline valid %s, mutated invalid %s, mutated valid %s",
				summaryString(&report.FrontError), summaryString(&report.NoErr),
				summaryString(tr.Invalid), summaryString(tr.Valid)),
			Solution: "Reject requests whose framing headers are not syntactically exact on the front-end, " +
				"or normalize them before forwarding.",
			References: []string{
				"https://portswigger.net/web-security/request-smuggling",
				"https://www.rfc-editor.org/rfc/rfc9112#section-6.3",
			},
			Metadata: map[string]interface{}{
				"target":        target,
				"mutation":      name,
				"attempts":      tr.Attempts,
				"confirmations": tr.Confirmations,
			},
			CreatedAt: time.Now(),
		})
	}
	return findings
}

func summaryString(s *ResponseSummary) string {
	if s == nil {
		return "-"
	}
	return strconv.Itoa(s.Status) + "/" + strconv.Itoa(s.Length)
}

func splitList(list string) []string {
	var out []string
	for _, item := range strings.Split(list, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// targetFromURL derives the endpoint and a default base request.
func targetFromURL(target string) (core.Target, []byte, error) {
	t, path, err := transport.ParseTarget(target, false)
	if err != nil {
		return core.Target{}, nil, err
	}
	return t, DefaultRequest(transport.HostHeader(t), path), nil
}

// DefaultRequest is the base request used when none is supplied.
func DefaultRequest(host, path string) []byte {
	if path == "" {
		path = "/"
	}
	return []byte("POST " + path + " HTTP/1.1\r\n" +
		"Host: " + host + "\r\n" +
		"Content-Type: application/x-www-form-urlencoded\r\n" +
		"Connection: close\r\n" +
		"\r\n")
}

// NormalizeRequest converts bare LF line endings in the header block to
// CRLF and adds the terminating blank line if it is missing. Request files
// saved by editors usually lose their CRs; the body is left alone.
func NormalizeRequest(raw []byte) []byte {
	s := string(raw)
	head, body, found := strings.Cut(s, "\r\n\r\n")
	if !found {
		if h, b, ok := strings.Cut(s, "\n\n"); ok {
			head, body, found = h, b, true
		}
	}
	head = strings.ReplaceAll(head, "\r\n", "\n")
	head = strings.TrimRight(head, "\n")
	head = strings.ReplaceAll(head, "\n", "\r\n")

	if !found {
		body = ""
	}
	return []byte(head + "\r\n\r\n" + body)
}
