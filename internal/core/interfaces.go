package core

import (
	"context"
	"time"

	"github.com/CodeMonkeyCybersecurity/clguess/pkg/types"
)

// Scanner is the generic entry point used by the CLI and API.
type Scanner interface {
	Name() string
	Type() types.ScanType
	Scan(ctx context.Context, target string, options map[string]string) ([]types.Finding, error)
	Validate(target string) error
}

// Target identifies the endpoint a probe is sent to. It is passed through to
// the transport untouched.
type Target struct {
	Host string `json:"host"`
	Port int    `json:"port"`
	TLS  bool   `json:"tls"`
}

// Transport sends one raw request and returns the raw response bytes.
// Timeouts and connection reuse are owned by the implementation.
type Transport interface {
	Send(ctx context.Context, target Target, raw []byte) ([]byte, error)
}

// HeaderOffsets locates one header line inside a raw message.
// Start is the first byte of the line, NameEnd the index of the colon and
// ValueEnd the index of the CR that terminates the line.
type HeaderOffsets struct {
	Start    int
	NameEnd  int
	ValueEnd int
}

// MessageParser exposes the structural facts the oracle needs about raw
// HTTP messages. Implementations must tolerate malformed input.
type MessageParser interface {
	FindHeader(msg []byte, name string) (HeaderOffsets, bool)
	BodyOffset(msg []byte) (int, error)
	StatusCode(msg []byte) int
}

// MutationCatalog is an ordered set of unique mutation names, each with a
// deterministic rendering of a header line.
type MutationCatalog interface {
	Names() []string
	Render(headerLine string, mutation string) ([]byte, error)
}

type RateLimiter interface {
	WaitForHost(ctx context.Context, host string) error
}

type Telemetry interface {
	RecordProbe(ctx context.Context, phase string, status int, duration time.Duration, err error)
	RecordTrial(ctx context.Context, state string)
	RecordRun(ctx context.Context, duration time.Duration, confirmed int, noSignal bool)
	Close() error
}
