package smuggling

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/CodeMonkeyCybersecurity/clguess/internal/core"
)

var (
	// ErrMalformedMessage is returned when a request has no discoverable
	// header/body boundary.
	ErrMalformedMessage = errors.New("malformed HTTP message")

	// ErrTargetUnreachable aborts a run after too many consecutive
	// transport failures.
	ErrTargetUnreachable = errors.New("target unreachable")
)

// State is the position of one mutation trial in its state machine.
type State string

const (
	StateStart            State = "START"
	StateInvalidProbeSent State = "INVALID_PROBE_SENT"
	StateCandidate        State = "CANDIDATE"
	StateValidProbeSent   State = "VALID_PROBE_SENT"
	StateRejected         State = "REJECTED"
	StateConfirmed        State = "CONFIRMED"
)

var transitions = map[State][]State{
	StateStart:            {StateInvalidProbeSent, StateRejected},
	StateInvalidProbeSent: {StateRejected, StateCandidate},
	StateCandidate:        {StateValidProbeSent, StateRejected},
	StateValidProbeSent:   {StateConfirmed, StateRejected},
}

// Terminal reports whether no transition leaves s.
func (s State) Terminal() bool {
	return s == StateRejected || s == StateConfirmed
}

func (s State) next(to State) (State, error) {
	for _, allowed := range transitions[s] {
		if allowed == to {
			return to, nil
		}
	}
	return s, fmt.Errorf("illegal trial transition %s -> %s", s, to)
}

// Phase names the probe being sent.
type Phase string

const (
	PhaseBaselineInvalid Phase = "baseline-invalid"
	PhaseBaselineValid   Phase = "baseline-valid"
	PhaseInvalid         Phase = "invalid"
	PhaseValid           Phase = "valid"
)

// Gate identifies which decision rejected or confirmed a mutation.
type Gate string

const (
	GateNone   Gate = ""
	GateA      Gate = "A"
	GateB      Gate = "B"
	GateVote   Gate = "recheck"
	GateRender Gate = "render"
)

// ProbeError ties a probe failure to the target and mutation under test.
type ProbeError struct {
	Target   string
	Mutation string
	Phase    Phase
	Err      error
}

func (e *ProbeError) Error() string {
	if e.Mutation == "" {
		return fmt.Sprintf("%s probe against %s failed: %v", e.Phase, e.Target, e.Err)
	}
	return fmt.Sprintf("%s probe for mutation %q against %s failed: %v", e.Phase, e.Mutation, e.Target, e.Err)
}

func (e *ProbeError) Unwrap() error {
	return e.Err
}

// Baselines are the two calibration responses of a run. They are captured
// once and only read afterwards.
type Baselines struct {
	FrontError []byte
	NoErr      []byte
}

// ResponseSummary is what the oracle looks at in a response.
type ResponseSummary struct {
	Status int `json:"status"`
	Length int `json:"length"`
}

func summarize(p core.MessageParser, resp []byte) ResponseSummary {
	return ResponseSummary{Status: p.StatusCode(resp), Length: effectiveLength(p, resp)}
}

// TrialResult is the outcome of one mutation.
type TrialResult struct {
	Mutation      string           `json:"mutation"`
	State         State            `json:"state"`
	Gate          Gate             `json:"gate,omitempty"`
	Invalid       *ResponseSummary `json:"invalid,omitempty"`
	Valid         *ResponseSummary `json:"valid,omitempty"`
	Attempts      int              `json:"attempts"`
	Confirmations int              `json:"confirmations"`
	Error         string           `json:"error,omitempty"`
}

// Report is the full record of one guessing run.
type Report struct {
	RunID      string          `json:"run_id"`
	Target     core.Target     `json:"target"`
	HeaderName string          `json:"header_name"`
	FrontError ResponseSummary `json:"front_error"`
	NoErr      ResponseSummary `json:"no_error"`
	NoSignal   bool            `json:"no_signal"`
	Confirmed  []string        `json:"confirmed"`
	Trials     []TrialResult   `json:"trials,omitempty"`
	Probes     int             `json:"probes"`
	StartedAt  time.Time       `json:"started_at"`
	Duration   time.Duration   `json:"duration"`
	Aborted    string          `json:"aborted,omitempty"`
}

// ResultSet collects confirmed mutations from concurrent trials. Names are
// reported in catalog order regardless of the order they were added.
type ResultSet struct {
	mu      sync.Mutex
	order   map[string]int
	members map[string]struct{}
}

func NewResultSet(catalogOrder []string) *ResultSet {
	order := make(map[string]int, len(catalogOrder))
	for i, name := range catalogOrder {
		order[name] = i
	}
	return &ResultSet{order: order, members: make(map[string]struct{})}
}

func (r *ResultSet) Add(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.members[name] = struct{}{}
}

func (r *ResultSet) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.members)
}

// Names returns the members sorted by catalog position. Names outside the
// catalog sort last, alphabetically.
func (r *ResultSet) Names() []string {
	r.mu.Lock()
	names := make([]string, 0, len(r.members))
	for name := range r.members {
		names = append(names, name)
	}
	r.mu.Unlock()

	sort.Slice(names, func(i, j int) bool {
		oi, iok := r.order[names[i]]
		oj, jok := r.order[names[j]]
		switch {
		case iok && jok:
			return oi < oj
		case iok != jok:
			return iok
		default:
			return names[i] < names[j]
		}
	})
	return names
}
