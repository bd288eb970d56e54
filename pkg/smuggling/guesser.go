package smuggling

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/CodeMonkeyCybersecurity/clguess/internal/config"
	"github.com/CodeMonkeyCybersecurity/clguess/internal/core"
	"github.com/CodeMonkeyCybersecurity/clguess/internal/logger"
)

const cacheBusterParam = "clguess"

// Options tune a Guesser. Zero values select the defaults noted per field.
type Options struct {
	// HeaderName is the canonical framing header. Default Content-Length.
	HeaderName string
	// InvalidValue must be rejected by any conforming parser. Default "z".
	InvalidValue string
	// ValidValue describes an empty body. Default "0".
	ValidValue string
	// Concurrency bounds parallel trials. Default 1.
	Concurrency int
	// Rechecks repeats a confirmed trial this many more times and keeps it
	// only if a strict majority of all attempts confirm. 0 disables.
	Rechecks int
	// MaxConsecutiveFailures aborts the run after this many transport
	// failures in a row. Default 5.
	MaxConsecutiveFailures int
	// CacheBuster adds a unique query parameter to every probe.
	CacheBuster bool

	Logger    *logger.Logger
	Telemetry core.Telemetry
}

// OptionsFromConfig maps the guess config section onto Options.
func OptionsFromConfig(cfg config.GuessConfig) Options {
	return Options{
		HeaderName:             cfg.HeaderName,
		InvalidValue:           cfg.InvalidValue,
		ValidValue:             cfg.ValidValue,
		Concurrency:            cfg.Concurrency,
		Rechecks:               cfg.Rechecks,
		MaxConsecutiveFailures: cfg.MaxConsecutiveFailures,
		CacheBuster:            cfg.CacheBuster,
	}
}

// Guesser finds header mutations that the back-end of a proxy chain accepts
// as the framing header.
type Guesser struct {
	transport core.Transport
	parser    core.MessageParser
	telemetry core.Telemetry
	logger    *logger.Logger
	opts      Options
}

func NewGuesser(transport core.Transport, parser core.MessageParser, opts Options) *Guesser {
	if opts.HeaderName == "" {
		opts.HeaderName = "Content-Length"
	}
	if opts.InvalidValue == "" {
		opts.InvalidValue = "z"
	}
	if opts.ValidValue == "" {
		opts.ValidValue = "0"
	}
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	if opts.Rechecks < 0 {
		opts.Rechecks = 0
	}
	if opts.MaxConsecutiveFailures < 1 {
		opts.MaxConsecutiveFailures = 5
	}

	log := opts.Logger
	if log == nil {
		log = logger.NewNop()
	}
	tel := opts.Telemetry
	if tel == nil {
		tel = nopTelemetry{}
	}

	return &Guesser{
		transport: transport,
		parser:    parser,
		telemetry: tel,
		logger:    log.WithComponent("guesser"),
		opts:      opts,
	}
}

// run is the state shared by the trials of one GuessMutations call.
type run struct {
	target   core.Target
	host     string
	base     []byte
	baseline Baselines
	catalog  core.MutationCatalog
	log      *logger.Logger

	probes   atomic.Int64
	failures atomic.Int64
}

func (g *Guesser) headerLine(value string) string {
	return g.opts.HeaderName + ": " + value
}

// GuessMutations calibrates against target with baseRequest and then tries
// every mutation in catalog. A target that shows no distinguishable error
// yields a report with NoSignal set and no mutation probes sent.
func (g *Guesser) GuessMutations(ctx context.Context, baseRequest []byte, target core.Target, catalog core.MutationCatalog) (*Report, error) {
	start := time.Now()
	report := &Report{
		RunID:      uuid.New().String(),
		Target:     target,
		HeaderName: g.opts.HeaderName,
		Confirmed:  []string{},
		StartedAt:  start,
	}

	r := &run{
		target:  target,
		host:    target.Host,
		catalog: catalog,
		log:     g.logger.WithTarget(target.Host).WithRunID(report.RunID),
	}

	ctx, span := r.log.StartOperation(ctx, "smuggling.GuessMutations",
		"port", target.Port,
		"tls", target.TLS,
	)
	var runErr error
	defer func() {
		report.Probes = int(r.probes.Load())
		report.Duration = time.Since(start)
		g.telemetry.RecordRun(ctx, report.Duration, len(report.Confirmed), report.NoSignal)
		r.log.FinishOperation(ctx, span, "smuggling.GuessMutations", start, runErr,
			"confirmed", len(report.Confirmed),
			"probes", report.Probes,
			"no_signal", report.NoSignal,
		)
	}()

	stripped, err := StripHeader(g.parser, baseRequest, g.opts.HeaderName)
	if err != nil {
		runErr = fmt.Errorf("base request for %s is unusable: %w", r.host, err)
		return nil, runErr
	}
	r.base = stripped

	baseline, err := g.calibrate(ctx, r)
	if err != nil {
		runErr = err
		return nil, runErr
	}
	r.baseline = baseline
	report.FrontError = summarize(g.parser, baseline.FrontError)
	report.NoErr = summarize(g.parser, baseline.NoErr)

	if RequestMatch(g.parser, baseline.FrontError, baseline.NoErr) {
		report.NoSignal = true
		r.log.Warnw("No distinguishable error from target, skipping mutations",
			"front_error_status", report.FrontError.Status,
			"no_error_status", report.NoErr.Status,
			"front_error_length", report.FrontError.Length,
			"no_error_length", report.NoErr.Length,
		)
		return report, nil
	}

	names := catalog.Names()
	results := make([]TrialResult, len(names))
	for i, name := range names {
		results[i] = TrialResult{Mutation: name, State: StateStart}
	}
	set := NewResultSet(names)

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(g.opts.Concurrency)

	for i, name := range names {
		if egCtx.Err() != nil {
			break
		}
		eg.Go(func() error {
			res, err := g.trial(egCtx, r, name)
			results[i] = res
			if err != nil {
				return err
			}
			if res.State == StateConfirmed {
				set.Add(name)
			}
			return nil
		})
	}

	runErr = eg.Wait()
	if runErr == nil {
		runErr = ctx.Err()
	}

	report.Trials = results
	report.Confirmed = set.Names()
	if runErr != nil {
		report.Aborted = runErr.Error()
		return report, runErr
	}

	r.log.Infow("Mutation guessing finished",
		"mutations", len(names),
		"confirmed_count", set.Len(),
		"confirmed", report.Confirmed,
	)
	return report, nil
}

// Calibrate captures the two baselines for baseRequest without running any
// trial.
func (g *Guesser) Calibrate(ctx context.Context, baseRequest []byte, target core.Target) (Baselines, error) {
	stripped, err := StripHeader(g.parser, baseRequest, g.opts.HeaderName)
	if err != nil {
		return Baselines{}, fmt.Errorf("base request for %s is unusable: %w", target.Host, err)
	}
	r := &run{target: target, host: target.Host, base: stripped, log: g.logger.WithTarget(target.Host)}
	return g.calibrate(ctx, r)
}

func (g *Guesser) calibrate(ctx context.Context, r *run) (Baselines, error) {
	frontError, err := g.probe(ctx, r, PhaseBaselineInvalid, "", []byte(g.headerLine(g.opts.InvalidValue)))
	if err != nil {
		return Baselines{}, fmt.Errorf("calibration failed: %w", err)
	}
	noErr, err := g.probe(ctx, r, PhaseBaselineValid, "", []byte(g.headerLine(g.opts.ValidValue)))
	if err != nil {
		return Baselines{}, fmt.Errorf("calibration failed: %w", err)
	}
	return Baselines{FrontError: frontError, NoErr: noErr}, nil
}

// trial runs the two-gate test for one mutation, repeating a confirmation
// when rechecks are enabled. The returned error is non-nil only when the
// whole run must stop.
func (g *Guesser) trial(ctx context.Context, r *run, mutation string) (TrialResult, error) {
	attempts := 1 + g.opts.Rechecks
	need := attempts/2 + 1

	res, err := g.attempt(ctx, r, mutation)
	res.Attempts = 1
	if res.State == StateConfirmed {
		res.Confirmations = 1
	}
	if err != nil || res.State != StateConfirmed || attempts == 1 {
		g.finishTrial(ctx, r, &res)
		return res, err
	}

	for i := 1; i < attempts; i++ {
		if res.Confirmations >= need || res.Confirmations+(attempts-i) < need {
			break
		}
		again, err := g.attempt(ctx, r, mutation)
		res.Attempts++
		if err != nil {
			res.State = StateRejected
			res.Gate = GateVote
			res.Error = again.Error
			g.finishTrial(ctx, r, &res)
			return res, err
		}
		if again.State == StateConfirmed {
			res.Confirmations++
		}
	}

	if res.Confirmations < need {
		res.State = StateRejected
		res.Gate = GateVote
	}
	g.finishTrial(ctx, r, &res)
	return res, nil
}

func (g *Guesser) finishTrial(ctx context.Context, r *run, res *TrialResult) {
	g.telemetry.RecordTrial(ctx, string(res.State))

	log := r.log.WithMutation(res.Mutation)
	switch {
	case res.State == StateConfirmed:
		log.LogGadget(ctx, r.host, res.Mutation,
			"attempts", res.Attempts,
			"confirmations", res.Confirmations,
		)
	case !res.State.Terminal():
		log.Debugw("Mutation trial not finished",
			"state", res.State,
			"error", res.Error,
		)
	default:
		log.Debugw("Mutation rejected",
			"state", res.State,
			"gate", res.Gate,
			"error", res.Error,
		)
	}
}

// attempt walks one mutation through the trial state machine once.
func (g *Guesser) attempt(ctx context.Context, r *run, mutation string) (TrialResult, error) {
	res := TrialResult{Mutation: mutation, State: StateStart}
	advance := func(to State) {
		// transitions below are fixed; an error here is a bug in this file
		if next, err := res.State.next(to); err == nil {
			res.State = next
		}
	}

	invalidHeader, err := r.catalog.Render(g.headerLine(g.opts.InvalidValue), mutation)
	if err != nil {
		advance(StateRejected)
		res.Gate = GateRender
		res.Error = g.probeError(r, mutation, PhaseInvalid, err).Error()
		return res, nil
	}

	advance(StateInvalidProbeSent)
	testResp, err := g.probe(ctx, r, PhaseInvalid, mutation, invalidHeader)
	if err != nil {
		advance(StateRejected)
		res.Gate = GateA
		res.Error = err.Error()
		return res, g.fatal(ctx, r, err)
	}
	inv := summarize(g.parser, testResp)
	res.Invalid = &inv

	if RequestMatch(g.parser, r.baseline.FrontError, testResp) || RequestMatch(g.parser, r.baseline.NoErr, testResp) {
		advance(StateRejected)
		res.Gate = GateA
		return res, nil
	}
	advance(StateCandidate)

	validHeader, err := r.catalog.Render(g.headerLine(g.opts.ValidValue), mutation)
	if err != nil {
		advance(StateRejected)
		res.Gate = GateRender
		res.Error = g.probeError(r, mutation, PhaseValid, err).Error()
		return res, nil
	}

	advance(StateValidProbeSent)
	validResp, err := g.probe(ctx, r, PhaseValid, mutation, validHeader)
	if err != nil {
		advance(StateRejected)
		res.Gate = GateB
		res.Error = err.Error()
		return res, g.fatal(ctx, r, err)
	}
	val := summarize(g.parser, validResp)
	res.Valid = &val

	res.Gate = GateB
	if RequestMatch(g.parser, r.baseline.NoErr, validResp) {
		advance(StateConfirmed)
	} else {
		advance(StateRejected)
	}
	return res, nil
}

// fatal decides whether a failed probe ends the run. Structural failures
// never do; transport failures do once the consecutive limit is reached.
func (g *Guesser) fatal(ctx context.Context, r *run, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if errors.Is(err, ErrMalformedMessage) {
		return nil
	}
	if r.failures.Load() >= int64(g.opts.MaxConsecutiveFailures) {
		return fmt.Errorf("%w: %s after %d consecutive failures: %v",
			ErrTargetUnreachable, r.host, g.opts.MaxConsecutiveFailures, err)
	}
	return nil
}

func (g *Guesser) probeError(r *run, mutation string, phase Phase, err error) *ProbeError {
	return &ProbeError{Target: r.host, Mutation: mutation, Phase: phase, Err: err}
}

// probe builds one request from the stripped base and header and sends it.
func (g *Guesser) probe(ctx context.Context, r *run, phase Phase, mutation string, header []byte) ([]byte, error) {
	req, err := InsertHeader(g.parser, r.base, header)
	if err != nil {
		return nil, g.probeError(r, mutation, phase, err)
	}
	if g.opts.CacheBuster {
		req, err = AddCacheBuster(req, cacheBusterParam, uuid.New().String())
		if err != nil {
			return nil, g.probeError(r, mutation, phase, err)
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, g.probeError(r, mutation, phase, err)
	}

	start := time.Now()
	resp, err := g.transport.Send(ctx, r.target, req)
	duration := time.Since(start)
	r.probes.Add(1)

	status := 0
	if err == nil {
		status = g.parser.StatusCode(resp)
	}
	g.telemetry.RecordProbe(ctx, string(phase), status, duration, err)

	if err != nil {
		r.failures.Add(1)
		return nil, g.probeError(r, mutation, phase, err)
	}
	r.failures.Store(0)

	r.log.LogProbe(ctx, string(phase), status, len(resp), duration, "mutation", mutation)
	return resp, nil
}

type nopTelemetry struct{}

func (nopTelemetry) RecordProbe(context.Context, string, int, time.Duration, error) {}
func (nopTelemetry) RecordTrial(context.Context, string)                            {}
func (nopTelemetry) RecordRun(context.Context, time.Duration, int, bool)            {}
func (nopTelemetry) Close() error                                                   { return nil }
