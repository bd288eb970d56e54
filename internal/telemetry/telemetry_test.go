package telemetry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/metric/noop"

	"github.com/CodeMonkeyCybersecurity/clguess/internal/config"
)

func TestNew_DisabledReturnsNoop(t *testing.T) {
	tel, err := New(context.Background(), config.TelemetryConfig{Enabled: false})
	require.NoError(t, err)

	_, ok := tel.(*noopTelemetry)
	assert.True(t, ok)

	tel.RecordProbe(context.Background(), "calibration", 400, time.Millisecond, nil)
	tel.RecordTrial(context.Background(), "CONFIRMED")
	tel.RecordRun(context.Background(), time.Second, 1, false)
	assert.NoError(t, tel.Close())
}

func TestNew_UnsupportedExporter(t *testing.T) {
	_, err := New(context.Background(), config.TelemetryConfig{
		Enabled:      true,
		ServiceName:  "clguess",
		ExporterType: "zipkin",
		SampleRate:   1,
	})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported exporter type")
}

func TestInstruments_Record(t *testing.T) {
	tel, err := newInstruments(noop.NewMeterProvider().Meter("test"))
	require.NoError(t, err)

	ctx := context.Background()
	assert.NotPanics(t, func() {
		tel.RecordProbe(ctx, "invalid", 0, 2*time.Millisecond, errors.New("refused"))
		tel.RecordProbe(ctx, "valid", 200, time.Millisecond, nil)
		tel.RecordTrial(ctx, "REJECTED")
		tel.RecordRun(ctx, time.Second, 2, false)
		tel.RecordRun(ctx, time.Second, 0, true)
	})

	// no tracer provider when built from a bare meter
	assert.NoError(t, tel.Close())
}
