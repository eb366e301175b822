package speak

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds the speak pipeline instruments. A nil *Metrics is valid and
// records nothing, which keeps tests free of telemetry setup.
type Metrics struct {
	turns           metric.Int64Counter
	sentences       metric.Int64Counter
	synthRetries    metric.Int64Counter
	synthFailures   metric.Int64Counter
	playbackSeconds metric.Float64Histogram
}

func NewMetrics() (*Metrics, error) {
	meter := otel.Meter("github.com/voxalabs/voxa-core/internal/speak")

	turns, err := meter.Int64Counter("voxa_turns_total",
		metric.WithDescription("Spoken turns started"))
	if err != nil {
		return nil, err
	}
	sentences, err := meter.Int64Counter("voxa_sentences_total",
		metric.WithDescription("Sentences segmented and dispatched for synthesis"))
	if err != nil {
		return nil, err
	}
	retries, err := meter.Int64Counter("voxa_synth_retries_total",
		metric.WithDescription("Synthesis attempts retried after transient failure"))
	if err != nil {
		return nil, err
	}
	failures, err := meter.Int64Counter("voxa_synth_failures_total",
		metric.WithDescription("Sentences that exhausted synthesis retries"))
	if err != nil {
		return nil, err
	}
	playback, err := meter.Float64Histogram("voxa_playback_seconds",
		metric.WithDescription("Wall-clock playback time per clip"))
	if err != nil {
		return nil, err
	}

	return &Metrics{
		turns:           turns,
		sentences:       sentences,
		synthRetries:    retries,
		synthFailures:   failures,
		playbackSeconds: playback,
	}, nil
}

func (m *Metrics) TurnStarted(ctx context.Context) {
	if m == nil {
		return
	}
	m.turns.Add(ctx, 1)
}

func (m *Metrics) SentenceDispatched(ctx context.Context) {
	if m == nil {
		return
	}
	m.sentences.Add(ctx, 1)
}

func (m *Metrics) SynthRetried(ctx context.Context) {
	if m == nil {
		return
	}
	m.synthRetries.Add(ctx, 1)
}

func (m *Metrics) SynthFailed(ctx context.Context) {
	if m == nil {
		return
	}
	m.synthFailures.Add(ctx, 1)
}

func (m *Metrics) ClipPlayed(ctx context.Context, seconds float64) {
	if m == nil {
		return
	}
	m.playbackSeconds.Record(ctx, seconds)
}
