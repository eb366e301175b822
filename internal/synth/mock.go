package synth

import (
	"context"
	"time"
)

type mockSynth struct {
	sampleRate int
	channels   int
	latency    time.Duration
}

// NewMockSynth returns a synthesizer that produces silence sized to roughly
// 60ms of audio per word, after a short fixed latency.
func NewMockSynth(sampleRate, channels int) Synthesizer {
	return &mockSynth{sampleRate: sampleRate, channels: channels, latency: 50 * time.Millisecond}
}

func (m *mockSynth) Synthesize(ctx context.Context, req Request) ([]byte, error) {
	select {
	case <-ctx.Done():
		return nil, Transient(ctx.Err())
	case <-time.After(m.latency):
	}

	words := 1
	for _, r := range req.Text {
		if r == ' ' {
			words++
		}
	}
	samples := m.sampleRate * words * 60 / 1000
	return make([]byte, samples*m.channels*2), nil
}
