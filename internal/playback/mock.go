package playback

import (
	"context"
	"time"
)

type mockPlayer struct {
	sampleRate int
	channels   int
}

// NewMockPlayer returns a player that sleeps for the real duration of the
// PCM it is handed, capped at one second per clip.
func NewMockPlayer(sampleRate, channels int) Player {
	return &mockPlayer{sampleRate: sampleRate, channels: channels}
}

func (m *mockPlayer) Play(ctx context.Context, pcm []byte) error {
	bytesPerSecond := m.sampleRate * m.channels * 2
	if bytesPerSecond <= 0 {
		return nil
	}
	d := time.Duration(len(pcm)) * time.Second / time.Duration(bytesPerSecond)
	if d > time.Second {
		d = time.Second
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
