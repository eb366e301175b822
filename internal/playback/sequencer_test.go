package playback

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

// recordingPlayer tracks play order and verifies no overlap.
type recordingPlayer struct {
	mu      sync.Mutex
	playing bool
	overlap bool
	played  [][]byte
	delay   time.Duration
	err     error
}

func (p *recordingPlayer) Play(ctx context.Context, pcm []byte) error {
	p.mu.Lock()
	if p.playing {
		p.overlap = true
	}
	p.playing = true
	p.played = append(p.played, pcm)
	p.mu.Unlock()

	time.Sleep(p.delay)

	p.mu.Lock()
	p.playing = false
	p.mu.Unlock()
	return p.err
}

func TestPlaysSeriallyInOrder(t *testing.T) {
	player := &recordingPlayer{delay: 5 * time.Millisecond}
	clips := make(chan Clip, 4)
	for i := 0; i < 4; i++ {
		clips <- Clip{Index: uint64(i), Audio: []byte{byte(i)}}
	}
	close(clips)

	NewSequencer(player, testLogger(), nil).Run(context.Background(), clips)

	if player.overlap {
		t.Fatal("clips overlapped")
	}
	if len(player.played) != 4 {
		t.Fatalf("expected 4 clips played, got %d", len(player.played))
	}
	for i, pcm := range player.played {
		if pcm[0] != byte(i) {
			t.Fatalf("play order violated at %d", i)
		}
	}
}

func TestNilAudioSkippedWithoutBreakingOrder(t *testing.T) {
	player := &recordingPlayer{}
	var handled []Clip
	seq := NewSequencer(player, testLogger(), func(c Clip, err error) {
		handled = append(handled, c)
	})

	clips := make(chan Clip, 3)
	clips <- Clip{Index: 0, Audio: []byte{0}}
	clips <- Clip{Index: 1, Audio: nil}
	clips <- Clip{Index: 2, Audio: []byte{2}}
	close(clips)

	seq.Run(context.Background(), clips)

	if len(player.played) != 2 {
		t.Fatalf("expected 2 clips played, got %d", len(player.played))
	}
	if len(handled) != 3 {
		t.Fatalf("expected 3 clips handled, got %d", len(handled))
	}
	for i, c := range handled {
		if c.Index != uint64(i) {
			t.Fatalf("handled order violated: got %d at position %d", c.Index, i)
		}
	}
}

func TestPlaybackErrorDoesNotStopTurn(t *testing.T) {
	player := &recordingPlayer{err: errors.New("device busy")}
	clips := make(chan Clip, 2)
	clips <- Clip{Index: 0, Audio: []byte{0}}
	clips <- Clip{Index: 1, Audio: []byte{1}}
	close(clips)

	NewSequencer(player, testLogger(), nil).Run(context.Background(), clips)

	if len(player.played) != 2 {
		t.Fatalf("expected both clips attempted, got %d", len(player.played))
	}
}

func TestCancelledContextDrainsWithoutPlaying(t *testing.T) {
	player := &recordingPlayer{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	clips := make(chan Clip, 2)
	clips <- Clip{Index: 0, Audio: []byte{0}}
	clips <- Clip{Index: 1, Audio: []byte{1}}
	close(clips)

	NewSequencer(player, testLogger(), nil).Run(ctx, clips)

	if len(player.played) != 0 {
		t.Fatalf("expected no clips played after cancellation, got %d", len(player.played))
	}
}
