package playback

import "context"

// Clip is one sentence's audio released in index order. Nil audio means the
// sentence failed synthesis and is played as a logged no-op.
type Clip struct {
	Index uint64
	Audio []byte
}

// Player is the contract for the external audio output. Play blocks until
// the audio has finished playing.
type Player interface {
	Play(ctx context.Context, pcm []byte) error
}
