package playback

import (
	"context"
	"log/slog"
)

// Sequencer is the single serial consumer of the clip queue. Clips arrive
// already in index order; the sequencer never reorders and never overlaps
// two clips.
type Sequencer struct {
	player Player
	logger *slog.Logger
	notify func(clip Clip, playErr error)
}

// NewSequencer creates a sequencer. notify, when non-nil, is called after
// each clip is handled (played, skipped, or failed).
func NewSequencer(player Player, logger *slog.Logger, notify func(Clip, error)) *Sequencer {
	return &Sequencer{
		player: player,
		logger: logger.With(slog.String("component", "playback-sequencer")),
		notify: notify,
	}
}

// Run consumes clips until the channel closes, playing each synchronously.
// Once the turn context is cancelled it stops playing but keeps draining so
// upstream stages never block; it returns when the channel closes.
func (s *Sequencer) Run(ctx context.Context, clips <-chan Clip) {
	for clip := range clips {
		if ctx.Err() != nil {
			continue
		}
		if clip.Audio == nil {
			s.logger.Warn("skipping clip without audio", slog.Uint64("sentence", clip.Index))
			if s.notify != nil {
				s.notify(clip, nil)
			}
			continue
		}
		err := s.player.Play(ctx, clip.Audio)
		if err != nil && ctx.Err() == nil {
			s.logger.Warn("playback failed, skipping clip",
				slog.Uint64("sentence", clip.Index),
				slog.String("error", err.Error()))
		}
		if s.notify != nil {
			s.notify(clip, err)
		}
	}
}
