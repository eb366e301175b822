package synth

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/voxalabs/voxa-core/internal/config"
)

// Scheduler fans sentences out to a bounded pool of synthesis workers.
// Dispatch is FIFO by submission order; completion order is not guaranteed.
// Every submitted job yields exactly one Result on the results channel, which
// closes once the intake is closed and all workers have drained.
type Scheduler struct {
	cfg       config.SynthConfig
	synth     Synthesizer
	jobs      chan Job
	results   chan Result
	logger    *slog.Logger
	wg        sync.WaitGroup
	closeOnce sync.Once

	// OnRetry, when set before Start, is invoked for each retried attempt.
	OnRetry func(index uint64)
}

func NewScheduler(cfg config.SynthConfig, synthesizer Synthesizer, logger *slog.Logger, queueDepth int) *Scheduler {
	if queueDepth <= 0 {
		queueDepth = 1
	}
	return &Scheduler{
		cfg:     cfg,
		synth:   synthesizer,
		jobs:    make(chan Job, queueDepth),
		results: make(chan Result, queueDepth),
		logger:  logger.With(slog.String("component", "synth-scheduler")),
	}
}

func (s *Scheduler) Start(ctx context.Context) {
	for i := 0; i < s.cfg.Workers; i++ {
		s.wg.Add(1)
		go s.worker(ctx)
	}
	go func() {
		s.wg.Wait()
		close(s.results)
	}()
}

// Submit queues a job for synthesis, blocking on queue capacity.
func (s *Scheduler) Submit(ctx context.Context, job Job) error {
	select {
	case s.jobs <- job:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// CloseIntake signals that no more jobs will be submitted. Safe to call more
// than once.
func (s *Scheduler) CloseIntake() {
	s.closeOnce.Do(func() { close(s.jobs) })
}

func (s *Scheduler) Results() <-chan Result {
	return s.results
}

func (s *Scheduler) worker(ctx context.Context) {
	defer s.wg.Done()
	for {
		select {
		case job, ok := <-s.jobs:
			if !ok {
				return
			}
			s.results <- s.synthesize(ctx, job)
		case <-ctx.Done():
			// Aborted turn: stop pulling work so the results channel can
			// close without waiting for the intake to close.
			return
		}
	}
}

func (s *Scheduler) synthesize(ctx context.Context, job Job) Result {
	attempts := 0
	operation := func() ([]byte, error) {
		attempts++
		reqCtx, cancel := context.WithTimeout(ctx, time.Duration(s.cfg.RequestTimeoutMS)*time.Millisecond)
		defer cancel()

		audio, err := s.synth.Synthesize(reqCtx, job.Request)
		if err != nil {
			if IsPermanent(err) {
				return nil, backoff.Permanent(err)
			}
			return nil, err
		}
		return audio, nil
	}

	expo := backoff.NewExponentialBackOff()
	expo.InitialInterval = time.Duration(s.cfg.BackoffInitialMS) * time.Millisecond
	expo.MaxInterval = time.Duration(s.cfg.BackoffMaxMS) * time.Millisecond

	notify := func(err error, delay time.Duration) {
		if s.OnRetry != nil {
			s.OnRetry(job.Index)
		}
		s.logger.Warn("synthesis attempt failed, backing off",
			slog.Uint64("sentence", job.Index),
			slog.Duration("delay", delay),
			slogError(err))
	}

	audio, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(expo),
		backoff.WithMaxTries(uint(s.cfg.MaxAttempts)),
		backoff.WithNotify(notify))
	if err != nil {
		s.logger.Warn("synthesis failed, sentence will be skipped",
			slog.Uint64("sentence", job.Index),
			slog.Int("attempts", attempts),
			slogError(err))
		return Result{Index: job.Index, Attempts: attempts, Failed: true}
	}
	return Result{Index: job.Index, Audio: audio, Attempts: attempts}
}

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}
