package synth

import "context"

// Request contains one sentence to synthesize plus surrounding text as
// prosody hints. Following may be empty when the successor sentence is not
// known at dispatch time.
type Request struct {
	Text      string
	Preceding string
	Following string
	Voice     string
}

// Result is the outcome of synthesizing one sentence. Exactly one Result is
// produced per submitted sentence; Failed results carry no audio and are
// played as silence.
type Result struct {
	Index    uint64
	Audio    []byte
	Attempts int
	Failed   bool
}

// Job pairs a request with its sentence index for the scheduler.
type Job struct {
	Index   uint64
	Request Request
}

// Synthesizer is the contract for producing PCM audio for one sentence.
type Synthesizer interface {
	Synthesize(ctx context.Context, req Request) ([]byte, error)
}
