package synth

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os/exec"

	"github.com/mattn/go-shellwords"
)

type execSynth struct {
	cmd        []string
	voice      string
	sampleRate int
	channels   int
}

type execRequest struct {
	Text          string `json:"text"`
	PrecedingText string `json:"preceding_text,omitempty"`
	FollowingText string `json:"following_text,omitempty"`
	Voice         string `json:"voice"`
	SampleRate    int    `json:"sample_rate"`
	Channels      int    `json:"channels"`
}

type execResponse struct {
	PCMBase64 string `json:"pcm_base64"`
	Error     string `json:"error,omitempty"`
}

// NewExecSynth runs an external command per sentence: a JSON request on
// stdin, a single JSON response with base64 PCM on stdout.
func NewExecSynth(command, voice string, sampleRate, channels int) (Synthesizer, error) {
	parser := shellwords.NewParser()
	args, err := parser.Parse(command)
	if err != nil {
		return nil, fmt.Errorf("parse synth command: %w", err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("synth command empty")
	}
	return &execSynth{cmd: args, voice: voice, sampleRate: sampleRate, channels: channels}, nil
}

func (e *execSynth) Synthesize(ctx context.Context, req Request) ([]byte, error) {
	voice := req.Voice
	if voice == "" {
		voice = e.voice
	}
	payload, err := json.Marshal(execRequest{
		Text:          req.Text,
		PrecedingText: req.Preceding,
		FollowingText: req.Following,
		Voice:         voice,
		SampleRate:    e.sampleRate,
		Channels:      e.channels,
	})
	if err != nil {
		return nil, Permanent(fmt.Errorf("encode synth request: %w", err))
	}

	base := e.cmd[0]
	args := append([]string{}, e.cmd[1:]...)
	cmd := exec.CommandContext(ctx, base, args...)
	cmd.Stdin = bytes.NewReader(payload)
	var stdout bytes.Buffer
	cmd.Stdout = &stdout

	if err := cmd.Run(); err != nil {
		// Backend crashes and timeouts are worth another attempt.
		return nil, Transient(fmt.Errorf("synth command: %w", err))
	}

	var resp execResponse
	if err := json.Unmarshal(bytes.TrimSpace(stdout.Bytes()), &resp); err != nil {
		return nil, Permanent(fmt.Errorf("decode synth response: %w", err))
	}
	if resp.Error != "" {
		return nil, Permanent(fmt.Errorf("synth backend rejected request: %s", resp.Error))
	}
	pcm, err := base64.StdEncoding.DecodeString(resp.PCMBase64)
	if err != nil {
		return nil, Permanent(fmt.Errorf("decode synth pcm: %w", err))
	}
	return pcm, nil
}
