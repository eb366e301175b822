package playback

import (
	"context"
	"encoding/binary"
	"fmt"
	"os"
	"os/exec"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/mattn/go-shellwords"
)

type execPlayer struct {
	cmd        []string
	sampleRate int
	channels   int
}

// NewExecPlayer wraps an external player command (e.g. "aplay -q"). Each clip
// is written to a temporary WAV file whose path is appended to the command.
func NewExecPlayer(command string, sampleRate, channels int) (Player, error) {
	parser := shellwords.NewParser()
	args, err := parser.Parse(command)
	if err != nil {
		return nil, fmt.Errorf("parse player command: %w", err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("player command empty")
	}
	return &execPlayer{cmd: args, sampleRate: sampleRate, channels: channels}, nil
}

func (p *execPlayer) Play(ctx context.Context, pcm []byte) error {
	path, err := p.writeWAV(pcm)
	if err != nil {
		return err
	}
	defer os.Remove(path)

	base := p.cmd[0]
	args := append(append([]string{}, p.cmd[1:]...), path)
	cmd := exec.CommandContext(ctx, base, args...)
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("player command: %w", err)
	}
	return nil
}

func (p *execPlayer) writeWAV(pcm []byte) (string, error) {
	// 16-bit samples; an odd byte count means the backend handed us a
	// truncated or corrupt payload.
	if len(pcm)%2 != 0 {
		return "", fmt.Errorf("pcm payload has odd length %d", len(pcm))
	}

	f, err := os.CreateTemp("", "voxa-clip-*.wav")
	if err != nil {
		return "", fmt.Errorf("create clip file: %w", err)
	}

	enc := wav.NewEncoder(f, p.sampleRate, 16, p.channels, 1)
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: p.channels, SampleRate: p.sampleRate},
		Data:           make([]int, len(pcm)/2),
		SourceBitDepth: 16,
	}
	for i := range buf.Data {
		buf.Data[i] = int(int16(binary.LittleEndian.Uint16(pcm[i*2:])))
	}
	if err := enc.Write(buf); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", fmt.Errorf("encode clip: %w", err)
	}
	if err := enc.Close(); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", fmt.Errorf("finalize clip: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", err
	}
	return f.Name(), nil
}
