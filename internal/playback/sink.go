package playback

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"

	"github.com/mattn/go-shellwords"

	"github.com/vaanilabs/vaani-core/internal/tts"
)

// ExecSink plays audio by piping it into an external player command (mpv,
// aplay, afplay, or a wrapper script). The command receives the full payload
// on stdin and is expected to exit when playback finishes.
type ExecSink struct {
	cmd []string
}

func NewExecSink(command string) (*ExecSink, error) {
	parser := shellwords.NewParser()
	args, err := parser.Parse(command)
	if err != nil {
		return nil, fmt.Errorf("parse player command: %w", err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("player command empty")
	}
	return &ExecSink{cmd: args}, nil
}

// Play blocks until the player exits or ctx is cancelled. Cancellation kills
// the player process, releasing the audio device.
func (s *ExecSink) Play(ctx context.Context, audio []byte, format tts.Format) error {
	base := s.cmd[0]
	args := append([]string{}, s.cmd[1:]...)
	cmd := exec.CommandContext(ctx, base, args...)
	cmd.Stdin = bytes.NewReader(audio)
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("player %q: %w", base, err)
	}
	return nil
}
