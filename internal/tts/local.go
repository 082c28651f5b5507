package tts

import (
	"bufio"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os/exec"
	"sync"

	"github.com/mattn/go-shellwords"

	"github.com/vaanilabs/vaani-core/internal/config"
)

// LocalProvider shells out to an on-device synthesis engine (piper,
// espeak-ng, or any wrapper speaking the same stdin/stdout protocol). It is
// the fallback of last resort and is never part of the network tier list:
// the playback controller invokes it directly when the orchestrator reports
// exhaustion.
type LocalProvider struct {
	cmd        []string
	sampleRate int
	channels   int
	speed      float64
	mu         sync.Mutex
}

type localRequest struct {
	Text       string  `json:"text"`
	Voice      string  `json:"voice"`
	Language   string  `json:"language"`
	Speed      float64 `json:"speed"`
	SampleRate int     `json:"sample_rate"`
	Channels   int     `json:"channels"`
}

type localResponse struct {
	PCMBase64 string `json:"pcm_base64"`
	Final     bool   `json:"final"`
}

func NewLocalProvider(cfg config.LocalConfig) (*LocalProvider, error) {
	parser := shellwords.NewParser()
	args, err := parser.Parse(cfg.Command)
	if err != nil {
		return nil, fmt.Errorf("parse local synth command: %w", err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("local synth command empty")
	}
	speed := cfg.Speed
	if speed <= 0 {
		speed = 1.0
	}
	return &LocalProvider{
		cmd:        args,
		sampleRate: cfg.SampleRate,
		channels:   cfg.Channels,
		speed:      speed,
	}, nil
}

func (l *LocalProvider) Name() string   { return "local" }
func (l *LocalProvider) Format() Format { return FormatWAV }

// Synthesize runs one engine invocation for the whole utterance. The engine
// is a single shared binary, so invocations are serialized.
func (l *LocalProvider) Synthesize(ctx context.Context, text string, opts Options) ([]byte, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	speed := opts.Speed
	if speed <= 0 {
		speed = l.speed
	}
	payload := localRequest{
		Text:       text,
		Voice:      opts.VoiceID,
		Language:   opts.Language,
		Speed:      speed,
		SampleRate: l.sampleRate,
		Channels:   l.channels,
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	base := l.cmd[0]
	args := append([]string{}, l.cmd[1:]...)
	cmd := exec.CommandContext(ctx, base, args...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, err
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, &ProviderError{Provider: l.Name(), Err: err}
	}

	if _, err := stdin.Write(data); err != nil {
		cmd.Wait()
		return nil, &ProviderError{Provider: l.Name(), Err: err}
	}
	stdin.Close()

	var pcm []byte
	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var resp localResponse
		if err := json.Unmarshal(line, &resp); err != nil {
			cmd.Wait()
			return nil, &ProviderError{Provider: l.Name(), Err: err}
		}
		decoded, err := base64.StdEncoding.DecodeString(resp.PCMBase64)
		if err != nil {
			cmd.Wait()
			return nil, &ProviderError{Provider: l.Name(), Err: err}
		}
		pcm = append(pcm, decoded...)
		if resp.Final {
			break
		}
	}
	if err := cmd.Wait(); err != nil {
		return nil, &ProviderError{Provider: l.Name(), Err: err}
	}
	if err := scanner.Err(); err != nil {
		return nil, &ProviderError{Provider: l.Name(), Err: err}
	}
	if len(pcm) == 0 {
		return nil, &ProviderError{Provider: l.Name(), Err: fmt.Errorf("engine produced no audio")}
	}

	return encodeWAV(pcm, wavInfo{
		SampleRate: uint32(l.sampleRate),
		Channels:   uint16(l.channels),
		BitsDepth:  16,
	}), nil
}
