package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/vaanilabs/vaani-core/internal/config"
)

// elevenLabsVoices maps the logical voice identifiers used across the
// assistant to ElevenLabs voice IDs. Unknown identifiers fall back to the
// configured default.
var elevenLabsVoices = map[string]string{
	"asteria":  "21m00Tcm4TlvDq8ikWAM",
	"rachel":   "21m00Tcm4TlvDq8ikWAM",
	"adam":     "pNInz6obpgDQGcFmaJgB",
	"antoni":   "ErXwobaYiN019PkySvjV",
	"priya":    "MF3mGyEYCl7XYWbV9V6O",
	"campus":   "EXAVITQu4vr4xnSDxMaL",
	"district": "onwK4e9ZLuTAKqWW03F9",
}

// ElevenLabsProvider synthesizes speech through the ElevenLabs REST API.
// Output is MP3. One HTTP call per chunk, no internal retry.
type ElevenLabsProvider struct {
	cfg    config.ElevenLabsConfig
	client *http.Client
}

func NewElevenLabsProvider(cfg config.ElevenLabsConfig) *ElevenLabsProvider {
	timeout := time.Duration(cfg.TimeoutMS) * time.Millisecond
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &ElevenLabsProvider{
		cfg:    cfg,
		client: &http.Client{Timeout: timeout},
	}
}

func (p *ElevenLabsProvider) Name() string   { return "elevenlabs" }
func (p *ElevenLabsProvider) Format() Format { return FormatMP3 }

type elevenLabsVoiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
	Style           float64 `json:"style,omitempty"`
	UseSpeakerBoost bool    `json:"use_speaker_boost"`
}

type elevenLabsRequest struct {
	Text          string                  `json:"text"`
	ModelID       string                  `json:"model_id"`
	VoiceSettings elevenLabsVoiceSettings `json:"voice_settings"`
}

func (p *ElevenLabsProvider) voiceID(logical string) string {
	if id, ok := elevenLabsVoices[logical]; ok {
		return id
	}
	return p.cfg.DefaultVoiceID
}

func (p *ElevenLabsProvider) Synthesize(ctx context.Context, text string, opts Options) ([]byte, error) {
	stability := opts.Stability
	if stability == 0 {
		stability = p.cfg.Stability
	}
	similarity := opts.Similarity
	if similarity == 0 {
		similarity = p.cfg.Similarity
	}

	payload := elevenLabsRequest{
		Text:    ApplyPronunciations(p.Name(), text),
		ModelID: p.cfg.ModelID,
		VoiceSettings: elevenLabsVoiceSettings{
			Stability:       stability,
			SimilarityBoost: similarity,
			UseSpeakerBoost: true,
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode elevenlabs request: %w", err)
	}

	url := fmt.Sprintf("%s/v1/text-to-speech/%s?output_format=%s",
		p.cfg.BaseURL, p.voiceID(opts.VoiceID), p.cfg.OutputFormat)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build elevenlabs request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "audio/mpeg")
	req.Header.Set("xi-api-key", p.cfg.APIKey)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, &ProviderError{Provider: p.Name(), Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, &ProviderError{Provider: p.Name(), Status: resp.StatusCode}
	}

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &ProviderError{Provider: p.Name(), Err: err}
	}
	if len(audio) == 0 {
		return nil, &ProviderError{Provider: p.Name(), Err: fmt.Errorf("empty audio body")}
	}
	return audio, nil
}
