package tts

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/vaanilabs/vaani-core/internal/config"
)

// sarvamSpeakers maps logical voice identifiers to Sarvam speaker names.
var sarvamSpeakers = map[string]string{
	"asteria":  "anushka",
	"priya":    "anushka",
	"adam":     "abhilash",
	"campus":   "manisha",
	"district": "karun",
}

// SarvamProvider synthesizes speech through the Sarvam AI REST API, the
// second network tier. Responses carry base64-encoded WAV, which the adapter
// decodes so the orchestrator receives raw container bytes like any other
// tier.
type SarvamProvider struct {
	cfg    config.SarvamConfig
	client *http.Client
}

func NewSarvamProvider(cfg config.SarvamConfig) *SarvamProvider {
	timeout := time.Duration(cfg.TimeoutMS) * time.Millisecond
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &SarvamProvider{
		cfg:    cfg,
		client: &http.Client{Timeout: timeout},
	}
}

func (p *SarvamProvider) Name() string   { return "sarvam" }
func (p *SarvamProvider) Format() Format { return FormatWAV }

type sarvamRequest struct {
	Inputs              []string `json:"inputs"`
	TargetLanguageCode  string   `json:"target_language_code"`
	Speaker             string   `json:"speaker"`
	Pace                float64  `json:"pace,omitempty"`
	SpeechSampleRate    int      `json:"speech_sample_rate"`
	EnablePreprocessing bool     `json:"enable_preprocessing"`
	Model               string   `json:"model"`
}

type sarvamResponse struct {
	Audios []string `json:"audios"`
}

func (p *SarvamProvider) speaker(logical string) string {
	if s, ok := sarvamSpeakers[logical]; ok {
		return s
	}
	return p.cfg.DefaultSpeaker
}

func languageCode(lang string) string {
	if lang == LanguageHindi {
		return "hi-IN"
	}
	return "en-IN"
}

func (p *SarvamProvider) Synthesize(ctx context.Context, text string, opts Options) ([]byte, error) {
	payload := sarvamRequest{
		Inputs:              []string{ApplyPronunciations(p.Name(), text)},
		TargetLanguageCode:  languageCode(opts.Language),
		Speaker:             p.speaker(opts.VoiceID),
		Pace:                opts.Speed,
		SpeechSampleRate:    p.cfg.SampleRate,
		EnablePreprocessing: true,
		Model:               p.cfg.ModelID,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode sarvam request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.BaseURL+"/text-to-speech", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build sarvam request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("api-subscription-key", p.cfg.APIKey)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, &ProviderError{Provider: p.Name(), Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, &ProviderError{Provider: p.Name(), Status: resp.StatusCode}
	}

	var decoded sarvamResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, &ProviderError{Provider: p.Name(), Err: fmt.Errorf("decode response: %w", err)}
	}
	if len(decoded.Audios) == 0 || decoded.Audios[0] == "" {
		return nil, &ProviderError{Provider: p.Name(), Err: fmt.Errorf("response carried no audio")}
	}

	audio, err := base64.StdEncoding.DecodeString(decoded.Audios[0])
	if err != nil {
		return nil, &ProviderError{Provider: p.Name(), Err: fmt.Errorf("decode audio payload: %w", err)}
	}
	return audio, nil
}
