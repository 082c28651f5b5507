package playback

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/vaanilabs/vaani-core/internal/tts"
)

// HTTPSynthesizer asks a remote vaanid for audio over the speak endpoint. It
// implements Synthesizer so the controller can run against a daemon on
// another host; a fallback_required answer surfaces as ErrAllTiersExhausted,
// which triggers the controller's on-device engine.
type HTTPSynthesizer struct {
	baseURL string
	token   string
	client  *http.Client
}

func NewHTTPSynthesizer(baseURL, token string, timeout time.Duration) *HTTPSynthesizer {
	if timeout <= 0 {
		timeout = 45 * time.Second
	}
	return &HTTPSynthesizer{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		client:  &http.Client{Timeout: timeout},
	}
}

type speakPayload struct {
	Text       string   `json:"text"`
	SessionID  string   `json:"session_id,omitempty"`
	VoiceID    string   `json:"voice_id,omitempty"`
	Language   string   `json:"language,omitempty"`
	Speed      float64  `json:"speed,omitempty"`
	Stability  float64  `json:"stability,omitempty"`
	Similarity float64  `json:"similarity,omitempty"`
	Emotions   []string `json:"emotions,omitempty"`
}

type speakFailure struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (h *HTTPSynthesizer) Speak(ctx context.Context, text string, opts tts.Options) (tts.Result, error) {
	body, err := json.Marshal(speakPayload{
		Text:       text,
		VoiceID:    opts.VoiceID,
		Language:   opts.Language,
		Speed:      opts.Speed,
		Stability:  opts.Stability,
		Similarity: opts.Similarity,
		Emotions:   opts.Emotions,
	})
	if err != nil {
		return tts.Result{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.baseURL+"/v1/speak", bytes.NewReader(body))
	if err != nil {
		return tts.Result{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	if h.token != "" {
		req.Header.Set("Authorization", "Bearer "+h.token)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return tts.Result{}, fmt.Errorf("speak request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var failure speakFailure
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
		_ = json.Unmarshal(data, &failure)
		if failure.Code == "fallback_required" {
			return tts.Result{}, tts.ErrAllTiersExhausted
		}
		if failure.Message != "" {
			return tts.Result{}, fmt.Errorf("speak rejected (%d): %s", resp.StatusCode, failure.Message)
		}
		return tts.Result{}, fmt.Errorf("speak rejected with status %d", resp.StatusCode)
	}

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return tts.Result{}, fmt.Errorf("read audio: %w", err)
	}
	chunks, _ := strconv.Atoi(resp.Header.Get("X-Vaani-Chunks"))
	return tts.Result{
		Audio:    audio,
		Provider: resp.Header.Get("X-Vaani-Provider"),
		Format:   tts.FormatFromContentType(resp.Header.Get("Content-Type")),
		Chunks:   chunks,
	}, nil
}
