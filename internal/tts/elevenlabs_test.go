package tts

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/vaanilabs/vaani-core/internal/config"
)

func elevenLabsTestConfig(baseURL string) config.ElevenLabsConfig {
	return config.ElevenLabsConfig{
		Enabled:        true,
		APIKey:         "test-key",
		BaseURL:        baseURL,
		ModelID:        "eleven_multilingual_v2",
		DefaultVoiceID: "default-voice",
		OutputFormat:   "mp3_44100_128",
		Stability:      0.5,
		Similarity:     0.75,
		TimeoutMS:      2000,
	}
}

func TestElevenLabsSynthesize(t *testing.T) {
	var gotPath, gotKey string
	var gotBody elevenLabsRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.Header.Get("xi-api-key")
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "audio/mpeg")
		w.Write([]byte("mp3-bytes"))
	}))
	defer srv.Close()

	p := NewElevenLabsProvider(elevenLabsTestConfig(srv.URL))
	audio, err := p.Synthesize(context.Background(), "Hello campus.", Options{VoiceID: "adam", Stability: 0.8})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(audio) != "mp3-bytes" {
		t.Fatalf("unexpected audio: %q", audio)
	}
	if !strings.HasPrefix(gotPath, "/v1/text-to-speech/pNInz6obpgDQGcFmaJgB") {
		t.Fatalf("voice mapping broken, path %q", gotPath)
	}
	if gotKey != "test-key" {
		t.Fatalf("api key header missing, got %q", gotKey)
	}
	if gotBody.Text != "Hello campus." || gotBody.ModelID != "eleven_multilingual_v2" {
		t.Fatalf("unexpected request body: %+v", gotBody)
	}
	if gotBody.VoiceSettings.Stability != 0.8 {
		t.Fatalf("stability override lost: %+v", gotBody.VoiceSettings)
	}
	if gotBody.VoiceSettings.SimilarityBoost != 0.75 {
		t.Fatalf("similarity default lost: %+v", gotBody.VoiceSettings)
	}
}

func TestElevenLabsUnknownVoiceFallsBack(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.Write([]byte("x"))
	}))
	defer srv.Close()

	p := NewElevenLabsProvider(elevenLabsTestConfig(srv.URL))
	if _, err := p.Synthesize(context.Background(), "text", Options{VoiceID: "nonexistent"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(gotPath, "default-voice") {
		t.Fatalf("expected default voice, path %q", gotPath)
	}
}

func TestElevenLabsHTTPErrorClassified(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota exceeded", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	p := NewElevenLabsProvider(elevenLabsTestConfig(srv.URL))
	_, err := p.Synthesize(context.Background(), "text", Options{})
	var provErr *ProviderError
	if !errors.As(err, &provErr) {
		t.Fatalf("expected ProviderError, got %v", err)
	}
	if provErr.Status != http.StatusTooManyRequests {
		t.Fatalf("expected status 429, got %d", provErr.Status)
	}
	if !provErr.Transient() {
		t.Fatal("429 must be transient")
	}
}

func TestElevenLabsNetworkErrorTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	srv.Close() // dial will fail

	p := NewElevenLabsProvider(elevenLabsTestConfig(srv.URL))
	_, err := p.Synthesize(context.Background(), "text", Options{})
	var provErr *ProviderError
	if !errors.As(err, &provErr) {
		t.Fatalf("expected ProviderError, got %v", err)
	}
	if provErr.Status != 0 || provErr.Err == nil {
		t.Fatalf("network failure should carry a cause, got %+v", provErr)
	}
	if !provErr.Transient() {
		t.Fatal("network failure must be transient")
	}
}

func TestProviderErrorClassification(t *testing.T) {
	cases := []struct {
		status    int
		transient bool
	}{
		{400, false},
		{401, false},
		{404, false},
		{408, true},
		{429, true},
		{500, true},
		{503, true},
	}
	for _, tc := range cases {
		e := &ProviderError{Provider: "p", Status: tc.status}
		if e.Transient() != tc.transient {
			t.Fatalf("status %d: transient = %v, want %v", tc.status, e.Transient(), tc.transient)
		}
	}
}
