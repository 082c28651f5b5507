package runtime

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/vaanilabs/vaani-core/internal/audit"
	"github.com/vaanilabs/vaani-core/internal/tts"
)

type speakRequest struct {
	Text       string   `json:"text"`
	SessionID  string   `json:"session_id,omitempty"`
	VoiceID    string   `json:"voice_id,omitempty"`
	Language   string   `json:"language,omitempty"`
	Speed      float64  `json:"speed,omitempty"`
	Stability  float64  `json:"stability,omitempty"`
	Similarity float64  `json:"similarity,omitempty"`
	Emotions   []string `json:"emotions,omitempty"`
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

const (
	codeMalformedRequest = "malformed_request"
	codeFallbackRequired = "fallback_required"
	codeInternalError    = "internal_error"
	codeUnauthorized     = "unauthorized"
)

func (r *Runtime) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		if token := r.cfg.HTTP.AuthToken; token != "" {
			got := strings.TrimPrefix(req.Header.Get("Authorization"), "Bearer ")
			if got != token {
				writeError(w, http.StatusUnauthorized, codeUnauthorized, "invalid or missing bearer token")
				return
			}
		}
		next(w, req)
	}
}

// handleSpeak synthesizes one utterance and returns the audio payload. The
// producing tier is reported in X-Vaani-Provider so the caller can pick the
// right playback path for compressed versus PCM audio.
func (r *Runtime) handleSpeak(w http.ResponseWriter, req *http.Request) {
	var body speakRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, codeMalformedRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(body.Text) == "" {
		writeError(w, http.StatusBadRequest, codeMalformedRequest, "text must not be empty")
		return
	}

	timeout := time.Duration(r.cfg.TTS.RequestTimeoutMS) * time.Millisecond
	if timeout <= 0 {
		timeout = 45 * time.Second
	}
	ctx, cancel := context.WithTimeout(req.Context(), timeout)
	defer cancel()

	utteranceID := uuid.NewString()
	started := time.Now()

	result, err := r.orchestrator.Speak(ctx, body.Text, tts.Options{
		VoiceID:    body.VoiceID,
		Language:   body.Language,
		Speed:      body.Speed,
		Stability:  body.Stability,
		Similarity: body.Similarity,
		Emotions:   body.Emotions,
	})
	latency := time.Since(started)

	if err != nil {
		r.recordUtterance(req.Context(), audit.Utterance{
			ID:        utteranceID,
			SessionID: body.SessionID,
			LatencyMS: latency.Milliseconds(),
			Outcome:   outcomeFor(err),
			Error:     err.Error(),
		})
		switch {
		case errors.Is(err, tts.ErrEmptyText):
			writeError(w, http.StatusBadRequest, codeMalformedRequest, "text contains nothing speakable")
		case errors.Is(err, tts.ErrAllTiersExhausted):
			// Not a hard failure: the client owns an on-device engine and
			// is expected to speak the text itself.
			writeError(w, http.StatusBadGateway, codeFallbackRequired, "no network provider available, use local fallback")
		default:
			r.logger.Error("speak failed", slog.String("utterance", utteranceID), slog.String("error", err.Error()))
			writeError(w, http.StatusInternalServerError, codeInternalError, "synthesis failed")
		}
		return
	}

	r.recordUtterance(req.Context(), audit.Utterance{
		ID:        utteranceID,
		SessionID: body.SessionID,
		Provider:  result.Provider,
		Chunks:    result.Chunks,
		Bytes:     len(result.Audio),
		LatencyMS: latency.Milliseconds(),
		Outcome:   audit.OutcomeCompleted,
	})

	w.Header().Set("Content-Type", result.Format.ContentType())
	w.Header().Set("Content-Length", strconv.Itoa(len(result.Audio)))
	w.Header().Set("X-Vaani-Provider", result.Provider)
	w.Header().Set("X-Vaani-Chunks", strconv.Itoa(result.Chunks))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(result.Audio)
}

func (r *Runtime) handleProviders(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, r.registry.Snapshot())
}

func (r *Runtime) handleUtterances(w http.ResponseWriter, req *http.Request) {
	limit := 50
	if q := req.URL.Query().Get("limit"); q != "" {
		if parsed, err := strconv.Atoi(q); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	rows, err := r.auditStore.ListRecent(req.Context(), limit)
	if err != nil {
		r.logger.Error("failed to list utterances", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, codeInternalError, "failed to read audit log")
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

func (r *Runtime) recordUtterance(ctx context.Context, u audit.Utterance) {
	if r.auditStore == nil {
		return
	}
	if err := r.auditStore.Record(ctx, u); err != nil {
		r.logger.Warn("failed to record utterance", slog.String("error", err.Error()))
	}
}

func outcomeFor(err error) string {
	switch {
	case errors.Is(err, tts.ErrEmptyText):
		return audit.OutcomeRejected
	case errors.Is(err, tts.ErrAllTiersExhausted):
		return audit.OutcomeFallback
	default:
		return audit.OutcomeError
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, apiError{Code: code, Message: message})
}
