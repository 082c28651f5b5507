package protocol

import "time"

// SpeakRequest asks the synthesis service to produce audio for one utterance.
type SpeakRequest struct {
	UtteranceID string   `json:"utterance_id"`
	SessionID   string   `json:"session_id"`
	Text        string   `json:"text"`
	VoiceID     string   `json:"voice_id,omitempty"`
	Language    string   `json:"language,omitempty"`
	Speed       float64  `json:"speed,omitempty"`
	Stability   float64  `json:"stability,omitempty"`
	Similarity  float64  `json:"similarity,omitempty"`
	Emotions    []string `json:"emotions,omitempty"`
	Target      string   `json:"target,omitempty"`
}

// AudioChunk carries one slice of a synthesized utterance to playback targets.
type AudioChunk struct {
	UtteranceID string `json:"utterance_id"`
	SessionID   string `json:"session_id"`
	Target      string `json:"target,omitempty"`
	Provider    string `json:"provider"`
	Format      string `json:"format"`
	Sequence    int    `json:"sequence"`
	Audio       []byte `json:"audio"`
	Final       bool   `json:"final"`
}

// SpeakStatus is the terminal message for an utterance on the bus.
type SpeakStatus struct {
	UtteranceID string `json:"utterance_id"`
	SessionID   string `json:"session_id"`
	Target      string `json:"target,omitempty"`
	Completed   bool   `json:"completed"`
	// FallbackRequired tells edge devices that no network tier produced
	// audio and the on-device engine should speak the text itself.
	FallbackRequired bool      `json:"fallback_required,omitempty"`
	Error            string    `json:"error,omitempty"`
	Provider         string    `json:"provider,omitempty"`
	Timestamp        time.Time `json:"timestamp"`
}

// ProviderStatus is broadcast periodically by the health registry.
type ProviderStatus struct {
	Provider    string    `json:"provider"`
	Healthy     bool      `json:"healthy"`
	Failures    int       `json:"consecutive_failures"`
	LastSuccess time.Time `json:"last_success,omitempty"`
	LastFailure time.Time `json:"last_failure,omitempty"`
	LastLatency int64     `json:"last_latency_ms,omitempty"`
	ObservedAt  time.Time `json:"observed_at"`
}

const (
	SubjectSpeakRequest   = "tts.speak"
	SubjectSpeakAudio     = "tts.audio"
	SubjectSpeakDone      = "tts.done"
	SubjectProviderStatus = "ctrl.provider.status"
)
