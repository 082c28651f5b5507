package tts

import (
	"context"
	"errors"
	"fmt"
)

// Format identifies the container of a provider's audio output. Tiers emit
// different formats, which is why partial output from one tier can never be
// stitched onto another's.
type Format string

const (
	FormatMP3 Format = "mp3"
	FormatWAV Format = "wav"
	FormatPCM Format = "pcm"
)

// ContentType returns the MIME type callers should use when serving audio.
func (f Format) ContentType() string {
	switch f {
	case FormatMP3:
		return "audio/mpeg"
	case FormatWAV:
		return "audio/wav"
	case FormatPCM:
		return "audio/l16"
	default:
		return "application/octet-stream"
	}
}

// FormatFromContentType maps a MIME type back to a Format. Unknown types
// default to MP3, the format of the primary tier.
func FormatFromContentType(ct string) Format {
	switch ct {
	case "audio/wav", "audio/x-wav":
		return FormatWAV
	case "audio/l16":
		return FormatPCM
	default:
		return FormatMP3
	}
}

// Options carries the provider-agnostic knobs for one utterance. Adapters
// translate these into their native request shape and ignore what they do
// not support.
type Options struct {
	VoiceID    string
	Language   string
	Speed      float64
	Stability  float64
	Similarity float64
	Emotions   []string
}

// Result is one fully synthesized utterance. Audio always comes from a
// single provider; Chunks records how many synthesis calls produced it.
type Result struct {
	Audio    []byte
	Provider string
	Format   Format
	Chunks   int
}

// Provider is one synthesis backend. Synthesize issues exactly one request
// for the given text segment and never retries internally; retry policy
// belongs to the orchestrator.
type Provider interface {
	Name() string
	Format() Format
	Synthesize(ctx context.Context, text string, opts Options) ([]byte, error)
}

var (
	// ErrEmptyText rejects requests whose text normalizes to nothing.
	ErrEmptyText = errors.New("tts: empty text")
	// ErrAllTiersExhausted signals that every network tier failed and the
	// caller should fall back to on-device synthesis.
	ErrAllTiersExhausted = errors.New("tts: all network tiers exhausted")
)

// ProviderError wraps a failed synthesis call. Status is the HTTP status for
// rejected requests and zero for transport-level failures (timeout,
// connection reset), which carry the cause in Err instead.
type ProviderError struct {
	Provider string
	Status   int
	Err      error
}

func (e *ProviderError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s: synthesis failed with status %d", e.Provider, e.Status)
	}
	return fmt.Sprintf("%s: synthesis failed: %v", e.Provider, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// Transient reports whether the failure is worth retrying within the same
// tier. Network failures, timeouts, rate limiting and server errors are
// transient; any other 4xx means the request itself was rejected and the
// whole tier is abandoned immediately.
func (e *ProviderError) Transient() bool {
	if e.Status == 0 {
		return true
	}
	switch {
	case e.Status == 408, e.Status == 429:
		return true
	case e.Status >= 500:
		return true
	default:
		return false
	}
}
