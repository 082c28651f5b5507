package tts

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

// scriptedProvider fails the chunks listed in failures (by text) the given
// number of times, then succeeds. It records every call in order.
type scriptedProvider struct {
	name     string
	format   Format
	failures map[string]int
	failWith error

	mu    sync.Mutex
	calls []string
}

func newScriptedProvider(name string) *scriptedProvider {
	return &scriptedProvider{
		name:     name,
		format:   FormatMP3,
		failures: map[string]int{},
		failWith: &ProviderError{Provider: name, Status: 500},
	}
}

func (p *scriptedProvider) Name() string   { return p.name }
func (p *scriptedProvider) Format() Format { return p.format }

func (p *scriptedProvider) Synthesize(_ context.Context, text string, _ Options) ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, text)
	if remaining := p.failures[text]; remaining != 0 {
		if remaining > 0 {
			p.failures[text] = remaining - 1
		}
		return nil, p.failWith
	}
	return []byte("<" + p.name + ":" + text + ">"), nil
}

func (p *scriptedProvider) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.calls)
}

func newTestOrchestrator(t *testing.T, providers []Provider, opts ...OrchestratorOption) (*Orchestrator, *[]time.Duration) {
	t.Helper()
	var delays []time.Duration
	o := NewOrchestrator(providers, testLogger(), opts...)
	o.sleep = func(_ context.Context, d time.Duration) error {
		delays = append(delays, d)
		return nil
	}
	return o, &delays
}

func TestSpeakEmptyTextRejected(t *testing.T) {
	o, _ := newTestOrchestrator(t, []Provider{newScriptedProvider("tier1")})
	for _, input := range []string{"", "   ", "***"} {
		if _, err := o.Speak(context.Background(), input, Options{}); !errors.Is(err, ErrEmptyText) {
			t.Fatalf("input %q: expected ErrEmptyText, got %v", input, err)
		}
	}
}

func TestSpeakSingleTierSuccess(t *testing.T) {
	tier1 := newScriptedProvider("tier1")
	tier2 := newScriptedProvider("tier2")
	o, _ := newTestOrchestrator(t, []Provider{tier1, tier2}, WithMaxChunkSize(40))

	text := "First sentence here. Second sentence follows. Third one closes."
	result, err := o.Speak(context.Background(), text, Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Provider != "tier1" {
		t.Fatalf("expected tier1, got %s", result.Provider)
	}
	if result.Chunks < 2 {
		t.Fatalf("expected multiple chunks, got %d", result.Chunks)
	}
	// Concatenation preserves chunk order.
	payload := string(result.Audio)
	if !strings.HasPrefix(payload, "<tier1:First sentence here.") {
		t.Fatalf("chunk order broken: %q", payload)
	}
	if tier2.callCount() != 0 {
		t.Fatalf("second tier should never be attempted, got %d calls", tier2.callCount())
	}
}

func TestSpeakRetriesWithExponentialBackoff(t *testing.T) {
	tier1 := newScriptedProvider("tier1")
	tier1.failures["Short text."] = 2 // fail twice, succeed on third attempt
	o, delays := newTestOrchestrator(t, []Provider{tier1})

	result, err := o.Speak(context.Background(), "Short text.", Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Provider != "tier1" {
		t.Fatalf("expected tier1 after retries, got %s", result.Provider)
	}
	want := []time.Duration{250 * time.Millisecond, 500 * time.Millisecond}
	if len(*delays) != len(want) {
		t.Fatalf("expected %d backoff sleeps, got %v", len(want), *delays)
	}
	for i, d := range want {
		if (*delays)[i] != d {
			t.Fatalf("backoff %d: expected %v, got %v", i, d, (*delays)[i])
		}
	}
}

func TestSpeakTierAbandonedAfterExhaustedChunk(t *testing.T) {
	// Three chunks; chunk 2 fails all four attempts in tier1. Tier1 must
	// issue zero calls for chunk 3 and tier2 restarts from chunk 1.
	tier1 := newScriptedProvider("tier1")
	tier2 := newScriptedProvider("tier2")
	o, delays := newTestOrchestrator(t, []Provider{tier1, tier2}, WithMaxChunkSize(30))

	text := "Alpha sentence first one. Beta sentence number two. Gamma sentence third."
	chunks := Split(Normalize(text), 30)
	if len(chunks) != 3 {
		t.Fatalf("test expects 3 chunks, got %v", chunks)
	}
	tier1.failures[chunks[1]] = -1 // always fail

	result, err := o.Speak(context.Background(), text, Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Provider != "tier2" {
		t.Fatalf("expected tier2, got %s", result.Provider)
	}

	// tier1: 1 call for chunk 1, 4 attempts for chunk 2, none for chunk 3.
	if got := tier1.callCount(); got != 5 {
		t.Fatalf("tier1 expected 5 calls, got %d (%v)", got, tier1.calls)
	}
	for _, call := range tier1.calls {
		if call == chunks[2] {
			t.Fatal("tier1 should not attempt chunks after abandonment")
		}
	}
	// tier2 starts over from chunk 1.
	if tier2.calls[0] != chunks[0] {
		t.Fatalf("tier2 should restart from chunk 0, started with %q", tier2.calls[0])
	}
	if got := tier2.callCount(); got != 3 {
		t.Fatalf("tier2 expected 3 calls, got %d", got)
	}
	// Full backoff ladder ran inside tier1: 250/500/1000ms.
	want := []time.Duration{250 * time.Millisecond, 500 * time.Millisecond, 1000 * time.Millisecond}
	if len(*delays) != len(want) {
		t.Fatalf("expected %d sleeps, got %v", len(want), *delays)
	}
}

func TestSpeakRejectedChunkSkipsRetries(t *testing.T) {
	tier1 := newScriptedProvider("tier1")
	tier1.failures["Short text."] = -1
	tier1.failWith = &ProviderError{Provider: "tier1", Status: 400}
	tier2 := newScriptedProvider("tier2")
	o, delays := newTestOrchestrator(t, []Provider{tier1, tier2})

	result, err := o.Speak(context.Background(), "Short text.", Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Provider != "tier2" {
		t.Fatalf("expected escalation to tier2, got %s", result.Provider)
	}
	if got := tier1.callCount(); got != 1 {
		t.Fatalf("4xx must not be retried, tier1 got %d calls", got)
	}
	if len(*delays) != 0 {
		t.Fatalf("4xx must not back off, slept %v", *delays)
	}
}

func TestSpeakAllTiersExhausted(t *testing.T) {
	tier1 := newScriptedProvider("tier1")
	tier1.failures["Short text."] = -1
	tier2 := newScriptedProvider("tier2")
	tier2.failures["Short text."] = -1
	o, _ := newTestOrchestrator(t, []Provider{tier1, tier2})

	_, err := o.Speak(context.Background(), "Short text.", Options{})
	if !errors.Is(err, ErrAllTiersExhausted) {
		t.Fatalf("expected ErrAllTiersExhausted, got %v", err)
	}
	if tier1.callCount() != 4 || tier2.callCount() != 4 {
		t.Fatalf("expected 4 attempts per tier, got %d and %d", tier1.callCount(), tier2.callCount())
	}
}

func TestSpeakContextCancellationStopsPipeline(t *testing.T) {
	tier1 := newScriptedProvider("tier1")
	tier1.failures["Short text."] = -1
	tier2 := newScriptedProvider("tier2")
	o, _ := newTestOrchestrator(t, []Provider{tier1, tier2})

	ctx, cancel := context.WithCancel(context.Background())
	o.sleep = func(ctx context.Context, _ time.Duration) error {
		cancel()
		return ctx.Err()
	}

	_, err := o.Speak(ctx, "Short text.", Options{})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if tier2.callCount() != 0 {
		t.Fatal("cancelled request must not reach the next tier")
	}
}

func TestSpeakDetectsLanguageWhenUnset(t *testing.T) {
	tier1 := newScriptedProvider("tier1")
	var seen Options
	o, _ := newTestOrchestrator(t, []Provider{&optionCapture{inner: tier1, seen: &seen}})

	if _, err := o.Speak(context.Background(), "kya aap batao library kahan hai", Options{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if seen.Language != LanguageHindi {
		t.Fatalf("expected detected hindi, got %q", seen.Language)
	}
}

func TestSpeakAppliesConfiguredDefaults(t *testing.T) {
	tier1 := newScriptedProvider("tier1")
	var seen Options
	o, _ := newTestOrchestrator(t, []Provider{&optionCapture{inner: tier1, seen: &seen}},
		WithDefaultVoice("campus"), WithDefaultLanguage(LanguageHindi))

	if _, err := o.Speak(context.Background(), "Hello there.", Options{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if seen.VoiceID != "campus" {
		t.Fatalf("expected configured default voice, got %q", seen.VoiceID)
	}
	// A pinned language suppresses detection entirely.
	if seen.Language != LanguageHindi {
		t.Fatalf("expected configured default language, got %q", seen.Language)
	}

	if _, err := o.Speak(context.Background(), "Hello there.", Options{VoiceID: "priya", Language: LanguageEnglish}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if seen.VoiceID != "priya" || seen.Language != LanguageEnglish {
		t.Fatalf("explicit request values must win, got %+v", seen)
	}
}

type optionCapture struct {
	inner Provider
	seen  *Options
}

func (c *optionCapture) Name() string   { return c.inner.Name() }
func (c *optionCapture) Format() Format { return c.inner.Format() }
func (c *optionCapture) Synthesize(ctx context.Context, text string, opts Options) ([]byte, error) {
	*c.seen = opts
	return c.inner.Synthesize(ctx, text, opts)
}
