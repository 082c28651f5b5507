package playback

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/vaanilabs/vaani-core/internal/tts"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

type fakeSynth struct {
	mu     sync.Mutex
	result tts.Result
	err    error
	calls  int
}

func (f *fakeSynth) Speak(context.Context, string, tts.Options) (tts.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.result, f.err
}

type fakeSink struct {
	mu       sync.Mutex
	played   [][]byte
	blockFor time.Duration
	err      error
}

func (f *fakeSink) Play(ctx context.Context, audio []byte, format tts.Format) error {
	f.mu.Lock()
	f.played = append(f.played, audio)
	d := f.blockFor
	err := f.err
	f.mu.Unlock()
	if d > 0 {
		select {
		case <-time.After(d):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}

type fakeFallback struct {
	mu    sync.Mutex
	calls int
}

func (f *fakeFallback) Name() string       { return "local" }
func (f *fakeFallback) Format() tts.Format { return tts.FormatWAV }
func (f *fakeFallback) Synthesize(context.Context, string, tts.Options) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return []byte("local-audio"), nil
}

func TestSpeakFiresLifecycleCallbacks(t *testing.T) {
	synth := &fakeSynth{result: tts.Result{Audio: []byte("a"), Provider: "tier1", Format: tts.FormatMP3}}
	sink := &fakeSink{}
	c := NewController(synth, nil, sink, testLogger())

	var started, ended int
	done := make(chan struct{})
	c.Speak(context.Background(), "hello", tts.Options{}, Callbacks{
		OnStart: func() { started++ },
		OnEnd:   func() { ended++; close(done) },
		OnError: func(err error) { t.Errorf("unexpected error callback: %v", err) },
	})

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("session did not complete")
	}
	c.Wait()
	if started != 1 || ended != 1 {
		t.Fatalf("callbacks fired start=%d end=%d, want exactly once each", started, ended)
	}
}

func TestSecondSpeakStopsFirstWithoutOnEnd(t *testing.T) {
	synth := &fakeSynth{result: tts.Result{Audio: []byte("a"), Provider: "tier1", Format: tts.FormatMP3}}
	sink := &fakeSink{blockFor: 5 * time.Second}
	c := NewController(synth, nil, sink, testLogger())

	firstStarted := make(chan struct{})
	var firstEnded bool
	first := c.Speak(context.Background(), "first", tts.Options{}, Callbacks{
		OnStart: func() { close(firstStarted) },
		OnEnd:   func() { firstEnded = true },
	})
	<-firstStarted

	secondDone := make(chan struct{})
	sink.mu.Lock()
	sink.blockFor = 0
	sink.mu.Unlock()
	c.Speak(context.Background(), "second", tts.Options{}, Callbacks{
		OnEnd: func() { close(secondDone) },
	})

	select {
	case <-secondDone:
	case <-time.After(2 * time.Second):
		t.Fatal("second session did not complete")
	}
	c.Wait()

	if firstEnded {
		t.Fatal("superseded session must not fire OnEnd")
	}
	if first.State() != StateIdle {
		t.Fatalf("superseded session should be idle, got %s", first.State())
	}
}

func TestStopDoesNotFireOnEnd(t *testing.T) {
	synth := &fakeSynth{result: tts.Result{Audio: []byte("a"), Provider: "tier1", Format: tts.FormatMP3}}
	sink := &fakeSink{blockFor: 5 * time.Second}
	c := NewController(synth, nil, sink, testLogger())

	started := make(chan struct{})
	var ended bool
	c.Speak(context.Background(), "hello", tts.Options{}, Callbacks{
		OnStart: func() { close(started) },
		OnEnd:   func() { ended = true },
	})
	<-started
	c.Stop()
	c.Wait()

	if ended {
		t.Fatal("Stop must not fire OnEnd")
	}
}

func TestFallbackInvokedWhenTiersExhausted(t *testing.T) {
	synth := &fakeSynth{err: tts.ErrAllTiersExhausted}
	fallback := &fakeFallback{}
	sink := &fakeSink{}
	c := NewController(synth, fallback, sink, testLogger())

	done := make(chan struct{})
	c.Speak(context.Background(), "hello there", tts.Options{}, Callbacks{
		OnEnd: func() { close(done) },
		OnError: func(err error) {
			t.Errorf("fallback should succeed, got %v", err)
		},
	})

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("fallback session did not complete")
	}
	c.Wait()

	if fallback.calls != 1 {
		t.Fatalf("expected 1 fallback call, got %d", fallback.calls)
	}
	sink.mu.Lock()
	defer sink.mu.Unlock()
	if len(sink.played) != 1 || string(sink.played[0]) != "local-audio" {
		t.Fatalf("expected local audio played, got %v", sink.played)
	}
}

// completionSink counts plays that run to the end of their audio instead of
// being cancelled.
type completionSink struct {
	duration  time.Duration
	completed atomic.Int32
}

func (s *completionSink) Play(ctx context.Context, _ []byte, _ tts.Format) error {
	select {
	case <-time.After(s.duration):
		s.completed.Add(1)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func TestSupersededSessionsNeverPlayToCompletion(t *testing.T) {
	synth := &fakeSynth{result: tts.Result{Audio: []byte("a"), Provider: "tier1", Format: tts.FormatMP3}}
	sink := &completionSink{duration: 200 * time.Millisecond}
	c := NewController(synth, nil, sink, testLogger())

	// Hammer the supersede path: every Speak stops the previous session at
	// an arbitrary point of its synthesis-to-playback transition. A stop
	// that slips through must not leave the stale audio playing.
	for i := 0; i < 25000; i++ {
		c.Speak(context.Background(), "hello", tts.Options{}, Callbacks{})
	}
	c.Stop()
	c.Wait()

	if n := sink.completed.Load(); n != 0 {
		t.Fatalf("%d stopped sessions played their audio to completion", n)
	}
}

func TestSynthesisErrorFiresOnError(t *testing.T) {
	synth := &fakeSynth{err: errors.New("boom")}
	c := NewController(synth, nil, &fakeSink{}, testLogger())

	errs := make(chan error, 1)
	session := c.Speak(context.Background(), "hello", tts.Options{}, Callbacks{
		OnEnd:   func() { t.Error("OnEnd must not fire on failure") },
		OnError: func(err error) { errs <- err },
	})

	select {
	case err := <-errs:
		if err.Error() != "boom" {
			t.Fatalf("unexpected error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("OnError never fired")
	}
	c.Wait()
	if session.State() != StateError {
		t.Fatalf("expected error state, got %s", session.State())
	}
}

func TestPlaybackErrorFiresOnError(t *testing.T) {
	synth := &fakeSynth{result: tts.Result{Audio: []byte("a"), Provider: "tier1", Format: tts.FormatMP3}}
	sink := &fakeSink{err: errors.New("device busy")}
	c := NewController(synth, nil, sink, testLogger())

	errs := make(chan error, 1)
	c.Speak(context.Background(), "hello", tts.Options{}, Callbacks{
		OnError: func(err error) { errs <- err },
	})

	select {
	case err := <-errs:
		if err.Error() != "device busy" {
			t.Fatalf("unexpected error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("OnError never fired")
	}
	c.Wait()
}
