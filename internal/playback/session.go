package playback

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/vaanilabs/vaani-core/internal/tts"
)

// State is the lifecycle position of one playback session.
type State int

const (
	StateIdle State = iota
	StateLoading
	StateSpeaking
	StateError
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateLoading:
		return "loading"
	case StateSpeaking:
		return "speaking"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// Sink plays one audio payload to completion. Play blocks until the audio
// finishes or ctx is cancelled; implementations must release the device on
// every return path.
type Sink interface {
	Play(ctx context.Context, audio []byte, format tts.Format) error
}

// Synthesizer is the slice of the orchestrator the controller needs.
type Synthesizer interface {
	Speak(ctx context.Context, text string, opts tts.Options) (tts.Result, error)
}

// Callbacks fire on session transitions, each at most once per session.
// Nil members are skipped.
type Callbacks struct {
	OnStart func()
	OnEnd   func()
	OnError func(error)
}

// Session tracks one utterance from request to end of playback. Cancelling
// a session stops its audio but deliberately does not abort an in-flight
// synthesis call; a late result for a cancelled session is discarded.
type Session struct {
	ID string

	mu         sync.Mutex
	state      State
	cancelled  bool
	playCancel context.CancelFunc

	startOnce sync.Once
	endOnce   sync.Once
	errOnce   sync.Once
	callbacks Callbacks
}

// State reports the session's current lifecycle position.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) setState(state State) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

// stop halts playback without firing OnEnd.
func (s *Session) stop() {
	s.mu.Lock()
	s.cancelled = true
	s.state = StateIdle
	cancel := s.playCancel
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (s *Session) isCancelled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancelled
}

func (s *Session) fireStart() {
	s.startOnce.Do(func() {
		if s.callbacks.OnStart != nil {
			s.callbacks.OnStart()
		}
	})
}

func (s *Session) fireEnd() {
	s.endOnce.Do(func() {
		if s.callbacks.OnEnd != nil {
			s.callbacks.OnEnd()
		}
	})
}

func (s *Session) fireError(err error) {
	s.errOnce.Do(func() {
		if s.callbacks.OnError != nil {
			s.callbacks.OnError(err)
		}
	})
}

// Controller owns the single-active-session invariant: starting a new
// utterance always stops the previous one first, so audio never overlaps.
type Controller struct {
	synth    Synthesizer
	fallback tts.Provider
	sink     Sink
	logger   *slog.Logger

	mu      sync.Mutex
	current *Session
	wg      sync.WaitGroup
}

func NewController(synth Synthesizer, fallback tts.Provider, sink Sink, logger *slog.Logger) *Controller {
	return &Controller{
		synth:    synth,
		fallback: fallback,
		sink:     sink,
		logger:   logger.With(slog.String("component", "playback")),
	}
}

// Speak starts a new session for text, stopping any session still playing.
// The superseded session's OnEnd never fires. Synthesis and playback run in
// the background; callers observe progress through cb.
func (c *Controller) Speak(ctx context.Context, text string, opts tts.Options, cb Callbacks) *Session {
	session := &Session{
		ID:        uuid.NewString(),
		state:     StateLoading,
		callbacks: cb,
	}

	c.mu.Lock()
	if prev := c.current; prev != nil {
		prev.stop()
	}
	c.current = session
	c.mu.Unlock()

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.run(ctx, session, text, opts)
	}()
	return session
}

// Stop cancels the active session, if any. Its OnEnd does not fire.
func (c *Controller) Stop() {
	c.mu.Lock()
	session := c.current
	c.current = nil
	c.mu.Unlock()
	if session != nil {
		session.stop()
	}
}

// Wait blocks until all background sessions have finished. Test helper and
// shutdown hook.
func (c *Controller) Wait() {
	c.wg.Wait()
}

func (c *Controller) run(ctx context.Context, session *Session, text string, opts tts.Options) {
	result, err := c.synth.Speak(ctx, text, opts)
	if errors.Is(err, tts.ErrAllTiersExhausted) && c.fallback != nil {
		c.logger.Info("network tiers exhausted, using on-device engine",
			slog.String("session", session.ID))
		result, err = c.speakFallback(ctx, text, opts)
	}
	if err != nil {
		if !session.isCancelled() {
			session.setState(StateError)
			session.fireError(err)
		}
		c.clear(session)
		return
	}

	// The session may have been superseded while synthesis was in flight;
	// its audio is discarded on arrival. The cancelled check and the
	// playCancel install must be one critical section: a stop() landing
	// between them would find a nil playCancel and the stale audio would
	// play to completion alongside the next session.
	playCtx, cancel := context.WithCancel(ctx)
	session.mu.Lock()
	if session.cancelled {
		session.mu.Unlock()
		cancel()
		c.clear(session)
		return
	}
	session.playCancel = cancel
	session.state = StateSpeaking
	session.mu.Unlock()
	defer cancel()

	session.fireStart()
	playErr := c.sink.Play(playCtx, result.Audio, result.Format)

	if session.isCancelled() {
		c.clear(session)
		return
	}
	if playErr != nil {
		session.setState(StateError)
		session.fireError(playErr)
		c.clear(session)
		return
	}

	session.setState(StateIdle)
	session.fireEnd()
	c.clear(session)
}

func (c *Controller) speakFallback(ctx context.Context, text string, opts tts.Options) (tts.Result, error) {
	normalized := tts.Normalize(text)
	if normalized == "" {
		return tts.Result{}, tts.ErrEmptyText
	}
	if opts.Language == "" {
		opts.Language = tts.DetectLanguage(normalized).Primary
	}
	audio, err := c.fallback.Synthesize(ctx, normalized, opts)
	if err != nil {
		return tts.Result{}, err
	}
	return tts.Result{
		Audio:    audio,
		Provider: c.fallback.Name(),
		Format:   c.fallback.Format(),
		Chunks:   1,
	}, nil
}

func (c *Controller) clear(session *Session) {
	c.mu.Lock()
	if c.current == session {
		c.current = nil
	}
	c.mu.Unlock()
}
