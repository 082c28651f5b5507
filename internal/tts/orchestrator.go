package tts

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	defaultMaxAttempts = 4
	defaultRetryBase   = 250 * time.Millisecond
)

// Reporter receives per-tier outcomes. The health registry implements it;
// a nil reporter disables reporting.
type Reporter interface {
	ReportSuccess(provider string, latency time.Duration)
	ReportFailure(provider string, err error)
}

// Orchestrator drives one utterance through the tiered pipeline: normalize,
// chunk, then try each network provider in priority order. Within a tier
// every chunk is synthesized sequentially; transient chunk failures are
// retried with exponential backoff, and a chunk that exhausts its attempts
// abandons the whole tier. A tier's buffers are only ever returned complete,
// never mixed with another tier's output.
type Orchestrator struct {
	providers    []Provider
	maxChunkSize int
	maxAttempts  int
	retryBase    time.Duration
	defaultVoice string
	defaultLang  string
	logger       *slog.Logger
	reporter     Reporter

	// sleep is swapped out in tests so backoff does not slow the suite.
	sleep func(ctx context.Context, d time.Duration) error

	synthAttempts metric.Int64Counter
	tierFallbacks metric.Int64Counter
	speakLatency  metric.Float64Histogram
}

type OrchestratorOption func(*Orchestrator)

func WithMaxChunkSize(n int) OrchestratorOption {
	return func(o *Orchestrator) {
		if n > 0 {
			o.maxChunkSize = n
		}
	}
}

func WithMaxAttempts(n int) OrchestratorOption {
	return func(o *Orchestrator) {
		if n > 0 {
			o.maxAttempts = n
		}
	}
}

func WithRetryBase(d time.Duration) OrchestratorOption {
	return func(o *Orchestrator) {
		if d >= 0 {
			o.retryBase = d
		}
	}
}

func WithReporter(r Reporter) OrchestratorOption {
	return func(o *Orchestrator) { o.reporter = r }
}

// WithDefaultVoice sets the logical voice used when a request names none.
func WithDefaultVoice(voice string) OrchestratorOption {
	return func(o *Orchestrator) { o.defaultVoice = voice }
}

// WithDefaultLanguage pins the language for requests without a hint. Empty
// keeps per-utterance detection.
func WithDefaultLanguage(lang string) OrchestratorOption {
	return func(o *Orchestrator) { o.defaultLang = lang }
}

func NewOrchestrator(providers []Provider, logger *slog.Logger, opts ...OrchestratorOption) *Orchestrator {
	o := &Orchestrator{
		providers:    providers,
		maxChunkSize: DefaultMaxChunkSize,
		maxAttempts:  defaultMaxAttempts,
		retryBase:    defaultRetryBase,
		logger:       logger.With(slog.String("component", "tts-orchestrator")),
		sleep: func(ctx context.Context, d time.Duration) error {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(d):
				return nil
			}
		},
	}
	for _, opt := range opts {
		opt(o)
	}
	o.initMetrics()
	return o
}

func (o *Orchestrator) initMetrics() {
	meter := otel.Meter("github.com/vaanilabs/vaani-core/tts")
	var err error
	if o.synthAttempts, err = meter.Int64Counter("vaani_synth_attempts_total",
		metric.WithDescription("Synthesis attempts per provider and outcome")); err != nil {
		o.logger.Warn("failed to create attempts counter", slogError(err))
	}
	if o.tierFallbacks, err = meter.Int64Counter("vaani_tier_fallbacks_total",
		metric.WithDescription("Tier abandonments per provider")); err != nil {
		o.logger.Warn("failed to create fallback counter", slogError(err))
	}
	if o.speakLatency, err = meter.Float64Histogram("vaani_speak_duration_seconds",
		metric.WithDescription("End-to-end utterance synthesis latency")); err != nil {
		o.logger.Warn("failed to create latency histogram", slogError(err))
	}
}

// Speak synthesizes one utterance. On success the result holds a single
// concatenated buffer tagged with the provider that produced it. Returns
// ErrEmptyText for unspeakable input and ErrAllTiersExhausted when every
// network tier failed.
func (o *Orchestrator) Speak(ctx context.Context, text string, opts Options) (Result, error) {
	started := time.Now()

	normalized := Normalize(text)
	if normalized == "" {
		return Result{}, ErrEmptyText
	}
	if opts.VoiceID == "" {
		opts.VoiceID = o.defaultVoice
	}
	if opts.Language == "" {
		opts.Language = o.defaultLang
	}
	if opts.Language == "" {
		opts.Language = DetectLanguage(normalized).Primary
	}

	chunks := Split(normalized, o.maxChunkSize)
	if len(chunks) == 0 {
		return Result{}, ErrEmptyText
	}

	for _, provider := range o.providers {
		buffers, err := o.runTier(ctx, provider, chunks, opts)
		if err != nil {
			if ctx.Err() != nil {
				return Result{}, ctx.Err()
			}
			o.logger.Warn("tier abandoned",
				slog.String("provider", provider.Name()),
				slog.Int("chunks", len(chunks)),
				slogError(err))
			if o.tierFallbacks != nil {
				o.tierFallbacks.Add(ctx, 1, metric.WithAttributes(
					attribute.String("provider", provider.Name())))
			}
			if o.reporter != nil {
				o.reporter.ReportFailure(provider.Name(), err)
			}
			continue
		}

		audio, err := concatAudio(buffers, provider.Format())
		if err != nil {
			o.logger.Warn("failed to join tier audio",
				slog.String("provider", provider.Name()), slogError(err))
			if o.reporter != nil {
				o.reporter.ReportFailure(provider.Name(), err)
			}
			continue
		}

		elapsed := time.Since(started)
		if o.speakLatency != nil {
			o.speakLatency.Record(ctx, elapsed.Seconds(), metric.WithAttributes(
				attribute.String("provider", provider.Name())))
		}
		if o.reporter != nil {
			o.reporter.ReportSuccess(provider.Name(), elapsed)
		}
		o.logger.Info("utterance synthesized",
			slog.String("provider", provider.Name()),
			slog.Int("chunks", len(chunks)),
			slog.Int("bytes", len(audio)),
			slog.Duration("elapsed", elapsed))

		return Result{
			Audio:    audio,
			Provider: provider.Name(),
			Format:   provider.Format(),
			Chunks:   len(chunks),
		}, nil
	}

	return Result{}, ErrAllTiersExhausted
}

// runTier synthesizes every chunk with one provider, in order. Any chunk
// that cannot be produced fails the tier; buffers accumulated so far are
// discarded by the caller since formats differ between tiers.
func (o *Orchestrator) runTier(ctx context.Context, provider Provider, chunks []string, opts Options) ([][]byte, error) {
	buffers := make([][]byte, 0, len(chunks))
	for i, chunk := range chunks {
		audio, err := o.synthesizeChunk(ctx, provider, i, chunk, opts)
		if err != nil {
			return nil, err
		}
		buffers = append(buffers, audio)
	}
	return buffers, nil
}

// synthesizeChunk issues up to maxAttempts calls for one chunk with
// exponential backoff between attempts. Non-transient provider errors stop
// retrying immediately.
func (o *Orchestrator) synthesizeChunk(ctx context.Context, provider Provider, index int, chunk string, opts Options) ([]byte, error) {
	delay := o.retryBase
	var lastErr error

	for attempt := 1; attempt <= o.maxAttempts; attempt++ {
		audio, err := provider.Synthesize(ctx, chunk, opts)
		o.recordAttempt(ctx, provider.Name(), err)
		if err == nil {
			return audio, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		var provErr *ProviderError
		if errors.As(err, &provErr) && !provErr.Transient() {
			o.logger.Warn("chunk rejected, not retrying",
				slog.String("provider", provider.Name()),
				slog.Int("chunk", index),
				slog.Int("status", provErr.Status))
			return nil, err
		}

		if attempt == o.maxAttempts {
			break
		}
		o.logger.Debug("retrying chunk",
			slog.String("provider", provider.Name()),
			slog.Int("chunk", index),
			slog.Int("attempt", attempt),
			slog.Duration("backoff", delay))
		if err := o.sleep(ctx, delay); err != nil {
			return nil, err
		}
		delay *= 2
	}
	return nil, lastErr
}

func (o *Orchestrator) recordAttempt(ctx context.Context, provider string, err error) {
	if o.synthAttempts == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	o.synthAttempts.Add(ctx, 1, metric.WithAttributes(
		attribute.String("provider", provider),
		attribute.String("outcome", outcome)))
}

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}
