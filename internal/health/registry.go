package health

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/vaanilabs/vaani-core/internal/bus"
	"github.com/vaanilabs/vaani-core/internal/protocol"
)

// unhealthyAfter is the consecutive-failure count at which a provider is
// reported unhealthy. Reporting only; the orchestrator still walks the full
// tier order every request.
const unhealthyAfter = 3

type providerState struct {
	failures    int
	lastSuccess time.Time
	lastFailure time.Time
	lastLatency time.Duration
}

// Registry tracks per-provider synthesis outcomes, exports them as otel
// gauges and broadcasts snapshots on the bus for dashboards and edge
// devices.
type Registry struct {
	log       *slog.Logger
	bus       *bus.Client
	mu        sync.RWMutex
	providers map[string]*providerState
	ticker    *time.Ticker
	cancel    context.CancelFunc
	meter     metric.Meter
	gauge     metric.Int64ObservableGauge
	reg       metric.Registration
}

func NewRegistry(ctx context.Context, providerNames []string, busClient *bus.Client, interval time.Duration, log *slog.Logger) *Registry {
	ctx, cancel := context.WithCancel(ctx)
	r := &Registry{
		log:       log.With(slog.String("component", "provider-health")),
		bus:       busClient,
		providers: make(map[string]*providerState, len(providerNames)),
		meter:     otel.Meter("github.com/vaanilabs/vaani-core/health"),
		cancel:    cancel,
	}
	for _, name := range providerNames {
		r.providers[name] = &providerState{}
	}

	if err := r.initMetrics(); err != nil {
		r.log.Warn("failed to initialize health metrics", slog.String("error", err.Error()))
	}

	if interval > 0 {
		r.ticker = time.NewTicker(interval)
		go r.broadcastLoop(ctx)
	}
	return r
}

func (r *Registry) Close() {
	if r.cancel != nil {
		r.cancel()
	}
	if r.ticker != nil {
		r.ticker.Stop()
	}
	if r.reg != nil {
		_ = r.reg.Unregister()
	}
}

func (r *Registry) initMetrics() error {
	gauge, err := r.meter.Int64ObservableGauge("vaani_provider_healthy",
		metric.WithDescription("1 when the provider's recent synthesis calls succeed"))
	if err != nil {
		return err
	}
	r.gauge = gauge

	reg, err := r.meter.RegisterCallback(func(_ context.Context, obs metric.Observer) error {
		r.mu.RLock()
		defer r.mu.RUnlock()
		for name, state := range r.providers {
			healthy := int64(1)
			if state.failures >= unhealthyAfter {
				healthy = 0
			}
			obs.ObserveInt64(r.gauge, healthy, metric.WithAttributes(
				attribute.String("provider", name)))
		}
		return nil
	}, gauge)
	if err != nil {
		return err
	}
	r.reg = reg
	return nil
}

// ReportSuccess implements tts.Reporter.
func (r *Registry) ReportSuccess(provider string, latency time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	state := r.state(provider)
	state.failures = 0
	state.lastSuccess = time.Now().UTC()
	state.lastLatency = latency
}

// ReportFailure implements tts.Reporter.
func (r *Registry) ReportFailure(provider string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	state := r.state(provider)
	state.failures++
	state.lastFailure = time.Now().UTC()
	if state.failures == unhealthyAfter {
		r.log.Warn("provider marked unhealthy",
			slog.String("provider", provider),
			slog.String("error", err.Error()))
	}
}

// state must be called with mu held.
func (r *Registry) state(provider string) *providerState {
	s, ok := r.providers[provider]
	if !ok {
		s = &providerState{}
		r.providers[provider] = s
	}
	return s
}

// Snapshot returns the current view of every tracked provider.
func (r *Registry) Snapshot() []protocol.ProviderStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()
	now := time.Now().UTC()
	out := make([]protocol.ProviderStatus, 0, len(r.providers))
	for name, state := range r.providers {
		out = append(out, protocol.ProviderStatus{
			Provider:    name,
			Healthy:     state.failures < unhealthyAfter,
			Failures:    state.failures,
			LastSuccess: state.lastSuccess,
			LastFailure: state.lastFailure,
			LastLatency: state.lastLatency.Milliseconds(),
			ObservedAt:  now,
		})
	}
	return out
}

func (r *Registry) broadcastLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-r.ticker.C:
			r.broadcast()
		}
	}
}

func (r *Registry) broadcast() {
	if r.bus == nil || !r.bus.Healthy() {
		return
	}
	for _, status := range r.Snapshot() {
		data, err := json.Marshal(status)
		if err != nil {
			r.log.Warn("failed to marshal provider status", slog.String("error", err.Error()))
			continue
		}
		if err := r.bus.Conn().Publish(protocol.SubjectProviderStatus, data); err != nil {
			r.log.Warn("failed to publish provider status", slog.String("error", err.Error()))
		}
	}
}
