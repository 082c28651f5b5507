package tts

import (
	"context"
	"time"
)

// MockProvider returns a fixed payload after a short delay. Used for the
// mock deployment mode and in tests that only care about orchestration.
type MockProvider struct {
	ProviderName string
	AudioFormat  Format
	Payload      []byte
	Delay        time.Duration
}

func NewMockProvider(name string) *MockProvider {
	return &MockProvider{
		ProviderName: name,
		AudioFormat:  FormatMP3,
		Payload:      []byte(name + "-audio"),
		Delay:        10 * time.Millisecond,
	}
}

func (m *MockProvider) Name() string   { return m.ProviderName }
func (m *MockProvider) Format() Format { return m.AudioFormat }

func (m *MockProvider) Synthesize(ctx context.Context, text string, opts Options) ([]byte, error) {
	if m.Delay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(m.Delay):
		}
	}
	out := make([]byte, len(m.Payload))
	copy(out, m.Payload)
	return out, nil
}
