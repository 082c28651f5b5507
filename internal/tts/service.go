package tts

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/vaanilabs/vaani-core/internal/bus"
	"github.com/vaanilabs/vaani-core/internal/protocol"
)

// busFrameSize bounds a single NATS payload; utterances larger than this are
// streamed as numbered frames.
const busFrameSize = 64 * 1024

// Service exposes the orchestrator over the message bus so edge devices can
// request speech without the HTTP API. One subscription, one goroutine per
// utterance.
type Service struct {
	bus          *bus.Client
	orchestrator *Orchestrator
	sub          *nats.Subscription
	ctx          context.Context
	cancel       context.CancelFunc
	wg           sync.WaitGroup
	logger       *slog.Logger
	timeout      time.Duration
}

func NewService(parent context.Context, busClient *bus.Client, orchestrator *Orchestrator, timeout time.Duration, log *slog.Logger) *Service {
	ctx, cancel := context.WithCancel(parent)
	if timeout <= 0 {
		timeout = 45 * time.Second
	}
	return &Service{
		bus:          busClient,
		orchestrator: orchestrator,
		ctx:          ctx,
		cancel:       cancel,
		logger:       log.With(slog.String("component", "tts-service")),
		timeout:      timeout,
	}
}

func (s *Service) Start() error {
	sub, err := s.bus.Conn().Subscribe(protocol.SubjectSpeakRequest, s.handleRequest)
	if err != nil {
		return err
	}
	s.sub = sub
	return nil
}

func (s *Service) Close() {
	s.cancel()
	if s.sub != nil {
		_ = s.sub.Drain()
	}
	s.wg.Wait()
}

func (s *Service) Healthy() bool { return s.sub != nil }

func (s *Service) handleRequest(msg *nats.Msg) {
	var req protocol.SpeakRequest
	if err := json.Unmarshal(msg.Data, &req); err != nil {
		s.logger.Warn("failed to decode speak request", slogError(err))
		return
	}
	if req.UtteranceID == "" {
		req.UtteranceID = uuid.NewString()
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ctx, cancel := context.WithTimeout(s.ctx, s.timeout)
		defer cancel()

		result, err := s.orchestrator.Speak(ctx, req.Text, Options{
			VoiceID:    req.VoiceID,
			Language:   req.Language,
			Speed:      req.Speed,
			Stability:  req.Stability,
			Similarity: req.Similarity,
			Emotions:   req.Emotions,
		})
		if err != nil {
			s.publishStatus(req, protocol.SpeakStatus{
				UtteranceID:      req.UtteranceID,
				SessionID:        req.SessionID,
				Target:           req.Target,
				FallbackRequired: errors.Is(err, ErrAllTiersExhausted),
				Error:            err.Error(),
				Timestamp:        time.Now().UTC(),
			})
			return
		}

		s.publishAudio(req, result)
		s.publishStatus(req, protocol.SpeakStatus{
			UtteranceID: req.UtteranceID,
			SessionID:   req.SessionID,
			Target:      req.Target,
			Completed:   true,
			Provider:    result.Provider,
			Timestamp:   time.Now().UTC(),
		})
	}()
}

func (s *Service) publishAudio(req protocol.SpeakRequest, result Result) {
	audio := result.Audio
	sequence := 0
	for offset := 0; offset < len(audio); offset += busFrameSize {
		end := offset + busFrameSize
		if end > len(audio) {
			end = len(audio)
		}
		frame := protocol.AudioChunk{
			UtteranceID: req.UtteranceID,
			SessionID:   req.SessionID,
			Target:      req.Target,
			Provider:    result.Provider,
			Format:      string(result.Format),
			Sequence:    sequence,
			Audio:       audio[offset:end],
			Final:       end == len(audio),
		}
		data, err := json.Marshal(frame)
		if err != nil {
			s.logger.Warn("failed to marshal audio frame", slogError(err))
			return
		}
		if err := s.bus.Conn().Publish(protocol.SubjectSpeakAudio, data); err != nil {
			s.logger.Warn("failed to publish audio frame", slogError(err))
			return
		}
		sequence++
	}
}

func (s *Service) publishStatus(req protocol.SpeakRequest, status protocol.SpeakStatus) {
	data, err := json.Marshal(status)
	if err != nil {
		s.logger.Warn("failed to marshal speak status", slogError(err))
		return
	}
	if err := s.bus.Conn().Publish(protocol.SubjectSpeakDone, data); err != nil {
		s.logger.Warn("failed to publish speak status", slogError(err))
	}
}
