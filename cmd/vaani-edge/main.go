package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/vaanilabs/vaani-core/internal/config"
	"github.com/vaanilabs/vaani-core/internal/playback"
	"github.com/vaanilabs/vaani-core/internal/tts"
)

// vaani-edge is the device-side speaker: it asks a remote vaanid for audio,
// pipes the payload into a local player, and degrades to an on-device engine
// when the daemon reports that every network tier is down.
func main() {
	var (
		server       string
		token        string
		text         string
		voice        string
		language     string
		player       string
		localCommand string
		timeout      time.Duration
	)

	flag.StringVar(&server, "server", "http://localhost:8080", "vaanid base URL")
	flag.StringVar(&token, "token", "", "Bearer token for the speak endpoint")
	flag.StringVar(&text, "text", "", "Text to speak (reads stdin when empty)")
	flag.StringVar(&voice, "voice", "", "Logical voice name")
	flag.StringVar(&language, "language", "", "Language hint (en or hi)")
	flag.StringVar(&player, "player", "mpv --really-quiet -", "Player command fed audio on stdin")
	flag.StringVar(&localCommand, "local-command", "", "On-device synthesis command for offline fallback")
	flag.DurationVar(&timeout, "timeout", 45*time.Second, "Per-utterance timeout")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	if text == "" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			logger.Error("failed to read stdin", slog.String("error", err.Error()))
			os.Exit(1)
		}
		text = strings.TrimSpace(string(data))
	}
	if text == "" {
		fmt.Fprintln(os.Stderr, "nothing to speak: pass -text or pipe text on stdin")
		os.Exit(2)
	}

	sink, err := playback.NewExecSink(player)
	if err != nil {
		logger.Error("invalid player command", slog.String("error", err.Error()))
		os.Exit(1)
	}

	var fallback tts.Provider
	if localCommand != "" {
		fallback, err = tts.NewLocalProvider(config.LocalConfig{
			Enabled:    true,
			Command:    localCommand,
			SampleRate: 22050,
			Channels:   1,
			Speed:      1.0,
		})
		if err != nil {
			logger.Error("invalid local synth command", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}

	synth := playback.NewHTTPSynthesizer(server, token, timeout)
	controller := playback.NewController(synth, fallback, sink, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	done := make(chan error, 1)
	controller.Speak(ctx, text, tts.Options{VoiceID: voice, Language: language}, playback.Callbacks{
		OnStart: func() { logger.Info("playback started") },
		OnEnd:   func() { done <- nil },
		OnError: func(err error) { done <- err },
	})

	select {
	case err := <-done:
		controller.Wait()
		if err != nil {
			logger.Error("utterance failed", slog.String("error", err.Error()))
			os.Exit(1)
		}
	case <-ctx.Done():
		controller.Stop()
		controller.Wait()
	}
}
