package config

import "testing"

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.TTS.MaxChunkSize != 900 {
		t.Fatalf("expected default chunk size 900, got %d", cfg.TTS.MaxChunkSize)
	}
	if len(cfg.TTS.Tiers) != 2 || cfg.TTS.Tiers[0] != "elevenlabs" || cfg.TTS.Tiers[1] != "sarvam" {
		t.Fatalf("unexpected default tier order: %v", cfg.TTS.Tiers)
	}
	if cfg.Providers.Sarvam.ModelID != "bulbul:v2" {
		t.Fatalf("unexpected sarvam model: %s", cfg.Providers.Sarvam.ModelID)
	}
	if cfg.TTS.DefaultVoice != "asteria" {
		t.Fatalf("unexpected default voice: %s", cfg.TTS.DefaultVoice)
	}
	if cfg.TTS.DefaultLanguage != "" {
		t.Fatalf("default language must stay empty so detection runs, got %s", cfg.TTS.DefaultLanguage)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("VAANI_SERVICE_NAME", "vaani-test")
	t.Setenv("VAANI_HTTP_PORT", "9999")
	t.Setenv("VAANI_HTTP_AUTH_TOKEN", "secret-token")
	t.Setenv("VAANI_TTS_MAX_CHUNK_SIZE", "500")
	t.Setenv("VAANI_TTS_MAX_ATTEMPTS", "2")
	t.Setenv("VAANI_TTS_TIERS", "sarvam, elevenlabs")
	t.Setenv("VAANI_ELEVENLABS_API_KEY", "xi-key")
	t.Setenv("VAANI_SARVAM_API_KEY", "sv-key")
	t.Setenv("VAANI_LOCAL_ENABLED", "true")
	t.Setenv("VAANI_LOCAL_COMMAND", "espeak-ng --stdout")
	t.Setenv("VAANI_LOCAL_SPEED", "1.25")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.ServiceName != "vaani-test" {
		t.Fatalf("expected service name override, got %s", cfg.ServiceName)
	}
	if cfg.HTTP.Port != 9999 {
		t.Fatalf("expected port override, got %d", cfg.HTTP.Port)
	}
	if cfg.HTTP.AuthToken != "secret-token" {
		t.Fatal("expected auth token override")
	}
	if cfg.TTS.MaxChunkSize != 500 || cfg.TTS.MaxAttempts != 2 {
		t.Fatalf("expected tts overrides, got %+v", cfg.TTS)
	}
	if len(cfg.TTS.Tiers) != 2 || cfg.TTS.Tiers[0] != "sarvam" {
		t.Fatalf("expected tier order override, got %v", cfg.TTS.Tiers)
	}
	if cfg.Providers.ElevenLabs.APIKey != "xi-key" || cfg.Providers.Sarvam.APIKey != "sv-key" {
		t.Fatal("expected provider key overrides")
	}
	if !cfg.Providers.Local.Enabled || cfg.Providers.Local.Command == "" {
		t.Fatal("expected local fallback override")
	}
	if cfg.Providers.Local.Speed != 1.25 {
		t.Fatalf("expected local speed override, got %v", cfg.Providers.Local.Speed)
	}
}

func TestValidateRejectsUnknownTier(t *testing.T) {
	t.Setenv("VAANI_TTS_TIERS", "espeak")
	if _, err := Load(""); err == nil {
		t.Fatal("expected error for unknown tier name")
	}
}

func TestValidateLocalNeedsCommand(t *testing.T) {
	t.Setenv("VAANI_LOCAL_ENABLED", "true")
	if _, err := Load(""); err == nil {
		t.Fatal("expected error when local fallback has no command")
	}
}
