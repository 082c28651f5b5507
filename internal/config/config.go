package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type TelemetryConfig struct {
	LogLevel       string `yaml:"log_level"`
	OTLPEndpoint   string `yaml:"otlp_endpoint"`
	OTLPInsecure   bool   `yaml:"otlp_insecure"`
	PrometheusBind string `yaml:"prometheus_bind"`
}

type HTTPConfig struct {
	Bind string `yaml:"bind"`
	Port int    `yaml:"port"`
	// AuthToken, when set, is required as a bearer token on the speak endpoint.
	AuthToken string `yaml:"auth_token"`
}

type BusConfig struct {
	Enabled        bool     `yaml:"enabled"`
	Embedded       bool     `yaml:"embedded"`
	Port           int      `yaml:"port"`
	Servers        []string `yaml:"servers"`
	Username       string   `yaml:"username"`
	Password       string   `yaml:"password"`
	Token          string   `yaml:"token"`
	TLSInsecure    bool     `yaml:"tls_insecure"`
	ConnectTimeout int      `yaml:"connect_timeout_ms"`
}

type AuditConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Path          string `yaml:"path"`
	RetentionDays int    `yaml:"retention_days"`
	MaxUtterances int    `yaml:"max_utterances"`
	VacuumOnStart bool   `yaml:"vacuum_on_start"`
}

// TTSConfig controls the synthesis pipeline itself, independent of any
// single provider.
type TTSConfig struct {
	MaxChunkSize     int    `yaml:"max_chunk_size"`
	MaxAttempts      int    `yaml:"max_attempts"`
	RetryBaseMS      int    `yaml:"retry_base_ms"`
	RequestTimeoutMS int    `yaml:"request_timeout_ms"`
	DefaultVoice     string `yaml:"default_voice"`
	// DefaultLanguage pins the language for requests without a hint; empty
	// keeps per-utterance detection.
	DefaultLanguage string `yaml:"default_language"`
	// Tiers lists network providers in priority order.
	Tiers []string `yaml:"tiers"`
}

type ElevenLabsConfig struct {
	Enabled        bool    `yaml:"enabled"`
	APIKey         string  `yaml:"api_key"`
	BaseURL        string  `yaml:"base_url"`
	ModelID        string  `yaml:"model_id"`
	DefaultVoiceID string  `yaml:"default_voice_id"`
	OutputFormat   string  `yaml:"output_format"`
	Stability      float64 `yaml:"stability"`
	Similarity     float64 `yaml:"similarity"`
	TimeoutMS      int     `yaml:"timeout_ms"`
}

type SarvamConfig struct {
	Enabled        bool   `yaml:"enabled"`
	APIKey         string `yaml:"api_key"`
	BaseURL        string `yaml:"base_url"`
	ModelID        string `yaml:"model_id"`
	DefaultSpeaker string `yaml:"default_speaker"`
	SampleRate     int    `yaml:"sample_rate"`
	TimeoutMS      int    `yaml:"timeout_ms"`
}

// LocalConfig configures the on-device exec synthesizer used when every
// network tier is exhausted.
type LocalConfig struct {
	Enabled    bool    `yaml:"enabled"`
	Command    string  `yaml:"command"`
	SampleRate int     `yaml:"sample_rate"`
	Channels   int     `yaml:"channels"`
	Speed      float64 `yaml:"speed"`
}

type ProvidersConfig struct {
	ElevenLabs ElevenLabsConfig `yaml:"elevenlabs"`
	Sarvam     SarvamConfig     `yaml:"sarvam"`
	Local      LocalConfig      `yaml:"local"`
	// Mock swaps every tier for a canned in-memory provider; used in
	// development and integration tests.
	Mock bool `yaml:"mock"`
}

type Config struct {
	ServiceName string          `yaml:"service_name"`
	Environment string          `yaml:"environment"`
	HTTP        HTTPConfig      `yaml:"http"`
	Telemetry   TelemetryConfig `yaml:"telemetry"`
	Bus         BusConfig       `yaml:"bus"`
	Audit       AuditConfig     `yaml:"audit"`
	TTS         TTSConfig       `yaml:"tts"`
	Providers   ProvidersConfig `yaml:"providers"`
}

func Default() Config {
	return Config{
		ServiceName: "vaani-core",
		Environment: "development",
		HTTP: HTTPConfig{
			Bind: "0.0.0.0",
			Port: 8080,
		},
		Telemetry: TelemetryConfig{
			LogLevel:       "info",
			OTLPEndpoint:   "",
			OTLPInsecure:   true,
			PrometheusBind: ":9091",
		},
		Bus: BusConfig{
			Enabled:        false,
			Embedded:       true,
			Port:           4222,
			Servers:        []string{"nats://localhost:4222"},
			ConnectTimeout: 2000,
		},
		Audit: AuditConfig{
			Enabled:       true,
			Path:          "./data/vaani-audit.db",
			RetentionDays: 30,
			MaxUtterances: 10000,
		},
		TTS: TTSConfig{
			MaxChunkSize:     900,
			MaxAttempts:      4,
			RetryBaseMS:      250,
			RequestTimeoutMS: 20000,
			DefaultVoice:     "asteria",
			DefaultLanguage:  "",
			Tiers:            []string{"elevenlabs", "sarvam"},
		},
		Providers: ProvidersConfig{
			ElevenLabs: ElevenLabsConfig{
				Enabled:        true,
				BaseURL:        "https://api.elevenlabs.io",
				ModelID:        "eleven_multilingual_v2",
				DefaultVoiceID: "21m00Tcm4TlvDq8ikWAM",
				OutputFormat:   "mp3_44100_128",
				Stability:      0.5,
				Similarity:     0.75,
				TimeoutMS:      15000,
			},
			Sarvam: SarvamConfig{
				Enabled:        true,
				BaseURL:        "https://api.sarvam.ai",
				ModelID:        "bulbul:v2",
				DefaultSpeaker: "anushka",
				SampleRate:     22050,
				TimeoutMS:      15000,
			},
			Local: LocalConfig{
				Enabled:    false,
				SampleRate: 22050,
				Channels:   1,
				Speed:      1.0,
			},
		},
	}
}

func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return cfg, fmt.Errorf("config file not found: %w", err)
			}
			return cfg, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	if err := validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	overrideString(&cfg.ServiceName, "VAANI_SERVICE_NAME")
	overrideString(&cfg.Environment, "VAANI_ENVIRONMENT")
	overrideString(&cfg.HTTP.Bind, "VAANI_HTTP_BIND")
	overrideInt(&cfg.HTTP.Port, "VAANI_HTTP_PORT")
	overrideString(&cfg.HTTP.AuthToken, "VAANI_HTTP_AUTH_TOKEN")
	overrideString(&cfg.Telemetry.LogLevel, "VAANI_TELEMETRY_LOG_LEVEL")
	overrideString(&cfg.Telemetry.OTLPEndpoint, "VAANI_TELEMETRY_OTLP_ENDPOINT")
	overrideBool(&cfg.Telemetry.OTLPInsecure, "VAANI_TELEMETRY_OTLP_INSECURE")
	overrideString(&cfg.Telemetry.PrometheusBind, "VAANI_TELEMETRY_PROMETHEUS_BIND")
	overrideBool(&cfg.Bus.Enabled, "VAANI_BUS_ENABLED")
	overrideBool(&cfg.Bus.Embedded, "VAANI_BUS_EMBEDDED")
	overrideInt(&cfg.Bus.Port, "VAANI_BUS_PORT")
	overrideStringSlice(&cfg.Bus.Servers, "VAANI_BUS_SERVERS")
	overrideString(&cfg.Bus.Username, "VAANI_BUS_USERNAME")
	overrideString(&cfg.Bus.Password, "VAANI_BUS_PASSWORD")
	overrideString(&cfg.Bus.Token, "VAANI_BUS_TOKEN")
	overrideBool(&cfg.Bus.TLSInsecure, "VAANI_BUS_TLS_INSECURE")
	overrideInt(&cfg.Bus.ConnectTimeout, "VAANI_BUS_CONNECT_TIMEOUT_MS")
	overrideBool(&cfg.Audit.Enabled, "VAANI_AUDIT_ENABLED")
	overrideString(&cfg.Audit.Path, "VAANI_AUDIT_PATH")
	overrideInt(&cfg.Audit.RetentionDays, "VAANI_AUDIT_RETENTION_DAYS")
	overrideInt(&cfg.Audit.MaxUtterances, "VAANI_AUDIT_MAX_UTTERANCES")
	overrideBool(&cfg.Audit.VacuumOnStart, "VAANI_AUDIT_VACUUM_ON_START")
	overrideInt(&cfg.TTS.MaxChunkSize, "VAANI_TTS_MAX_CHUNK_SIZE")
	overrideInt(&cfg.TTS.MaxAttempts, "VAANI_TTS_MAX_ATTEMPTS")
	overrideInt(&cfg.TTS.RetryBaseMS, "VAANI_TTS_RETRY_BASE_MS")
	overrideInt(&cfg.TTS.RequestTimeoutMS, "VAANI_TTS_REQUEST_TIMEOUT_MS")
	overrideString(&cfg.TTS.DefaultVoice, "VAANI_TTS_DEFAULT_VOICE")
	overrideString(&cfg.TTS.DefaultLanguage, "VAANI_TTS_DEFAULT_LANGUAGE")
	overrideStringSlice(&cfg.TTS.Tiers, "VAANI_TTS_TIERS")
	overrideBool(&cfg.Providers.ElevenLabs.Enabled, "VAANI_ELEVENLABS_ENABLED")
	overrideString(&cfg.Providers.ElevenLabs.APIKey, "VAANI_ELEVENLABS_API_KEY")
	overrideString(&cfg.Providers.ElevenLabs.BaseURL, "VAANI_ELEVENLABS_BASE_URL")
	overrideString(&cfg.Providers.ElevenLabs.ModelID, "VAANI_ELEVENLABS_MODEL_ID")
	overrideString(&cfg.Providers.ElevenLabs.DefaultVoiceID, "VAANI_ELEVENLABS_DEFAULT_VOICE_ID")
	overrideInt(&cfg.Providers.ElevenLabs.TimeoutMS, "VAANI_ELEVENLABS_TIMEOUT_MS")
	overrideBool(&cfg.Providers.Sarvam.Enabled, "VAANI_SARVAM_ENABLED")
	overrideString(&cfg.Providers.Sarvam.APIKey, "VAANI_SARVAM_API_KEY")
	overrideString(&cfg.Providers.Sarvam.BaseURL, "VAANI_SARVAM_BASE_URL")
	overrideString(&cfg.Providers.Sarvam.ModelID, "VAANI_SARVAM_MODEL_ID")
	overrideString(&cfg.Providers.Sarvam.DefaultSpeaker, "VAANI_SARVAM_DEFAULT_SPEAKER")
	overrideInt(&cfg.Providers.Sarvam.SampleRate, "VAANI_SARVAM_SAMPLE_RATE")
	overrideInt(&cfg.Providers.Sarvam.TimeoutMS, "VAANI_SARVAM_TIMEOUT_MS")
	overrideBool(&cfg.Providers.Local.Enabled, "VAANI_LOCAL_ENABLED")
	overrideString(&cfg.Providers.Local.Command, "VAANI_LOCAL_COMMAND")
	overrideInt(&cfg.Providers.Local.SampleRate, "VAANI_LOCAL_SAMPLE_RATE")
	overrideInt(&cfg.Providers.Local.Channels, "VAANI_LOCAL_CHANNELS")
	overrideFloat(&cfg.Providers.Local.Speed, "VAANI_LOCAL_SPEED")
	overrideBool(&cfg.Providers.Mock, "VAANI_PROVIDERS_MOCK")
}

func overrideString(target *string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok && strings.TrimSpace(value) != "" {
		*target = value
	}
}

func overrideInt(target *int, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.Atoi(value); err == nil {
			*target = parsed
		}
	}
}

func overrideBool(target *bool, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseBool(value); err == nil {
			*target = parsed
		}
	}
}

func overrideStringSlice(target *[]string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		parts := strings.Split(value, ",")
		var trimmed []string
		for _, p := range parts {
			if s := strings.TrimSpace(p); s != "" {
				trimmed = append(trimmed, s)
			}
		}
		if len(trimmed) > 0 {
			*target = trimmed
		}
	}
}

func overrideFloat(target *float64, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			*target = parsed
		}
	}
}

func validate(cfg Config) error {
	if cfg.ServiceName == "" {
		return errors.New("service_name must not be empty")
	}
	if cfg.HTTP.Port <= 0 || cfg.HTTP.Port > 65535 {
		return errors.New("http.port must be between 1 and 65535")
	}
	if cfg.Bus.Enabled {
		if cfg.Bus.Embedded {
			if cfg.Bus.Port <= 0 || cfg.Bus.Port > 65535 {
				return errors.New("bus.port must be between 1 and 65535 when embedded mode is enabled")
			}
		} else if len(cfg.Bus.Servers) == 0 {
			return errors.New("bus.servers must not be empty when embedded mode is disabled")
		}
	}
	if cfg.Audit.Enabled {
		if cfg.Audit.Path == "" {
			return errors.New("audit.path must not be empty when audit is enabled")
		}
		if cfg.Audit.RetentionDays < 0 {
			return errors.New("audit.retention_days must be >= 0")
		}
	}
	if cfg.Telemetry.PrometheusBind == "" {
		return errors.New("telemetry.prometheus_bind must not be empty")
	}
	if cfg.TTS.MaxChunkSize <= 0 {
		return errors.New("tts.max_chunk_size must be positive")
	}
	if cfg.TTS.MaxAttempts <= 0 {
		return errors.New("tts.max_attempts must be >= 1")
	}
	if cfg.TTS.RetryBaseMS < 0 {
		return errors.New("tts.retry_base_ms must be >= 0")
	}
	if len(cfg.TTS.Tiers) == 0 && !cfg.Providers.Mock {
		return errors.New("tts.tiers must name at least one provider")
	}
	for _, tier := range cfg.TTS.Tiers {
		switch tier {
		case "elevenlabs", "sarvam":
		default:
			return fmt.Errorf("tts.tiers contains unknown provider %q", tier)
		}
	}
	if !cfg.Providers.Mock {
		if containsTier(cfg.TTS.Tiers, "elevenlabs") && cfg.Providers.ElevenLabs.Enabled && cfg.Providers.ElevenLabs.BaseURL == "" {
			return errors.New("providers.elevenlabs.base_url must not be empty")
		}
		if containsTier(cfg.TTS.Tiers, "sarvam") && cfg.Providers.Sarvam.Enabled && cfg.Providers.Sarvam.BaseURL == "" {
			return errors.New("providers.sarvam.base_url must not be empty")
		}
	}
	if cfg.Providers.Local.Enabled {
		if cfg.Providers.Local.Command == "" {
			return errors.New("providers.local.command must be set when local fallback is enabled")
		}
		if cfg.Providers.Local.SampleRate <= 0 {
			return errors.New("providers.local.sample_rate must be positive")
		}
		if cfg.Providers.Local.Channels <= 0 {
			return errors.New("providers.local.channels must be positive")
		}
	}
	return nil
}

func containsTier(tiers []string, name string) bool {
	for _, t := range tiers {
		if t == name {
			return true
		}
	}
	return false
}
