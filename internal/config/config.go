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
	LogLevel     string `yaml:"log_level"`
	OTLPEndpoint string `yaml:"otlp_endpoint"`
	OTLPInsecure bool   `yaml:"otlp_insecure"`
}

type HTTPConfig struct {
	Bind string `yaml:"bind"`
	Port int    `yaml:"port"`
}

type Config struct {
	RuntimeName string          `yaml:"runtime_name"`
	Environment string          `yaml:"environment"`
	HTTP        HTTPConfig      `yaml:"http"`
	Telemetry   TelemetryConfig `yaml:"telemetry"`
	Bus         BusConfig       `yaml:"bus"`
	Synth       SynthConfig     `yaml:"synth"`
	Playback    PlaybackConfig  `yaml:"playback"`
	Speak       SpeakConfig     `yaml:"speak"`
	TurnLog     TurnLogConfig   `yaml:"turn_log"`
}

type BusConfig struct {
	Embedded       bool     `yaml:"embedded"`
	Port           int      `yaml:"port"`
	Servers        []string `yaml:"servers"`
	Username       string   `yaml:"username"`
	Password       string   `yaml:"password"`
	Token          string   `yaml:"token"`
	TLSInsecure    bool     `yaml:"tls_insecure"`
	ConnectTimeout int      `yaml:"connect_timeout_ms"`
}

type SynthConfig struct {
	Mode             string `yaml:"mode"` // mock, exec
	Command          string `yaml:"command"`
	Voice            string `yaml:"voice"`
	SampleRate       int    `yaml:"sample_rate"`
	Channels         int    `yaml:"channels"`
	RequestTimeoutMS int    `yaml:"request_timeout_ms"`
	Workers          int    `yaml:"workers"`
	MaxAttempts      int    `yaml:"max_attempts"`
	BackoffInitialMS int    `yaml:"backoff_initial_ms"`
	BackoffMaxMS     int    `yaml:"backoff_max_ms"`
}

type PlaybackConfig struct {
	Mode    string `yaml:"mode"` // mock, exec
	Command string `yaml:"command"`
}

type SpeakConfig struct {
	Enabled          bool   `yaml:"enabled"`
	DispatchPolicy   string `yaml:"dispatch_policy"` // immediate, context
	QueueDepth       int    `yaml:"queue_depth"`
	FollowUpWindowMS int    `yaml:"follow_up_window_ms"`
}

type TurnLogConfig struct {
	Path          string `yaml:"path"`
	RetentionMode string `yaml:"retention_mode"`
	RetentionDays int    `yaml:"retention_days"`
	MaxTurns      int    `yaml:"max_turns"`
	VacuumOnStart bool   `yaml:"vacuum_on_start"`
}

func Default() Config {
	return Config{
		RuntimeName: "voxa-runtime",
		Environment: "development",
		HTTP: HTTPConfig{
			Bind: "0.0.0.0",
			Port: 8080,
		},
		Telemetry: TelemetryConfig{
			LogLevel:     "info",
			OTLPEndpoint: "",
			OTLPInsecure: true,
		},
		Bus: BusConfig{
			Embedded:       true,
			Port:           4222,
			Servers:        []string{"nats://localhost:4222"},
			ConnectTimeout: 2000,
		},
		Synth: SynthConfig{
			Mode:             "mock",
			Voice:            "en-US",
			SampleRate:       22050,
			Channels:         1,
			RequestTimeoutMS: 30000,
			Workers:          2,
			MaxAttempts:      3,
			BackoffInitialMS: 200,
			BackoffMaxMS:     2000,
		},
		Playback: PlaybackConfig{
			Mode: "mock",
		},
		Speak: SpeakConfig{
			Enabled:          true,
			DispatchPolicy:   "immediate",
			QueueDepth:       32,
			FollowUpWindowMS: 5000,
		},
		TurnLog: TurnLogConfig{
			Path:          "./data/voxa-turns.db",
			RetentionMode: "session",
			RetentionDays: 30,
			MaxTurns:      10000,
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
	overrideString(&cfg.RuntimeName, "VOXA_RUNTIME_NAME")
	overrideString(&cfg.Environment, "VOXA_RUNTIME_ENVIRONMENT")
	overrideString(&cfg.HTTP.Bind, "VOXA_HTTP_BIND")
	overrideInt(&cfg.HTTP.Port, "VOXA_HTTP_PORT")
	overrideString(&cfg.Telemetry.LogLevel, "VOXA_TELEMETRY_LOG_LEVEL")
	overrideString(&cfg.Telemetry.OTLPEndpoint, "VOXA_TELEMETRY_OTLP_ENDPOINT")
	overrideBool(&cfg.Telemetry.OTLPInsecure, "VOXA_TELEMETRY_OTLP_INSECURE")
	overrideBool(&cfg.Bus.Embedded, "VOXA_BUS_EMBEDDED")
	overrideInt(&cfg.Bus.Port, "VOXA_BUS_PORT")
	overrideStringSlice(&cfg.Bus.Servers, "VOXA_BUS_SERVERS")
	overrideString(&cfg.Bus.Username, "VOXA_BUS_USERNAME")
	overrideString(&cfg.Bus.Password, "VOXA_BUS_PASSWORD")
	overrideString(&cfg.Bus.Token, "VOXA_BUS_TOKEN")
	overrideBool(&cfg.Bus.TLSInsecure, "VOXA_BUS_TLS_INSECURE")
	overrideInt(&cfg.Bus.ConnectTimeout, "VOXA_BUS_CONNECT_TIMEOUT_MS")
	overrideString(&cfg.Synth.Mode, "VOXA_SYNTH_MODE")
	overrideString(&cfg.Synth.Command, "VOXA_SYNTH_COMMAND")
	overrideString(&cfg.Synth.Voice, "VOXA_SYNTH_VOICE")
	overrideInt(&cfg.Synth.SampleRate, "VOXA_SYNTH_SAMPLE_RATE")
	overrideInt(&cfg.Synth.Channels, "VOXA_SYNTH_CHANNELS")
	overrideInt(&cfg.Synth.RequestTimeoutMS, "VOXA_SYNTH_REQUEST_TIMEOUT_MS")
	overrideInt(&cfg.Synth.Workers, "VOXA_SYNTH_WORKERS")
	overrideInt(&cfg.Synth.MaxAttempts, "VOXA_SYNTH_MAX_ATTEMPTS")
	overrideInt(&cfg.Synth.BackoffInitialMS, "VOXA_SYNTH_BACKOFF_INITIAL_MS")
	overrideInt(&cfg.Synth.BackoffMaxMS, "VOXA_SYNTH_BACKOFF_MAX_MS")
	overrideString(&cfg.Playback.Mode, "VOXA_PLAYBACK_MODE")
	overrideString(&cfg.Playback.Command, "VOXA_PLAYBACK_COMMAND")
	overrideBool(&cfg.Speak.Enabled, "VOXA_SPEAK_ENABLED")
	overrideString(&cfg.Speak.DispatchPolicy, "VOXA_SPEAK_DISPATCH_POLICY")
	overrideInt(&cfg.Speak.QueueDepth, "VOXA_SPEAK_QUEUE_DEPTH")
	overrideInt(&cfg.Speak.FollowUpWindowMS, "VOXA_SPEAK_FOLLOW_UP_WINDOW_MS")
	overrideString(&cfg.TurnLog.Path, "VOXA_TURN_LOG_PATH")
	overrideString(&cfg.TurnLog.RetentionMode, "VOXA_TURN_LOG_RETENTION_MODE")
	overrideInt(&cfg.TurnLog.RetentionDays, "VOXA_TURN_LOG_RETENTION_DAYS")
	overrideInt(&cfg.TurnLog.MaxTurns, "VOXA_TURN_LOG_MAX_TURNS")
	overrideBool(&cfg.TurnLog.VacuumOnStart, "VOXA_TURN_LOG_VACUUM_ON_START")
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

func validate(cfg Config) error {
	if cfg.RuntimeName == "" {
		return errors.New("runtime_name must not be empty")
	}
	if cfg.HTTP.Port <= 0 || cfg.HTTP.Port > 65535 {
		return errors.New("http.port must be between 1 and 65535")
	}
	if cfg.Bus.Embedded {
		if cfg.Bus.Port <= 0 || cfg.Bus.Port > 65535 {
			return errors.New("bus.port must be between 1 and 65535 when embedded mode is enabled")
		}
	} else {
		if len(cfg.Bus.Servers) == 0 {
			return errors.New("bus.servers must not be empty when embedded mode is disabled")
		}
	}
	switch cfg.Synth.Mode {
	case "mock", "exec":
	default:
		return errors.New("synth.mode must be one of mock|exec")
	}
	if cfg.Synth.Mode == "exec" && cfg.Synth.Command == "" {
		return errors.New("synth.command must be set when mode=exec")
	}
	if cfg.Synth.SampleRate <= 0 {
		return errors.New("synth.sample_rate must be positive")
	}
	if cfg.Synth.Channels <= 0 {
		return errors.New("synth.channels must be positive")
	}
	if cfg.Synth.Workers <= 0 {
		return errors.New("synth.workers must be >= 1")
	}
	if cfg.Synth.MaxAttempts <= 0 {
		return errors.New("synth.max_attempts must be >= 1")
	}
	if cfg.Synth.BackoffInitialMS <= 0 {
		return errors.New("synth.backoff_initial_ms must be positive")
	}
	if cfg.Synth.BackoffMaxMS < cfg.Synth.BackoffInitialMS {
		return errors.New("synth.backoff_max_ms must be >= backoff_initial_ms")
	}
	switch cfg.Playback.Mode {
	case "mock", "exec":
	default:
		return errors.New("playback.mode must be one of mock|exec")
	}
	if cfg.Playback.Mode == "exec" && cfg.Playback.Command == "" {
		return errors.New("playback.command must be set when mode=exec")
	}
	if cfg.Speak.Enabled {
		switch cfg.Speak.DispatchPolicy {
		case "immediate", "context":
		default:
			return errors.New("speak.dispatch_policy must be one of immediate|context")
		}
		if cfg.Speak.QueueDepth <= 0 {
			return errors.New("speak.queue_depth must be >= 1")
		}
		if cfg.Speak.FollowUpWindowMS < 0 {
			return errors.New("speak.follow_up_window_ms must be >= 0")
		}
	}
	if cfg.TurnLog.Path == "" {
		return errors.New("turn_log.path must not be empty")
	}
	switch cfg.TurnLog.RetentionMode {
	case "ephemeral", "session", "persistent":
		// ok
	default:
		return errors.New("turn_log.retention_mode must be one of ephemeral|session|persistent")
	}
	if cfg.TurnLog.RetentionDays < 0 {
		return errors.New("turn_log.retention_days must be >= 0")
	}
	return nil
}
