package config

import (
	"fmt"
	"strings"

	"github.com/caarlos0/env/v11"

	"github.com/wippyai/capture-bridge/binding"
	"github.com/wippyai/capture-bridge/errors"
)

// Driver kinds.
const (
	KindNative = "native"
	KindWasm   = "wasm"
)

// Config is the process configuration shared by cmd/run and cmd/serve.
type Config struct {
	DriverPath       string  `env:"CAPTURE_BRIDGE_DRIVER_PATH"`
	DriverKind       string  `env:"CAPTURE_BRIDGE_DRIVER_KIND"         envDefault:"native"`
	InitSymbol       string  `env:"CAPTURE_BRIDGE_INIT_SYMBOL"         envDefault:"Init"`
	FinalizeSymbol   string  `env:"CAPTURE_BRIDGE_FINALIZE_SYMBOL"     envDefault:"Uninit"`
	CaptureSymbol    string  `env:"CAPTURE_BRIDGE_CAPTURE_SYMBOL"      envDefault:"CaptureFinger"`
	ListenAddr       string  `env:"CAPTURE_BRIDGE_LISTEN_ADDR"         envDefault:"127.0.0.1:5006"`
	DatabasePath     string  `env:"CAPTURE_BRIDGE_DATABASE_PATH"       envDefault:"capture-bridge.db"`
	LogLevel         string  `env:"CAPTURE_BRIDGE_LOG_LEVEL"           envDefault:"info"`
	LogFormat        string  `env:"CAPTURE_BRIDGE_LOG_FORMAT"          envDefault:"json"`
	OTelEndpoint     string  `env:"CAPTURE_BRIDGE_OTEL_ENDPOINT"`
	WasmCacheDir     string  `env:"CAPTURE_BRIDGE_WASM_CACHE_DIR"`
	OTelSampleRatio  float64 `env:"CAPTURE_BRIDGE_OTEL_SAMPLE_RATIO"   envDefault:"1"`
	DefaultQuality   int     `env:"CAPTURE_BRIDGE_DEFAULT_QUALITY"     envDefault:"60"`
	BufferCapacity   int     `env:"CAPTURE_BRIDGE_BUFFER_CAPACITY"     envDefault:"2048"`
	MatchThreshold   int     `env:"CAPTURE_BRIDGE_MATCH_THRESHOLD"     envDefault:"85"`
	MemoryLimitPages uint32  `env:"CAPTURE_BRIDGE_WASM_MEMORY_LIMIT_PAGES"`
	OTelEnabled      bool    `env:"CAPTURE_BRIDGE_OTEL_ENABLED"        envDefault:"true"`
}

// ParseEnv loads configuration from environment variables.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Load reads the environment and validates the result.
func Load() (Config, error) {
	var cfg Config
	if err := ParseEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks values the environment parser cannot.
func (c Config) Validate() error {
	switch c.DriverKind {
	case KindNative, KindWasm:
	default:
		return invalid("driver kind %q (want %s or %s)", c.DriverKind, KindNative, KindWasm)
	}
	if strings.TrimSpace(c.InitSymbol) == "" || strings.TrimSpace(c.FinalizeSymbol) == "" || strings.TrimSpace(c.CaptureSymbol) == "" {
		return invalid("entry point symbol names must not be empty")
	}
	if c.BufferCapacity <= 0 {
		return invalid("buffer capacity %d must be positive", c.BufferCapacity)
	}
	if c.MatchThreshold < 0 || c.MatchThreshold > 100 {
		return invalid("match threshold %d must be within 0..100", c.MatchThreshold)
	}
	if c.OTelSampleRatio < 0 || c.OTelSampleRatio > 1 {
		return invalid("otel sample ratio %v must be within 0..1", c.OTelSampleRatio)
	}
	if _, err := parseLevel(c.LogLevel); err != nil {
		return err
	}
	switch c.LogFormat {
	case "json", "console":
	default:
		return invalid("log format %q (want json or console)", c.LogFormat)
	}
	return nil
}

// Symbols returns the configured entry point names.
func (c Config) Symbols() binding.Symbols {
	return binding.Symbols{
		Initialize: c.InitSymbol,
		Finalize:   c.FinalizeSymbol,
		Capture:    c.CaptureSymbol,
	}
}

func invalid(format string, args ...any) error {
	return errors.New(errors.PhaseConfig, errors.KindInvalidInput).Detail(format, args...).Build()
}
