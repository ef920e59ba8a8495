package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
)

// Defaults applied when a field is set neither by file, environment, nor flag.
const (
	DefaultPort       = 8000
	DefaultInterval   = 30
	DefaultOllamaHost = "localhost:11434"
	DefaultAPITimeout = 30
	DefaultLogLevel   = "INFO"
)

// Config holds runtime parameters for the exporter.
// Zero values mean "unspecified" and are filled in by ApplyDefaults.
type Config struct {
	// Port the exporter's HTTP server listens on.
	Port int `json:"port" yaml:"port" toml:"port"`
	// Interval between scrape cycles, in seconds.
	Interval int `json:"interval" yaml:"interval" toml:"interval"`
	// OllamaHost is the host:port of the Ollama server to poll.
	OllamaHost string `json:"ollama_host" yaml:"ollama_host" toml:"ollama_host"`
	// APITimeout bounds each upstream API call, in whole seconds.
	APITimeout int `json:"api_timeout" yaml:"api_timeout" toml:"api_timeout"`
	// LogLevel is one of DEBUG, INFO, WARNING, ERROR.
	LogLevel string `json:"log_level" yaml:"log_level" toml:"log_level"`
	// EnableCORS adds permissive CORS headers to the HTTP surface.
	EnableCORS bool `json:"enable_cors" yaml:"enable_cors" toml:"enable_cors"`
	// CORSOrigins restricts allowed origins when CORS is enabled. Empty means "*".
	CORSOrigins []string `json:"cors_origins" yaml:"cors_origins" toml:"cors_origins"`
}

// ApplyEnv overwrites fields for which an environment variable is set.
// Recognized variables: PORT, INTERVAL, OLLAMA_HOST, API_TIMEOUT, LOG_LEVEL.
// The environment ranks above a config file and below explicit flags.
func (c *Config) ApplyEnv() {
	if n, ok := envInt("PORT"); ok {
		c.Port = n
	}
	if n, ok := envInt("INTERVAL"); ok {
		c.Interval = n
	}
	if v := os.Getenv("OLLAMA_HOST"); v != "" {
		c.OllamaHost = v
	}
	if n, ok := envInt("API_TIMEOUT"); ok {
		c.APITimeout = n
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
}

// ApplyDefaults fills any field still unset after file and env resolution.
func (c *Config) ApplyDefaults() {
	if c.Port == 0 {
		c.Port = DefaultPort
	}
	if c.Interval == 0 {
		c.Interval = DefaultInterval
	}
	if c.OllamaHost == "" {
		c.OllamaHost = DefaultOllamaHost
	}
	if c.APITimeout == 0 {
		c.APITimeout = DefaultAPITimeout
	}
	if c.LogLevel == "" {
		c.LogLevel = DefaultLogLevel
	}
}

// Validate rejects configurations the exporter cannot run with.
func (c Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("port out of range: %d", c.Port)
	}
	if c.Interval < 1 {
		return fmt.Errorf("interval must be at least 1 second, got %d", c.Interval)
	}
	if c.APITimeout < 1 {
		return fmt.Errorf("api timeout must be at least 1 second, got %d", c.APITimeout)
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// ParseLevel maps the exporter's log level names onto zerolog levels.
func ParseLevel(s string) (zerolog.Level, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return zerolog.DebugLevel, nil
	case "INFO":
		return zerolog.InfoLevel, nil
	case "WARNING", "WARN":
		return zerolog.WarnLevel, nil
	case "ERROR":
		return zerolog.ErrorLevel, nil
	default:
		return zerolog.NoLevel, fmt.Errorf("unknown log level: %q", s)
	}
}

func envInt(key string) (int, bool) {
	v := os.Getenv(key)
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}
