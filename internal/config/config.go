// File: internal/config/config.go
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Decision protocol identifiers. Selected via llm.protocol.
const (
	ProtocolStructured = "structured" // single-turn JSON-in-text responses
	ProtocolToolCall   = "toolcall"   // multi-turn native function calling
)

// Config holds the entire application configuration.
type Config struct {
	Logger    LoggerConfig    `mapstructure:"logger" yaml:"logger"`
	LLM       LLMConfig       `mapstructure:"llm" yaml:"llm"`
	Browser   BrowserConfig   `mapstructure:"browser" yaml:"browser"`
	Navigator NavigatorConfig `mapstructure:"navigator" yaml:"navigator"`
	Server    ServerConfig    `mapstructure:"server" yaml:"server"`
}

// LoggerConfig controls the global zap logger.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"` // "console" or "json"
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"` // megabytes
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"` // days
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig maps log levels to terminal colors for the console encoder.
type ColorConfig struct {
	Debug string `mapstructure:"debug" yaml:"debug"`
	Info  string `mapstructure:"info" yaml:"info"`
	Warn  string `mapstructure:"warn" yaml:"warn"`
	Error string `mapstructure:"error" yaml:"error"`
	Fatal string `mapstructure:"fatal" yaml:"fatal"`
}

// LLMConfig configures the vision model collaborator and the decision protocol.
type LLMConfig struct {
	// Protocol selects the decision protocol: "structured" or "toolcall".
	Protocol string `mapstructure:"protocol" yaml:"protocol"`
	APIKey   string `mapstructure:"api_key" yaml:"api_key"`
	Model    string `mapstructure:"model" yaml:"model"`
	// Endpoint overrides the generateContent URL (structured protocol only).
	Endpoint        string        `mapstructure:"endpoint" yaml:"endpoint"`
	APITimeout      time.Duration `mapstructure:"api_timeout" yaml:"api_timeout"`
	Temperature     float64       `mapstructure:"temperature" yaml:"temperature"`
	MaxOutputTokens int           `mapstructure:"max_output_tokens" yaml:"max_output_tokens"`
	// RequestsPerMinute throttles model calls. 0 disables throttling.
	RequestsPerMinute int `mapstructure:"requests_per_minute" yaml:"requests_per_minute"`
	// MaxTranscriptTurns bounds the tool-call conversation. The first turn
	// (which carries the goal) is always retained. 0 keeps the full transcript.
	MaxTranscriptTurns int `mapstructure:"max_transcript_turns" yaml:"max_transcript_turns"`
}

// BrowserConfig configures the chromedp-backed browser driver.
type BrowserConfig struct {
	Headless          bool          `mapstructure:"headless" yaml:"headless"`
	ViewportWidth     int           `mapstructure:"viewport_width" yaml:"viewport_width"`
	ViewportHeight    int           `mapstructure:"viewport_height" yaml:"viewport_height"`
	UserAgent         string        `mapstructure:"user_agent" yaml:"user_agent"`
	Args              []string      `mapstructure:"args" yaml:"args"`
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout" yaml:"navigation_timeout"`
	SettleTimeout     time.Duration `mapstructure:"settle_timeout" yaml:"settle_timeout"`
	TypingDelay       time.Duration `mapstructure:"typing_delay" yaml:"typing_delay"`
}

// NavigatorConfig configures the step loop.
type NavigatorConfig struct {
	MaxSteps       int           `mapstructure:"max_steps" yaml:"max_steps"`
	HistorySize    int           `mapstructure:"history_size" yaml:"history_size"`
	FailureBackoff time.Duration `mapstructure:"failure_backoff" yaml:"failure_backoff"`
	StartURL       string        `mapstructure:"start_url" yaml:"start_url"`
}

// ServerConfig configures the HTTP/SSE front end.
type ServerConfig struct {
	Addr      string `mapstructure:"addr" yaml:"addr"`
	StaticDir string `mapstructure:"static_dir" yaml:"static_dir"`
}

// NewDefaultConfig returns a Config populated with production defaults.
func NewDefaultConfig() *Config {
	return &Config{
		Logger: LoggerConfig{
			Level:       "info",
			Format:      "console",
			ServiceName: "webnav",
			MaxSize:     50,
			MaxBackups:  3,
			MaxAge:      14,
			Colors: ColorConfig{
				Debug: "cyan",
				Info:  "green",
				Warn:  "yellow",
				Error: "red",
				Fatal: "magenta",
			},
		},
		LLM: LLMConfig{
			Protocol:        ProtocolStructured,
			Model:           "gemini-2.0-flash-exp",
			APITimeout:      60 * time.Second,
			Temperature:     0.1,
			MaxOutputTokens: 512,
		},
		Browser: BrowserConfig{
			Headless:       true,
			ViewportWidth:  1280,
			ViewportHeight: 800,
			UserAgent: "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) " +
				"AppleWebKit/537.36 Chrome/120.0.0.0 Safari/537.36",
			NavigationTimeout: 30 * time.Second,
			SettleTimeout:     5 * time.Second,
			TypingDelay:       50 * time.Millisecond,
		},
		Navigator: NavigatorConfig{
			MaxSteps:       25,
			HistorySize:    5,
			FailureBackoff: 2 * time.Second,
			StartURL:       "https://www.google.com",
		},
		Server: ServerConfig{
			Addr:      ":8080",
			StaticDir: "static",
		},
	}
}

// SetDefaults registers the default values on a viper instance so that a
// partial config file or environment overrides merge onto them.
func SetDefaults(v *viper.Viper) {
	def := NewDefaultConfig()

	v.SetDefault("logger.level", def.Logger.Level)
	v.SetDefault("logger.format", def.Logger.Format)
	v.SetDefault("logger.service_name", def.Logger.ServiceName)
	v.SetDefault("logger.max_size", def.Logger.MaxSize)
	v.SetDefault("logger.max_backups", def.Logger.MaxBackups)
	v.SetDefault("logger.max_age", def.Logger.MaxAge)
	v.SetDefault("logger.colors.debug", def.Logger.Colors.Debug)
	v.SetDefault("logger.colors.info", def.Logger.Colors.Info)
	v.SetDefault("logger.colors.warn", def.Logger.Colors.Warn)
	v.SetDefault("logger.colors.error", def.Logger.Colors.Error)
	v.SetDefault("logger.colors.fatal", def.Logger.Colors.Fatal)

	v.SetDefault("llm.protocol", def.LLM.Protocol)
	v.SetDefault("llm.model", def.LLM.Model)
	v.SetDefault("llm.api_timeout", def.LLM.APITimeout)
	v.SetDefault("llm.temperature", def.LLM.Temperature)
	v.SetDefault("llm.max_output_tokens", def.LLM.MaxOutputTokens)

	v.SetDefault("browser.headless", def.Browser.Headless)
	v.SetDefault("browser.viewport_width", def.Browser.ViewportWidth)
	v.SetDefault("browser.viewport_height", def.Browser.ViewportHeight)
	v.SetDefault("browser.user_agent", def.Browser.UserAgent)
	v.SetDefault("browser.navigation_timeout", def.Browser.NavigationTimeout)
	v.SetDefault("browser.settle_timeout", def.Browser.SettleTimeout)
	v.SetDefault("browser.typing_delay", def.Browser.TypingDelay)

	v.SetDefault("navigator.max_steps", def.Navigator.MaxSteps)
	v.SetDefault("navigator.history_size", def.Navigator.HistorySize)
	v.SetDefault("navigator.failure_backoff", def.Navigator.FailureBackoff)
	v.SetDefault("navigator.start_url", def.Navigator.StartURL)

	v.SetDefault("server.addr", def.Server.Addr)
	v.SetDefault("server.static_dir", def.Server.StaticDir)
}

// Validate checks the configuration for values the agent cannot run with.
func (c *Config) Validate() error {
	switch c.LLM.Protocol {
	case ProtocolStructured, ProtocolToolCall:
	default:
		return fmt.Errorf("llm.protocol must be %q or %q, got %q",
			ProtocolStructured, ProtocolToolCall, c.LLM.Protocol)
	}
	if c.Browser.ViewportWidth <= 0 || c.Browser.ViewportHeight <= 0 {
		return fmt.Errorf("browser viewport must be positive, got %dx%d",
			c.Browser.ViewportWidth, c.Browser.ViewportHeight)
	}
	if c.Navigator.MaxSteps <= 0 {
		return fmt.Errorf("navigator.max_steps must be positive, got %d", c.Navigator.MaxSteps)
	}
	return nil
}
