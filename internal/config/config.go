// File: internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Interface defines the contract for accessing application configuration.
// Components depend on it rather than on *Config so tests can hand in fixtures.
type Interface interface {
	Logger() LoggerConfig
	Server() ServerConfig
	Upload() UploadConfig
	DocAI() DocAIConfig
	Browser() BrowserConfig
	Automation() AutomationConfig

	SetServerAddr(addr string)
	SetDocAIBackend(backend string)
	SetAutomationDefaultFormURL(u string)
}

// Config holds the entire application configuration.
type Config struct {
	LoggerCfg     LoggerConfig     `mapstructure:"logger" yaml:"logger"`
	ServerCfg     ServerConfig     `mapstructure:"server" yaml:"server"`
	UploadCfg     UploadConfig     `mapstructure:"upload" yaml:"upload"`
	DocAICfg      DocAIConfig      `mapstructure:"docai" yaml:"docai"`
	BrowserCfg    BrowserConfig    `mapstructure:"browser" yaml:"browser"`
	AutomationCfg AutomationConfig `mapstructure:"automation" yaml:"automation"`
}

// --- Interface Method Implementations (Getters) ---

func (c *Config) Logger() LoggerConfig         { return c.LoggerCfg }
func (c *Config) Server() ServerConfig         { return c.ServerCfg }
func (c *Config) Upload() UploadConfig         { return c.UploadCfg }
func (c *Config) DocAI() DocAIConfig           { return c.DocAICfg }
func (c *Config) Browser() BrowserConfig       { return c.BrowserCfg }
func (c *Config) Automation() AutomationConfig { return c.AutomationCfg }

// --- Interface Method Implementations (Setters) ---

func (c *Config) SetServerAddr(addr string)            { c.ServerCfg.Addr = addr }
func (c *Config) SetDocAIBackend(backend string)       { c.DocAICfg.Backend = backend }
func (c *Config) SetAutomationDefaultFormURL(u string) { c.AutomationCfg.DefaultFormURL = u }

// LoggerConfig holds the logging settings.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig defines the color codes for different log levels.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	Addr            string        `mapstructure:"addr" yaml:"addr"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
}

// UploadConfig bounds what the document endpoint accepts.
type UploadConfig struct {
	MaxBytes     int64    `mapstructure:"max_bytes" yaml:"max_bytes"`
	AllowedTypes []string `mapstructure:"allowed_types" yaml:"allowed_types"`
}

// DocAIConfig selects and configures the document-understanding backend.
type DocAIConfig struct {
	// Backend is "documentai" or "pdftext".
	Backend         string        `mapstructure:"backend" yaml:"backend"`
	ProjectID       string        `mapstructure:"project_id" yaml:"project_id"`
	ProcessorID     string        `mapstructure:"processor_id" yaml:"processor_id"`
	Location        string        `mapstructure:"location" yaml:"location"`
	CredentialsFile string        `mapstructure:"credentials_file" yaml:"credentials_file"`
	ClientEmail     string        `mapstructure:"client_email" yaml:"client_email"`
	PrivateKey      string        `mapstructure:"private_key" yaml:"private_key"`
	Endpoint        string        `mapstructure:"endpoint" yaml:"endpoint"`
	Timeout         time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// BrowserConfig controls how the automation browser is launched.
type BrowserConfig struct {
	ExecPath  string `mapstructure:"exec_path" yaml:"exec_path"`
	NoSandbox bool   `mapstructure:"no_sandbox" yaml:"no_sandbox"`
	Width     int    `mapstructure:"width" yaml:"width"`
	Height    int    `mapstructure:"height" yaml:"height"`
	// Args are extra command-line switches, "name" or "name=value".
	Args []string `mapstructure:"args" yaml:"args"`
}

// AutomationConfig holds the timings of a form-fill session.
type AutomationConfig struct {
	DefaultFormURL    string        `mapstructure:"default_form_url" yaml:"default_form_url"`
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout" yaml:"navigation_timeout"`
	SettleDelay       time.Duration `mapstructure:"settle_delay" yaml:"settle_delay"`
	FillTimeout       time.Duration `mapstructure:"fill_timeout" yaml:"fill_timeout"`
	PacingDelay       time.Duration `mapstructure:"pacing_delay" yaml:"pacing_delay"`
	PreviewHold       time.Duration `mapstructure:"preview_hold" yaml:"preview_hold"`
	PreviewCloseDelay time.Duration `mapstructure:"preview_close_delay" yaml:"preview_close_delay"`
}

// DefaultFormURL is the appeal form filled when a request names none.
const DefaultFormURL = "https://portal.laserfiche.com/h4073/forms/ParkingTicketAppeal"

// Backend names accepted by docai.backend.
const (
	BackendDocumentAI = "documentai"
	BackendPDFText    = "pdftext"
)

// NewDefaultConfig returns a Config populated only from defaults.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// This should not happen with defaults.
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// SetDefaults initializes default values for every configuration parameter.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "citefill")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)

	// -- Server --
	v.SetDefault("server.addr", ":3000")
	v.SetDefault("server.read_timeout", "30s")
	// Preview fills hold the response for several seconds.
	v.SetDefault("server.write_timeout", "3m")
	v.SetDefault("server.shutdown_timeout", "20s")

	// -- Upload --
	v.SetDefault("upload.max_bytes", 10<<20)
	v.SetDefault("upload.allowed_types", []string{"application/pdf", "image/jpeg", "image/png"})

	// -- Document AI --
	v.SetDefault("docai.backend", BackendDocumentAI)
	v.SetDefault("docai.location", "us")
	v.SetDefault("docai.timeout", "2m")

	// -- Browser --
	v.SetDefault("browser.no_sandbox", true)
	v.SetDefault("browser.width", 1280)
	v.SetDefault("browser.height", 720)

	// -- Automation --
	v.SetDefault("automation.default_form_url", DefaultFormURL)
	v.SetDefault("automation.navigation_timeout", "30s")
	v.SetDefault("automation.settle_delay", "2s")
	v.SetDefault("automation.fill_timeout", "10s")
	v.SetDefault("automation.pacing_delay", "500ms")
	v.SetDefault("automation.preview_hold", "10s")
	v.SetDefault("automation.preview_close_delay", "15s")
}

// envBindings maps config keys onto the environment variable names the
// service has always been deployed with.
var envBindings = map[string]string{
	"docai.project_id":       "GOOGLE_CLOUD_PROJECT_ID",
	"docai.processor_id":     "GOOGLE_CLOUD_PROCESSOR_ID",
	"docai.location":         "GOOGLE_CLOUD_LOCATION",
	"docai.credentials_file": "GOOGLE_APPLICATION_CREDENTIALS",
	"docai.client_email":     "GOOGLE_CLOUD_CLIENT_EMAIL",
	"docai.private_key":      "GOOGLE_CLOUD_PRIVATE_KEY",
}

// BindEnv binds the legacy environment variable names. The prefixed form
// (CITEFILL_DOCAI_PROJECT_ID) keeps working alongside them.
func BindEnv(v *viper.Viper, prefix string) error {
	for key, name := range envBindings {
		prefixed := strings.ToUpper(prefix + "_" + strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, prefixed, name); err != nil {
			return fmt.Errorf("failed to bind %s: %w", key, err)
		}
	}
	return nil
}

// NewConfigFromViper unmarshals and validates the configuration held by v.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for sane values. Document AI credentials
// are deliberately not required here: their absence is reported per request.
func (c *Config) Validate() error {
	if c.UploadCfg.MaxBytes <= 0 {
		return errors.New("upload.max_bytes must be a positive integer")
	}
	if len(c.UploadCfg.AllowedTypes) == 0 {
		return errors.New("upload.allowed_types must not be empty")
	}
	if err := c.DocAICfg.Validate(); err != nil {
		return fmt.Errorf("docai configuration invalid: %w", err)
	}
	if c.BrowserCfg.Width <= 0 || c.BrowserCfg.Height <= 0 {
		return errors.New("browser.width and browser.height must be positive")
	}
	if err := c.AutomationCfg.Validate(); err != nil {
		return fmt.Errorf("automation configuration invalid: %w", err)
	}
	return nil
}

// Validate checks the backend selection.
func (d *DocAIConfig) Validate() error {
	switch d.Backend {
	case BackendDocumentAI, BackendPDFText:
	default:
		return fmt.Errorf("backend must be %q or %q, got %q", BackendDocumentAI, BackendPDFText, d.Backend)
	}
	if d.Backend == BackendDocumentAI && d.Location == "" {
		return errors.New("location is required for the documentai backend")
	}
	return nil
}

// Validate checks the form URL and that no timing is negative.
func (a *AutomationConfig) Validate() error {
	u, err := url.Parse(a.DefaultFormURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("default_form_url must be an absolute http(s) URL, got %q", a.DefaultFormURL)
	}
	if a.NavigationTimeout <= 0 {
		return errors.New("navigation_timeout must be a positive duration")
	}
	for name, d := range map[string]time.Duration{
		"settle_delay":        a.SettleDelay,
		"fill_timeout":        a.FillTimeout,
		"pacing_delay":        a.PacingDelay,
		"preview_hold":        a.PreviewHold,
		"preview_close_delay": a.PreviewCloseDelay,
	} {
		if d < 0 {
			return fmt.Errorf("%s must not be negative", name)
		}
	}
	return nil
}
