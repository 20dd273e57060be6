package config

import (
	"os"
	"time"

	"github.com/FoxHui1759/A-mobile-application-that-assists-individuals-with-visual-impairment-to-travel-in-Hong-Kong/internal/lib/fusion"
	"github.com/FoxHui1759/A-mobile-application-that-assists-individuals-with-visual-impairment-to-travel-in-Hong-Kong/internal/lib/navigation"
	"github.com/FoxHui1759/A-mobile-application-that-assists-individuals-with-visual-impairment-to-travel-in-Hong-Kong/internal/lib/routing"
)

// APIKeyEnv is the environment variable consulted when google.api_key is not configured
const APIKeyEnv = "GOOGLE_MAP_API_KEY"

// Config represents the complete server configuration
type Config struct {
	Server     ServerConfig            `yaml:"server"`
	Google     GoogleConfig            `yaml:"google"`
	Navigation navigation.Config       `yaml:"navigation"`
	Fusion     fusion.Config           `yaml:"fusion"`
	Evaluator  routing.EvaluatorConfig `yaml:"evaluator"`
}

// ServerConfig holds server-specific settings
type ServerConfig struct {
	CorsOrigins        []string      `yaml:"cors_origins"`
	SessionIdleTimeout time.Duration `yaml:"session_idle_timeout"`
	ReapInterval       time.Duration `yaml:"reap_interval"`
}

// GoogleConfig holds Google Maps Platform settings shared by the directions, places and
// elevation clients
type GoogleConfig struct {
	APIKey       string        `yaml:"api_key"`
	BaseURL      string        `yaml:"base_url"`
	Region       string        `yaml:"region"`
	Language     string        `yaml:"language"`
	Timeout      time.Duration `yaml:"timeout"`
	CandidateTTL time.Duration `yaml:"candidate_ttl"`
}

// DefaultConfig returns a default configuration
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			CorsOrigins:        []string{"*"},
			SessionIdleTimeout: 30 * time.Minute,
			ReapInterval:       time.Minute,
		},
		Google: GoogleConfig{
			BaseURL:      "https://maps.googleapis.com",
			Region:       "hk",
			Language:     "zh-TW",
			Timeout:      15 * time.Second,
			CandidateTTL: 2 * time.Minute,
		},
		Navigation: navigation.DefaultConfig(),
		Fusion:     fusion.DefaultConfig(),
		Evaluator:  routing.DefaultEvaluatorConfig(),
	}
}

// ApplyEnv fills settings that may come from the environment instead of the config file
func (c *Config) ApplyEnv() {
	if c.Google.APIKey == "" {
		c.Google.APIKey = os.Getenv(APIKeyEnv)
	}
}

// Validate fills zero values that would otherwise disable required behaviour
func (c *Config) Validate() {
	defaults := DefaultConfig()
	if c.Google.BaseURL == "" {
		c.Google.BaseURL = defaults.Google.BaseURL
	}
	if c.Google.Language == "" {
		c.Google.Language = defaults.Google.Language
	}
	if c.Google.Timeout <= 0 {
		c.Google.Timeout = defaults.Google.Timeout
	}
	if c.Server.SessionIdleTimeout <= 0 {
		c.Server.SessionIdleTimeout = defaults.Server.SessionIdleTimeout
	}
	if c.Server.ReapInterval <= 0 {
		c.Server.ReapInterval = defaults.Server.ReapInterval
	}
	if c.Navigation.WaypointThresholdM <= 0 {
		c.Navigation.WaypointThresholdM = defaults.Navigation.WaypointThresholdM
	}
	if c.Navigation.OffRouteThresholdM <= 0 {
		c.Navigation.OffRouteThresholdM = defaults.Navigation.OffRouteThresholdM
	}
	if c.Navigation.FetchTimeout <= 0 {
		c.Navigation.FetchTimeout = defaults.Navigation.FetchTimeout
	}
	if c.Navigation.Language == "" {
		c.Navigation.Language = defaults.Navigation.Language
	}
	if c.Evaluator.TimeUnitS <= 0 {
		c.Evaluator.TimeUnitS = defaults.Evaluator.TimeUnitS
	}
}
