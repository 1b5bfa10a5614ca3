package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for Homelink Core.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Site     SiteConfig     `yaml:"site"`
	Database DatabaseConfig `yaml:"database"`
	MQTT     MQTTConfig     `yaml:"mqtt"`
	API      APIConfig      `yaml:"api"`
	InfluxDB InfluxDBConfig `yaml:"influxdb"`
	Logging  LoggingConfig  `yaml:"logging"`
	OAuth    OAuthConfig    `yaml:"oauth"`
	Reporter ReporterConfig `yaml:"reporter"`
	Provider ProviderConfig `yaml:"provider"`
	Devices  DevicesConfig  `yaml:"devices"`
}

// SiteConfig contains site-specific information.
// The site ID is also the first segment of every sensor topic.
type SiteConfig struct {
	ID       string `yaml:"id"`
	Name     string `yaml:"name"`
	Timezone string `yaml:"timezone"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings (seconds).
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	TLS      TLSConfig        `yaml:"tls"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
}

// TLSConfig contains TLS certificate settings.
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// APITimeoutConfig contains HTTP timeout settings (seconds).
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// InfluxDBConfig contains InfluxDB connection settings for the optional
// telemetry mirror. Disabled by default.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// OAuthConfig contains the account-linking credential authority settings.
type OAuthConfig struct {
	// Clients is the static allow-list of OAuth clients permitted to link
	// accounts. The voice-assistant platform is registered here.
	Clients []OAuthClientConfig `yaml:"clients"`

	// Secret signs access tokens (HS256). Must be overridden in production
	// via HOMELINK_OAUTH_SECRET.
	Secret string `yaml:"secret"`

	// GrantTTL is the authorization-code lifetime in minutes.
	GrantTTL int `yaml:"grant_ttl"`

	// AccessTokenTTL is the access-token lifetime in minutes.
	AccessTokenTTL int `yaml:"access_token_ttl"`

	// RefreshTokenTTL is the refresh-token lifetime in minutes.
	RefreshTokenTTL int `yaml:"refresh_token_ttl"`
}

// OAuthClientConfig describes one allowed OAuth client.
type OAuthClientConfig struct {
	ID           string   `yaml:"id"`
	Secret       string   `yaml:"secret"`
	RedirectURIs []string `yaml:"redirect_uris"`
}

// ReporterConfig contains the proactive report-state push settings.
type ReporterConfig struct {
	Enabled bool `yaml:"enabled"`

	// Interval between report cycles in seconds.
	Interval int `yaml:"interval"`

	// RegistryURL is the vendor device-state registry endpoint.
	RegistryURL string `yaml:"registry_url"`

	// TokenURL is the vendor token endpoint for the service-credential
	// exchange.
	TokenURL string `yaml:"token_url"`

	// AgentUserID identifies this home to the vendor registry.
	AgentUserID string `yaml:"agent_user_id"`

	// ServiceAccount is the long-lived service credential used to sign the
	// token-exchange assertion. Never a user token.
	ServiceAccount ServiceAccountConfig `yaml:"service_account"`

	// MaxAttempts bounds retries within one report cycle.
	MaxAttempts int `yaml:"max_attempts"`

	// PushTimeout is the per-attempt HTTP timeout in seconds.
	PushTimeout int `yaml:"push_timeout"`
}

// ServiceAccountConfig holds the registry service credential.
type ServiceAccountConfig struct {
	Issuer string `yaml:"issuer"`
	Key    string `yaml:"key"`
}

// ProviderConfig contains the optional application-state provider settings.
// When enabled, fulfillment responses and report payloads are enriched with
// attributes from this external aggregator.
type ProviderConfig struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url"`
	Timeout int    `yaml:"timeout"`
}

// DevicesConfig contains the static device registry and staleness policy.
type DevicesConfig struct {
	// StalenessWindow is the maximum reading age in seconds before a device
	// is reported offline instead of with its last value.
	StalenessWindow int `yaml:"staleness_window"`

	// Registry lists every known device. Devices are registered at boot and
	// never change at runtime.
	Registry []DeviceConfig `yaml:"registry"`
}

// DeviceConfig describes one registered sensor device.
type DeviceConfig struct {
	ID     string   `yaml:"id"`
	Type   string   `yaml:"type"`
	Name   string   `yaml:"name"`
	Room   string   `yaml:"room"`
	Traits []string `yaml:"traits"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: HOMELINK_SECTION_KEY
// For example: HOMELINK_DATABASE_PATH, HOMELINK_MQTT_HOST
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Site: SiteConfig{
			ID:       "home",
			Name:     "Homelink",
			Timezone: "UTC",
		},
		Database: DatabaseConfig{
			Path:        "./data/homelink.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "homelink-core",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		API: APIConfig{
			Host: "0.0.0.0",
			Port: 8080,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		OAuth: OAuthConfig{
			GrantTTL:        10,
			AccessTokenTTL:  60,
			RefreshTokenTTL: 43200, // 30 days
		},
		// Disabled by default: the registry and token URLs are
		// deployment-specific with no sensible fallback.
		Reporter: ReporterConfig{
			Enabled:     false,
			Interval:    60,
			MaxAttempts: 3,
			PushTimeout: 10,
		},
		Provider: ProviderConfig{
			Timeout: 5,
		},
		Devices: DevicesConfig{
			StalenessWindow: 300,
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: HOMELINK_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Database
	if v := os.Getenv("HOMELINK_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// MQTT
	if v := os.Getenv("HOMELINK_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("HOMELINK_MQTT_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.MQTT.Broker.Port = port
		}
	}
	if v := os.Getenv("HOMELINK_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("HOMELINK_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// API
	if v := os.Getenv("HOMELINK_API_HOST"); v != "" {
		cfg.API.Host = v
	}

	// InfluxDB
	if v := os.Getenv("HOMELINK_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// OAuth secret (IMPORTANT: always override in production)
	if v := os.Getenv("HOMELINK_OAUTH_SECRET"); v != "" {
		cfg.OAuth.Secret = v
	}

	// Reporter service credential
	if v := os.Getenv("HOMELINK_REPORTER_SERVICE_KEY"); v != "" {
		cfg.Reporter.ServiceAccount.Key = v
	}
}

// minSecretLength is the minimum accepted OAuth signing secret length.
const minSecretLength = 32

// Validate checks the configuration for errors and security issues.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	if c.Site.ID == "" {
		errs = append(errs, "site.id is required")
	}
	if strings.ContainsAny(c.Site.ID, "/#+") {
		errs = append(errs, "site.id must not contain MQTT topic separators or wildcards")
	}

	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	if c.MQTT.Broker.Host == "" {
		errs = append(errs, "mqtt.broker.host is required")
	}
	if c.MQTT.Broker.Port <= 0 || c.MQTT.Broker.Port > 65535 {
		errs = append(errs, "mqtt.broker.port must be 1-65535")
	}
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	if c.API.Port <= 0 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be 1-65535")
	}

	if c.OAuth.Secret == "" {
		errs = append(errs, "oauth.secret is required (set HOMELINK_OAUTH_SECRET)")
	} else if len(c.OAuth.Secret) < minSecretLength {
		errs = append(errs, fmt.Sprintf("oauth.secret must be at least %d characters", minSecretLength))
	}
	for i, client := range c.OAuth.Clients {
		if client.ID == "" {
			errs = append(errs, fmt.Sprintf("oauth.clients[%d].id is required", i))
		}
		if len(client.RedirectURIs) == 0 {
			errs = append(errs, fmt.Sprintf("oauth.clients[%d].redirect_uris is required", i))
		}
	}

	if c.Reporter.Enabled {
		if c.Reporter.AgentUserID == "" {
			errs = append(errs, "reporter.agent_user_id is required when reporter is enabled")
		}
		if c.Reporter.Interval <= 0 {
			errs = append(errs, "reporter.interval must be positive")
		}
		if c.Reporter.MaxAttempts <= 0 {
			errs = append(errs, "reporter.max_attempts must be positive")
		}
		if c.Reporter.RegistryURL == "" {
			errs = append(errs, "reporter.registry_url is required when reporter is enabled")
		}
		if c.Reporter.TokenURL == "" {
			errs = append(errs, "reporter.token_url is required when reporter is enabled")
		}
	}

	if c.Devices.StalenessWindow <= 0 {
		errs = append(errs, "devices.staleness_window must be positive")
	}
	seen := make(map[string]bool, len(c.Devices.Registry))
	for i, dev := range c.Devices.Registry {
		if dev.ID == "" {
			errs = append(errs, fmt.Sprintf("devices.registry[%d].id is required", i))
			continue
		}
		if seen[dev.ID] {
			errs = append(errs, fmt.Sprintf("devices.registry[%d]: duplicate device id %q", i, dev.ID))
		}
		seen[dev.ID] = true
		if len(dev.Traits) == 0 {
			errs = append(errs, fmt.Sprintf("devices.registry[%d] (%s): at least one trait is required", i, dev.ID))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed: %s", strings.Join(errs, "; "))
	}

	return nil
}
