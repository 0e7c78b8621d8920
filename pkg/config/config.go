// Package config loads the SASL broker's static configuration: logging,
// telemetry, metrics, the admin API, the reaper, the upstream S2S link,
// authentication policy, the account store backend, and the optional
// GSSAPI/Kerberos mechanism.
//
// Configuration sources, in ascending priority:
//  1. Default values (lowest priority)
//  2. A YAML configuration file
//  3. Environment variables (SASLBROKER_*) (highest priority)
//
// cmd/saslbrokerd's --config flag only selects the file; no other CLI
// flag is bound into the configuration. See Load for which keys the
// environment can override.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/ircservices/saslbroker/internal/mechanism/gssapi/krb"
)

// Config represents the full SASL broker configuration.
type Config struct {
	// Logging controls log output behavior.
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`

	// Telemetry controls OpenTelemetry distributed tracing.
	Telemetry TelemetryConfig `mapstructure:"telemetry" yaml:"telemetry"`

	// ShutdownTimeout is the maximum time to wait for graceful shutdown
	// of the link, admin API and metrics server.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"required,gt=0" yaml:"shutdown_timeout"`

	// Metrics contains Prometheus metrics server configuration.
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`

	// AdminAPI contains the operator-facing HTTP surface configuration
	// (session list/force-destroy, mechanism list).
	AdminAPI AdminAPIConfig `mapstructure:"adminapi" yaml:"adminapi"`

	// Reaper contains stale-session reaper configuration.
	Reaper ReaperConfig `mapstructure:"reaper" yaml:"reaper"`

	// Link configures the upstream server-to-services (S2S) connection
	// the broker's SASL frames are tunneled over.
	Link LinkConfig `mapstructure:"link" yaml:"link"`

	// Policy contains authcid/authzid and cloak-visibility policy.
	Policy PolicyConfig `mapstructure:"policy" yaml:"policy"`

	// AccountStore configures the backing account database.
	AccountStore AccountStoreConfig `mapstructure:"accountstore" yaml:"accountstore"`

	// Kerberos contains Kerberos/GSSAPI mechanism configuration.
	// Environment variable overrides:
	//   SASLBROKER_KERBEROS_KEYTAB overrides KeytabPath
	//   SASLBROKER_KERBEROS_PRINCIPAL overrides ServicePrincipal
	Kerberos KerberosConfig `mapstructure:"kerberos" yaml:"kerberos"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level to output.
	// Valid values: DEBUG, INFO, WARN, ERROR (case-insensitive).
	Level string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error" yaml:"level"`

	// Format specifies the log output format.
	// Valid values: text, json.
	Format string `mapstructure:"format" validate:"required,oneof=text json" yaml:"format"`

	// Output specifies where logs are written.
	// Valid values: stdout, stderr, or a file path.
	Output string `mapstructure:"output" validate:"required" yaml:"output"`
}

// TelemetryConfig controls OpenTelemetry distributed tracing. When
// enabled, cmd/saslbrokerd sets up the OTLP trace exporter via
// telemetry.Init; the engine and finalizer do not create spans of their
// own.
type TelemetryConfig struct {
	// Enabled controls whether distributed tracing is enabled.
	// Default: false (opt-in).
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Endpoint is the OTLP collector endpoint (host:port).
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint"`

	// Insecure controls whether to use an insecure (non-TLS) connection.
	Insecure bool `mapstructure:"insecure" yaml:"insecure"`

	// SampleRate controls the trace sampling rate (0.0 to 1.0).
	SampleRate float64 `mapstructure:"sample_rate" validate:"omitempty,gte=0,lte=1" yaml:"sample_rate"`

	// Profiling contains Pyroscope continuous profiling configuration.
	Profiling ProfilingConfig `mapstructure:"profiling" yaml:"profiling"`
}

// ProfilingConfig controls Pyroscope continuous profiling.
type ProfilingConfig struct {
	// Enabled controls whether continuous profiling is enabled.
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Endpoint is the Pyroscope server endpoint (URL).
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint"`
}

// MetricsConfig configures the Prometheus metrics HTTP server.
type MetricsConfig struct {
	// Enabled controls whether the metrics HTTP server is started.
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Address is the listen address for the metrics endpoint.
	Address string `mapstructure:"address" yaml:"address"`
}

// AdminAPIConfig configures the operator-facing admin HTTP surface.
type AdminAPIConfig struct {
	// Enabled controls whether the admin API is started.
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Address is the listen address for the admin API.
	Address string `mapstructure:"address" validate:"omitempty,hostname_port" yaml:"address"`

	// JWT configures the HMAC signing key and issuer used to authenticate
	// admin API callers.
	JWT AdminJWTConfig `mapstructure:"jwt" yaml:"jwt"`
}

// AdminJWTConfig configures JWT validation for the admin API.
type AdminJWTConfig struct {
	// Secret is the HMAC signing key for admin JWTs.
	// Must be at least 32 characters. Can also be set via the
	// SASLBROKER_ADMINAPI_SECRET environment variable, which takes
	// precedence over the config file value.
	Secret string `mapstructure:"secret" yaml:"secret"`

	// Issuer is the expected "iss" claim on admin JWTs.
	Issuer string `mapstructure:"issuer" yaml:"issuer"`

	// TokenDuration is the lifetime of admin tokens issued by saslbrokerctl.
	TokenDuration time.Duration `mapstructure:"token_duration" yaml:"token_duration"`
}

// EnvAdminAPISecret is the environment variable overriding AdminJWTConfig.Secret.
const EnvAdminAPISecret = "SASLBROKER_ADMINAPI_SECRET"

// GetJWTSecret returns the admin API JWT secret, preferring the
// environment variable over the config file value.
func (c *AdminJWTConfig) GetJWTSecret() string {
	if envSecret := os.Getenv(EnvAdminAPISecret); envSecret != "" {
		return envSecret
	}
	return c.Secret
}

// ReaperConfig configures the stale-session reaper.
type ReaperConfig struct {
	// Tick is the sweep interval. A session idle for two ticks is
	// destroyed as stale (spec.md §4.6).
	Tick time.Duration `mapstructure:"tick" validate:"omitempty,gt=0" yaml:"tick"`
}

// LinkConfig configures the upstream S2S connection.
type LinkConfig struct {
	// Network is the dial network, e.g. "tcp".
	Network string `mapstructure:"network" yaml:"network"`

	// Address is the upstream IRC server's host:port.
	Address string `mapstructure:"address" yaml:"address"`

	// ServerName is the broker's own server name, used to attribute
	// SourceInfo on sessions it creates (spec.md §3).
	ServerName string `mapstructure:"server_name" yaml:"server_name"`

	// ReconnectMinBackoff is the initial delay before a reconnect attempt.
	ReconnectMinBackoff time.Duration `mapstructure:"reconnect_min_backoff" yaml:"reconnect_min_backoff"`

	// ReconnectMaxBackoff caps the exponential reconnect backoff.
	ReconnectMaxBackoff time.Duration `mapstructure:"reconnect_max_backoff" yaml:"reconnect_max_backoff"`

	// UsesPersistentUIDs indicates the linked IRC dialect reassigns a
	// client's uid across reconnects instead of minting a fresh one, so a
	// reaper sweep destroying a session still awaiting user_add cannot be
	// distinguished from a uid that simply never logged in. Dialects that
	// set this suppress the reaper's "timed out awaiting user_add" log
	// line for that case (spec.md §9 Open Questions).
	UsesPersistentUIDs bool `mapstructure:"uses_persistent_uids" yaml:"uses_persistent_uids"`
}

// PolicyConfig configures authcid/authzid impersonation and cloak policy.
type PolicyConfig struct {
	// HideServerNames suppresses server names from cloaks/messages
	// visible to unprivileged parties.
	HideServerNames bool `mapstructure:"hide_server_names" yaml:"hide_server_names"`

	// MaxLogins caps concurrent successful logins per account; zero
	// means unlimited.
	MaxLogins int `mapstructure:"max_logins" validate:"omitempty,min=0" yaml:"max_logins"`
}

// AccountStoreConfig configures the backing account database.
type AccountStoreConfig struct {
	// Driver selects the backing database engine: "postgres" or "sqlite".
	Driver string `mapstructure:"driver" validate:"required,oneof=postgres sqlite" yaml:"driver"`

	// DSN is the driver-specific data source name.
	DSN string `mapstructure:"dsn" validate:"required" yaml:"dsn"`

	// MigrationPath is read from the configuration file but is not passed
	// on by CreateAccountStore, so setting it does not change which
	// migrations the postgres driver runs.
	MigrationPath string `mapstructure:"migration_path" yaml:"migration_path,omitempty"`

	// MaxOpenConns and MaxIdleConns bound the postgres connection pool.
	MaxOpenConns int `mapstructure:"max_open_conns" yaml:"max_open_conns"`
	MaxIdleConns int `mapstructure:"max_idle_conns" yaml:"max_idle_conns"`
}

// KerberosConfig backs the optional GSSAPI mechanism (internal/mechanism/gssapi).
type KerberosConfig struct {
	// Enabled controls whether the GSSAPI mechanism is registered.
	// Default: false.
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// KeytabPath is the path to the Kerberos keytab file.
	// Override: SASLBROKER_KERBEROS_KEYTAB (primary),
	// SASLBROKER_KERBEROS_KEYTAB_PATH (compat).
	KeytabPath string `mapstructure:"keytab_path" yaml:"keytab_path"`

	// ServicePrincipal is the Kerberos service principal name (SPN).
	// Format: service/hostname@REALM.
	// Override: SASLBROKER_KERBEROS_PRINCIPAL (primary),
	// SASLBROKER_KERBEROS_SERVICE_PRINCIPAL (compat).
	ServicePrincipal string `mapstructure:"service_principal" yaml:"service_principal"`

	// Krb5Conf is the path to the Kerberos configuration file.
	// Default: /etc/krb5.conf.
	Krb5Conf string `mapstructure:"krb5_conf" yaml:"krb5_conf"`

	// MaxClockSkew is the maximum allowed clock difference between the
	// broker and the KDC/client.
	MaxClockSkew time.Duration `mapstructure:"max_clock_skew" yaml:"max_clock_skew"`

	// PrincipalMap maps "principal@REALM" strings to authcids. When
	// empty, the verified principal name is used as the authcid
	// directly (krb.IdentityMapper).
	PrincipalMap map[string]string `mapstructure:"principal_map" yaml:"principal_map,omitempty"`
}

// ToKrbConfig converts KerberosConfig to the krb.Config the GSSAPI
// mechanism's Provider is constructed from.
func (c *KerberosConfig) ToKrbConfig() *krb.Config {
	return &krb.Config{
		KeytabPath:       c.KeytabPath,
		ServicePrincipal: c.ServicePrincipal,
		Krb5Conf:         c.Krb5Conf,
		MaxClockSkew:     c.MaxClockSkew,
	}
}

// Load loads configuration from file, environment, and defaults.
//
// Configuration precedence (highest to lowest):
//  1. Environment variables (SASLBROKER_*)
//  2. Configuration file
//  3. Default values
//
// Environment variables override only keys that appear in the
// configuration file. When no configuration file is found, Load returns
// GetDefaultConfig() and does not consult the environment.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setupViper(v, configPath)

	configFileFound, err := readConfigFile(v)
	if err != nil {
		return nil, err
	}

	if !configFileFound {
		cfg := GetDefaultConfig()
		return cfg, nil
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(configDecodeHooks())); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// MustLoad loads configuration, returning a user-friendly error if the
// given (or default) config file does not exist.
func MustLoad(configPath string) (*Config, error) {
	if configPath == "" {
		if !DefaultConfigExists() {
			return nil, fmt.Errorf("no configuration file found at default location: %s\n\n"+
				"Please create a configuration file first, or specify one with:\n"+
				"  saslbrokerd --config /path/to/config.yaml",
				GetDefaultConfigPath())
		}
		configPath = GetDefaultConfigPath()
	} else if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("configuration file not found: %s", configPath)
	}

	cfg, err := Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, nil
}

// SaveConfig saves the configuration to the specified file path in YAML format.
func SaveConfig(cfg *Config, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	// 0600: config files may carry JWT secrets and DSNs with credentials.
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// setupViper configures viper with environment variable and config file settings.
func setupViper(v *viper.Viper, configPath string) {
	v.SetEnvPrefix("SASLBROKER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		configDir := getConfigDir()
		v.AddConfigPath(configDir)
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
}

// readConfigFile reads the configuration file if it exists.
// Returns (fileFound, error).
func readConfigFile(v *viper.Viper) (bool, error) {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return false, nil
		}
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to read config file: %w", err)
	}
	return true, nil
}

// configDecodeHooks returns the combined mapstructure decode hook used to
// unmarshal durations from human-readable strings.
func configDecodeHooks() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		durationDecodeHook(),
	)
}

// durationDecodeHook converts strings and numbers to time.Duration,
// enabling config files to use human-readable durations like "30s", "5m".
func durationDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(time.Duration(0)) {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			return time.ParseDuration(v)
		case int:
			return time.Duration(v), nil
		case int64:
			return time.Duration(v), nil
		case float64:
			return time.Duration(v), nil
		default:
			return data, nil
		}
	}
}

// getConfigDir returns the configuration directory path, preferring
// XDG_CONFIG_HOME, falling back to ~/.config, and finally to ".".
func getConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "saslbroker")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "saslbroker")
}

// GetDefaultConfigPath returns the default configuration file path.
func GetDefaultConfigPath() string {
	return filepath.Join(getConfigDir(), "config.yaml")
}

// DefaultConfigExists checks if a config file exists at the default location.
func DefaultConfigExists() bool {
	_, err := os.Stat(GetDefaultConfigPath())
	return err == nil
}

// GetConfigDir returns the configuration directory path (exposed for
// saslbrokerctl init-style commands).
func GetConfigDir() string {
	return getConfigDir()
}
