package config

import (
	"strings"
	"time"
)

// ApplyDefaults sets default values for any unspecified configuration fields.
//
// Default strategy: zero values (0, "", false, nil) are replaced with
// defaults; explicit values are preserved.
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyTelemetryDefaults(&cfg.Telemetry)
	applyMetricsDefaults(&cfg.Metrics)
	applyAdminAPIDefaults(&cfg.AdminAPI)
	applyReaperDefaults(&cfg.Reaper)
	applyLinkDefaults(&cfg.Link)
	applyAccountStoreDefaults(&cfg.AccountStore)
	applyKerberosDefaults(&cfg.Kerberos)

	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}
}

// applyLoggingDefaults sets logging defaults and normalizes the level.
func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stdout"
	}
}

// applyTelemetryDefaults sets OpenTelemetry defaults.
func applyTelemetryDefaults(cfg *TelemetryConfig) {
	// Enabled defaults to false (opt-in); zero value already is false.

	if cfg.Endpoint == "" {
		cfg.Endpoint = "localhost:4317"
	}
	if cfg.SampleRate == 0 {
		cfg.SampleRate = 1.0
	}

	applyProfilingDefaults(&cfg.Profiling)
}

// applyProfilingDefaults sets Pyroscope profiling defaults.
func applyProfilingDefaults(cfg *ProfilingConfig) {
	if cfg.Endpoint == "" {
		cfg.Endpoint = "http://localhost:4040"
	}
}

// applyMetricsDefaults sets metrics server defaults.
func applyMetricsDefaults(cfg *MetricsConfig) {
	if cfg.Enabled && cfg.Address == "" {
		cfg.Address = ":9090"
	}
}

// applyAdminAPIDefaults sets admin API defaults.
func applyAdminAPIDefaults(cfg *AdminAPIConfig) {
	if cfg.Address == "" {
		cfg.Address = ":8901"
	}
	if cfg.JWT.Issuer == "" {
		cfg.JWT.Issuer = "saslbrokerd"
	}
	if cfg.JWT.TokenDuration == 0 {
		cfg.JWT.TokenDuration = 15 * time.Minute
	}
}

// applyReaperDefaults sets reaper defaults.
// Tick defaults to 30s, per spec.md §4.6.
func applyReaperDefaults(cfg *ReaperConfig) {
	if cfg.Tick == 0 {
		cfg.Tick = 30 * time.Second
	}
}

// applyLinkDefaults sets S2S link defaults.
func applyLinkDefaults(cfg *LinkConfig) {
	if cfg.Network == "" {
		cfg.Network = "tcp"
	}
	if cfg.ServerName == "" {
		cfg.ServerName = "services.sasl"
	}
	if cfg.ReconnectMinBackoff == 0 {
		cfg.ReconnectMinBackoff = 1 * time.Second
	}
	if cfg.ReconnectMaxBackoff == 0 {
		cfg.ReconnectMaxBackoff = 60 * time.Second
	}
}

// applyAccountStoreDefaults sets account store defaults.
func applyAccountStoreDefaults(cfg *AccountStoreConfig) {
	if cfg.Driver == "" {
		cfg.Driver = "sqlite"
	}
	if cfg.DSN == "" && cfg.Driver == "sqlite" {
		cfg.DSN = "file:saslbroker.db?cache=shared"
	}
	if cfg.MaxOpenConns == 0 {
		cfg.MaxOpenConns = 10
	}
	if cfg.MaxIdleConns == 0 {
		cfg.MaxIdleConns = 5
	}
}

// applyKerberosDefaults sets Kerberos/GSSAPI defaults.
func applyKerberosDefaults(cfg *KerberosConfig) {
	if cfg.Krb5Conf == "" {
		cfg.Krb5Conf = "/etc/krb5.conf"
	}
	if cfg.MaxClockSkew == 0 {
		cfg.MaxClockSkew = 5 * time.Minute
	}
}

// GetDefaultConfig returns a Config struct with all default values applied.
//
// Useful for generating sample configuration files, tests, and
// documentation.
func GetDefaultConfig() *Config {
	cfg := &Config{
		AccountStore: AccountStoreConfig{
			Driver: "sqlite",
		},
	}

	ApplyDefaults(cfg)
	return cfg
}
