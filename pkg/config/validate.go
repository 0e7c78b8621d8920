package config

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// Validate checks struct tags via go-playground/validator and applies the
// cross-field rules validator tags alone cannot express.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return err
	}

	if cfg.Telemetry.Enabled && cfg.Telemetry.Endpoint == "" {
		return fmt.Errorf("telemetry.endpoint is required when telemetry is enabled")
	}

	if cfg.Kerberos.Enabled {
		if cfg.Kerberos.KeytabPath == "" {
			return fmt.Errorf("kerberos.keytab_path is required when kerberos is enabled")
		}
		if cfg.Kerberos.ServicePrincipal == "" {
			return fmt.Errorf("kerberos.service_principal is required when kerberos is enabled")
		}
	}

	if cfg.AdminAPI.Enabled && len(strings.TrimSpace(cfg.AdminAPI.JWT.GetJWTSecret())) < 32 {
		return fmt.Errorf("adminapi.jwt.secret must be at least 32 characters when the admin API is enabled")
	}

	return nil
}
