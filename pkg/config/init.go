package config

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// configTemplate is the bootstrap configuration file written by InitConfig.
// {{JWT_SECRET}} is substituted with a freshly generated random secret.
const configTemplate = `# SASL Broker Configuration File
# Generated by 'saslbrokerctl init'

logging:
  level: INFO
  format: text
  output: stdout

reaper:
  tick: 30s

link:
  network: tcp
  address: "127.0.0.1:6667"
  server_name: services.sasl

policy:
  hide_server_names: false
  max_logins: 0

accountstore:
  driver: sqlite
  dsn: "saslbroker.db"

adminapi:
  enabled: true
  address: ":8901"
  jwt:
    secret: "{{JWT_SECRET}}"
    issuer: saslbrokerd

metrics:
  enabled: false

kerberos:
  enabled: false
`

// generateJWTSecret returns a cryptographically random, URL-safe base64
// string suitable as an HMAC signing key for the admin API.
func generateJWTSecret() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate random bytes: %w", err)
	}
	return base64.URLEncoding.EncodeToString(b), nil
}

// InitConfig writes a bootstrap configuration file to the default location
// (see GetDefaultConfigPath), refusing to overwrite an existing file
// unless force is true. Returns the path written.
func InitConfig(force bool) (string, error) {
	path := GetDefaultConfigPath()
	if err := InitConfigToPath(path, force); err != nil {
		return "", err
	}
	return path, nil
}

// InitConfigToPath writes a bootstrap configuration file to path, refusing
// to overwrite an existing file unless force is true.
func InitConfigToPath(path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("configuration file already exists: %s (use --force to overwrite)", path)
		}
	}

	secret, err := generateJWTSecret()
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	content := strings.Replace(configTemplate, "{{JWT_SECRET}}", secret, 1)

	// 0600: the generated file embeds a freshly minted JWT secret.
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}
