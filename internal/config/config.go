// Package config loads the service configuration file.
package config

import (
	"bytes"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"gopkg.in/yaml.v3"

	"github.com/isometry/adis/internal/ldap"
)

// APIKeyEnv overrides General.APIKey when set.
const APIKeyEnv = "ADIS_API_KEY"

// Config is the complete service configuration.
type Config struct {
	General General  `yaml:"general"`
	LDAP    LDAP     `yaml:"ldap"`
	Servers []Server `yaml:"servers"`
}

// General holds transport-level settings.
type General struct {
	// APIKey is the shared secret expected in the X-API-Key header.
	APIKey string `yaml:"api_key"`

	ListenAddr string `yaml:"listen_addr" default:":8000"`

	// RequestTimeout bounds a single dispatch, including connect and bind.
	RequestTimeout time.Duration `yaml:"request_timeout" default:"60s"`
}

// LDAP holds settings shared by every directory session.
type LDAP struct {
	Timeout            time.Duration `yaml:"timeout" default:"30s"`
	UseTLS             bool          `yaml:"use_tls"`
	StartTLS           bool          `yaml:"start_tls"`
	InsecureSkipVerify bool          `yaml:"insecure_skip_verify"`
	CACertFile         string        `yaml:"ca_cert_file"`
	PageSize           uint32        `yaml:"page_size" default:"1000"`

	MaxRetries     int           `yaml:"max_retries" default:"2"`
	InitialBackoff time.Duration `yaml:"initial_backoff" default:"500ms"`
	MaxBackoff     time.Duration `yaml:"max_backoff" default:"5s"`
	BackoffFactor  float64       `yaml:"backoff_factor" default:"2.0"`
}

// Server is one configured directory domain and its service account.
type Server struct {
	Name     string `yaml:"name"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port" default:"389"`
	Login    string `yaml:"login"`
	Password string `yaml:"password"`

	Auth           string `yaml:"auth" default:"simple"`
	KerberosRealm  string `yaml:"kerberos_realm"`
	KerberosConfig string `yaml:"kerberos_config"`
	KerberosSPN    string `yaml:"kerberos_spn"`
}

// Load reads, parses and validates the configuration file at path.
func Load(path string) (*Config, error) {
	cleanPath := filepath.Clean(path)
	data, err := os.ReadFile(cleanPath) // #nosec G304 - path comes from the operator
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", cleanPath, err)
	}

	return cfg, nil
}

// Parse decodes YAML configuration, applies defaults and the environment
// override, and validates the result.
func Parse(data []byte) (*Config, error) {
	cfg := &Config{}
	if err := defaults.Set(cfg); err != nil {
		return nil, fmt.Errorf("failed to set default values: %w", err)
	}

	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Server entries only exist after decoding.
	for i := range cfg.Servers {
		if err := defaults.Set(&cfg.Servers[i]); err != nil {
			return nil, fmt.Errorf("failed to set default values for servers[%d]: %w", i, err)
		}
	}

	if key := os.Getenv(APIKeyEnv); key != "" {
		cfg.General.APIKey = key
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate reports every configuration problem at once.
func (c *Config) Validate() error {
	var errs []error

	if c.General.APIKey == "" {
		errs = append(errs, fmt.Errorf("general.api_key is required (or set %s)", APIKeyEnv))
	}
	if c.General.RequestTimeout <= 0 {
		errs = append(errs, errors.New("general.request_timeout must be positive"))
	}
	if c.LDAP.Timeout <= 0 {
		errs = append(errs, errors.New("ldap.timeout must be positive"))
	}
	if c.LDAP.UseTLS && c.LDAP.StartTLS {
		errs = append(errs, errors.New("ldap.use_tls and ldap.start_tls are mutually exclusive"))
	}
	if c.LDAP.MaxRetries < 0 {
		errs = append(errs, errors.New("ldap.max_retries cannot be negative"))
	}

	seen := make(map[string]int, len(c.Servers))
	for i, server := range c.Servers {
		prefix := fmt.Sprintf("servers[%d]", i)
		if server.Host == "" {
			errs = append(errs, fmt.Errorf("%s: host is required", prefix))
		} else {
			host := strings.ToLower(server.Host)
			if first, dup := seen[host]; dup {
				errs = append(errs, fmt.Errorf("%s: duplicate host %q (already defined by servers[%d])", prefix, server.Host, first))
			} else {
				seen[host] = i
			}
		}
		if server.Login == "" {
			errs = append(errs, fmt.Errorf("%s: login is required", prefix))
		}
		if server.Port < 1 || server.Port > 65535 {
			errs = append(errs, fmt.Errorf("%s: port %d out of range", prefix, server.Port))
		}
		if _, err := ldap.ParseAuthMethod(server.Auth); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", prefix, err))
		}
	}

	return errors.Join(errs...)
}

// ConnectionConfig converts the ldap section into session settings.
func (c *Config) ConnectionConfig() (*ldap.ConnectionConfig, error) {
	conn := ldap.DefaultConfig()
	conn.Timeout = c.LDAP.Timeout
	conn.UseTLS = c.LDAP.UseTLS
	conn.StartTLS = c.LDAP.StartTLS
	conn.PageSize = c.LDAP.PageSize
	conn.MaxRetries = c.LDAP.MaxRetries
	conn.InitialBackoff = c.LDAP.InitialBackoff
	conn.MaxBackoff = c.LDAP.MaxBackoff
	conn.BackoffFactor = c.LDAP.BackoffFactor

	conn.TLSConfig = &tls.Config{
		MinVersion:         tls.VersionTLS12,
		InsecureSkipVerify: c.LDAP.InsecureSkipVerify, // #nosec G402 - operator opt-in
	}

	if c.LDAP.CACertFile != "" {
		pem, err := os.ReadFile(filepath.Clean(c.LDAP.CACertFile))
		if err != nil {
			return nil, fmt.Errorf("failed to read ldap.ca_cert_file: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("ldap.ca_cert_file %s contains no PEM certificates", c.LDAP.CACertFile)
		}
		conn.TLSConfig.RootCAs = pool
	}

	return conn, nil
}
