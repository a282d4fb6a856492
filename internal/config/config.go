// Package config loads runtime configuration for each of the three
// components from file, environment, and flags, using viper the way the
// teacher's chain binaries bind config (SPEC_FULL.md §1).
package config

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Shared holds the settings common to all three components.
type Shared struct {
	ListenAddr      string        `mapstructure:"listen_addr"`
	TLSCertFile     string        `mapstructure:"tls_cert_file"`
	TLSKeyFile      string        `mapstructure:"tls_key_file"`
	TLSClientCAFile string        `mapstructure:"tls_client_ca_file"`
	SigningSeedHex  string        `mapstructure:"signing_seed_hex"`
	LogLevel        string        `mapstructure:"log_level"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout"`
	MetricsAddr     string        `mapstructure:"metrics_addr"`
}

// VerifierConfig adds Verifier-specific settings atop Shared.
type VerifierConfig struct {
	Shared           `mapstructure:",squash"`
	NonceExpiration  time.Duration     `mapstructure:"nonce_expiration"`
	NonceBackend     string            `mapstructure:"nonce_backend"`
	RedisAddr        string            `mapstructure:"redis_addr"`
	DAPPublicKeyHex  string            `mapstructure:"dap_public_key_hex"`
	PIPublicKeyHex   string            `mapstructure:"pi_public_key_hex"`
	ApprovedPipeline map[string]string `mapstructure:"approved_pipelines"`
}

// DAPConfig adds DAP-specific settings atop Shared.
type DAPConfig struct {
	Shared            `mapstructure:",squash"`
	MongoURI          string   `mapstructure:"mongo_uri"`
	MongoDatabase     string   `mapstructure:"mongo_database"`
	VerifierAddr      string   `mapstructure:"verifier_addr"`
	VerifierPublicKey string   `mapstructure:"verifier_public_key_hex"`
	PermittedRoutes   []string `mapstructure:"permitted_routes"`
	NonceBackend      string   `mapstructure:"nonce_backend"`
	RedisAddr         string   `mapstructure:"redis_addr"`
	HWPlatform        string   `mapstructure:"hw_platform"`
	HWQuoteHex        string   `mapstructure:"hw_quote_hex"`
}

// PIConfig adds PI-specific settings atop Shared.
type PIConfig struct {
	Shared            `mapstructure:",squash"`
	DAPAddr           string `mapstructure:"dap_addr"`
	VerifierAddr      string `mapstructure:"verifier_addr"`
	VerifierPublicKey string `mapstructure:"verifier_public_key_hex"`
	RedisAddr         string `mapstructure:"redis_addr"`
	HWPlatform        string `mapstructure:"hw_platform"`
	HWQuoteHex        string `mapstructure:"hw_quote_hex"`
}

// New builds a viper instance bound to flags, a config file named
// "vericare" (any supported extension) searched in the working directory
// and /etc/vericare, and VERICARE_-prefixed environment variables.
func New(flags *pflag.FlagSet) (*viper.Viper, error) {
	v := viper.New()
	v.SetConfigName("vericare")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/vericare")
	v.SetEnvPrefix("VERICARE")
	v.AutomaticEnv()

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return nil, fmt.Errorf("bind flags: %w", err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}
	return v, nil
}
