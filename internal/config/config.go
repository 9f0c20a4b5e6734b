package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/Adda-Baaj/certless/pkg/version"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// ConfigFileEnv names the environment variable pointing at an optional
// config file (YAML, JSON or TOML).
const ConfigFileEnv = "CERTLESS_CONF"

// Config holds the application configuration loaded from files and environment variables.
type Config struct {
	AppName  string `mapstructure:"app_name"`
	Env      string `mapstructure:"app_env"`
	LogLevel string `mapstructure:"log_level"`

	Server             string        `mapstructure:"server"`
	ServerPort         int           `mapstructure:"server_port"`
	SSLMode            string        `mapstructure:"ssl_mode"`
	SSLCert            string        `mapstructure:"ssl_cert"`
	SSLKey             string        `mapstructure:"ssl_key"`
	SSLCACert          string        `mapstructure:"ssl_ca_cert"`
	SSLCipherSuitesRaw string        `mapstructure:"ssl_cipher_suites"`
	SSLCipherSuites    []string      `mapstructure:"-"`
	SPIFFETrustDomain  string        `mapstructure:"spiffe_trust_domain"`
	SPIFFEServerID     string        `mapstructure:"spiffe_server_id"`
	PuppetVersion      string        `mapstructure:"puppet_version"`
	RequestTimeoutSec  int64         `mapstructure:"request_timeout_seconds"`
	RequestTimeout     time.Duration `mapstructure:"-"`
	ConnectionCaching  bool          `mapstructure:"connection_caching"`

	NodesFile            string        `mapstructure:"nodes_file"`
	PublishersFile       string        `mapstructure:"publishers_file"`
	FetchIntervalSeconds int64         `mapstructure:"fetch_interval"`
	FetchInterval        time.Duration `mapstructure:"-"`
	FetchConcurrency     int           `mapstructure:"fetch_concurrency"`

	StorageType            string        `mapstructure:"storage_type"`
	BBoltPath              string        `mapstructure:"bbolt_path"`
	StorageTTLSeconds      int64         `mapstructure:"storage_ttl_seconds"`
	StorageCleanupSeconds  int64         `mapstructure:"storage_cleanup_interval_seconds"`
	StorageTTL             time.Duration `mapstructure:"-"`
	StorageCleanupInterval time.Duration `mapstructure:"-"`
}

// Load reads configuration from environment variables and config files.
func Load() (*Config, error) {
	_ = godotenv.Load("configs/.env")

	v := viper.New()

	v.SetDefault("app_name", "certless-agent")
	v.SetDefault("app_env", "development")
	v.SetDefault("log_level", "info")
	v.SetDefault("server", "puppet")
	v.SetDefault("server_port", 8140)
	v.SetDefault("ssl_mode", "pem")
	v.SetDefault("ssl_cert", "./certs/cert.pem")
	v.SetDefault("ssl_key", "./certs/key.pem")
	v.SetDefault("ssl_ca_cert", "./certs/ca.pem")
	v.SetDefault("ssl_cipher_suites", "")
	v.SetDefault("spiffe_trust_domain", "")
	v.SetDefault("spiffe_server_id", "")
	v.SetDefault("puppet_version", version.Version)
	v.SetDefault("request_timeout_seconds", 60)
	v.SetDefault("connection_caching", true)
	v.SetDefault("nodes_file", "./configs/nodes.yaml")
	v.SetDefault("publishers_file", "./configs/publishers.yaml")
	v.SetDefault("fetch_interval", 1800) // seconds
	v.SetDefault("fetch_concurrency", 4)
	v.SetDefault("storage_type", "bbolt")
	v.SetDefault("bbolt_path", "./data/catalogs.db")
	v.SetDefault("storage_ttl_seconds", int64((7*24*time.Hour)/time.Second))
	v.SetDefault("storage_cleanup_interval_seconds", int64((12*time.Hour)/time.Second))

	if path := strings.TrimSpace(os.Getenv(ConfigFileEnv)); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", path, err)
		}
	}

	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.finalize(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (cfg *Config) finalize() error {
	cfg.Server = strings.TrimSpace(cfg.Server)
	if cfg.Server == "" {
		return fmt.Errorf("server is required")
	}
	if cfg.ServerPort <= 0 || cfg.ServerPort > 65535 {
		return fmt.Errorf("invalid server_port %d", cfg.ServerPort)
	}

	cfg.SSLMode = strings.ToLower(strings.TrimSpace(cfg.SSLMode))
	switch cfg.SSLMode {
	case "pem":
	case "spiffe":
		if strings.TrimSpace(cfg.SPIFFETrustDomain) == "" {
			return fmt.Errorf("spiffe_trust_domain is required when ssl_mode is spiffe")
		}
	default:
		return fmt.Errorf("invalid ssl_mode %q (expected pem or spiffe)", cfg.SSLMode)
	}
	cfg.SSLCipherSuites = splitList(cfg.SSLCipherSuitesRaw)

	if strings.TrimSpace(cfg.PuppetVersion) == "" {
		cfg.PuppetVersion = version.Version
	}

	if cfg.RequestTimeoutSec <= 0 {
		return fmt.Errorf("invalid request_timeout_seconds (must be positive seconds)")
	}
	cfg.RequestTimeout = time.Duration(cfg.RequestTimeoutSec) * time.Second

	if cfg.FetchIntervalSeconds <= 0 {
		return fmt.Errorf("invalid fetch_interval (must be positive seconds)")
	}
	cfg.FetchInterval = time.Duration(cfg.FetchIntervalSeconds) * time.Second

	if cfg.FetchConcurrency <= 0 {
		return fmt.Errorf("invalid fetch_concurrency (must be positive)")
	}

	if cfg.StorageTTLSeconds <= 0 {
		return fmt.Errorf("invalid storage_ttl_seconds (must be positive seconds)")
	}
	if cfg.StorageCleanupSeconds <= 0 {
		return fmt.Errorf("invalid storage_cleanup_interval_seconds (must be positive seconds)")
	}
	cfg.StorageTTL = time.Duration(cfg.StorageTTLSeconds) * time.Second
	cfg.StorageCleanupInterval = time.Duration(cfg.StorageCleanupSeconds) * time.Second

	return nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.FieldsFunc(raw, func(r rune) bool { return r == ',' || r == ':' }) {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
