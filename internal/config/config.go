package config

import (
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Config represents the global ~/.wpplink/config.toml.
type Config struct {
	DefaultSession string        `toml:"default_session"`
	Account        AccountConfig `toml:"account"`
	Relay          RelayConfig   `toml:"relay"`
	Link           LinkConfig    `toml:"link"`
	Backup         BackupConfig  `toml:"backup"`
	Storage        StorageConfig `toml:"storage"`
	Metrics        MetricsConfig `toml:"metrics"`
}

// AccountConfig identifies the local device.
type AccountConfig struct {
	ACI      string `toml:"aci"`
	DeviceID uint32 `toml:"device_id"`
	Password string `toml:"password"`
	Primary  bool   `toml:"primary"`
}

// RelayConfig points at the server mediating the link handshake.
type RelayConfig struct {
	BaseURL string `toml:"base_url"`
}

// LinkConfig controls link-and-sync.
type LinkConfig struct {
	Enabled bool `toml:"enabled"`
	// WaitTimeout is the long-poll window requested from the server.
	WaitTimeout Duration `toml:"wait_timeout"`
	// RequestSlack is added on top of WaitTimeout for the client-side deadline.
	RequestSlack Duration `toml:"request_slack"`
}

// BackupConfig controls archive generation.
type BackupConfig struct {
	MinExpireThreshold Duration `toml:"min_expire_threshold"`
}

// StorageConfig describes the S3 bucket used for transient transfer archives.
type StorageConfig struct {
	Bucket    string `toml:"bucket"`
	Region    string `toml:"region"`
	Endpoint  string `toml:"endpoint"`
	AccessKey string `toml:"access_key"`
	SecretKey string `toml:"secret_key"`
	CDN       uint32 `toml:"cdn"`
	// TransferTTL is how long an uploaded transfer archive is kept before
	// the janitor deletes it.
	TransferTTL Duration `toml:"transfer_ttl"`
}

// MetricsConfig enables the prometheus endpoint when Addr is set.
type MetricsConfig struct {
	Addr string `toml:"addr"`
}

// Duration is a time.Duration that reads and writes as "5m", "10s", etc.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Account: AccountConfig{DeviceID: 1, Primary: true},
		Relay:   RelayConfig{BaseURL: "http://127.0.0.1:8480"},
		Link: LinkConfig{
			Enabled:      true,
			WaitTimeout:  Duration{5 * time.Minute},
			RequestSlack: Duration{10 * time.Second},
		},
		Backup:  BackupConfig{MinExpireThreshold: Duration{24 * time.Hour}},
		Storage: StorageConfig{Region: "us-east-1", Bucket: "wpplink-transfer", CDN: 3, TransferTTL: Duration{time.Hour}},
	}
}

// Load reads config from the given path on top of Default. Returns error if file missing.
func Load(path string) (*Config, error) {
	cfg := Default()
	_, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes config to the given path, creating parent dirs as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(cfg)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}

// Environment variables that override file values. Secrets are expected here
// rather than in config.toml.
const (
	EnvRelayURL       = "WPPLINK_RELAY_URL"
	EnvRelayPassword  = "WPPLINK_RELAY_PASSWORD"
	EnvS3AccessKey    = "WPPLINK_S3_ACCESS_KEY"
	EnvS3SecretKey    = "WPPLINK_S3_SECRET_KEY"
	EnvS3Endpoint     = "WPPLINK_S3_ENDPOINT"
	EnvLinkEnabled    = "WPPLINK_LINK_ENABLED"
	EnvMetricsAddress = "WPPLINK_METRICS_ADDR"
)

// ApplyEnv loads dotenvPath (if it exists) into the process environment and
// then applies the WPPLINK_* overrides to cfg.
func ApplyEnv(cfg *Config, dotenvPath string) {
	if dotenvPath != "" {
		// Missing .env is the common case.
		_ = godotenv.Load(dotenvPath)
	}
	setString(&cfg.Relay.BaseURL, EnvRelayURL)
	setString(&cfg.Account.Password, EnvRelayPassword)
	setString(&cfg.Storage.AccessKey, EnvS3AccessKey)
	setString(&cfg.Storage.SecretKey, EnvS3SecretKey)
	setString(&cfg.Storage.Endpoint, EnvS3Endpoint)
	setString(&cfg.Metrics.Addr, EnvMetricsAddress)
	if v, ok := os.LookupEnv(EnvLinkEnabled); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Link.Enabled = b
		}
	}
}

func setString(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		*dst = v
	}
}
