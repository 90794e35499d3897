package config

import (
	"github.com/beyondbrewing/hummock/utils"
	"github.com/cockroachdb/errors"
	"github.com/spf13/viper"
)

// injected configurations
var (
	APP_NAME    string = "hummock"
	APP_VERSION string = "0.0.1"
)

// EnvPrefix is prepended to every environment variable, e.g.
// HUMMOCK_DATA_DIR.
const EnvPrefix = "HUMMOCK"

const (
	KeyDataDir                       = "data_dir"
	KeyWriteConflictDetectionEnabled = "write_conflict_detection_enabled"
	KeyCacheSize                     = "cache_size"
	KeyMemTableSize                  = "memtable_size"
	KeySyncWrites                    = "sync_writes"
	KeyLogLevel                      = "log_level"
	KeyLogFormat                     = "log_format"
)

// Config is the process configuration.
type Config struct {
	DataDir                       string `mapstructure:"data_dir"`
	WriteConflictDetectionEnabled bool   `mapstructure:"write_conflict_detection_enabled"`
	CacheSize                     int64  `mapstructure:"cache_size"`
	MemTableSize                  uint64 `mapstructure:"memtable_size"`
	SyncWrites                    bool   `mapstructure:"sync_writes"`
	LogLevel                      string `mapstructure:"log_level"`
	// LogFormat is "production" (JSON) or "development" (console).
	LogFormat string `mapstructure:"log_format"`
}

// SetDefaults registers the default value of every key on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault(KeyDataDir, "./hummock-data")
	v.SetDefault(KeyWriteConflictDetectionEnabled, false)
	v.SetDefault(KeyCacheSize, int64(256<<20))
	v.SetDefault(KeyMemTableSize, uint64(64<<20))
	v.SetDefault(KeySyncWrites, false)
	v.SetDefault(KeyLogLevel, "info")
	v.SetDefault(KeyLogFormat, "production")
}

// Load reads defaults, the optional .env file and HUMMOCK_* environment
// variables, in increasing precedence.
func Load() (*Config, error) {
	return LoadFrom(viper.New())
}

// LoadFrom is Load over a caller-owned viper instance, which lets the CLI
// bind flags onto it first.
func LoadFrom(v *viper.Viper) (*Config, error) {
	SetDefaults(v)
	if err := utils.ImportEnv(v, EnvPrefix); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "config: decode")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return errors.Newf("config: %s must not be empty", KeyDataDir)
	}
	if c.CacheSize < 0 {
		return errors.Newf("config: %s must not be negative, got %d", KeyCacheSize, c.CacheSize)
	}
	switch c.LogFormat {
	case "production", "development":
	default:
		return errors.Newf("config: unknown %s %q", KeyLogFormat, c.LogFormat)
	}
	return nil
}
