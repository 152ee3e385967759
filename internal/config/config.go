package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all runtime configuration for the photo service.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Storage StorageConfig `mapstructure:"storage"`
	Cleanup CleanupConfig `mapstructure:"cleanup"`
}

type ServerConfig struct {
	Port                 string `mapstructure:"port"`
	ServiceToken         string `mapstructure:"service_token"`
	MaxConcurrentUploads int    `mapstructure:"max_concurrent_uploads"`
	MaxUploadBytes       int64  `mapstructure:"max_upload_bytes"`
	TrustForwarded       bool   `mapstructure:"trust_forwarded"`
	ServePublic          bool   `mapstructure:"serve_public"`
}

type StorageConfig struct {
	ProjectRoot  string `mapstructure:"project_root"`
	SavePath     string `mapstructure:"save_path"`
	BaseURL      string `mapstructure:"base_url"` // empty: derive from each request
	SpoolDir     string `mapstructure:"spool_dir"`
	MinFreeBytes int64  `mapstructure:"min_free_bytes"`
}

type CleanupConfig struct {
	TTL      time.Duration `mapstructure:"ttl"`
	Interval time.Duration `mapstructure:"interval"`
}

// Spool returns the directory upload bodies are staged in before they are
// handed to the store.
func (s StorageConfig) Spool() string {
	if s.SpoolDir != "" {
		return s.SpoolDir
	}
	return filepath.Join(os.TempDir(), "photo-storage", "spool")
}

// SetDefaults registers every key with its default so environment variables
// and flags can override keys that appear in no config file.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "5000")
	v.SetDefault("server.service_token", "")
	v.SetDefault("server.max_concurrent_uploads", 64)
	v.SetDefault("server.max_upload_bytes", 32<<20)
	v.SetDefault("server.trust_forwarded", false)
	v.SetDefault("server.serve_public", true)
	v.SetDefault("storage.project_root", "/data")
	v.SetDefault("storage.save_path", "photos")
	v.SetDefault("storage.base_url", "")
	v.SetDefault("storage.spool_dir", "")
	v.SetDefault("storage.min_free_bytes", 512<<20)
	v.SetDefault("cleanup.ttl", 24*time.Hour)
	v.SetDefault("cleanup.interval", time.Hour)
}

// Load reads configuration from v. A config file is optional: when
// configFile is empty, photo-storage.yaml is looked up in the working
// directory and /etc/photo-storage, and its absence is not an error.
// Environment variables use the PHOTO_ prefix, e.g. PHOTO_STORAGE_SAVE_PATH.
func Load(v *viper.Viper, configFile string) (*Config, error) {
	SetDefaults(v)

	v.SetEnvPrefix("PHOTO")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("photo-storage")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/photo-storage")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if cfg.Storage.ProjectRoot == "" {
		return nil, errors.New("storage.project_root must be set")
	}
	if cfg.Cleanup.Interval <= 0 {
		return nil, fmt.Errorf("cleanup.interval must be positive, got %s", cfg.Cleanup.Interval)
	}
	return &cfg, nil
}
