package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Download DownloadConfig `mapstructure:"download" yaml:"download"`
	Limits   LimitsConfig   `mapstructure:"limits" yaml:"limits"`
	Queue    QueueConfig    `mapstructure:"queue" yaml:"queue"`
	Store    StoreConfig    `mapstructure:"store" yaml:"store"`
	Media    MediaConfig    `mapstructure:"media" yaml:"media"`
	Retry    RetryConfig    `mapstructure:"retry" yaml:"retry"`
	Auth     AuthConfig     `mapstructure:"auth" yaml:"auth"`
	API      APIConfig      `mapstructure:"api" yaml:"api"`
	Log      LogConfig      `mapstructure:"log" yaml:"log"`

	Port string `mapstructure:"port" yaml:"port"`
}

type DownloadConfig struct {
	OutDir        string `mapstructure:"out_dir" yaml:"out_dir"`
	PlaylistLimit int    `mapstructure:"playlist_limit" yaml:"playlist_limit"`
	AudioQuality  string `mapstructure:"audio_quality" yaml:"audio_quality"`
}

type LimitsConfig struct {
	MaxDuration    int64 `mapstructure:"max_duration" yaml:"max_duration"`
	MaxSize        int64 `mapstructure:"max_size" yaml:"max_size"`
	DailyDownloads int   `mapstructure:"daily_downloads" yaml:"daily_downloads"`
}

type QueueConfig struct {
	Backend         string        `mapstructure:"backend" yaml:"backend"`
	RedisURL        string        `mapstructure:"redis_url" yaml:"redis_url"`
	Workers         int           `mapstructure:"workers" yaml:"workers"`
	Buffer          int           `mapstructure:"buffer" yaml:"buffer"`
	WaitTimeout     time.Duration `mapstructure:"wait_timeout" yaml:"wait_timeout"`
	ResultTTL       time.Duration `mapstructure:"result_ttl" yaml:"result_ttl"`
	CancelOnTimeout bool          `mapstructure:"cancel_on_timeout" yaml:"cancel_on_timeout"`
}

type StoreConfig struct {
	Driver      string `mapstructure:"driver" yaml:"driver"`
	SQLitePath  string `mapstructure:"sqlite_path" yaml:"sqlite_path"`
	PostgresDSN string `mapstructure:"postgres_dsn" yaml:"postgres_dsn"`
}

type MediaConfig struct {
	YtDlpPath          string `mapstructure:"ytdlp_path" yaml:"ytdlp_path"`
	FFmpegPath         string `mapstructure:"ffmpeg_path" yaml:"ffmpeg_path"`
	MaxConcurrentTrims int    `mapstructure:"max_concurrent_trims" yaml:"max_concurrent_trims"`
}

type RetryConfig struct {
	MaxAttempts int           `mapstructure:"max_attempts" yaml:"max_attempts"`
	BaseDelay   time.Duration `mapstructure:"base_delay" yaml:"base_delay"`
}

type AuthConfig struct {
	JWTSecret string        `mapstructure:"jwt_secret" yaml:"jwt_secret"`
	Issuer    string        `mapstructure:"issuer" yaml:"issuer"`
	TokenTTL  time.Duration `mapstructure:"token_ttl" yaml:"token_ttl"`
}

type APIConfig struct {
	RequestsPerMinute int `mapstructure:"requests_per_minute" yaml:"requests_per_minute"`
}

type LogConfig struct {
	Path          string `mapstructure:"path" yaml:"path"`
	Level         string `mapstructure:"level" yaml:"level"`
	IncludeStdout bool   `mapstructure:"include_stdout" yaml:"include_stdout"`
}

const (
	BackendMemory = "memory"
	BackendRedis  = "redis"

	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// legacyEnv maps config keys to the bare variable names older
// deployments export.
var legacyEnv = map[string]string{
	"limits.max_duration":    "MAX_DURATION",
	"limits.max_size":        "MAX_SIZE",
	"limits.daily_downloads": "DOWNLOAD_LIMIT_PER_DAY",
	"queue.redis_url":        "BROKER",
	"store.postgres_dsn":     "Database_Connection",
}

// Load reads path, or config.yaml and /config/config.yaml when path is
// empty. Only an explicitly named file is required to exist.
func Load(path string) (*Config, error) {
	// .env is optional
	_ = godotenv.Load()

	explicit := path != ""
	if !explicit {
		path = "config.yaml"
		if _, err := os.Stat(path); os.IsNotExist(err) {
			// Docker images mount config under /config
			if _, errEx := os.Stat("/config/config.yaml"); errEx == nil {
				path = "/config/config.yaml"
			} else {
				path = ""
			}
		}
	} else if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("config file not found: %s", path)
	}

	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")

		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("error reading config file %s: %w", path, err)
		}
	}

	v.SetEnvPrefix("TUBEFETCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for key, legacy := range legacyEnv {
		envKey := "TUBEFETCH_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, envKey, legacy); err != nil {
			return nil, fmt.Errorf("binding %s: %w", key, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("port", "8080")
	v.SetDefault("download.out_dir", "./downloads")
	v.SetDefault("download.playlist_limit", 10)
	v.SetDefault("download.audio_quality", "192K")
	v.SetDefault("limits.max_duration", 18000)
	v.SetDefault("limits.max_size", int64(3221225472))
	v.SetDefault("limits.daily_downloads", 100)
	v.SetDefault("queue.backend", BackendMemory)
	v.SetDefault("queue.workers", 2)
	v.SetDefault("queue.buffer", 64)
	v.SetDefault("queue.wait_timeout", "1h")
	v.SetDefault("queue.result_ttl", "24h")
	v.SetDefault("queue.cancel_on_timeout", false)
	v.SetDefault("store.driver", DriverSQLite)
	v.SetDefault("store.sqlite_path", "./data/tubefetch.db")
	v.SetDefault("media.ytdlp_path", "yt-dlp")
	v.SetDefault("media.ffmpeg_path", "ffmpeg")
	v.SetDefault("media.max_concurrent_trims", 2)
	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.base_delay", "2s")
	v.SetDefault("auth.issuer", "tubefetch")
	v.SetDefault("auth.token_ttl", "24h")
	v.SetDefault("api.requests_per_minute", 30)
	v.SetDefault("log.path", "tubefetch.log")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.include_stdout", true)
}

func (c *Config) validate() error {
	if c.Download.OutDir == "" {
		c.Download.OutDir = "./downloads"
	}

	if c.Download.PlaylistLimit <= 0 {
		c.Download.PlaylistLimit = 10
	}

	if c.Download.AudioQuality == "" {
		c.Download.AudioQuality = "192K"
	}

	if c.Limits.MaxDuration < 0 || c.Limits.MaxSize < 0 || c.Limits.DailyDownloads < 0 {
		return errors.New("limits must not be negative")
	}

	switch c.Queue.Backend {
	case BackendMemory:
	case BackendRedis:
		if c.Queue.RedisURL == "" {
			return errors.New("queue.redis_url is required for the redis backend")
		}
	default:
		return fmt.Errorf("unknown queue backend %q", c.Queue.Backend)
	}

	if c.Queue.Workers < 0 {
		return errors.New("queue.workers must not be negative")
	}

	if c.Queue.Buffer <= 0 {
		c.Queue.Buffer = 64
	}

	switch c.Store.Driver {
	case DriverSQLite:
		if c.Store.SQLitePath == "" {
			return errors.New("store.sqlite_path is required for the sqlite driver")
		}
	case DriverPostgres:
		if c.Store.PostgresDSN == "" {
			return errors.New("store.postgres_dsn is required for the postgres driver")
		}
	default:
		return fmt.Errorf("unknown store driver %q", c.Store.Driver)
	}

	if c.Media.MaxConcurrentTrims <= 0 {
		c.Media.MaxConcurrentTrims = 1
	}

	if c.Retry.MaxAttempts <= 0 {
		c.Retry.MaxAttempts = 1
	}

	if c.API.RequestsPerMinute < 0 {
		c.API.RequestsPerMinute = 0
	}

	return nil
}

// AuthEnabled reports whether a signing secret is configured.
func (c *Config) AuthEnabled() bool {
	return c.Auth.JWTSecret != ""
}
