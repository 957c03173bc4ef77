package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// EnvPrefix は設定を上書きする環境変数の接頭辞 (例: GATEWAY_WEATHER_API_KEY)
const EnvPrefix = "GATEWAY"

// Config はゲートウェイ全体の設定
type Config struct {
	Server   ServerConfig   `mapstructure:"server" yaml:"server"`
	Dispatch DispatchConfig `mapstructure:"dispatch" yaml:"dispatch"`
	Cache    CacheConfig    `mapstructure:"cache" yaml:"cache"`
	Weather  WeatherConfig  `mapstructure:"weather" yaml:"weather"`
	GitHub   GitHubConfig   `mapstructure:"github" yaml:"github"`
	Logging  LoggingConfig  `mapstructure:"logging" yaml:"logging"`
	Metrics  MetricsConfig  `mapstructure:"metrics" yaml:"metrics"`
}

type ServerConfig struct {
	Host            string        `mapstructure:"host" yaml:"host"`
	Port            int           `mapstructure:"port" yaml:"port"`
	MetricsPort     int           `mapstructure:"metrics_port" yaml:"metrics_port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
	RetryAfter      time.Duration `mapstructure:"retry_after" yaml:"retry_after"`
}

type DispatchConfig struct {
	// Strategy は spawn, pool, pipeline のいずれか
	Strategy  string `mapstructure:"strategy" yaml:"strategy"`
	Workers   int    `mapstructure:"workers" yaml:"workers"`
	QueueSize int    `mapstructure:"queue_size" yaml:"queue_size"`
	// Overflow はキューが一杯のときの動作. block または reject
	Overflow       string `mapstructure:"overflow" yaml:"overflow"`
	PipelineBuffer int    `mapstructure:"pipeline_buffer" yaml:"pipeline_buffer"`
}

type CacheConfig struct {
	// Locking は singleflight または global
	Locking           string `mapstructure:"locking" yaml:"locking"`
	Shards            int    `mapstructure:"shards" yaml:"shards"`
	CompressThreshold int    `mapstructure:"compress_threshold" yaml:"compress_threshold"`
}

type WeatherConfig struct {
	BaseURL string        `mapstructure:"base_url" yaml:"base_url"`
	APIKey  string        `mapstructure:"api_key" yaml:"api_key"`
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

type GitHubConfig struct {
	BaseURL   string        `mapstructure:"base_url" yaml:"base_url"`
	Token     string        `mapstructure:"token" yaml:"token"`
	UserAgent string        `mapstructure:"user_agent" yaml:"user_agent"`
	Timeout   time.Duration `mapstructure:"timeout" yaml:"timeout"`
	// CommentBuffer はスコア付け済みコメントを流すチャネルの容量
	CommentBuffer int `mapstructure:"comment_buffer" yaml:"comment_buffer"`
}

type LoggingConfig struct {
	Level    string `mapstructure:"level" yaml:"level"`
	Format   string `mapstructure:"format" yaml:"format"`
	Dir      string `mapstructure:"dir" yaml:"dir"`
	Filename string `mapstructure:"filename" yaml:"filename"`
}

type MetricsConfig struct {
	SaveInterval time.Duration `mapstructure:"save_interval" yaml:"save_interval"`
	File         string        `mapstructure:"file" yaml:"file"`
}

// Default はデフォルト設定を返す
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "localhost",
			Port:            8080,
			MetricsPort:     8081,
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 30 * time.Second,
			RetryAfter:      time.Second,
		},
		Dispatch: DispatchConfig{
			Strategy:       "pool",
			Workers:        16,
			QueueSize:      64,
			Overflow:       "block",
			PipelineBuffer: 64,
		},
		Cache: CacheConfig{
			Locking:           "singleflight",
			Shards:            32,
			CompressThreshold: 1024,
		},
		Weather: WeatherConfig{
			BaseURL: "http://api.weatherapi.com/v1/forecast.json",
			Timeout: 10 * time.Second,
		},
		GitHub: GitHubConfig{
			BaseURL:       "https://api.github.com",
			UserAgent:     "gateway-sentiment/1.0",
			Timeout:       15 * time.Second,
			CommentBuffer: 16,
		},
		Logging: LoggingConfig{
			Level:    "info",
			Format:   "console",
			Dir:      "./logs",
			Filename: "gateway.log",
		},
		Metrics: MetricsConfig{
			SaveInterval: time.Minute,
			File:         "./logs/metrics.json",
		},
	}
}

// flagKeys はCLIフラグ名と設定キーの対応
var flagKeys = map[string]string{
	"host":         "server.host",
	"port":         "server.port",
	"metrics-port": "server.metrics_port",
	"strategy":     "dispatch.strategy",
	"workers":      "dispatch.workers",
	"queue-size":   "dispatch.queue_size",
	"overflow":     "dispatch.overflow",
	"locking":      "cache.locking",
	"log-level":    "logging.level",
	"log-format":   "logging.format",
}

// Load はデフォルト、設定ファイル、環境変数、フラグの順に重ねて設定を読み込む.
// configFile が空の場合はカレントディレクトリと ./configs の gateway.yaml を探し、無ければデフォルトを使う.
func Load(configFile string, flags *pflag.FlagSet) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v, Default())

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("gateway")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if flags != nil {
		for name, key := range flagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("failed to bind flag %s: %w", name, err)
				}
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("server.host", d.Server.Host)
	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("server.metrics_port", d.Server.MetricsPort)
	v.SetDefault("server.read_timeout", d.Server.ReadTimeout)
	v.SetDefault("server.write_timeout", d.Server.WriteTimeout)
	v.SetDefault("server.shutdown_timeout", d.Server.ShutdownTimeout)
	v.SetDefault("server.retry_after", d.Server.RetryAfter)

	v.SetDefault("dispatch.strategy", d.Dispatch.Strategy)
	v.SetDefault("dispatch.workers", d.Dispatch.Workers)
	v.SetDefault("dispatch.queue_size", d.Dispatch.QueueSize)
	v.SetDefault("dispatch.overflow", d.Dispatch.Overflow)
	v.SetDefault("dispatch.pipeline_buffer", d.Dispatch.PipelineBuffer)

	v.SetDefault("cache.locking", d.Cache.Locking)
	v.SetDefault("cache.shards", d.Cache.Shards)
	v.SetDefault("cache.compress_threshold", d.Cache.CompressThreshold)

	v.SetDefault("weather.base_url", d.Weather.BaseURL)
	v.SetDefault("weather.api_key", d.Weather.APIKey)
	v.SetDefault("weather.timeout", d.Weather.Timeout)

	v.SetDefault("github.base_url", d.GitHub.BaseURL)
	v.SetDefault("github.token", d.GitHub.Token)
	v.SetDefault("github.user_agent", d.GitHub.UserAgent)
	v.SetDefault("github.timeout", d.GitHub.Timeout)
	v.SetDefault("github.comment_buffer", d.GitHub.CommentBuffer)

	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.format", d.Logging.Format)
	v.SetDefault("logging.dir", d.Logging.Dir)
	v.SetDefault("logging.filename", d.Logging.Filename)

	v.SetDefault("metrics.save_interval", d.Metrics.SaveInterval)
	v.SetDefault("metrics.file", d.Metrics.File)
}

// WriteDefault はデフォルト設定をYAMLで書き出す. 既存のファイルは上書きしない.
func WriteDefault(path string) error {
	data, err := yaml.Marshal(Default())
	if err != nil {
		return fmt.Errorf("failed to create default config: %w", err)
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return fmt.Errorf("failed to write default config: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("failed to write default config: %w", err)
	}
	return nil
}

// Validate は設定値を検証する
func (c *Config) Validate() error {
	switch c.Dispatch.Strategy {
	case "spawn", "pipeline":
	case "pool":
		if c.Dispatch.Workers <= 0 {
			return &ConfigError{Field: "dispatch.workers", Message: "must be positive"}
		}
		if c.Dispatch.QueueSize < 0 {
			return &ConfigError{Field: "dispatch.queue_size", Message: "must not be negative"}
		}
		if c.Dispatch.Overflow != "block" && c.Dispatch.Overflow != "reject" {
			return &ConfigError{Field: "dispatch.overflow", Message: "must be block or reject"}
		}
	default:
		return &ConfigError{Field: "dispatch.strategy", Message: "must be spawn, pool or pipeline"}
	}

	if c.Cache.Locking != "singleflight" && c.Cache.Locking != "global" {
		return &ConfigError{Field: "cache.locking", Message: "must be singleflight or global"}
	}
	if err := validatePort("server.port", c.Server.Port); err != nil {
		return err
	}
	if err := validatePort("server.metrics_port", c.Server.MetricsPort); err != nil {
		return err
	}
	if c.Server.Port == c.Server.MetricsPort {
		return &ConfigError{Field: "server.metrics_port", Message: "must differ from server.port"}
	}
	if c.Weather.BaseURL == "" {
		return &ConfigError{Field: "weather.base_url", Message: "must not be empty"}
	}
	if c.GitHub.BaseURL == "" {
		return &ConfigError{Field: "github.base_url", Message: "must not be empty"}
	}
	if c.Weather.Timeout <= 0 || c.GitHub.Timeout <= 0 {
		return &ConfigError{Field: "timeout", Message: "upstream timeouts must be positive"}
	}
	return nil
}

func validatePort(field string, port int) error {
	if port < 0 || port > 65535 {
		return &ConfigError{Field: field, Message: fmt.Sprintf("invalid port %d", port)}
	}
	return nil
}

// ConfigError は設定値の誤りを表す
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return "config error in field '" + e.Field + "': " + e.Message
}
