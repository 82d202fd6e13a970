package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"ixmanager_bridge/internal/models"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment override, e.g. IXM_IXMANAGER_API_KEY.
const EnvPrefix = "IXM"

type Config struct {
	Port      string          `mapstructure:"port"`
	LogLevel  string          `mapstructure:"log_level"`
	DB        DBConfig        `mapstructure:"db"`
	IXManager IXManagerConfig `mapstructure:"ixmanager"`
	Polling   PollingConfig   `mapstructure:"polling"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Influx    InfluxConfig    `mapstructure:"influx"`
	CORS      CORSConfig      `mapstructure:"cors"`
}

type DBConfig struct {
	Path string `mapstructure:"path"`
}

type IXManagerConfig struct {
	BaseURL      string        `mapstructure:"base_url"`
	SerialNumber string        `mapstructure:"serial_number"`
	APIKey       string        `mapstructure:"api_key"`
	Timeout      time.Duration `mapstructure:"timeout"`
	CableType    string        `mapstructure:"cable_type"`
}

func (c IXManagerConfig) Credentials() models.Credentials {
	return models.Credentials{SerialNumber: c.SerialNumber, APIKey: c.APIKey}
}

type PollingConfig struct {
	Interval     time.Duration `mapstructure:"interval"`
	MaxBackoff   time.Duration `mapstructure:"max_backoff"`
	RefreshDelay time.Duration `mapstructure:"refresh_delay"`
}

type AuthConfig struct {
	SigningKey string        `mapstructure:"signing_key"`
	TokenTTL   time.Duration `mapstructure:"token_ttl"`
}

// InfluxConfig enables status history in InfluxDB when Enabled is set.
type InfluxConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	URL         string `mapstructure:"url"`
	Token       string `mapstructure:"token"`
	Org         string `mapstructure:"org"`
	Bucket      string `mapstructure:"bucket"`
	Measurement string `mapstructure:"measurement"`
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("port", "8080")
	v.SetDefault("log_level", "info")
	v.SetDefault("db.path", "ixmanager.db")

	v.SetDefault("ixmanager.base_url", "https://evcharger.ixcommand.com/api/v1")
	v.SetDefault("ixmanager.serial_number", "")
	v.SetDefault("ixmanager.api_key", "")
	v.SetDefault("ixmanager.timeout", 30*time.Second)
	v.SetDefault("ixmanager.cable_type", string(models.Cable16A))

	v.SetDefault("polling.interval", 30*time.Second)
	v.SetDefault("polling.max_backoff", 5*time.Minute)
	v.SetDefault("polling.refresh_delay", 500*time.Millisecond)

	v.SetDefault("auth.signing_key", "")
	v.SetDefault("auth.token_ttl", time.Hour)

	v.SetDefault("influx.enabled", false)
	v.SetDefault("influx.url", "http://localhost:8086")
	v.SetDefault("influx.token", "")
	v.SetDefault("influx.org", "")
	v.SetDefault("influx.bucket", "ixmanager")
	v.SetDefault("influx.measurement", "charger_status")

	v.SetDefault("cors.allowed_origins", []string{"*"})
}

// Load reads .env files (missing ones are skipped), then config.yml from
// configDir, then IXM_* environment overrides, and validates the result.
func Load(configDir string, envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", f, err)
		}
	}

	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yml")
	v.AddConfigPath(configDir)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the settings the bridge cannot run without.
func (c *Config) Validate() error {
	var errs []error
	if err := c.IXManager.Credentials().Validate(); err != nil {
		errs = append(errs, fmt.Errorf("ixmanager: %w", err))
	}
	if _, err := models.ParseCableType(c.IXManager.CableType); err != nil {
		errs = append(errs, fmt.Errorf("ixmanager: %w", err))
	}
	if strings.TrimSpace(c.Auth.SigningKey) == "" {
		errs = append(errs, errors.New("auth.signing_key is required"))
	}
	if c.Polling.Interval <= 0 {
		errs = append(errs, fmt.Errorf("polling.interval must be > 0, got %s", c.Polling.Interval))
	}
	if c.Polling.MaxBackoff < c.Polling.Interval {
		errs = append(errs, fmt.Errorf("polling.max_backoff (%s) must be >= polling.interval (%s)", c.Polling.MaxBackoff, c.Polling.Interval))
	}
	if c.Influx.Enabled && (c.Influx.URL == "" || c.Influx.Bucket == "") {
		errs = append(errs, errors.New("influx: url and bucket are required when enabled"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}
