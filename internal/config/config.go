package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"fee-tracker/internal/insights"
	"fee-tracker/internal/logging"
	"fee-tracker/internal/version"
)

// EnvPrefix namespaces environment overrides, e.g. FEETRACKER_HORIZON_BASE_URL.
const EnvPrefix = "FEETRACKER"

// Config materialises application configuration. It is immutable once loaded.
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Logging   logging.Config  `mapstructure:"logging"`
	Horizon   HorizonConfig   `mapstructure:"horizon"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	History   HistoryConfig   `mapstructure:"history"`
	Insights  insights.Config `mapstructure:"insights"`
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Alerting  AlertingConfig  `mapstructure:"alerting"`
	Export    ExportConfig    `mapstructure:"export"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// HorizonConfig covers the upstream fee statistics API.
type HorizonConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	UserAgent      string        `mapstructure:"user_agent"`
}

// SchedulerConfig governs polling cadence.
type SchedulerConfig struct {
	Interval      time.Duration `mapstructure:"interval"`
	AlignToBucket bool          `mapstructure:"align_to_bucket"`
	StartupDelay  time.Duration `mapstructure:"startup_delay"`
	PollOnStart   bool          `mapstructure:"poll_on_start"`
}

// HistoryConfig sizes the in-memory snapshot window.
type HistoryConfig struct {
	Capacity int `mapstructure:"capacity"`
}

// ServerConfig configures the HTTP query surface.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	AllowedOrigins  []string      `mapstructure:"allowed_origins"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	RateLimitRPS    float64       `mapstructure:"rate_limit_rps"`
	RateLimitBurst  int           `mapstructure:"rate_limit_burst"`
}

// Addr returns host:port for the listener.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// DatabaseConfig encapsulates the optional PostgreSQL archive.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
}

// AlertingConfig defines alert routing.
type AlertingConfig struct {
	Enabled  bool           `mapstructure:"enabled"`
	Cooldown time.Duration  `mapstructure:"cooldown"`
	Telegram TelegramConfig `mapstructure:"telegram"`
}

// TelegramConfig describes the Telegram notifier.
type TelegramConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	BotToken string `mapstructure:"bot_token"`
	ChatID   string `mapstructure:"chat_id"`
	APIBase  string `mapstructure:"api_base"`
}

// ExportConfig sets CLI export behaviour.
type ExportConfig struct {
	MaxDataPoints int `mapstructure:"max_data_points"`
}

// Load builds configuration from file, environment, and defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)
	if err := bindSecrets(v); err != nil {
		return nil, err
	}

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := readConfig(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func readConfig(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", version.Name)
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("horizon.base_url", "https://horizon.stellar.org")
	v.SetDefault("horizon.request_timeout", "10s")
	v.SetDefault("horizon.user_agent", version.UserAgent())

	v.SetDefault("scheduler.interval", "10s")
	v.SetDefault("scheduler.align_to_bucket", false)
	v.SetDefault("scheduler.startup_delay", "0s")
	v.SetDefault("scheduler.poll_on_start", true)

	v.SetDefault("history.capacity", 100)

	ins := insights.DefaultConfig()
	v.SetDefault("insights.window", ins.Window)
	v.SetDefault("insights.volatility_threshold", ins.VolatilityThreshold)
	v.SetDefault("insights.trend_sensitivity", ins.TrendSensitivity)
	v.SetDefault("insights.tier_band", ins.TierBand)

	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"http://localhost:3000"})
	v.SetDefault("server.read_timeout", "10s")
	v.SetDefault("server.write_timeout", "10s")
	v.SetDefault("server.shutdown_timeout", "10s")
	v.SetDefault("server.rate_limit_rps", 20.0)
	v.SetDefault("server.rate_limit_burst", 40)

	v.SetDefault("alerting.enabled", false)
	v.SetDefault("alerting.cooldown", "30m")
	v.SetDefault("alerting.telegram.enabled", false)
	v.SetDefault("alerting.telegram.api_base", "https://api.telegram.org")

	v.SetDefault("export.max_data_points", 10000)

	v.SetDefault("database.max_open_conns", 5)
	v.SetDefault("database.max_idle_conns", 1)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("database.write_timeout", "5s")
}

// secretKeys have no default, so AutomaticEnv alone would never surface them.
var secretKeys = []string{
	"database.dsn",
	"alerting.telegram.bot_token",
	"alerting.telegram.chat_id",
}

func bindSecrets(v *viper.Viper) error {
	for _, key := range secretKeys {
		if err := v.BindEnv(key); err != nil {
			return fmt.Errorf("bind env %s: %w", key, err)
		}
	}
	return nil
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}

// Validate performs basic sanity checks on the configuration values.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Horizon.BaseURL) == "" {
		return fmt.Errorf("horizon.base_url is required")
	}
	if c.Scheduler.Interval < time.Second {
		return fmt.Errorf("scheduler.interval must be at least 1s")
	}
	if c.History.Capacity < 1 {
		return fmt.Errorf("history.capacity must be at least 1")
	}
	if err := c.Insights.Validate(); err != nil {
		return err
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535")
	}
	if c.Server.RateLimitRPS < 0 {
		return fmt.Errorf("server.rate_limit_rps cannot be negative")
	}
	if c.Export.MaxDataPoints <= 0 {
		return fmt.Errorf("export.max_data_points must be greater than zero")
	}
	if c.Database.WriteTimeout < 0 {
		return fmt.Errorf("database.write_timeout cannot be negative")
	}
	if c.Alerting.Cooldown < 0 {
		return fmt.Errorf("alerting.cooldown cannot be negative")
	}
	if c.Alerting.Telegram.Enabled {
		if c.Alerting.Telegram.BotToken == "" {
			return fmt.Errorf("alerting.telegram.bot_token is required")
		}
		if c.Alerting.Telegram.ChatID == "" {
			return fmt.Errorf("alerting.telegram.chat_id is required")
		}
	}
	return nil
}

// ResolveMaxPoints returns either the CLI override or config default.
func (c *Config) ResolveMaxPoints(override int) int {
	if override > 0 {
		return override
	}
	return c.Export.MaxDataPoints
}
