package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Backend     BackendConfig     `mapstructure:"backend"`
	Detector    DetectorConfig    `mapstructure:"detector"`
	Panel       PanelConfig       `mapstructure:"panel"`
	Coordinator CoordinatorConfig `mapstructure:"coordinator"`
	Logging     LoggingConfig     `mapstructure:"logging"`
}

// ServerConfig holds the browser shell HTTP server configuration.
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// BackendConfig points at the local download server.
type BackendConfig struct {
	URL     string        `mapstructure:"url"`
	Timeout time.Duration `mapstructure:"timeout"` // 0 disables the client timeout
}

// DetectorConfig holds page detection delays.
type DetectorConfig struct {
	SettleDelay     time.Duration `mapstructure:"settle_delay"`
	NavigationDelay time.Duration `mapstructure:"navigation_delay"`
}

// PanelConfig holds panel timings.
type PanelConfig struct {
	PollInterval time.Duration `mapstructure:"poll_interval"`
	CloseDelay   time.Duration `mapstructure:"close_delay"`
}

// CoordinatorConfig holds background coordinator settings.
type CoordinatorConfig struct {
	HealthCron string `mapstructure:"health_cron"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	Path       string `mapstructure:"path"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "127.0.0.1",
			Port: 8765,
		},
		Backend: BackendConfig{
			URL: defaultBackendURL(),
		},
		Detector: DetectorConfig{
			SettleDelay:     2 * time.Second,
			NavigationDelay: 1 * time.Second,
		},
		Panel: PanelConfig{
			PollInterval: 1 * time.Second,
			CloseDelay:   3 * time.Second,
		},
		Coordinator: CoordinatorConfig{
			HealthCron: "*/5 * * * *",
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "console",
			MaxSizeMB:  10,
			MaxBackups: 5,
			MaxAgeDays: 30,
			Compress:   true,
		},
	}
}

// Load reads configuration from file and environment variables.
// Priority: environment variables > config file > defaults
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("$HOME/.vidgrab")
	}

	v.SetEnvPrefix("VIDGRAB")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// setDefaults mirrors Default so that env-only keys are known to viper.
func setDefaults(v *viper.Viper) {
	d := Default()

	v.SetDefault("server.host", d.Server.Host)
	v.SetDefault("server.port", d.Server.Port)

	v.SetDefault("backend.url", d.Backend.URL)
	v.SetDefault("backend.timeout", d.Backend.Timeout)

	v.SetDefault("detector.settle_delay", d.Detector.SettleDelay)
	v.SetDefault("detector.navigation_delay", d.Detector.NavigationDelay)

	v.SetDefault("panel.poll_interval", d.Panel.PollInterval)
	v.SetDefault("panel.close_delay", d.Panel.CloseDelay)

	v.SetDefault("coordinator.health_cron", d.Coordinator.HealthCron)

	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.format", d.Logging.Format)
	v.SetDefault("logging.path", d.Logging.Path)
	v.SetDefault("logging.max_size_mb", d.Logging.MaxSizeMB)
	v.SetDefault("logging.max_backups", d.Logging.MaxBackups)
	v.SetDefault("logging.max_age_days", d.Logging.MaxAgeDays)
	v.SetDefault("logging.compress", d.Logging.Compress)
}

// Validate rejects values no component can run with.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server.port %d", c.Server.Port)
	}
	if c.Backend.URL == "" {
		return fmt.Errorf("backend.url is required")
	}
	if c.Backend.Timeout < 0 {
		return fmt.Errorf("invalid backend.timeout %s", c.Backend.Timeout)
	}
	if c.Panel.PollInterval <= 0 {
		return fmt.Errorf("invalid panel.poll_interval %s", c.Panel.PollInterval)
	}
	return nil
}

// Address returns the server address string.
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
