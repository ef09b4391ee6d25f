package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

type ServerConfig struct {
	Address string `mapstructure:"address"`
	Port    int    `mapstructure:"port"`
	Mode    string `mapstructure:"mode"`
}

type DatabaseConfig struct {
	Path          string `mapstructure:"path"`
	LogMode       bool   `mapstructure:"log_mode"`
	BusyTimeoutMS int    `mapstructure:"busy_timeout_ms"`
}

type JWTConfig struct {
	Secret      string `mapstructure:"secret"`
	Issuer      string `mapstructure:"issuer"`
	ExpireHours int    `mapstructure:"expire_hours"`
}

type SecurityConfig struct {
	EncryptionKey string `mapstructure:"encryption_key"`
}

type LogConfig struct {
	File   string `mapstructure:"file"`
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json / text
}

type BackupConfig struct {
	Dir  string `mapstructure:"dir"`
	Keep int    `mapstructure:"keep"` // 0 = keep all
}

type SchedulerConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Interval time.Duration `mapstructure:"interval"`
}

type LedgerConfig struct {
	DefaultCurrency       string `mapstructure:"default_currency"`
	OpeningBalanceAccount string `mapstructure:"opening_balance_account"`
}

type ExportConfig struct {
	Dir string `mapstructure:"dir"`
}

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	JWT       JWTConfig       `mapstructure:"jwt"`
	Security  SecurityConfig  `mapstructure:"security"`
	Log       LogConfig       `mapstructure:"log"`
	Backup    BackupConfig    `mapstructure:"backup"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Ledger    LedgerConfig    `mapstructure:"ledger"`
	Export    ExportConfig    `mapstructure:"export"`
}

// Default returns a configuration usable without any file.
func Default() *Config {
	return &Config{
		Server:    ServerConfig{Address: "127.0.0.1", Port: 8080, Mode: "release"},
		Database:  DatabaseConfig{Path: "data/cashbook.db", BusyTimeoutMS: 5000},
		JWT:       JWTConfig{Issuer: "cashbook", ExpireHours: 24},
		Log:       LogConfig{Level: "info", Format: "json"},
		Backup:    BackupConfig{Dir: "data/backups", Keep: 10},
		Scheduler: SchedulerConfig{Enabled: true, Interval: time.Hour},
		Ledger:    LedgerConfig{DefaultCurrency: "USD", OpeningBalanceAccount: "Opening Balances"},
		Export:    ExportConfig{Dir: "data/exports"},
	}
}

func setDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("server.address", d.Server.Address)
	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("server.mode", d.Server.Mode)
	v.SetDefault("database.path", d.Database.Path)
	v.SetDefault("database.log_mode", d.Database.LogMode)
	v.SetDefault("database.busy_timeout_ms", d.Database.BusyTimeoutMS)
	v.SetDefault("jwt.secret", "")
	v.SetDefault("jwt.issuer", d.JWT.Issuer)
	v.SetDefault("jwt.expire_hours", d.JWT.ExpireHours)
	v.SetDefault("security.encryption_key", "")
	v.SetDefault("log.file", "")
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
	v.SetDefault("backup.dir", d.Backup.Dir)
	v.SetDefault("backup.keep", d.Backup.Keep)
	v.SetDefault("scheduler.enabled", d.Scheduler.Enabled)
	v.SetDefault("scheduler.interval", d.Scheduler.Interval)
	v.SetDefault("ledger.default_currency", d.Ledger.DefaultCurrency)
	v.SetDefault("ledger.opening_balance_account", d.Ledger.OpeningBalanceAccount)
	v.SetDefault("export.dir", d.Export.Dir)
}

// Load reads configuration from the given file path (e.g. "config.yaml").
// If path is empty, "config.yaml" in the working directory is used when it
// exists. Environment variables prefixed with CASHBOOK_ override file
// values, e.g. CASHBOOK_DATABASE_PATH. A .env file is loaded first if present.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)

	if path == "" {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	} else {
		v.SetConfigFile(path)
	}

	v.SetEnvPrefix("CASHBOOK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		// an explicit path must exist, the implicit one is optional
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate checks values that would otherwise fail late at runtime.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Database.Path) == "" {
		return fmt.Errorf("config: database.path is required")
	}
	if c.Scheduler.Enabled && c.Scheduler.Interval <= 0 {
		return fmt.Errorf("config: scheduler.interval must be positive")
	}
	if _, err := logrus.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("config: log.level: %w", err)
	}
	if c.Backup.Keep < 0 {
		return fmt.Errorf("config: backup.keep must not be negative")
	}
	return nil
}
