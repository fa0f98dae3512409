package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config is the full application configuration tree.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Log       LogConfig       `mapstructure:"log"`
	Engine    EngineConfig    `mapstructure:"engine"`
	Messaging MessagingConfig `mapstructure:"messaging"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port         int    `mapstructure:"port"`
	Mode         string `mapstructure:"mode"` // debug, release, test
	ReadTimeout  int    `mapstructure:"read_timeout"`
	WriteTimeout int    `mapstructure:"write_timeout"`
}

// DatabaseConfig configures the Postgres connection.
type DatabaseConfig struct {
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	User            string `mapstructure:"user"`
	Password        string `mapstructure:"password"`
	DBName          string `mapstructure:"dbname"`
	SSLMode         string `mapstructure:"sslmode"`
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns"`
	ConnMaxLifetime int    `mapstructure:"conn_max_lifetime"` // seconds
	AutoMigrate     bool   `mapstructure:"auto_migrate"`
}

// RedisConfig configures the Redis connection used by the task queue.
type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	PoolSize int    `mapstructure:"pool_size"`
}

// LogConfig configures the logger.
type LogConfig struct {
	Level      string `mapstructure:"level"`       // debug, info, warn, error
	Format     string `mapstructure:"format"`      // json, console
	OutputPath string `mapstructure:"output_path"` // stdout, stderr, /path/to/log
}

// EngineConfig configures the workflow engine runtime behaviour.
type EngineConfig struct {
	// ActionTimeout bounds a single external action call, in seconds.
	ActionTimeout int `mapstructure:"action_timeout"`
	// StaleRunCutoff is the age in minutes after which a RUNNING execution
	// is treated as a crash leftover and reconciled to FAILED.
	StaleRunCutoff int `mapstructure:"stale_run_cutoff"`
	// TickCron is the cron spec for the daily time-based trigger scan.
	TickCron string `mapstructure:"tick_cron"`
}

// MessagingConfig configures the outbound SMS and email providers.
type MessagingConfig struct {
	SMS  SMSConfig  `mapstructure:"sms"`
	SMTP SMTPConfig `mapstructure:"smtp"`
}

// SMSConfig configures the HTTP SMS gateway.
type SMSConfig struct {
	GatewayURL string `mapstructure:"gateway_url"`
	APIKey     string `mapstructure:"api_key"`
	SenderName string `mapstructure:"sender_name"`
	Timeout    int    `mapstructure:"timeout"` // seconds
}

// SMTPConfig configures the email sender.
type SMTPConfig struct {
	Host        string `mapstructure:"host"`
	Port        int    `mapstructure:"port"`
	Username    string `mapstructure:"username"`
	Password    string `mapstructure:"password"`
	FromAddress string `mapstructure:"from_address"`
	FromName    string `mapstructure:"from_name"`
}

var globalConfig *Config

// Load reads the configuration for the given environment (dev, prod, test).
// Environment variables prefixed with APP_ override file values, with dots
// replaced by underscores (APP_DATABASE_HOST overrides database.host).
func Load(env string, configPath string) (*Config, error) {
	v := viper.New()

	if configPath == "" {
		v.SetConfigName(env)
		v.AddConfigPath("./config")
		v.AddConfigPath("../config")
		v.AddConfigPath("../../config")
	} else {
		v.SetConfigFile(configPath)
	}

	v.SetConfigType("yaml")

	v.SetEnvPrefix("APP")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	globalConfig = &cfg
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("engine.action_timeout", 30)
	v.SetDefault("engine.stale_run_cutoff", 60)
	v.SetDefault("engine.tick_cron", "0 6 * * *")
	v.SetDefault("messaging.sms.timeout", 10)
}

// Get returns the loaded global configuration.
func Get() *Config {
	if globalConfig == nil {
		panic("config not initialised, call Load() first")
	}
	return globalConfig
}

// GetDSN builds the Postgres connection string.
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode,
	)
}
