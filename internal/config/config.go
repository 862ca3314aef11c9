package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Shopify   ShopifyConfig   `mapstructure:"shopify"`
	Airtable  AirtableConfig  `mapstructure:"airtable"`
	Sync      SyncConfig      `mapstructure:"sync"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
}

type ServerConfig struct {
	Port int        `mapstructure:"port"`
	Mode string     `mapstructure:"mode"`
	CORS CORSConfig `mapstructure:"cors"`
}

type CORSConfig struct {
	AllowedOrigins  []string `mapstructure:"allowed_origins"`
	AllowAllOrigins bool     `mapstructure:"allow_all_origins"`
}

type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"` // sqlite or postgres
	Path            string        `mapstructure:"path"`   // sqlite file path
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Name            string        `mapstructure:"name"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

// DSN builds the connection string for the configured driver.
func (c *DatabaseConfig) DSN() string {
	if c.Driver == "postgres" {
		return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode)
	}
	return c.Path
}

type ShopifyConfig struct {
	ShopName    string        `mapstructure:"shop_name"`
	APIVersion  string        `mapstructure:"api_version"`
	AccessToken string        `mapstructure:"access_token"`
	WebhookURL  string        `mapstructure:"webhook_url"`
	PageDelay   time.Duration `mapstructure:"page_delay"`
}

type AirtableConfig struct {
	APIKey    string `mapstructure:"api_key"`
	BaseID    string `mapstructure:"base_id"`
	TableName string `mapstructure:"table_name"`
}

type SyncConfig struct {
	PageSize   int           `mapstructure:"page_size"`
	BatchDelay time.Duration `mapstructure:"batch_delay"`
	MaxRetries int           `mapstructure:"max_retries"`
}

type SchedulerConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	SyncCron     string        `mapstructure:"sync_cron"`
	RetryCron    string        `mapstructure:"retry_cron"`
	CycleTimeout time.Duration `mapstructure:"cycle_timeout"`
}

func Load(configPath string) (*Config, error) {
	// Load .env file if exists
	_ = godotenv.Load()

	v := viper.New()

	// Set config file path
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	// Enable environment variable override
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Set defaults
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "debug")
	v.SetDefault("server.cors.allow_all_origins", true)
	v.SetDefault("server.cors.allowed_origins", []string{})
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "./data/ordersync.db")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.max_open_conns", 20)
	v.SetDefault("database.conn_max_lifetime", time.Hour)
	v.SetDefault("database.auto_migrate", true)
	v.SetDefault("shopify.api_version", "2024-10")
	v.SetDefault("shopify.page_delay", 100*time.Millisecond)
	v.SetDefault("airtable.table_name", "VIVANTI LONDON ORDER TRACKING")
	v.SetDefault("sync.page_size", 150)
	v.SetDefault("sync.batch_delay", 200*time.Millisecond)
	v.SetDefault("sync.max_retries", 3)
	v.SetDefault("scheduler.enabled", false)
	v.SetDefault("scheduler.sync_cron", "0 */12 * * *")
	v.SetDefault("scheduler.retry_cron", "0 * * * *")
	v.SetDefault("scheduler.cycle_timeout", 30*time.Minute)

	// Read config file
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Bind environment variables explicitly for sensitive data
	v.BindEnv("database.host", "DB_HOST")
	v.BindEnv("database.password", "DB_PASSWORD")
	v.BindEnv("shopify.shop_name", "SHOPIFY_SHOP_NAME")
	v.BindEnv("shopify.access_token", "SHOPIFY_ACCESS_TOKEN")
	v.BindEnv("shopify.webhook_url", "SHOPIFY_WEBHOOK_URL")
	v.BindEnv("airtable.api_key", "AIRTABLE_API_KEY")
	v.BindEnv("airtable.base_id", "AIRTABLE_BASE_ID")
	v.BindEnv("airtable.table_name", "AIRTABLE_TABLE_NAME")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}
