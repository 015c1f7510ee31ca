package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Port                     string
	Environment              string
	AllowedOrigin            string
	DatabaseURL              string
	DBMaxOpenConns           int
	DBMaxIdleConns           int
	RedisAddr                string
	RedisPassword            string
	RedisDB                  int
	DashboardCacheTTLSeconds int
	AuthSecret               string
	AuthIssuer               string
	OwnerUsername            string
	OwnerPassword            string
	AccessTokenTTLMinutes    int
	LogLevel                 string
	LogFormat                string
	SchedulerEnabled         bool
	DailySummaryCron         string
	LowStockThreshold        int
	StudioName               string
	StudioTimezone           string

	// ConfigFileErr is set when CONFIG_FILE could not be read. Load still
	// returns the environment-only config.
	ConfigFileErr error
}

// Load reads .env (when present), an optional CONFIG_FILE and then the
// process environment, which wins over both.
func Load() Config {
	_ = godotenv.Load()

	v := viper.New()
	v.AutomaticEnv()
	v.SetDefault("port", "8080")
	v.SetDefault("environment", "development")
	v.SetDefault("allowed_origin", "http://127.0.0.1:3000")
	v.SetDefault("redis_db", 0)
	v.SetDefault("auth_issuer", "studiobook")
	v.SetDefault("owner_username", "owner")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "json")
	v.SetDefault("scheduler_enabled", true)
	v.SetDefault("daily_summary_cron", "0 6 * * *")
	v.SetDefault("studio_name", "Piercing Studio")
	v.SetDefault("studio_timezone", "UTC")

	var fileErr error
	if file := strings.TrimSpace(os.Getenv("CONFIG_FILE")); file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			fileErr = fmt.Errorf("read %s: %w", file, err)
		}
	}

	cfg := Config{
		Port:                     v.GetString("port"),
		Environment:              v.GetString("environment"),
		AllowedOrigin:            v.GetString("allowed_origin"),
		DatabaseURL:              strings.TrimSpace(v.GetString("database_url")),
		DBMaxOpenConns:           positiveInt(v, "db_max_open_conns", 30),
		DBMaxIdleConns:           positiveInt(v, "db_max_idle_conns", 8),
		RedisAddr:                strings.TrimSpace(v.GetString("redis_addr")),
		RedisPassword:            v.GetString("redis_password"),
		RedisDB:                  v.GetInt("redis_db"),
		DashboardCacheTTLSeconds: positiveInt(v, "dashboard_cache_ttl_seconds", 300),
		AuthSecret:               strings.TrimSpace(v.GetString("auth_secret")),
		AuthIssuer:               v.GetString("auth_issuer"),
		OwnerUsername:            strings.ToLower(strings.TrimSpace(v.GetString("owner_username"))),
		OwnerPassword:            v.GetString("owner_password"),
		AccessTokenTTLMinutes:    positiveInt(v, "access_token_ttl_minutes", 480),
		LogLevel:                 v.GetString("log_level"),
		LogFormat:                v.GetString("log_format"),
		SchedulerEnabled:         v.GetBool("scheduler_enabled"),
		DailySummaryCron:         strings.TrimSpace(v.GetString("daily_summary_cron")),
		LowStockThreshold:        positiveInt(v, "low_stock_threshold", 3),
		StudioName:               v.GetString("studio_name"),
		StudioTimezone:           v.GetString("studio_timezone"),
		ConfigFileErr:            fileErr,
	}

	return cfg
}

func (c Config) Address() string {
	return fmt.Sprintf(":%s", c.Port)
}

func (c Config) IsProduction() bool {
	return strings.EqualFold(c.Environment, "production")
}

// positiveInt falls back when the value is missing, malformed or below 1.
func positiveInt(v *viper.Viper, key string, fallback int) int {
	val := v.GetInt(key)
	if val < 1 {
		return fallback
	}
	return val
}
