package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	NATS     NATSConfig     `mapstructure:"nats"`
	Log      LogConfig      `mapstructure:"log"`
	Upstream UpstreamConfig `mapstructure:"upstream"`
	Gateway  GatewayConfig  `mapstructure:"gateway"`
	Auth     AuthConfig     `mapstructure:"auth"`
}

type ServerConfig struct {
	Host        string `mapstructure:"host"`
	Port        int    `mapstructure:"port"`
	CORSOrigins string `mapstructure:"cors_origins"`
}

type DatabaseConfig struct {
	Host          string `mapstructure:"host"`
	Port          int    `mapstructure:"port"`
	User          string `mapstructure:"user"`
	Password      string `mapstructure:"password"`
	DBName        string `mapstructure:"dbname"`
	SSLMode       string `mapstructure:"sslmode"`
	Migrate       bool   `mapstructure:"migrate"`
	MigrationsDir string `mapstructure:"migrations_dir"`
}

// RedisConfig: пустой Addr отключает горячий кэш
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// NATSConfig: пустой URL отключает публикацию событий
type NATSConfig struct {
	URL string `mapstructure:"url"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
	JSON  bool   `mapstructure:"json"`
}

// UpstreamConfig describes the vehicle-data aggregator. APIKey has no default;
// its absence is reported per request, not at startup.
type UpstreamConfig struct {
	BaseURL          string `mapstructure:"base_url"`
	APIKey           string `mapstructure:"api_key"`
	Referer          string `mapstructure:"referer"`
	RCPath           string `mapstructure:"rc_path"`
	FastagPath       string `mapstructure:"fastag_path"`
	ChallanPath      string `mapstructure:"challan_path"`
	TimeoutMS        int    `mapstructure:"timeout_ms"`
	ChallanTimeoutMS int    `mapstructure:"challan_timeout_ms"`
}

func (u UpstreamConfig) Timeout() time.Duration {
	return time.Duration(u.TimeoutMS) * time.Millisecond
}

func (u UpstreamConfig) ChallanTimeout() time.Duration {
	return time.Duration(u.ChallanTimeoutMS) * time.Millisecond
}

type GatewayConfig struct {
	ProxyToken      string        `mapstructure:"proxy_token"`
	AlwaysReturn200 bool          `mapstructure:"always_return_200"`
	CacheTTL        time.Duration `mapstructure:"cache_ttl"`
	RetryAttempts   int           `mapstructure:"retry_attempts"`
	RetryDelayMS    int           `mapstructure:"retry_delay_ms"`
}

func (g GatewayConfig) RetryDelay() time.Duration {
	return time.Duration(g.RetryDelayMS) * time.Millisecond
}

type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.cors_origins", "*")

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "postgres")
	v.SetDefault("database.dbname", "fleet")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.migrate", true)
	v.SetDefault("database.migrations_dir", "migrations")

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("nats.url", "nats://localhost:4222")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.json", false)

	v.SetDefault("upstream.base_url", "https://prod.apiclub.in/api")
	v.SetDefault("upstream.api_key", "")
	v.SetDefault("upstream.referer", "http://localhost")
	v.SetDefault("upstream.rc_path", "/v1/rc_info")
	v.SetDefault("upstream.fastag_path", "/v1/fastag_info")
	v.SetDefault("upstream.challan_path", "/v1/challan_info_v2")
	v.SetDefault("upstream.timeout_ms", 25000)
	v.SetDefault("upstream.challan_timeout_ms", 65000)

	v.SetDefault("gateway.proxy_token", "")
	v.SetDefault("gateway.always_return_200", false)
	v.SetDefault("gateway.cache_ttl", 24*time.Hour)
	v.SetDefault("gateway.retry_attempts", 1)
	v.SetDefault("gateway.retry_delay_ms", 2000)

	v.SetDefault("auth.jwt_secret", "")
}

// Load читает конфигурацию из окружения (и .env, если он есть)
func Load() (*Config, error) {
	// .env не обязателен: переменные окружения имеют приоритет
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Database.Port <= 0 || c.Database.Port > 65535 {
		return fmt.Errorf("invalid database port: %d", c.Database.Port)
	}
	if c.Upstream.TimeoutMS <= 0 {
		return fmt.Errorf("upstream timeout must be positive, got %d", c.Upstream.TimeoutMS)
	}
	if c.Upstream.ChallanTimeoutMS <= 0 {
		return fmt.Errorf("upstream challan timeout must be positive, got %d", c.Upstream.ChallanTimeoutMS)
	}
	if c.Gateway.CacheTTL <= 0 {
		return fmt.Errorf("cache ttl must be positive, got %s", c.Gateway.CacheTTL)
	}
	if c.Gateway.RetryAttempts < 0 {
		return fmt.Errorf("retry attempts must be non-negative, got %d", c.Gateway.RetryAttempts)
	}
	if c.Gateway.RetryDelayMS < 0 {
		return fmt.Errorf("retry delay must be non-negative, got %d", c.Gateway.RetryDelayMS)
	}
	return nil
}

func (c *Config) DatabaseDSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Database.Host, c.Database.Port, c.Database.User, c.Database.Password, c.Database.DBName, c.Database.SSLMode)
}

func (c *Config) ServerAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}
