package config

import (
	"errors"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const envPrefix = "SUDOKU"

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Game     GameConfig     `mapstructure:"game"`
}

type ServerConfig struct {
	HTTPAddress    string        `mapstructure:"http_address"`
	RPCAddress     string        `mapstructure:"rpc_address"`
	MetricsAddress string        `mapstructure:"metrics_address"`
	BaseURL        string        `mapstructure:"base_url"`
	Heartbeat      time.Duration `mapstructure:"heartbeat"`
}

type DatabaseConfig struct {
	// gorm | sql | memory
	Driver   string         `mapstructure:"driver"`
	Postgres PostgresConfig `mapstructure:"postgres"`
}

type PostgresConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
}

// RedisConfig 为空 URL 时使用进程内房间存储
type RedisConfig struct {
	URL    string        `mapstructure:"url"`
	KeyTTL time.Duration `mapstructure:"key_ttl"`
}

type GameConfig struct {
	TotalLives      int           `mapstructure:"total_lives"`
	Duration        time.Duration `mapstructure:"duration"`
	Stake           int64         `mapstructure:"stake"`
	StartingCoins   int64         `mapstructure:"starting_coins"`
	FillProbability float64       `mapstructure:"fill_probability"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.http_address", ":8080")
	v.SetDefault("server.rpc_address", ":8081")
	v.SetDefault("server.metrics_address", ":9090")
	v.SetDefault("server.base_url", "http://localhost:8080")
	v.SetDefault("server.heartbeat", 60*time.Second)

	v.SetDefault("database.driver", "gorm")
	v.SetDefault("database.postgres.host", "localhost")
	v.SetDefault("database.postgres.port", 5432)
	v.SetDefault("database.postgres.user", "postgres")
	v.SetDefault("database.postgres.password", "")
	v.SetDefault("database.postgres.dbname", "sudoku")

	v.SetDefault("redis.url", "")
	v.SetDefault("redis.key_ttl", 24*time.Hour)

	v.SetDefault("game.total_lives", 5)
	v.SetDefault("game.duration", 10*time.Minute)
	v.SetDefault("game.stake", 5)
	v.SetDefault("game.starting_coins", 1000)
	v.SetDefault("game.fill_probability", 0.7)
}

// LoadConfig reads config.yaml from path, if present, and overlays
// SUDOKU_* environment variables (SUDOKU_REDIS_URL -> redis.url).
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.AddConfigPath(path)
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}
	return &config, nil
}
