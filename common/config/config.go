package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server Server
	Store  Store
	Redis  Redis
	JWT    JWT
	Blobs  Blobs
	Status Status
	Log    Log
}

type Server struct {
	Port           string
	AllowedOrigins []string
}

type Store struct {
	// Driver is one of memory, sqlite or postgres.
	Driver string
	DSN    string
	Path   string
}

type Redis struct {
	Addr     string
	Password string
	DB       int
}

type JWT struct {
	Secret    string
	AccessTTL time.Duration
}

type Blobs struct {
	Dir       string
	PublicURL string
	MaxBytes  int64
}

type Status struct {
	Window     time.Duration
	Retention  time.Duration
	SweepEvery time.Duration
}

type Log struct {
	Level string
	JSON  bool
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8000")
	v.SetDefault("server.allowedOrigins", []string{"http://localhost:8000"})
	v.SetDefault("store.driver", "memory")
	v.SetDefault("store.path", "chat.db")
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("jwt.accessTTL", 24*time.Hour)
	v.SetDefault("blobs.dir", ".static/uploads")
	v.SetDefault("blobs.publicURL", "/uploads")
	v.SetDefault("blobs.maxBytes", 10<<20)
	v.SetDefault("status.window", 24*time.Hour)
	v.SetDefault("status.sweepEvery", time.Hour)
	v.SetDefault("log.level", "info")
}

// LoadConfig reads .env (if present) and the named yaml file from the
// working directory or ./config. A missing file is not an error: defaults
// and MM_* environment variables still apply.
func LoadConfig(filename string) (*viper.Viper, error) {
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	v.SetConfigName(filename)
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("config")

	v.SetEnvPrefix("MM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, key := range []string{
		"server.port", "store.driver", "store.dsn", "store.path",
		"redis.addr", "redis.password", "redis.db",
		"jwt.secret", "jwt.accessTTL",
		"blobs.dir", "blobs.publicURL", "blobs.maxBytes",
		"status.window", "status.retention", "status.sweepEvery",
		"log.level", "log.json",
	} {
		if err := v.BindEnv(key); err != nil {
			return nil, err
		}
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}
	return v, nil
}

func ParseConfig(v *viper.Viper) (*Config, error) {
	var c Config
	if err := v.Unmarshal(&c); err != nil {
		slog.Error("Unable to unmarshal config", "err", err)
		return nil, err
	}
	return &c, nil
}

func (c *Config) Validate() error {
	if c.JWT.Secret == "" {
		return errors.New("jwt.secret is required")
	}
	switch c.Store.Driver {
	case "memory", "sqlite":
	case "postgres":
		if c.Store.DSN == "" {
			return errors.New("store.dsn is required for the postgres driver")
		}
	default:
		return fmt.Errorf("unknown store driver %q", c.Store.Driver)
	}
	if c.Status.Window <= 0 {
		return errors.New("status.window must be positive")
	}
	if c.Status.Retention > 0 && c.Status.Retention < c.Status.Window {
		return errors.New("status.retention must not be shorter than status.window")
	}
	return nil
}
