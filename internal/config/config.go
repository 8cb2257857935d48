package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

type InstrumentationConfig struct {
	Enabled         bool    `mapstructure:"enabled"`
	RetentionDays   int     `mapstructure:"retention_days"`
	SamplingRate    float64 `mapstructure:"sampling_rate"`
	BufferSize      int     `mapstructure:"buffer_size"`
	FlushIntervalMs int     `mapstructure:"flush_interval_ms"`
}

type Config struct {
	Server          ServerConfig            `mapstructure:"server"`
	Database        DatabaseConfig          `mapstructure:"database"`
	Fields          FieldsConfig            `mapstructure:"fields"`
	Entities        map[string]EntityConfig `mapstructure:"entities"`
	Instrumentation InstrumentationConfig   `mapstructure:"instrumentation"`
	Auth            AuthConfig              `mapstructure:"auth"`
	Storage         StorageConfig           `mapstructure:"storage"`
	JWTSecret       string                  `mapstructure:"jwt_secret"`
}

// StorageConfig locates uploaded files of file and image fields.
type StorageConfig struct {
	Path      string `mapstructure:"path"`
	MaxSizeMB int64  `mapstructure:"max_size_mb"`
}

// AuthConfig lists the API clients allowed to request access tokens.
type AuthConfig struct {
	TokenTTLMinutes int            `mapstructure:"token_ttl_minutes"`
	Clients         []ClientConfig `mapstructure:"clients"`
}

// ClientConfig is one API client. SecretHash is a bcrypt hash.
type ClientConfig struct {
	ID         string   `mapstructure:"id"`
	SecretHash string   `mapstructure:"secret_hash"`
	Roles      []string `mapstructure:"roles"`
}

type ServerConfig struct {
	Port int `mapstructure:"port"`
}

type DatabaseConfig struct {
	Driver   string `mapstructure:"driver"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Name     string `mapstructure:"name"`
	PoolSize int    `mapstructure:"pool_size"`
	Path     string `mapstructure:"path"` // directory for SQLite database files
}

// FieldsConfig controls display formatting of custom field values.
type FieldsConfig struct {
	Locale          string `mapstructure:"locale"`
	DefaultCurrency string `mapstructure:"default_currency"`
}

// EntityConfig points an extensible entity type at its host table.
// Table is used for existence checks; ProjectionColumn, when set, receives
// a JSON copy of the entity's custom field values on every write.
type EntityConfig struct {
	Table            string `mapstructure:"table"`
	IDColumn         string `mapstructure:"id_column"`
	ProjectionColumn string `mapstructure:"projection_column"`
}

// DSN returns the driver-specific data source name.
func (d DatabaseConfig) DSN() string {
	if d.IsSQLite() {
		return d.Path + "/" + d.Name + ".db"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		d.User, d.Password, d.Host, d.Port, d.Name)
}

// IsSQLite returns true if the driver is sqlite.
func (d DatabaseConfig) IsSQLite() bool {
	return d.Driver == "sqlite"
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("app")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("../..")

	setDefaults(v)

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "fieldengine")
	v.SetDefault("database.pool_size", 10)
	v.SetDefault("database.path", "./data")
	v.SetDefault("jwt_secret", "changeme-secret")
	v.SetDefault("auth.token_ttl_minutes", 15)
	v.SetDefault("storage.path", "./data/files")
	v.SetDefault("storage.max_size_mb", 10)
	v.SetDefault("fields.locale", "en-US")
	v.SetDefault("fields.default_currency", "USD")
	v.SetDefault("instrumentation.enabled", true)
	v.SetDefault("instrumentation.retention_days", 7)
	v.SetDefault("instrumentation.sampling_rate", 1.0)
	v.SetDefault("instrumentation.buffer_size", 500)
	v.SetDefault("instrumentation.flush_interval_ms", 100)
}
