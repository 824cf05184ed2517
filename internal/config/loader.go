package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/rpattn/entitykit/internal/db"
)

// Store drivers.
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config is the full runtime configuration.
type Config struct {
	Store      StoreConfig
	Database   db.Config
	Versioning VersioningConfig
	Diff       DiffConfig
	Pagination PaginationConfig
}

type StoreConfig struct {
	Driver string
	DSN    string
}

type VersioningConfig struct {
	Enabled bool
}

type DiffConfig struct {
	TruncateAfter int
	Ignore        []string
}

type PaginationConfig struct {
	PageSize int
}

// Load reads entitykit.yaml from configPath (when present) and ENTITYKIT_* environment
// variables, e.g. ENTITYKIT_STORE_DRIVER or ENTITYKIT_DATABASE_HOST, on top of defaults.
func Load(configPath string) (Config, error) {
	v := viper.New()
	v.SetConfigName("entitykit")
	v.SetConfigType("yaml")
	if configPath != "" {
		v.AddConfigPath(configPath)
	}
	v.SetEnvPrefix("ENTITYKIT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("failed to read config: %w", err)
		}
	}

	cfg := Config{
		Store: StoreConfig{
			Driver: strings.ToLower(v.GetString("store.driver")),
			DSN:    v.GetString("store.dsn"),
		},
		Database: db.Config{
			Host:     v.GetString("database.host"),
			Port:     v.GetInt("database.port"),
			User:     v.GetString("database.user"),
			Password: v.GetString("database.password"),
			DBName:   v.GetString("database.dbname"),
			SSLMode:  v.GetString("database.sslmode"),
			MaxConns: v.GetInt32("database.max_conns"),
		},
		Versioning: VersioningConfig{Enabled: v.GetBool("versioning.enabled")},
		Diff: DiffConfig{
			TruncateAfter: v.GetInt("diff.truncate_after"),
			Ignore:        v.GetStringSlice("diff.ignore"),
		},
		Pagination: PaginationConfig{PageSize: v.GetInt("pagination.page_size")},
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	defaults := db.DefaultConfig()
	v.SetDefault("store.driver", DriverMemory)
	v.SetDefault("store.dsn", ":memory:")
	v.SetDefault("database.host", defaults.Host)
	v.SetDefault("database.port", defaults.Port)
	v.SetDefault("database.user", defaults.User)
	v.SetDefault("database.password", defaults.Password)
	v.SetDefault("database.dbname", defaults.DBName)
	v.SetDefault("database.sslmode", defaults.SSLMode)
	v.SetDefault("database.max_conns", 0)
	v.SetDefault("versioning.enabled", true)
	v.SetDefault("diff.truncate_after", 200)
	v.SetDefault("diff.ignore", []string{})
	v.SetDefault("pagination.page_size", 20)
}

// Validate checks values that would otherwise fail late.
func (c Config) Validate() error {
	switch c.Store.Driver {
	case DriverMemory, DriverSQLite, DriverPostgres:
	default:
		return fmt.Errorf("unsupported store driver %q", c.Store.Driver)
	}
	if c.Pagination.PageSize <= 0 {
		return fmt.Errorf("pagination.page_size must be positive, got %d", c.Pagination.PageSize)
	}
	if c.Diff.TruncateAfter < 0 {
		return fmt.Errorf("diff.truncate_after must not be negative, got %d", c.Diff.TruncateAfter)
	}
	return nil
}
