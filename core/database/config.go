package database

import (
	"fmt"
	"net/url"
	"strings"
)

const (
	// DriverPostgres selects lib/pq.
	DriverPostgres = "postgres"
	// DriverSQLite selects modernc.org/sqlite.
	DriverSQLite = "sqlite"
)

// Config holds database connection settings shared across bots.
type Config struct {
	Driver         string `yaml:"driver" envconfig:"DB_DRIVER"`
	Host           string `yaml:"host" envconfig:"DB_HOST"`
	Port           string `yaml:"port" envconfig:"DB_PORT"`
	User           string `yaml:"user" envconfig:"DB_USER"`
	Password       string `yaml:"password" envconfig:"DB_PASSWORD"`
	Name           string `yaml:"name" envconfig:"DB_NAME"`
	SSLMode        string `yaml:"sslmode" envconfig:"DB_SSLMODE"`
	MaxConnections int    `yaml:"max_connections" envconfig:"DB_MAX_CONNECTIONS"`
	// Path is the SQLite file, or ":memory:".
	Path string `yaml:"path" envconfig:"DB_PATH"`
}

// Normalize fills defaults and validates the driver specific fields.
func (c *Config) Normalize() error {
	c.Driver = strings.ToLower(strings.TrimSpace(c.Driver))
	if c.Driver == "" {
		c.Driver = DriverPostgres
	}
	if c.MaxConnections <= 0 {
		c.MaxConnections = 10
	}
	switch c.Driver {
	case DriverPostgres:
		if c.Host == "" || c.Name == "" {
			return fmt.Errorf("database.host and database.name are required for postgres")
		}
		if c.Port == "" {
			c.Port = "5432"
		}
		if c.SSLMode == "" {
			c.SSLMode = "disable"
		}
	case DriverSQLite:
		if strings.TrimSpace(c.Path) == "" {
			return fmt.Errorf("database.path is required for sqlite")
		}
		// modernc sqlite serializes writers; one connection avoids SQLITE_BUSY.
		c.MaxConnections = 1
	default:
		return fmt.Errorf("invalid database.driver %q; allowed: postgres, sqlite", c.Driver)
	}
	return nil
}

// DSN returns the connection string understood by the sql driver.
func (c Config) DSN() string {
	if c.Driver == DriverSQLite {
		return c.Path
	}
	return fmt.Sprintf(
		"user=%s password=%s host=%s port=%s dbname=%s sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Name, c.SSLMode,
	)
}

// MigrateURL returns the database URL understood by golang-migrate.
func (c Config) MigrateURL() string {
	if c.Driver == DriverSQLite {
		return "sqlite://" + c.Path
	}
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     c.Host + ":" + c.Port,
		Path:     "/" + c.Name,
		RawQuery: "sslmode=" + url.QueryEscape(c.SSLMode),
	}
	return u.String()
}
