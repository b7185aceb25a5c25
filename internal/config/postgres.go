package config

import (
	"fmt"
	"strings"
)

type PostgresConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DbName   string
	SSLMode  string
}

func DefaultPostgresConfig() PostgresConfig {
	return PostgresConfig{
		Host:     GetEnvWithDefault("POSTGRES_HOST", "localhost"),
		Port:     GetEnvWithDefault("POSTGRES_PORT", "5432"),
		User:     GetEnvWithDefault("POSTGRES_USER", "postgres"),
		Password: GetEnvWithDefault("POSTGRES_PASS", "postgres"),
		DbName:   GetEnvWithDefault("DB_NAME", "memex"),
		SSLMode:  GetEnvWithDefault("POSTGRES_SSLMODE", "disable"),
	}
}

// PgConnectionString is the URL form golang-migrate expects.
func (cfg PostgresConfig) PgConnectionString(options ...string) string {
	options = append(options, "sslmode="+cfg.SSLMode)
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?%s", cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.DbName, strings.Join(options, "&"))
}

func (cfg PostgresConfig) String() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DbName, cfg.SSLMode)
}
