package config

import (
	"fmt"
	"os"

	"github.com/spf13/viper"
)

// Config holds all application configuration. Values come from environment
// variables, optionally seeded from a .env file in the working directory.
type Config struct {
	Port     int
	LogLevel string
	DBPath   string

	// OrgNumber is the filing organization number embedded in VAT exports.
	OrgNumber string
	// ProgramName is the sender program name in VAT exports.
	ProgramName string

	// DefaultSeries is the series used when a posting names none.
	DefaultSeries string
	// NumberRetryLimit bounds re-allocation after a number collision.
	NumberRetryLimit int
}

// Load reads configuration from the environment with sensible defaults.
// A missing .env file is not an error; a malformed one is.
func Load() (*Config, error) {
	viper.AutomaticEnv()

	viper.SetDefault("PORT", 8080)
	viper.SetDefault("LOG_LEVEL", "info")
	viper.SetDefault("DB_PATH", "ledger.db")
	viper.SetDefault("ORG_NUMBER", "")
	viper.SetDefault("PROGRAM_NAME", "ledger-engine")
	viper.SetDefault("DEFAULT_SERIES", "A")
	viper.SetDefault("NUMBER_RETRY_LIMIT", 1)

	if _, err := os.Stat(".env"); err == nil {
		viper.SetConfigFile(".env")
		viper.SetConfigType("env")
		if err := viper.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	return &Config{
		Port:             viper.GetInt("PORT"),
		LogLevel:         viper.GetString("LOG_LEVEL"),
		DBPath:           viper.GetString("DB_PATH"),
		OrgNumber:        viper.GetString("ORG_NUMBER"),
		ProgramName:      viper.GetString("PROGRAM_NAME"),
		DefaultSeries:    viper.GetString("DEFAULT_SERIES"),
		NumberRetryLimit: viper.GetInt("NUMBER_RETRY_LIMIT"),
	}, nil
}
