// Package config provides functionality for managing configuration options
// for the application using command-line flags and environment variables.
package config

import (
	"encoding/json"
	"flag"
	"log"
	"os"
)

// Options holds the configuration values for the application.
type Options struct {
	// Port defines the server's listening address (ip:port).
	Port string

	// DatabaseDSN holds the database connection string for the application.
	DatabaseDSN string

	// EncryptionKey is the master key material for at-rest encryption of
	// secret values and Vault credentials.
	EncryptionKey string

	// StacksDir is the base directory holding checked-out stack repositories.
	StacksDir string

	// SyncSchedule is an optional cron expression for scheduled fleet syncs.
	// Empty disables the scheduler.
	SyncSchedule string

	// Config is the path to the Config file.
	Config string
}

// options holds the current configuration values.
var options = &Options{}

// init initializes command-line flags and sets default values.
func init() {
	flag.StringVar(&options.Port, "a", "localhost:8080", "run on ip:port server")
	flag.StringVar(&options.DatabaseDSN, "d", "", "db address")
	flag.StringVar(&options.EncryptionKey, "k", "", "master encryption key")
	flag.StringVar(&options.StacksDir, "s", "stacks", "base directory of stack checkouts")
	flag.StringVar(&options.SyncSchedule, "sync-schedule", "", "cron expression for scheduled secret syncs")
	flag.StringVar(&options.Config, "config", "config.json", "path to config file")
	flag.StringVar(&options.Config, "c", "config.json", "path to config file (shorthand)")
}

// Parse parses the command-line flags and environment variables to set
// configuration values. It returns a pointer to the Options struct containing
// the parsed configuration values.
func Parse() *Options {
	flag.Parse()

	// Override flags with environment variables if set
	if configPath := os.Getenv("CONFIG"); configPath != "" {
		options.Config = configPath
	}

	if options.Config != "" {
		if _, err := os.Stat(options.Config); err == nil {
			data, err := os.ReadFile(options.Config)
			if err != nil {
				log.Fatalf("error while reading config file: %v", err)
			}
			if err := json.Unmarshal(data, options); err != nil {
				log.Fatalf("error while parsing config file: %v", err)
			}
		}
	}

	if serverAddress := os.Getenv("SERVER_ADDRESS"); serverAddress != "" {
		options.Port = serverAddress
	}
	if dsn := os.Getenv("DATABASE_DSN"); dsn != "" {
		options.DatabaseDSN = dsn
	}
	if key := os.Getenv("ENCRYPTION_KEY"); key != "" {
		options.EncryptionKey = key
	}
	if dir := os.Getenv("STACKS_DIR"); dir != "" {
		options.StacksDir = dir
	}
	if schedule := os.Getenv("SYNC_SCHEDULE"); schedule != "" {
		options.SyncSchedule = schedule
	}

	return options
}
