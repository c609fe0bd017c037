package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"

	"github.com/vshumov/minibank/internal/logger"
)

const (
	StoragePostgres = "postgres"
	StorageFile     = "file"
)

const (
	defaultListenAddr   = "localhost:8000"
	defaultLoggingLevel = logger.LevelInfo
	defaultEnvironment  = logger.EnvProduction
	defaultStorage      = StoragePostgres
	defaultStoreFile    = "minibank.json"
)

type Config struct {
	// Default logging level
	LogLevel string

	// Address on which the service will be run
	ListenAddr string

	// Storage backend: postgres or file
	Storage string

	// Database to connect to (postgres backend)
	DatabaseDSN string

	// Path to the snapshot file (file backend)
	StoreFile string

	// Secret key
	// Some internal parts (like signing JWT tokens) uses symmetric encryption, so this key is used for that purpose
	SecretKey string

	// Environment
	Environment string
}

func NewConfig() *Config {
	return &Config{
		LogLevel:    defaultLoggingLevel,
		ListenAddr:  defaultListenAddr,
		Storage:     defaultStorage,
		StoreFile:   defaultStoreFile,
		Environment: defaultEnvironment,
	}
}

// Load variable from '.env' file (should be located at working directory)
func (c *Config) LoadDotEnv(getwd func() (string, error)) error {
	wd, err := getwd()
	if err != nil {
		return err
	}

	envMap, err := godotenv.Read(filepath.Join(wd, ".env"))

	switch {
	case err == nil:
		c.LoadEnv(func(key string) string {
			return envMap[key]
		})
		return nil
	case errors.Is(err, os.ErrNotExist):
		return nil
	default:
		return err
	}
}

func (c *Config) LoadEnv(getenv func(string) string) {
	// Set option to value if it not empty
	setString := func(o *string) func(value string) {
		return func(value string) {
			if value != "" {
				*o = value
			}
		}
	}

	envMap := map[string]func(string){
		"RUN_ADDRESS":  setString(&c.ListenAddr),
		"STORAGE":      setString(&c.Storage),
		"DATABASE_URI": setString(&c.DatabaseDSN),
		"STORE_FILE":   setString(&c.StoreFile),
		"SECRET_KEY":   setString(&c.SecretKey),
		"LOG_LEVEL":    setString(&c.LogLevel),
		"ENVIRONMENT":  setString(&c.Environment),
	}

	for key, parseFn := range envMap {
		parseFn(getenv(key))
	}
}

func (c *Config) ParseFlags(args []string) error {
	fs := pflag.NewFlagSet("minibank", pflag.ContinueOnError)

	fs.StringVarP(&c.ListenAddr, "address", "a", c.ListenAddr, "Server listen address")
	fs.StringVarP(&c.Storage, "storage", "b", c.Storage, "Storage backend (postgres, file)")
	fs.StringVarP(&c.DatabaseDSN, "database", "d", c.DatabaseDSN, "Database connection string")
	fs.StringVarP(&c.StoreFile, "store-file", "f", c.StoreFile, "Snapshot file path for the file backend")
	fs.StringVarP(&c.SecretKey, "secret-key", "s", c.SecretKey, "Secret key")
	fs.StringVarP(&c.LogLevel, "log-level", "l", c.LogLevel, "Logging level (debug, info, warn, error)")
	fs.StringVarP(&c.Environment, "environment", "e", c.Environment, "Environment (dev, prod)")

	return fs.Parse(args)
}

func (c *Config) Validate() error {
	switch c.Storage {
	case StoragePostgres:
		if c.DatabaseDSN == "" {
			return errors.New("database connection string is required for the postgres backend")
		}
	case StorageFile:
		if c.StoreFile == "" {
			return errors.New("store file path is required for the file backend")
		}
	default:
		return fmt.Errorf("unknown storage backend: %q", c.Storage)
	}

	return nil
}
