package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// Config is the server configuration. It is read from a YAML file, then
// overridden by JSONRPC_* environment variables, which may come from a .env
// file.
type Config struct {
	HTTP struct {
		Addr          string   `yaml:"addr"`
		Path          string   `yaml:"path"`
		WebSocketPath string   `yaml:"websocket_path"`
		CORSOrigins   []string `yaml:"cors_origins"`
	} `yaml:"http"`
	Mangos struct {
		URL     string `yaml:"url"`
		Workers int    `yaml:"workers"`
	} `yaml:"mangos"`
	Dispatch struct {
		BatchConcurrency int   `yaml:"batch_concurrency"`
		MaxBodyBytes     int64 `yaml:"max_body_bytes"`
	} `yaml:"dispatch"`
	Log struct {
		Level  string `yaml:"level"`
		Pretty bool   `yaml:"pretty"`
	} `yaml:"log"`
}

func defaultConfig() Config {
	var c Config
	c.HTTP.Addr = ":8080"
	c.HTTP.Path = "/rpc"
	c.HTTP.WebSocketPath = "/ws"
	c.Mangos.Workers = 4
	c.Dispatch.BatchConcurrency = 4
	c.Dispatch.MaxBodyBytes = 1 << 20
	c.Log.Level = "info"
	return c
}

// loadConfig reads path (a missing file keeps the defaults) and applies
// environment overrides.
func loadConfig(path string) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	cfg := defaultConfig()
	if path != "" {
		b, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return Config{}, err
		default:
			if err := yaml.Unmarshal(b, &cfg); err != nil {
				return Config{}, fmt.Errorf("parse %s: %w", path, err)
			}
		}
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup("JSONRPC_HTTP_ADDR"); ok {
		c.HTTP.Addr = v
	}
	if v, ok := lookup("JSONRPC_CORS_ORIGINS"); ok {
		c.HTTP.CORSOrigins = nil
		for _, o := range strings.Split(v, ",") {
			if o = strings.TrimSpace(o); o != "" {
				c.HTTP.CORSOrigins = append(c.HTTP.CORSOrigins, o)
			}
		}
	}
	if v, ok := lookup("JSONRPC_MANGOS_URL"); ok {
		c.Mangos.URL = v
	}
	if v, ok := lookup("JSONRPC_LOG_LEVEL"); ok {
		c.Log.Level = v
	}
	if v, ok := lookup("JSONRPC_BATCH_CONCURRENCY"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("JSONRPC_BATCH_CONCURRENCY: %w", err)
		}
		c.Dispatch.BatchConcurrency = n
	}
	return nil
}

func (c *Config) logger() (zerolog.Logger, error) {
	level, err := zerolog.ParseLevel(c.Log.Level)
	if err != nil {
		return zerolog.Logger{}, err
	}
	var log zerolog.Logger
	if c.Log.Pretty {
		log = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr})
	} else {
		log = zerolog.New(os.Stderr)
	}
	return log.Level(level).With().Timestamp().Logger(), nil
}
