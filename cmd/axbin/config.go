package main

import (
	"os"
	"path/filepath"

	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"

	"github.com/samcharles93/axbin/internal/logger"
)

// Config represents the axbin configuration file (~/.config/axbin/config.yaml).
type Config struct {
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
}

func configPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "axbin", "config.yaml")
}

// LoadConfig reads the config file. Returns a zero Config if the file doesn't exist.
func LoadConfig() Config {
	path := configPath()
	if path == "" {
		return Config{}
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}
	}
	return cfg
}

// buildLogger constructs the process logger from the config file, with the
// --log-level flag taking precedence over the file.
func buildLogger(cmd *cli.Command, cfg Config) logger.Logger {
	levelName := cfg.LogLevel
	if cmd.IsSet("log-level") {
		levelName = cmd.String("log-level")
	}
	level := logger.ParseLevel(levelName)

	if cfg.LogFormat == "json" {
		return logger.JSON(os.Stderr, level)
	}
	return logger.Pretty(os.Stderr, level)
}
