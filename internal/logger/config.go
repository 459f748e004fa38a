package logger

import (
	"errors"
	"strings"
)

type Config struct {
	Level            string     `mapstructure:"Level"`  // debug, info, warn, error
	Format           string     `mapstructure:"Format"` // json, console
	Output           string     `mapstructure:"Output"` // console, file, both
	File             FileConfig `mapstructure:"File"`
	EnableStacktrace bool       `mapstructure:"EnableStacktrace"`
}

type FileConfig struct {
	Filename   string `mapstructure:"Filename"`
	MaxSize    int    `mapstructure:"MaxSize"` // MB
	MaxAge     int    `mapstructure:"MaxAge"`  // дни
	MaxBackups int    `mapstructure:"MaxBackups"`
	Compress   bool   `mapstructure:"Compress"`
}

func DefaultConfig() *Config {
	return &Config{
		Level:  "info",
		Format: "json",
		Output: "console",
		File: FileConfig{
			Filename:   "logs/filevault.log",
			MaxSize:    100,
			MaxAge:     30,
			MaxBackups: 10,
			Compress:   true,
		},
	}
}

func (c *Config) Validate() error {
	switch strings.ToLower(c.Level) {
	case "debug", "info", "warn", "error", "dpanic", "panic", "fatal":
	default:
		return errors.New("invalid log level, must be one of: debug, info, warn, error, dpanic, panic, fatal")
	}

	if c.Format != "json" && c.Format != "console" {
		return errors.New("invalid log format, must be 'json' or 'console'")
	}

	if c.Output != "console" && c.Output != "file" && c.Output != "both" {
		return errors.New("invalid log output, must be 'console', 'file' or 'both'")
	}

	if c.Output == "file" || c.Output == "both" {
		if c.File.Filename == "" {
			return errors.New("log file filename is required when output is 'file' or 'both'")
		}
		if c.File.MaxSize <= 0 {
			return errors.New("log file maxsize must be greater than 0")
		}
	}

	return nil
}
