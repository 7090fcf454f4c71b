// Package config reads the ivfdump configuration file.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"ivfplay/pkg/log"

	"gopkg.in/yaml.v2"
)

// Config stores tool configuration.
type Config struct {
	LogDB    string `yaml:"logDB"`
	LogLevel string `yaml:"logLevel"`

	// Decoded frames are written here.
	OutputDir string `yaml:"outputDir"`

	// Save every n-th frame as png, 0 disables.
	PNGEvery int `yaml:"pngEvery"`

	// Save all frames as zstd compressed I420.
	Raw bool `yaml:"raw"`

	// Pace decoding to the stream timestamps.
	Realtime bool `yaml:"realtime"`

	// Path to libvpx, searched for if empty.
	VPXLib string `yaml:"vpxLib"`

	Level     log.Level `yaml:"-"`
	ConfigDir string    `yaml:"-"`
}

// Errors.
var (
	ErrPathNotAbsolute = errors.New("path is not absolute")
	ErrInvalidValue    = errors.New("invalid value")
)

// NewConfig parses configYAML, configPath is used for default paths.
func NewConfig(configPath string, configYAML []byte) (*Config, error) {
	var c Config

	if err := yaml.UnmarshalStrict(configYAML, &c); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	c.ConfigDir = filepath.Dir(configPath)

	if c.LogDB == "" {
		c.LogDB = filepath.Join(c.ConfigDir, "logs.db")
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.OutputDir == "" {
		c.OutputDir = filepath.Join(c.ConfigDir, "output")
	}

	level, err := log.ParseLevel(c.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("logLevel: %w", err)
	}
	c.Level = level

	if c.PNGEvery < 0 {
		return nil, fmt.Errorf("pngEvery '%v': %w", c.PNGEvery, ErrInvalidValue)
	}

	if !filepath.IsAbs(c.LogDB) {
		return nil, fmt.Errorf("logDB '%v': %w", c.LogDB, ErrPathNotAbsolute)
	}
	if !filepath.IsAbs(c.OutputDir) {
		return nil, fmt.Errorf("outputDir '%v': %w", c.OutputDir, ErrPathNotAbsolute)
	}
	if c.VPXLib != "" && !filepath.IsAbs(c.VPXLib) {
		return nil, fmt.Errorf("vpxLib '%v': %w", c.VPXLib, ErrPathNotAbsolute)
	}

	return &c, nil
}

// ReadConfig reads and parses the file at path. A missing
// file returns the default configuration.
func ReadConfig(path string) (*Config, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("absolute path: %w", err)
	}

	configYAML, err := os.ReadFile(absPath)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("read config: %w", err)
	}

	return NewConfig(absPath, configYAML)
}

// PrepareOutputDir creates the output directory.
func (c Config) PrepareOutputDir() error {
	if err := os.MkdirAll(c.OutputDir, 0o700); err != nil {
		return fmt.Errorf("create output directory: %v: %w", c.OutputDir, err)
	}
	return nil
}
