// Package config provides centralized configuration management using Viper.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration values for monet.
type Config struct {
	Provider           string  `mapstructure:"provider" yaml:"provider"`
	Model              string  `mapstructure:"model" yaml:"model,omitempty"`
	APIKey             string  `mapstructure:"api_key" yaml:"api_key,omitempty"`
	BaseURL            string  `mapstructure:"base_url" yaml:"base_url,omitempty"`
	Width              int     `mapstructure:"width" yaml:"width"`
	Height             int     `mapstructure:"height" yaml:"height"`
	Background         string  `mapstructure:"background" yaml:"background"`
	MaxIterations      int     `mapstructure:"max_iterations" yaml:"max_iterations"`
	MaxEmptyTurns      int     `mapstructure:"max_empty_turns" yaml:"max_empty_turns"`
	CacheWindow        int     `mapstructure:"cache_window" yaml:"cache_window"`
	CacheBreakpoints   int     `mapstructure:"cache_breakpoints" yaml:"cache_breakpoints"`
	PlanThinkingBudget int     `mapstructure:"plan_thinking_budget" yaml:"plan_thinking_budget"`
	MaxOutputTokens    int     `mapstructure:"max_output_tokens" yaml:"max_output_tokens"`
	ExportScale        float64 `mapstructure:"export_scale" yaml:"export_scale"`
	Renderer           string  `mapstructure:"renderer" yaml:"renderer"`
	ResvgPath          string  `mapstructure:"resvg_path" yaml:"resvg_path,omitempty"`
	OutputDir          string  `mapstructure:"output_dir" yaml:"output_dir"`
	DataDir            string  `mapstructure:"data_dir" yaml:"data_dir"`
	Template           string  `mapstructure:"template" yaml:"template,omitempty"`
	ExtraInstructions  string  `mapstructure:"extra_instructions" yaml:"extra_instructions,omitempty"`
	LogLevel           string  `mapstructure:"log_level" yaml:"log_level"`
	LogFile            string  `mapstructure:"log_file" yaml:"log_file,omitempty"`
	Headless           bool    `mapstructure:"headless" yaml:"headless"`
	Journal            bool    `mapstructure:"journal" yaml:"journal"`
}

// defaults lists every key with its default value. Keys here are also the
// ones bound to MONET_* environment variables.
var defaults = map[string]any{
	"provider":             "anthropic",
	"model":                "",
	"api_key":              "",
	"base_url":             "",
	"width":                800,
	"height":               600,
	"background":           "#FFFFFF",
	"max_iterations":       25,
	"max_empty_turns":      3,
	"cache_window":         20,
	"cache_breakpoints":    3,
	"plan_thinking_budget": 16000,
	"max_output_tokens":    8192,
	"export_scale":         2.0,
	"renderer":             "auto",
	"resvg_path":           "",
	"output_dir":           "output",
	"data_dir":             ".monet",
	"template":             "",
	"extra_instructions":   "",
	"log_level":            "info",
	"log_file":             "",
	"headless":             false,
	"journal":              true,
}

// Load loads configuration with full precedence:
// CLI flags > ENV vars > project config > XDG global config > defaults
func Load() (*Config, error) {
	return LoadWith(nil)
}

// LoadWith is Load with an optional override hook, used by the CLI to bind
// flags to the same viper instance before unmarshaling.
func LoadWith(bind func(v *viper.Viper) error) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetConfigName("monet")

	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	// Setup ENV binding with MONET_ prefix
	v.SetEnvPrefix("MONET")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Explicit ENV bindings for better bool/int parsing
	for key := range defaults {
		if err := v.BindEnv(key, "MONET_"+strings.ToUpper(key)); err != nil {
			return nil, fmt.Errorf("binding %s env: %w", key, err)
		}
	}

	// Load global config first (if exists)
	globalPath := GlobalPath()
	if fileExists(globalPath) {
		v.SetConfigFile(globalPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading global config: %w", err)
		}
	}

	// Merge project config on top (if exists)
	projectPath := ProjectPath()
	if fileExists(projectPath) {
		// Need to set config file explicitly for merge
		v.SetConfigFile(projectPath)
		if err := v.MergeInConfig(); err != nil {
			return nil, fmt.Errorf("merging project config: %w", err)
		}
	}

	if bind != nil {
		if err := bind(v); err != nil {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Default returns a Config holding only the default values.
func Default() *Config {
	return &Config{
		Provider:           defaults["provider"].(string),
		Width:              defaults["width"].(int),
		Height:             defaults["height"].(int),
		Background:         defaults["background"].(string),
		MaxIterations:      defaults["max_iterations"].(int),
		MaxEmptyTurns:      defaults["max_empty_turns"].(int),
		CacheWindow:        defaults["cache_window"].(int),
		CacheBreakpoints:   defaults["cache_breakpoints"].(int),
		PlanThinkingBudget: defaults["plan_thinking_budget"].(int),
		MaxOutputTokens:    defaults["max_output_tokens"].(int),
		ExportScale:        defaults["export_scale"].(float64),
		Renderer:           defaults["renderer"].(string),
		OutputDir:          defaults["output_dir"].(string),
		DataDir:            defaults["data_dir"].(string),
		LogLevel:           defaults["log_level"].(string),
		Journal:            defaults["journal"].(bool),
	}
}

// Validate rejects values the engine cannot run with.
func (c *Config) Validate() error {
	switch {
	case c.Width <= 0 || c.Height <= 0:
		return fmt.Errorf("canvas size must be positive, got %dx%d", c.Width, c.Height)
	case c.MaxIterations < 1:
		return fmt.Errorf("max_iterations must be at least 1, got %d", c.MaxIterations)
	case c.MaxEmptyTurns < 1:
		return fmt.Errorf("max_empty_turns must be at least 1, got %d", c.MaxEmptyTurns)
	case c.CacheWindow < 1 || c.CacheBreakpoints < 1:
		return fmt.Errorf("cache_window and cache_breakpoints must be at least 1")
	case c.MaxOutputTokens < 1:
		return fmt.Errorf("max_output_tokens must be at least 1, got %d", c.MaxOutputTokens)
	case c.ExportScale <= 0:
		return fmt.Errorf("export_scale must be positive, got %g", c.ExportScale)
	}
	return nil
}

// Exists returns true if any config file exists (global or project).
func Exists() bool {
	return fileExists(GlobalPath()) || fileExists(ProjectPath())
}

// GlobalPath returns the XDG global config path.
// Returns ~/.config/monet/monet.yml or $XDG_CONFIG_HOME/monet/monet.yml.
func GlobalPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "monet", "monet.yml")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "monet", "monet.yml")
}

// ProjectPath returns the project-local config path.
// Returns ./monet.yml in the current working directory.
func ProjectPath() string {
	return "monet.yml"
}

// WriteGlobal writes the config to the XDG global location.
func WriteGlobal(cfg *Config) error {
	path := GlobalPath()

	// Create parent directory if it doesn't exist
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	return write(path, cfg)
}

// WriteProject writes the config to the project-local location.
func WriteProject(cfg *Config) error {
	return write(ProjectPath(), cfg)
}

func write(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	// API keys may be stored, keep the file private.
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}

// fileExists checks if a file exists.
func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
