package config

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"gopkg.in/yaml.v3"
)

const (
	configDirName = "gh-coverletter"
	defaultConfig = ".config"

	// APIKeyEnv overrides the stored API key without persisting it.
	APIKeyEnv = "COVERLETTER_API_KEY"
)

// Temperature bounds accepted by the generator.
const (
	MinTemperature     = 0.2
	MaxTemperature     = 0.5
	DefaultTemperature = 0.35
	DefaultMaxTokens   = 650
)

var configFiles = []string{
	"config.yaml",
	"config.yml",
}

// Providers understood by the completions client.
const (
	ProviderIO      = "io"
	ProviderCopilot = "copilot"
)

// ErrUnknownKey is returned by Get and Set for keys that are not settings.
var ErrUnknownKey = errors.New("unknown setting")

// Prompt is a named extra instruction exposed as a subcommand.
type Prompt struct {
	Prompt string `yaml:"prompt"`
	Model  string `yaml:"model,omitempty"`
}

// RenderConfig controls terminal output.
type RenderConfig struct {
	Format string `yaml:"format" default:"markdown"`
}

// Config represents the structure of the configuration file used by the application.
type Config struct {
	Provider    string            `yaml:"provider" default:"io"`
	BaseURL     string            `yaml:"base_url,omitempty"`
	APIKey      string            `yaml:"api_key,omitempty"`
	Model       string            `yaml:"model" default:"meta-llama/Llama-3.3-70B-Instruct"`
	Temperature float64           `yaml:"temperature" default:"0.35"`
	MaxTokens   int               `yaml:"max_tokens" default:"650"`
	BaseLetter  string            `yaml:"base_letter,omitempty"`
	Timeout     time.Duration     `yaml:"timeout" default:"30s"`
	Render      RenderConfig      `yaml:"render"`
	Prompts     map[string]Prompt `yaml:"prompts,omitempty"`

	path string
}

// SetDefaults is called by defaults.Set after the tag defaults are applied.
func (c *Config) SetDefaults() {
	if c.BaseLetter == "" {
		c.BaseLetter = DefaultBaseLetter
	}
	if c.Prompts == nil {
		c.Prompts = map[string]Prompt{}
	}
}

// configResult is a struct used to return the configuration and any error that occurs during loading.
type configResult struct {
	config *Config
	err    error
}

// newDefaultConfig creates a configuration populated with defaults.
func newDefaultConfig() *Config {
	cfg := &Config{}
	if err := defaults.Set(cfg); err != nil {
		// Tag values are constants; a failure here is a programming error.
		panic(fmt.Sprintf("config defaults: %v", err))
	}
	return cfg
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return newDefaultConfig()
}

// getConfigPath retrieves the path to the configuration directory based on the XDG_CONFIG_HOME environment variable.
func getConfigPath() (string, error) {
	configHome := os.Getenv("XDG_CONFIG_HOME")
	if configHome == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get user home directory: %w", err)
		}
		configHome = filepath.Join(home, defaultConfig)
	}

	return filepath.Join(configHome, configDirName), nil
}

// tryLoadConfig attempts to load a configuration file from the specified path.
func tryLoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	if err := defaults.Set(cfg); err != nil {
		return nil, fmt.Errorf("failed to apply defaults: %w", err)
	}
	cfg.path = path
	cfg.Normalize()

	return cfg, nil
}

// LoadConfig loads the configuration from the user's home directory, with a timeout.
func LoadConfig(ctx context.Context) (*Config, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	result := make(chan configResult, 1)

	go func() {
		cfg, err := loadConfigFiles(ctx)
		result <- configResult{config: cfg, err: err}
	}()

	done := ctx.Done()
	select {
	case <-done:
		return nil, ctx.Err()
	case r := <-result:
		return r.config, r.err
	}
}

// loadConfigFiles loads configuration files from the user's home directory.
func loadConfigFiles(ctx context.Context) (*Config, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("context error before loading config: %w", err)
	}

	configDir, err := getConfigPath()
	if err != nil {
		return nil, fmt.Errorf("failed to get config path: %w", err)
	}

	fallback := newDefaultConfig()
	fallback.path = filepath.Join(configDir, configFiles[0])

	// Return default config early if directory doesn't exist
	if _, err := os.Stat(configDir); os.IsNotExist(err) {
		return fallback, nil
	}

	for _, filename := range configFiles {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		cfg, err := tryLoadConfig(filepath.Join(configDir, filename))
		if err == nil {
			return cfg, nil
		}
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to load config from %s: %w", filename, err)
		}
	}

	return fallback, nil
}

// Path is the file Save writes to.
func (c *Config) Path() string {
	return c.path
}

// Save writes the configuration back to its file, creating the directory
// when needed. The file holds an API key and is written owner-only.
func (c *Config) Save() error {
	if c.path == "" {
		dir, err := getConfigPath()
		if err != nil {
			return fmt.Errorf("failed to get config path: %w", err)
		}
		c.path = filepath.Join(dir, configFiles[0])
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(c.path), 0o700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(c.path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Normalize clamps numeric settings into their accepted ranges.
func (c *Config) Normalize() {
	c.Temperature = ClampTemperature(c.Temperature)
	if c.MaxTokens <= 0 {
		c.MaxTokens = DefaultMaxTokens
	}
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	c.Provider = strings.ToLower(strings.TrimSpace(c.Provider))
}

// ClampTemperature maps t into [MinTemperature, MaxTemperature]; zero and NaN
// select the default.
func ClampTemperature(t float64) float64 {
	if t == 0 || math.IsNaN(t) {
		return DefaultTemperature
	}
	return math.Max(MinTemperature, math.Min(MaxTemperature, t))
}

// ResolvedAPIKey returns the API key from the environment, falling back to
// the stored setting.
func (c *Config) ResolvedAPIKey() string {
	if key := strings.TrimSpace(os.Getenv(APIKeyEnv)); key != "" {
		return key
	}
	return strings.TrimSpace(c.APIKey)
}

// Keys lists the settings accepted by Get and Set.
func Keys() []string {
	return []string{
		"provider", "base_url", "api_key", "model", "temperature",
		"max_tokens", "base_letter", "timeout", "render.format",
	}
}

// Get returns the string form of a single setting.
func (c *Config) Get(key string) (string, error) {
	switch key {
	case "provider":
		return c.Provider, nil
	case "base_url":
		return c.BaseURL, nil
	case "api_key":
		return c.APIKey, nil
	case "model":
		return c.Model, nil
	case "temperature":
		return strconv.FormatFloat(c.Temperature, 'f', -1, 64), nil
	case "max_tokens":
		return strconv.Itoa(c.MaxTokens), nil
	case "base_letter":
		return c.BaseLetter, nil
	case "timeout":
		return c.Timeout.String(), nil
	case "render.format":
		return c.Render.Format, nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnknownKey, key)
	}
}

// Set parses value into a single setting. Numeric settings are normalized.
func (c *Config) Set(key, value string) error {
	switch key {
	case "provider":
		switch p := strings.ToLower(value); p {
		case ProviderIO, ProviderCopilot:
			c.Provider = p
		default:
			return fmt.Errorf("invalid provider %q: want %s or %s", value, ProviderIO, ProviderCopilot)
		}
	case "base_url":
		c.BaseURL = strings.TrimRight(value, "/")
	case "api_key":
		c.APIKey = strings.TrimSpace(value)
	case "model":
		c.Model = value
	case "temperature":
		t, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("invalid temperature %q: %w", value, err)
		}
		c.Temperature = t
	case "max_tokens":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid max_tokens %q: %w", value, err)
		}
		c.MaxTokens = n
	case "base_letter":
		c.BaseLetter = value
	case "timeout":
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid timeout %q: %w", value, err)
		}
		c.Timeout = d
	case "render.format":
		switch value {
		case "markdown", "plain":
			c.Render.Format = value
		default:
			return fmt.Errorf("invalid render format %q: want markdown or plain", value)
		}
	default:
		return fmt.Errorf("%w: %s", ErrUnknownKey, key)
	}
	c.Normalize()
	return nil
}
