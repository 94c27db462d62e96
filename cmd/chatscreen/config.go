package main

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/MegaGrindStone/chat-screen/internal/dialogue"
	"github.com/MegaGrindStone/chat-screen/internal/services"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type replierConfig interface {
	replier(*slog.Logger) (dialogue.Replier, error)
}

// BaseReplierConfig contains the common fields for all replier configurations.
type BaseReplierConfig struct {
	Provider string `yaml:"provider"`
}

type config struct {
	Port     string        `yaml:"port"`
	LogLevel string        `yaml:"logLevel"`
	Archive  string        `yaml:"archive"`
	Replier  replierConfig `yaml:"replier"`
}

type conversationConfig struct {
	BaseReplierConfig `yaml:",inline"`
	BaseURL           string `yaml:"baseURL"`
	Path              string `yaml:"path"`
}

type ollamaConfig struct {
	BaseReplierConfig `yaml:",inline"`
	Host              string `yaml:"host"`
	Model             string `yaml:"model"`
	SystemPrompt      string `yaml:"systemPrompt"`
}

const (
	defaultPort = "8080"

	providerConversation = "conversation"
	providerOllama       = "ollama"
)

func defaultConfig() config {
	return config{
		Port:     defaultPort,
		LogLevel: "info",
		Replier: &conversationConfig{
			BaseReplierConfig: BaseReplierConfig{Provider: providerConversation},
		},
	}
}

func (c *config) UnmarshalYAML(value *yaml.Node) error {
	var rawConfig struct {
		Port     string         `yaml:"port"`
		LogLevel string         `yaml:"logLevel"`
		Archive  string         `yaml:"archive"`
		Replier  map[string]any `yaml:"replier"`
	}

	if err := value.Decode(&rawConfig); err != nil {
		return err
	}

	if rawConfig.Port != "" {
		c.Port = rawConfig.Port
	}
	if rawConfig.LogLevel != "" {
		c.LogLevel = rawConfig.LogLevel
	}
	c.Archive = rawConfig.Archive

	if rawConfig.Replier == nil {
		return nil
	}

	provider, _ := rawConfig.Replier["provider"].(string)
	if provider == "" {
		provider = providerConversation
	}

	replierRawYAML, err := yaml.Marshal(rawConfig.Replier)
	if err != nil {
		return err
	}

	var replier replierConfig
	switch provider {
	case providerConversation:
		replier = &conversationConfig{}
	case providerOllama:
		replier = &ollamaConfig{}
	default:
		return fmt.Errorf("unknown replier provider: %s", provider)
	}

	if err := yaml.Unmarshal(replierRawYAML, replier); err != nil {
		return err
	}

	c.Replier = replier

	return nil
}

// loadConfig reads the optional .env file and the YAML config at path, then applies environment
// overrides. A missing file at the default path is not an error; a missing file the user named is.
func loadConfig(path string, explicit bool) (config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return config{}, fmt.Errorf("error loading .env file: %w", err)
	}

	cfg := defaultConfig()

	cfgFile, err := os.Open(path)
	switch {
	case err == nil:
		defer cfgFile.Close()
		if err := yaml.NewDecoder(cfgFile).Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
			return config{}, fmt.Errorf("error decoding config file: %w", err)
		}
	case errors.Is(err, fs.ErrNotExist) && !explicit:
	default:
		return config{}, fmt.Errorf("error opening config file: %w", err)
	}

	cfg.applyEnv()

	return cfg, nil
}

func (c *config) applyEnv() {
	if port := os.Getenv("CHATSCREEN_PORT"); port != "" {
		c.Port = port
	}
	if archive := os.Getenv("CHATSCREEN_ARCHIVE"); archive != "" {
		c.Archive = archive
	}
	if cc, ok := c.Replier.(*conversationConfig); ok {
		if baseURL := os.Getenv("CHATSCREEN_BASE_URL"); baseURL != "" {
			cc.BaseURL = baseURL
		}
	}
}

func defaultConfigPath() (string, error) {
	cfgDir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("error getting user config dir: %w", err)
	}
	return filepath.Join(cfgDir, "chatscreen", "config.yaml"), nil
}

func (c config) logLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToUpper(c.LogLevel))); err != nil {
		return slog.LevelInfo, fmt.Errorf("invalid log level %q: %w", c.LogLevel, err)
	}
	return level, nil
}

func (c conversationConfig) replier(logger *slog.Logger) (dialogue.Replier, error) {
	var opts []services.ConversationOption
	if c.Path != "" {
		opts = append(opts, services.WithPath(c.Path))
	}
	return services.NewConversation(c.BaseURL, logger, opts...), nil
}

func (o ollamaConfig) replier(logger *slog.Logger) (dialogue.Replier, error) {
	if o.Model == "" {
		return nil, fmt.Errorf("model is required")
	}

	host := o.Host
	if host == "" {
		host = os.Getenv("OLLAMA_HOST")
	}
	if host == "" {
		host = "http://127.0.0.1:11434"
	}
	return services.NewOllama(host, o.Model, o.SystemPrompt, logger)
}
