package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// Storage modes.
const (
	StorageSingle = "single" // one history file in the working directory
	StorageMulti  = "multi"  // one document keyed by user id under data_dir
	StorageSQLite = "sqlite" // SQLite database under data_dir
)

// Emotion classifier backends.
const (
	EmotionLLM     = "llm"
	EmotionKeyword = "keyword"
)

// Config holds the application configuration
type Config struct {
	LLM     LLMConfig
	Server  ServerConfig
	Storage StorageConfig
	Session SessionConfig
	Emotion EmotionConfig
	Log     LogConfig
}

// LLMConfig holds the response generator configuration
type LLMConfig struct {
	Provider     string `mapstructure:"provider"`
	BaseURL      string `mapstructure:"base_url"`
	APIKey       string `mapstructure:"api_key"`
	Model        string `mapstructure:"model"`
	SystemPrompt string `mapstructure:"system_prompt"`
}

// Enabled reports whether a responder can be built.
func (c LLMConfig) Enabled() bool {
	return c.APIKey != "" && c.Model != ""
}

// ServerConfig holds the server configuration
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port string `mapstructure:"port"`
}

// StorageConfig selects where chats, the user id and preferences live.
type StorageConfig struct {
	Mode           string `mapstructure:"mode"`
	DataDir        string `mapstructure:"data_dir"`
	HistoryFile    string `mapstructure:"history_file"`
	ChatIDStrategy string `mapstructure:"chat_id_strategy"`
}

// SessionConfig controls idle expiry.
type SessionConfig struct {
	TimeoutMinutes int `mapstructure:"timeout_minutes"`
}

// EmotionConfig selects the classifier.
type EmotionConfig struct {
	Backend string `mapstructure:"backend"`
	Model   string `mapstructure:"model"`
	BaseURL string `mapstructure:"base_url"`
	APIKey  string `mapstructure:"api_key"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `mapstructure:"level"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("llm.provider", "openai")
	v.SetDefault("llm.base_url", "https://generativelanguage.googleapis.com/v1beta/openai/")
	v.SetDefault("llm.model", "gemini-1.5-flash")
	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.system_prompt", "")
	v.SetDefault("server.host", "127.0.0.1")
	v.SetDefault("server.port", "8501")
	v.SetDefault("storage.mode", StorageMulti)
	v.SetDefault("storage.data_dir", "data")
	v.SetDefault("storage.history_file", "chat_history.json")
	v.SetDefault("storage.chat_id_strategy", "suffixed")
	v.SetDefault("session.timeout_minutes", 60)
	v.SetDefault("emotion.backend", EmotionLLM)
	v.SetDefault("emotion.model", "")
	v.SetDefault("emotion.base_url", "")
	v.SetDefault("emotion.api_key", "")
	v.SetDefault("log.level", "info")
}

// Load reads config.yaml from the working directory, or the file named by
// CONFIG_PATH. A missing file is not an error: defaults and environment
// variables (DUDIL_<SECTION>_<KEY>) apply.
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path := os.Getenv("CONFIG_PATH"); path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("DUDIL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// Variable names used by earlier deployments.
	_ = v.BindEnv("llm.api_key", "DUDIL_LLM_API_KEY", "GEMINI_API_KEY")
	_ = v.BindEnv("llm.model", "DUDIL_LLM_MODEL", "GEMINI_MODEL")
	_ = v.BindEnv("emotion.model", "DUDIL_EMOTION_MODEL", "DISTILBERT_MODEL")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &config, nil
}

// Validate checks the values that have a closed set of options.
func (c *Config) Validate() error {
	switch c.Storage.Mode {
	case StorageSingle, StorageMulti, StorageSQLite:
	default:
		return fmt.Errorf("storage.mode must be one of %s, %s, %s; got %q", StorageSingle, StorageMulti, StorageSQLite, c.Storage.Mode)
	}
	switch c.Emotion.Backend {
	case EmotionLLM, EmotionKeyword:
	default:
		return fmt.Errorf("emotion.backend must be %s or %s; got %q", EmotionLLM, EmotionKeyword, c.Emotion.Backend)
	}
	if c.Storage.DataDir == "" {
		return errors.New("storage.data_dir cannot be empty")
	}
	if c.Session.TimeoutMinutes <= 0 {
		return errors.New("session.timeout_minutes must be > 0")
	}
	return nil
}
