package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config holds the application's configuration.
type Config struct {
	Telegram struct {
		Token           string  `yaml:"token"`
		AdminID         int64   `yaml:"admin_id"`
		AllowedGroupIDs []int64 `yaml:"allowed_group_ids"`
	} `yaml:"telegram"`
	LLM struct {
		APIKey              string  `yaml:"api_key"`
		BaseURL             string  `yaml:"base_url"`
		ClassifyModel       string  `yaml:"classify_model"`
		RevisionModel       string  `yaml:"revision_model"`
		ClassifyMaxTokens   int     `yaml:"classify_max_tokens"`
		RevisionMaxTokens   int     `yaml:"revision_max_tokens"`
		RevisionTemperature float64 `yaml:"revision_temperature"`
		ClassifyTimeout     int64   `yaml:"classify_timeout_seconds"`
		RevisionTimeout     int64   `yaml:"revision_timeout_seconds"`
	} `yaml:"llm"`
	Database struct {
		URL string `yaml:"url"`
	} `yaml:"database"`
	Server struct {
		Port      string `yaml:"port"`
		JWTSecret string `yaml:"jwt_secret"`
		Moderator struct {
			Username     string `yaml:"username"`
			PasswordHash string `yaml:"password_hash"`
		} `yaml:"moderator"`
	} `yaml:"server"`
	ActionLog struct {
		Path string `yaml:"path"`
	} `yaml:"action_log"`
}

// LoadConfig reads configuration from the specified YAML file.
func LoadConfig(configPath string) (*Config, error) {
	config := &Config{}

	file, err := os.Open(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer file.Close()

	decoder := yaml.NewDecoder(file)
	if err := decoder.Decode(config); err != nil {
		return nil, fmt.Errorf("failed to decode config file: %w", err)
	}

	config.applyDefaults()

	if config.Telegram.Token == "" {
		return nil, fmt.Errorf("telegram.token is required")
	}
	if config.Telegram.AdminID == 0 {
		return nil, fmt.Errorf("telegram.admin_id is required")
	}
	if config.LLM.APIKey == "" {
		return nil, fmt.Errorf("llm.api_key is required")
	}

	return config, nil
}

func (c *Config) applyDefaults() {
	if c.LLM.BaseURL == "" {
		c.LLM.BaseURL = "https://api.openai.com/v1"
	}
	if c.LLM.ClassifyModel == "" {
		c.LLM.ClassifyModel = "gpt-3.5-turbo"
	}
	if c.LLM.RevisionModel == "" {
		c.LLM.RevisionModel = "gpt-4"
	}
	if c.LLM.ClassifyMaxTokens == 0 {
		c.LLM.ClassifyMaxTokens = 20
	}
	if c.LLM.RevisionMaxTokens == 0 {
		c.LLM.RevisionMaxTokens = 1500
	}
	if c.LLM.RevisionTemperature == 0 {
		c.LLM.RevisionTemperature = 0.3
	}
	if c.LLM.ClassifyTimeout == 0 {
		c.LLM.ClassifyTimeout = 10
	}
	if c.LLM.RevisionTimeout == 0 {
		c.LLM.RevisionTimeout = 30
	}
	if c.Server.Port == "" {
		c.Server.Port = ":8080"
	}
	if c.ActionLog.Path == "" {
		c.ActionLog.Path = "action_log.json"
	}
}

// IsAllowedGroup reports whether the given chat is on the monitoring allow-list.
func (c *Config) IsAllowedGroup(chatID int64) bool {
	for _, id := range c.Telegram.AllowedGroupIDs {
		if id == chatID {
			return true
		}
	}
	return false
}
