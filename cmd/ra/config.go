package main

import (
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/cobra"
)

const (
	defaultModel   = "openai/gpt-4.1-mini"
	defaultBaseURL = "https://openrouter.ai/api/v1"
	defaultCwd     = "."
)

// Config is the resolved CLI configuration. Precedence: defaults, then
// RA_-prefixed environment variables, then flags.
type Config struct {
	Model              string  `koanf:"model"`
	BaseURL            string  `koanf:"base-url"`
	APIKey             string  `koanf:"api-key"`
	Cwd                string  `koanf:"cwd"`
	PromptFile         string  `koanf:"prompt-file"`
	Temperature        float64 `koanf:"temperature"`
	MaxSteps           int     `koanf:"max-steps"`
	TimeLimitSec       int     `koanf:"time-limit-sec"`
	MaxToolOutputChars int     `koanf:"max-tool-output-chars"`
	LogDir             string  `koanf:"log-dir"`
	LogPath            string  `koanf:"log-path"`
	LogLevel           string  `koanf:"log-level"`
	JSON               bool    `koanf:"json"`
	StreamJSON         bool    `koanf:"stream-json"`
	Exec               bool    `koanf:"exec"`
	NoSubmit           bool    `koanf:"no-submit"`
	Retry429           bool    `koanf:"retry-429"`
	EnableSearch       bool    `koanf:"enable-search"`

	// TemperatureSet records whether --temperature was given; the provider
	// default is used otherwise.
	TemperatureSet bool `koanf:"-"`
}

func loadConfig(cmd *cobra.Command) (*Config, error) {
	k := koanf.New(".")

	defaults := map[string]interface{}{
		"model":     defaultModel,
		"base-url":  defaultBaseURL,
		"cwd":       defaultCwd,
		"log-level": "info",
	}
	for key, value := range defaults {
		if err := k.Set(key, value); err != nil {
			return nil, err
		}
	}

	// Only a curated set of RA_ variables map to settings.
	if err := k.Load(env.Provider("RA_", ".", func(s string) string {
		switch s {
		case "RA_DEFAULT_MODEL":
			return "model"
		case "RA_RETRY_429":
			return "retry-429"
		case "RA_WEB_SEARCH":
			return "enable-search"
		default:
			return ""
		}
	}), nil); err != nil {
		return nil, err
	}

	if err := k.Load(posflag.Provider(cmd.Flags(), ".", k), nil); err != nil {
		return nil, err
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, err
	}
	cfg.TemperatureSet = cmd.Flags().Changed("temperature")
	return &cfg, nil
}
