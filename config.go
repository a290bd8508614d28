package main

import (
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// SpotConfig is one tracked spot as declared in config.yaml.
type SpotConfig struct {
	Name              string     `yaml:"name"`
	Type              SpotType   `yaml:"type"`
	Definition        string     `yaml:"definition"`
	Source            string     `yaml:"source"`
	SourceKind        string     `yaml:"source_kind"` // "url" or "file"; inferred when empty
	SourceToken       string     `yaml:"source_token"`
	RunsPerDay        int        `yaml:"runs_per_day"` // 0, 1, 2 or 4
	Voice             VoiceStyle `yaml:"voice"`
	CustomVoicePrompt string     `yaml:"custom_voice_prompt"`
}

type Config struct {
	SlackBotToken string `yaml:"slack_bot_token"`
	SlackAppToken string `yaml:"slack_app_token"`
	SpotChannelID string `yaml:"spot_channel_id"`

	AnalysisProvider string `yaml:"analysis_provider"`
	GeminiAPIKey     string `yaml:"gemini_api_key"`
	GeminiModel      string `yaml:"gemini_model"`
	AnthropicAPIKey  string `yaml:"anthropic_api_key"`
	AnthropicModel   string `yaml:"anthropic_model"`

	DBPath              string `yaml:"db_path"`
	Timezone            string `yaml:"timezone"`
	OverdueReminderTime string `yaml:"overdue_reminder_time"`

	Spots []SpotConfig `yaml:"spots"`
}

func LoadConfig() Config {
	var cfg Config

	configPath := "config.yaml"
	if envPath := os.Getenv("SPOTCHECK_CONFIG"); envPath != "" {
		configPath = envPath
	}
	if data, err := os.ReadFile(configPath); err == nil {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			log.Fatalf("Error parsing %s: %v", configPath, err)
		}
		log.Printf("Loaded config from %s", configPath)
	}

	// Env vars override YAML values
	envOverride(&cfg.SlackBotToken, "SLACK_BOT_TOKEN")
	envOverride(&cfg.SlackAppToken, "SLACK_APP_TOKEN")
	envOverride(&cfg.SpotChannelID, "SPOT_CHANNEL_ID")
	envOverride(&cfg.AnalysisProvider, "ANALYSIS_PROVIDER")
	envOverride(&cfg.GeminiAPIKey, "GEMINI_API_KEY")
	envOverride(&cfg.GeminiModel, "GEMINI_MODEL")
	envOverride(&cfg.AnthropicAPIKey, "ANTHROPIC_API_KEY")
	envOverride(&cfg.AnthropicModel, "ANTHROPIC_MODEL")
	envOverride(&cfg.DBPath, "DB_PATH")
	envOverride(&cfg.Timezone, "TIMEZONE")
	envOverride(&cfg.OverdueReminderTime, "OVERDUE_REMINDER_TIME")

	// Defaults
	if cfg.AnalysisProvider == "" {
		cfg.AnalysisProvider = "gemini"
	}
	if cfg.DBPath == "" {
		cfg.DBPath = "./spotcheck.db"
	}
	if cfg.OverdueReminderTime == "" {
		cfg.OverdueReminderTime = "09:00"
	}
	if cfg.Timezone == "" {
		cfg.Timezone = "Local"
	}
	for i := range cfg.Spots {
		spot := &cfg.Spots[i]
		if spot.Type == "" {
			spot.Type = SpotTypeCustom
		}
		if spot.Voice == "" {
			spot.Voice = DefaultVoice
		}
		if strings.TrimSpace(spot.Definition) == "" {
			spot.Definition = TemplateDefinition(spot.Type)
		}
	}

	// Validate
	switch cfg.AnalysisProvider {
	case "gemini":
		if cfg.GeminiAPIKey == "" {
			log.Fatalf("gemini_api_key is required when analysis_provider=gemini")
		}
	case "anthropic":
		if cfg.AnthropicAPIKey == "" {
			log.Fatalf("anthropic_api_key is required when analysis_provider=anthropic")
		}
	default:
		log.Fatalf("analysis_provider must be 'gemini' or 'anthropic', got '%s'", cfg.AnalysisProvider)
	}

	if len(cfg.Spots) == 0 {
		log.Fatalf("at least one spot must be configured")
	}
	seen := map[string]bool{}
	for _, spot := range cfg.Spots {
		if strings.TrimSpace(spot.Name) == "" {
			log.Fatalf("every spot needs a name")
		}
		key := strings.ToLower(strings.TrimSpace(spot.Name))
		if seen[key] {
			log.Fatalf("duplicate spot name '%s'", spot.Name)
		}
		seen[key] = true
		if strings.TrimSpace(spot.Source) == "" {
			log.Fatalf("spot '%s': source is required", spot.Name)
		}
		if spot.SourceKind != "" && spot.SourceKind != "url" && spot.SourceKind != "file" {
			log.Fatalf("spot '%s': source_kind must be 'url' or 'file', got '%s'", spot.Name, spot.SourceKind)
		}
		switch spot.RunsPerDay {
		case 0, 1, 2, 4:
		default:
			log.Fatalf("spot '%s': runs_per_day must be 0, 1, 2 or 4, got %d", spot.Name, spot.RunsPerDay)
		}
		if !KnownVoice(spot.Voice) {
			log.Fatalf("spot '%s': unknown voice '%s'", spot.Name, spot.Voice)
		}
		if spot.Voice == VoiceCustom && strings.TrimSpace(spot.CustomVoicePrompt) == "" {
			log.Fatalf("spot '%s': voice 'custom' needs custom_voice_prompt", spot.Name)
		}
		if !KnownSpotType(spot.Type) {
			log.Fatalf("spot '%s': unknown spot type '%s'", spot.Name, spot.Type)
		}
	}

	if (cfg.SlackBotToken == "") != (cfg.SlackAppToken == "") {
		log.Fatalf("slack_bot_token and slack_app_token must be set together")
	}

	if strings.EqualFold(cfg.Timezone, "Local") {
		cfg.Timezone = time.Local.String()
	} else {
		loc, err := time.LoadLocation(cfg.Timezone)
		if err != nil {
			log.Fatalf("invalid timezone '%s': %v", cfg.Timezone, err)
		}
		time.Local = loc
	}

	if _, _, err := parseClock(cfg.OverdueReminderTime); err != nil {
		log.Fatalf("invalid overdue_reminder_time '%s': %v", cfg.OverdueReminderTime, err)
	}

	return cfg
}

// SlackEnabled reports whether the optional Slack surface is configured.
func (c Config) SlackEnabled() bool {
	return c.SlackBotToken != "" && c.SlackAppToken != ""
}

func envOverride(field *string, envKey string) {
	if val := os.Getenv(envKey); val != "" {
		*field = val
	}
}

func parseClock(s string) (int, int, error) {
	var hour, min int
	_, err := fmt.Sscanf(s, "%d:%d", &hour, &min)
	if err != nil {
		return 0, 0, err
	}
	if hour < 0 || hour > 23 || min < 0 || min > 59 {
		return 0, 0, fmt.Errorf("time out of range: %02d:%02d", hour, min)
	}
	return hour, min, nil
}
