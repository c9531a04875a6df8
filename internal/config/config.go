package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"staffline/internal/domain"
)

// Config models staffline.yml.
type Config struct {
	Agency struct {
		ID   string `yaml:"id" mapstructure:"id"`
		Name string `yaml:"name" mapstructure:"name"`
	} `yaml:"agency" mapstructure:"agency"`
	Server struct {
		Addr          string `yaml:"addr" mapstructure:"addr"`
		BasePath      string `yaml:"base_path" mapstructure:"base_path"`
		PublicURL     string `yaml:"public_url" mapstructure:"public_url"`
		JWTSecret     string `yaml:"jwt_secret" mapstructure:"jwt_secret"`
		JWTSecretFile string `yaml:"jwt_secret_file" mapstructure:"jwt_secret_file"`
	} `yaml:"server" mapstructure:"server"`
	Pipeline  PipelineConfig  `yaml:"pipeline" mapstructure:"pipeline"`
	Scoring   ScoringConfig   `yaml:"scoring" mapstructure:"scoring"`
	Messaging MessagingConfig `yaml:"messaging" mapstructure:"messaging"`
	Webhooks  []WebhookConfig `yaml:"webhooks" mapstructure:"webhooks"`
}

type PipelineConfig struct {
	Oversampling      int      `yaml:"oversampling" mapstructure:"oversampling"`
	DefaultTarget     int      `yaml:"default_target" mapstructure:"default_target"`
	DefaultChannels   []string `yaml:"default_channels" mapstructure:"default_channels"`
	DefaultVisibility string   `yaml:"default_visibility" mapstructure:"default_visibility"`
}

type ScoringConfig struct {
	Provider       string `yaml:"provider" mapstructure:"provider"`
	Model          string `yaml:"model" mapstructure:"model"`
	APIKey         string `yaml:"api_key" mapstructure:"api_key"`
	APIKeyFile     string `yaml:"api_key_file" mapstructure:"api_key_file"`
	OllamaHost     string `yaml:"ollama_host" mapstructure:"ollama_host"`
	TimeoutSeconds int    `yaml:"timeout_seconds" mapstructure:"timeout_seconds"`
}

type MessagingConfig struct {
	DefaultCountryCode string `yaml:"default_country_code" mapstructure:"default_country_code"`
	TimeoutSeconds     int    `yaml:"timeout_seconds" mapstructure:"timeout_seconds"`
	Concurrency        int    `yaml:"concurrency" mapstructure:"concurrency"`
	ValidateSignatures bool   `yaml:"validate_signatures" mapstructure:"validate_signatures"`
	Twilio             struct {
		AccountSID    string `yaml:"account_sid" mapstructure:"account_sid"`
		AuthToken     string `yaml:"auth_token" mapstructure:"auth_token"`
		AuthTokenFile string `yaml:"auth_token_file" mapstructure:"auth_token_file"`
		SMSFrom       string `yaml:"sms_from" mapstructure:"sms_from"`
		WhatsAppFrom  string `yaml:"whatsapp_from" mapstructure:"whatsapp_from"`
	} `yaml:"twilio" mapstructure:"twilio"`
}

type WebhookConfig struct {
	URL            string   `yaml:"url" mapstructure:"url"`
	Events         []string `yaml:"events" mapstructure:"events"`
	Secret         string   `yaml:"secret" mapstructure:"secret"`
	TimeoutSeconds int      `yaml:"timeout_seconds" mapstructure:"timeout_seconds"`
	Enabled        *bool    `yaml:"enabled" mapstructure:"enabled"`
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Agency.ID) == "" {
		return fmt.Errorf("config.agency.id is required")
	}
	if c.Pipeline.Oversampling < 1 {
		return fmt.Errorf("config.pipeline.oversampling must be >= 1")
	}
	if c.Pipeline.DefaultTarget < 0 {
		return fmt.Errorf("config.pipeline.default_target must not be negative")
	}
	if len(c.Pipeline.DefaultChannels) == 0 {
		return fmt.Errorf("config.pipeline.default_channels is required")
	}
	for _, ch := range c.Pipeline.DefaultChannels {
		if _, ok := domain.ParseChannel(ch); !ok {
			return fmt.Errorf("config.pipeline.default_channels has unknown channel %s", ch)
		}
	}
	if _, ok := domain.ParseVisibility(c.Pipeline.DefaultVisibility); !ok {
		return fmt.Errorf("config.pipeline.default_visibility must be FULL, PARTIAL or ANONYMOUS")
	}
	switch strings.ToLower(c.Scoring.Provider) {
	case "", "none", "gemini", "ollama":
	default:
		return fmt.Errorf("config.scoring.provider must be one of none, gemini, ollama")
	}
	if c.Scoring.TimeoutSeconds < 0 || c.Messaging.TimeoutSeconds < 0 {
		return fmt.Errorf("timeouts must not be negative")
	}
	if c.Messaging.Concurrency < 0 {
		return fmt.Errorf("config.messaging.concurrency must not be negative")
	}
	for i, hook := range c.Webhooks {
		if strings.TrimSpace(hook.URL) == "" {
			return fmt.Errorf("config.webhooks[%d].url is required", i)
		}
	}
	return nil
}

// Channels returns the configured default outreach channels.
func (c *Config) Channels() []domain.Channel {
	var out []domain.Channel
	for _, raw := range c.Pipeline.DefaultChannels {
		if ch, ok := domain.ParseChannel(raw); ok {
			out = append(out, ch)
		}
	}
	return out
}

// Visibility returns the level given to newly admitted participants.
func (c *Config) Visibility() domain.Visibility {
	if v, ok := domain.ParseVisibility(c.Pipeline.DefaultVisibility); ok {
		return v
	}
	return domain.VisibilityPartial
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "staffline.yml")
}

// GenerateDefault returns default config YAML.
func GenerateDefault(agencyID, agencyName string) string {
	return fmt.Sprintf(defaultTemplate, agencyID, agencyName)
}

// Default returns the default Config struct for an agency.
func Default(agencyID string) *Config {
	var cfg Config
	_ = yaml.NewDecoder(bytes.NewBufferString(GenerateDefault(agencyID, agencyID))).Decode(&cfg)
	cfg.Agency.ID = agencyID
	return &cfg
}

// FromYAML parses and validates config from raw YAML bytes. Missing sections
// keep their defaults.
func FromYAML(data []byte) (*Config, error) {
	cfg := Default("")
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if cfg.Agency.Name == "" {
		cfg.Agency.Name = cfg.Agency.ID
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

// LoadOptional returns nil,nil if the config file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	data, err := os.ReadFile(Path(workspace))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	return FromYAML(data)
}

const defaultTemplate = `agency:
  id: %s
  name: "%s"

server:
  addr: 127.0.0.1:8080
  base_path: /v0
  public_url: ""
  jwt_secret: ""
  jwt_secret_file: ""

pipeline:
  oversampling: 2
  default_target: 1
  default_channels: [SMS]
  default_visibility: PARTIAL

scoring:
  provider: none
  model: ""
  api_key: ""
  api_key_file: ""
  ollama_host: ""
  timeout_seconds: 20

messaging:
  default_country_code: "33"
  timeout_seconds: 10
  concurrency: 8
  validate_signatures: false
  twilio:
    account_sid: ""
    auth_token: ""
    auth_token_file: ""
    sms_from: ""
    whatsapp_from: ""
`
