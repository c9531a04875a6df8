package config

import (
	"os"
	"strings"
	"testing"

	"staffline/internal/domain"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := Default("acme")
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if cfg.Pipeline.Oversampling != 2 || cfg.Pipeline.DefaultTarget != 1 {
		t.Fatalf("unexpected pipeline defaults: %+v", cfg.Pipeline)
	}
	if cfg.Visibility() != domain.VisibilityPartial {
		t.Fatalf("expected PARTIAL visibility, got %s", cfg.Visibility())
	}
	if got := cfg.Channels(); len(got) != 1 || got[0] != domain.ChannelSMS {
		t.Fatalf("unexpected channels: %v", got)
	}
	if cfg.Messaging.DefaultCountryCode != "33" {
		t.Fatalf("expected default country code 33, got %q", cfg.Messaging.DefaultCountryCode)
	}
}

func TestFromYAMLKeepsDefaultsForMissingSections(t *testing.T) {
	cfg, err := FromYAML([]byte("agency:\n  id: acme\npipeline:\n  oversampling: 3\n  default_channels: [SMS, WHATSAPP]\n"))
	if err != nil {
		t.Fatalf("from yaml: %v", err)
	}
	if cfg.Pipeline.Oversampling != 3 || len(cfg.Channels()) != 2 {
		t.Fatalf("unexpected pipeline config: %+v", cfg.Pipeline)
	}
	if cfg.Server.BasePath != "/v0" {
		t.Fatalf("expected default base path, got %q", cfg.Server.BasePath)
	}
	if cfg.Agency.Name != "acme" {
		t.Fatalf("expected name to default to id, got %q", cfg.Agency.Name)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := map[string]string{
		"missing agency":  "agency:\n  id: \"\"\n",
		"bad channel":     "agency:\n  id: a\npipeline:\n  default_channels: [FAX]\n",
		"bad visibility":  "agency:\n  id: a\npipeline:\n  default_visibility: SECRET\n",
		"bad provider":    "agency:\n  id: a\nscoring:\n  provider: openai\n",
		"zero oversample": "agency:\n  id: a\npipeline:\n  oversampling: 0\n",
		"webhook url":     "agency:\n  id: a\nwebhooks:\n  - events: [pipeline.completed]\n",
	}
	for name, raw := range cases {
		if _, err := FromYAML([]byte(raw)); err == nil {
			t.Fatalf("%s: expected validation error", name)
		}
	}
}

func TestLoadAppliesEnvironmentOverrides(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(Path(dir), []byte(GenerateDefault("acme", "Acme Interim")), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("STAFFLINE_PIPELINE_OVERSAMPLING", "4")
	t.Setenv("STAFFLINE_PIPELINE_DEFAULT_CHANNELS", "sms,whatsapp")
	t.Setenv("STAFFLINE_MESSAGING_TWILIO_AUTH_TOKEN", "secret-token")

	cfg, err := Load(dir, "")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Agency.ID != "acme" || cfg.Agency.Name != "Acme Interim" {
		t.Fatalf("unexpected agency: %+v", cfg.Agency)
	}
	if cfg.Pipeline.Oversampling != 4 {
		t.Fatalf("expected env oversampling 4, got %d", cfg.Pipeline.Oversampling)
	}
	if strings.Join(cfg.Pipeline.DefaultChannels, ",") != "SMS,WHATSAPP" {
		t.Fatalf("unexpected channels: %v", cfg.Pipeline.DefaultChannels)
	}
	if cfg.Messaging.Twilio.AuthToken != "secret-token" {
		t.Fatalf("expected auth token from env, got %q", cfg.Messaging.Twilio.AuthToken)
	}
}

func TestLoadWithoutFileUsesOverride(t *testing.T) {
	cfg, err := Load(t.TempDir(), "beta")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Agency.ID != "beta" {
		t.Fatalf("expected agency override, got %q", cfg.Agency.ID)
	}
}
