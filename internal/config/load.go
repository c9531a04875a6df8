package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. STAFFLINE_MESSAGING_TWILIO_AUTH_TOKEN.
const EnvPrefix = "STAFFLINE"

// Load resolves the workspace config: built-in defaults, then staffline.yml when
// present, then STAFFLINE_* environment variables. agencyOverride, when set,
// replaces agency.id.
func Load(workspace, agencyOverride string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if err := v.ReadConfig(bytes.NewBufferString(GenerateDefault("default-agency", "Default Agency"))); err != nil {
		return nil, fmt.Errorf("read default config: %w", err)
	}
	path := Path(workspace)
	if _, err := os.Stat(path); err == nil {
		v.SetConfigFile(path)
		if err := v.MergeInConfig(); err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}

	var cfg Config
	hook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToSliceHookFunc(","),
		mapstructure.StringToTimeDurationHookFunc(),
	))
	if err := v.Unmarshal(&cfg, hook); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if agencyOverride = strings.TrimSpace(agencyOverride); agencyOverride != "" {
		cfg.Agency.ID = agencyOverride
	}
	if cfg.Agency.Name == "" {
		cfg.Agency.Name = cfg.Agency.ID
	}
	for i := range cfg.Pipeline.DefaultChannels {
		cfg.Pipeline.DefaultChannels[i] = strings.ToUpper(strings.TrimSpace(cfg.Pipeline.DefaultChannels[i]))
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
