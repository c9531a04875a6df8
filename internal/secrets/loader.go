package secrets

import (
	"fmt"
	"os"
	"strings"
)

// Source describes how to load a secret value such as a provider API key or
// the Twilio auth token.
type Source struct {
	// Name is used in error messages.
	Name string
	// Value is an inline secret from config or the environment.
	Value string
	// File points to a file holding the secret. It takes precedence over Value.
	File string
}

// Load returns the trimmed secret. An error is returned when neither File nor
// Value contain a usable secret.
func Load(src Source) (string, error) {
	name := strings.TrimSpace(src.Name)
	if name == "" {
		name = "secret"
	}

	file := strings.TrimSpace(src.File)
	if file != "" {
		data, err := os.ReadFile(file)
		if err != nil {
			return "", fmt.Errorf("reading %s from file %q: %w", name, file, err)
		}
		src.Value = string(data)
		src.File = file
	}

	secret := strings.TrimSpace(src.Value)
	if secret == "" {
		if src.File != "" {
			return "", fmt.Errorf("%s file %q is empty", name, src.File)
		}
		return "", fmt.Errorf("%s is not configured", name)
	}
	return secret, nil
}

// Optional behaves like Load but treats an unconfigured secret as empty.
func Optional(src Source) (string, error) {
	if strings.TrimSpace(src.File) == "" && strings.TrimSpace(src.Value) == "" {
		return "", nil
	}
	return Load(src)
}
