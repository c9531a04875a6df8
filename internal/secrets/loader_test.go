package secrets

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadPrefersFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token")
	if err := os.WriteFile(path, []byte("  from-file\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	got, err := Load(Source{Name: "twilio auth token", Value: "inline", File: path})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got != "from-file" {
		t.Fatalf("expected file value, got %q", got)
	}
}

func TestLoadErrors(t *testing.T) {
	if _, err := Load(Source{Name: "api key"}); err == nil || !strings.Contains(err.Error(), "api key is not configured") {
		t.Fatalf("expected not configured error, got %v", err)
	}
	path := filepath.Join(t.TempDir(), "empty")
	if err := os.WriteFile(path, []byte("   "), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := Load(Source{File: path}); err == nil || !strings.Contains(err.Error(), "is empty") {
		t.Fatalf("expected empty file error, got %v", err)
	}
	if _, err := Load(Source{File: filepath.Join(t.TempDir(), "missing")}); err == nil {
		t.Fatalf("expected missing file error")
	}
}

func TestOptional(t *testing.T) {
	got, err := Optional(Source{Name: "api key"})
	if err != nil || got != "" {
		t.Fatalf("expected empty secret, got %q %v", got, err)
	}
	got, err = Optional(Source{Value: " k "})
	if err != nil || got != "k" {
		t.Fatalf("expected inline secret, got %q %v", got, err)
	}
}
