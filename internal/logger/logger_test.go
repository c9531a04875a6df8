package logger

import (
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestStringFields(t *testing.T) {
	fields := StringFields(
		StringField{Key: "  agency_id  ", Value: "  acme  "},
		StringField{Key: "ignored", Value: "   "},
		StringField{Key: "   ", Value: "empty key"},
	)
	if len(fields) != 1 {
		t.Fatalf("expected 1 field, got %d", len(fields))
	}
	if fields[0].Key != "agency_id" || fields[0].String != "acme" {
		t.Fatalf("unexpected field: %+v", fields[0])
	}
	if len(StringFields()) != 0 {
		t.Fatalf("expected empty fields")
	}
}

func TestWithFieldsAndPipelineFields(t *testing.T) {
	core, observed := observer.New(zapcore.InfoLevel)
	log := zap.New(core)

	WithFields(log, PipelineFields("acme", "pl-1")...).Info("launched")

	entries := observed.All()
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	ctx := entries[0].ContextMap()
	if ctx[FieldAgency] != "acme" || ctx[FieldPipeline] != "pl-1" {
		t.Fatalf("unexpected context: %v", ctx)
	}

	fallback := WithFields(nil, zap.String("baz", "qux"))
	if fallback == nil {
		t.Fatalf("expected fallback logger when nil provided")
	}
	fallback.Info("another log")
}

func TestProviderFieldsSkipEmpty(t *testing.T) {
	if got := ProviderFields("", ""); len(got) != 0 {
		t.Fatalf("expected no fields, got %d", len(got))
	}
	got := ProviderFields("gemini", "gemini-2.5-flash")
	if len(got) != 2 || got[0].Key != FieldProvider || got[1].String != "gemini-2.5-flash" {
		t.Fatalf("unexpected fields: %+v", got)
	}
}

func TestTruncateForLog(t *testing.T) {
	if got := TruncateForLog("  Bonjour  ", 20); got != "Bonjour" {
		t.Fatalf("expected trimmed value, got %q", got)
	}
	if got := TruncateForLog("Répondez OUI", 4); got != "Répo..." {
		t.Fatalf("expected rune-safe truncation, got %q", got)
	}
	if got := TruncateForLog("x", 0); got != "" {
		t.Fatalf("expected empty string, got %q", got)
	}
}
