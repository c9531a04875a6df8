package logger

import (
	"strings"

	"go.uber.org/zap"
)

const (
	FieldAgency      = "agency_id"
	FieldActor       = "actor_id"
	FieldPipeline    = "pipeline_id"
	FieldParticipant = "participant_id"
	FieldChannel     = "channel"
	FieldProvider    = "ai_provider"
	FieldModel       = "ai_model"
)

// StringField describes a string-valued structured logging field.
type StringField struct {
	Key   string
	Value string
}

// StringFields converts the provided key/value pairs into zap fields, trimming
// whitespace and omitting entries with empty keys or values.
func StringFields(fields ...StringField) []zap.Field {
	result := make([]zap.Field, 0, len(fields))
	for _, field := range fields {
		key := strings.TrimSpace(field.Key)
		if key == "" {
			continue
		}
		value := strings.TrimSpace(field.Value)
		if value == "" {
			continue
		}
		result = append(result, zap.String(key, value))
	}
	return result
}

// WithFields attaches fields to the logger, defaulting to a no-op logger when nil.
func WithFields(logger *zap.Logger, fields ...zap.Field) *zap.Logger {
	logger = OrNop(logger)
	if len(fields) == 0 {
		return logger
	}
	return logger.With(fields...)
}

// PipelineFields describes the pipeline an entry belongs to. Empty values are dropped.
func PipelineFields(agencyID, pipelineID string) []zap.Field {
	return StringFields(
		StringField{Key: FieldAgency, Value: agencyID},
		StringField{Key: FieldPipeline, Value: pipelineID},
	)
}

// ProviderFields describes the scoring provider and model.
func ProviderFields(provider, model string) []zap.Field {
	return StringFields(
		StringField{Key: FieldProvider, Value: provider},
		StringField{Key: FieldModel, Value: model},
	)
}
