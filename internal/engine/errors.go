package engine

import (
	"errors"
	"fmt"
	"strings"

	"staffline/internal/domain"
	"staffline/internal/repo"
)

var (
	// ErrConflict reports an action contradicting a participant's terminal
	// decision, or a duplicate unique name.
	ErrConflict = errors.New("conflict")
	// ErrAccessDenied is returned for unknown portal tokens and for portal
	// requests on participants the token does not own.
	ErrAccessDenied = errors.New("access denied")
	// ErrInvalid reports a malformed request.
	ErrInvalid = errors.New("invalid request")
)

// NotFoundError names the missing entity.
type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}

func (e *NotFoundError) Unwrap() error { return repo.ErrNotFound }

// TransitionError reports a state change the state machine does not allow.
type TransitionError struct {
	Entity string
	From   string
	To     string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("invalid %s transition %s -> %s", e.Entity, e.From, e.To)
}

func notFound(entity, id string, err error) error {
	if errors.Is(err, repo.ErrNotFound) {
		return &NotFoundError{Entity: entity, ID: id}
	}
	return err
}

func invalidf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalid, fmt.Sprintf(format, args...))
}

func conflictf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConflict, fmt.Sprintf(format, args...))
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func ensurePipelineTransition(from, to domain.PipelineStatus) error {
	allowed := map[domain.PipelineStatus][]domain.PipelineStatus{
		domain.PipelineWaitingAgency: {domain.PipelineRunning, domain.PipelineAlert},
		domain.PipelineRunning:       {domain.PipelineRunning, domain.PipelineAlert, domain.PipelineWaitingClient},
		domain.PipelineAlert:         {domain.PipelineRunning, domain.PipelineAlert, domain.PipelineWaitingClient},
		domain.PipelineWaitingClient: {domain.PipelineWaitingClient, domain.PipelineCompleted},
		domain.PipelineCompleted:     {},
	}
	for _, s := range allowed[from] {
		if s == to {
			return nil
		}
	}
	return &TransitionError{Entity: "pipeline", From: string(from), To: string(to)}
}
