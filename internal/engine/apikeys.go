package engine

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"staffline/internal/domain"
	"staffline/internal/events"
	"staffline/internal/repo"
)

const apiKeyPrefix = "slk_"

// CreateAPIKey issues a key acting as keyActor for the agency. The plain key
// is returned once; only its hash is stored.
func (e Engine) CreateAPIKey(ctx context.Context, agencyID, keyActor, name, actorID string) (domain.APIKey, string, error) {
	if strings.TrimSpace(keyActor) == "" {
		return domain.APIKey{}, "", invalidf("api key actor is required")
	}
	if _, err := e.Agency(ctx, agencyID); err != nil {
		return domain.APIKey{}, "", err
	}
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return domain.APIKey{}, "", fmt.Errorf("api key: %w", err)
	}
	plain := apiKeyPrefix + hex.EncodeToString(buf)
	key := domain.APIKey{
		ID:        uuid.NewString(),
		AgencyID:  agencyID,
		ActorID:   strings.TrimSpace(keyActor),
		Name:      strings.TrimSpace(name),
		KeyHash:   repo.HashAPIKey(plain),
		CreatedAt: e.timestamp(),
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.APIKey{}, "", err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertAPIKey(ctx, tx, key); err != nil {
		return domain.APIKey{}, "", err
	}
	if err := e.Events.Append(ctx, tx, "apikey.created", agencyID, "api_key", key.ID, actorID,
		events.EventPayload{"actor_id": key.ActorID, "name": key.Name}); err != nil {
		return domain.APIKey{}, "", err
	}
	if err := tx.Commit(); err != nil {
		return domain.APIKey{}, "", err
	}
	return key, plain, nil
}

func (e Engine) ListAPIKeys(ctx context.Context, agencyID, keyActor string) ([]domain.APIKey, error) {
	return e.Repo.ListAPIKeys(ctx, agencyID, keyActor)
}

func (e Engine) DeleteAPIKey(ctx context.Context, agencyID, id, actorID string) error {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.DeleteAPIKey(ctx, tx, agencyID, id); err != nil {
		return notFound("api key", id, err)
	}
	if err := e.Events.Append(ctx, tx, "apikey.deleted", agencyID, "api_key", id, actorID, nil); err != nil {
		return err
	}
	return tx.Commit()
}
