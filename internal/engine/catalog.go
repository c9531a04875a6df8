package engine

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"staffline/internal/domain"
	"staffline/internal/events"
	"staffline/internal/messaging"
)

// CandidateInput describes a candidate to register.
type CandidateInput struct {
	FirstName       string
	LastName        string
	Email           string
	Phone           string
	City            string
	Skills          []string
	ExperienceYears *int
	Availability    domain.Availability
}

func (e Engine) CreateCandidate(ctx context.Context, agencyID string, in CandidateInput, actorID string) (domain.Candidate, error) {
	if strings.TrimSpace(in.FirstName) == "" {
		return domain.Candidate{}, invalidf("first name is required")
	}
	if in.ExperienceYears != nil && *in.ExperienceYears < 0 {
		return domain.Candidate{}, invalidf("experience must not be negative")
	}
	availability := domain.Available
	if in.Availability != "" {
		a, ok := domain.ParseAvailability(string(in.Availability))
		if !ok {
			return domain.Candidate{}, invalidf("unknown availability %q", in.Availability)
		}
		availability = a
	}
	if _, err := e.Agency(ctx, agencyID); err != nil {
		return domain.Candidate{}, err
	}
	now := e.timestamp()
	c := domain.Candidate{
		ID:              uuid.NewString(),
		AgencyID:        agencyID,
		FirstName:       strings.TrimSpace(in.FirstName),
		LastName:        strings.TrimSpace(in.LastName),
		Email:           strings.TrimSpace(in.Email),
		Phone:           strings.TrimSpace(in.Phone),
		PhoneNorm:       messaging.NormalizePhone(in.Phone, e.countryCode()),
		City:            strings.TrimSpace(in.City),
		Skills:          cleanList(in.Skills),
		ExperienceYears: in.ExperienceYears,
		Availability:    availability,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Candidate{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertCandidate(ctx, tx, c); err != nil {
		return domain.Candidate{}, fmt.Errorf("insert candidate: %w", err)
	}
	if err := e.Events.Append(ctx, tx, "candidate.created", agencyID, "candidate", c.ID, actorID, events.EventPayload{"availability": c.Availability}); err != nil {
		return domain.Candidate{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Candidate{}, err
	}
	return c, nil
}

// SetAvailability changes whether a candidate enters future shortlists.
// Existing participations are untouched.
func (e Engine) SetAvailability(ctx context.Context, agencyID, candidateID string, availability domain.Availability, actorID string) (domain.Candidate, error) {
	a, ok := domain.ParseAvailability(string(availability))
	if !ok {
		return domain.Candidate{}, invalidf("unknown availability %q", availability)
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Candidate{}, err
	}
	defer tx.Rollback()
	c, err := e.Repo.GetCandidate(ctx, tx, agencyID, candidateID)
	if err != nil {
		return domain.Candidate{}, notFound("candidate", candidateID, err)
	}
	if c.Availability == a {
		return c, nil
	}
	now := e.timestamp()
	if err := e.Repo.SetCandidateAvailability(ctx, tx, agencyID, candidateID, a, now); err != nil {
		return domain.Candidate{}, err
	}
	if err := e.Events.Append(ctx, tx, "candidate.availability", agencyID, "candidate", c.ID, actorID,
		events.EventPayload{"from": c.Availability, "to": a}); err != nil {
		return domain.Candidate{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Candidate{}, err
	}
	c.Availability = a
	c.UpdatedAt = now
	return c, nil
}

// ClientInput describes a client company.
type ClientInput struct {
	Name        string
	ContactName string
	Email       string
	Phone       string
}

func (e Engine) CreateClient(ctx context.Context, agencyID string, in ClientInput, actorID string) (domain.Client, error) {
	if strings.TrimSpace(in.Name) == "" {
		return domain.Client{}, invalidf("client name is required")
	}
	if _, err := e.Agency(ctx, agencyID); err != nil {
		return domain.Client{}, err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Client{}, err
	}
	defer tx.Rollback()
	c, err := e.insertClient(ctx, tx, agencyID, in, actorID)
	if err != nil {
		return domain.Client{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Client{}, err
	}
	return c, nil
}

func (e Engine) insertClient(ctx context.Context, tx *sql.Tx, agencyID string, in ClientInput, actorID string) (domain.Client, error) {
	now := e.timestamp()
	c := domain.Client{
		ID:          uuid.NewString(),
		AgencyID:    agencyID,
		Name:        strings.TrimSpace(in.Name),
		ContactName: strings.TrimSpace(in.ContactName),
		Email:       strings.TrimSpace(in.Email),
		Phone:       strings.TrimSpace(in.Phone),
		PhoneNorm:   messaging.NormalizePhone(in.Phone, e.countryCode()),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := e.Repo.InsertClient(ctx, tx, c); err != nil {
		return domain.Client{}, fmt.Errorf("insert client: %w", err)
	}
	if err := e.Events.Append(ctx, tx, "client.created", agencyID, "client", c.ID, actorID, events.EventPayload{"name": c.Name}); err != nil {
		return domain.Client{}, err
	}
	return c, nil
}

// PortalToken returns the client's portal token, creating one on first use.
// With rotate set, the previous token stops working.
func (e Engine) PortalToken(ctx context.Context, agencyID, clientID string, rotate bool, actorID string) (string, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return "", err
	}
	defer tx.Rollback()
	c, err := e.Repo.GetClient(ctx, tx, agencyID, clientID)
	if err != nil {
		return "", notFound("client", clientID, err)
	}
	if c.PortalToken != "" && !rotate {
		return c.PortalToken, nil
	}
	token, err := newPortalToken()
	if err != nil {
		return "", err
	}
	if err := e.Repo.SetPortalToken(ctx, tx, agencyID, clientID, token, e.timestamp()); err != nil {
		return "", err
	}
	evt := "client.portal_token_created"
	if c.PortalToken != "" {
		evt = "client.portal_token_rotated"
	}
	if err := e.Events.Append(ctx, tx, evt, agencyID, "client", c.ID, actorID, nil); err != nil {
		return "", err
	}
	if err := tx.Commit(); err != nil {
		return "", err
	}
	return token, nil
}

func newPortalToken() (string, error) {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("portal token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

func cleanList(in []string) []string {
	out := make([]string, 0, len(in))
	seen := map[string]bool{}
	for _, v := range in {
		v = strings.TrimSpace(v)
		if v == "" || seen[strings.ToLower(v)] {
			continue
		}
		seen[strings.ToLower(v)] = true
		out = append(out, v)
	}
	return out
}
