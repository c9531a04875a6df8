package repo

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"staffline/internal/domain"
)

const clientColumns = `id,agency_id,name,COALESCE(contact_name,''),COALESCE(email,''),COALESCE(phone,''),COALESCE(phone_norm,''),COALESCE(portal_token,''),created_at,updated_at`

func scanClient(row scanner) (domain.Client, error) {
	var c domain.Client
	err := row.Scan(&c.ID, &c.AgencyID, &c.Name, &c.ContactName, &c.Email, &c.Phone, &c.PhoneNorm, &c.PortalToken, &c.CreatedAt, &c.UpdatedAt)
	if err == sql.ErrNoRows {
		return c, ErrNotFound
	}
	return c, err
}

func (r Repo) InsertClient(ctx context.Context, tx *sql.Tx, c domain.Client) error {
	if c.ID == "" || c.AgencyID == "" {
		return errors.New("client id and agency_id required")
	}
	_, err := r.q(tx).ExecContext(ctx, `INSERT INTO clients(id,agency_id,name,contact_name,email,phone,phone_norm,portal_token,created_at,updated_at)
VALUES (?,?,?,?,?,?,?,?,?,?)`,
		c.ID, c.AgencyID, c.Name, nullable(c.ContactName), nullable(c.Email), nullable(c.Phone), nullable(c.PhoneNorm),
		nullable(c.PortalToken), c.CreatedAt, c.UpdatedAt)
	return err
}

func (r Repo) GetClient(ctx context.Context, tx *sql.Tx, agencyID, id string) (domain.Client, error) {
	return scanClient(r.q(tx).QueryRowContext(ctx, `SELECT `+clientColumns+` FROM clients WHERE agency_id=? AND id=?`, agencyID, id))
}

// FindClientByName matches names case-insensitively within an agency.
func (r Repo) FindClientByName(ctx context.Context, tx *sql.Tx, agencyID, name string) (domain.Client, error) {
	return scanClient(r.q(tx).QueryRowContext(ctx, `SELECT `+clientColumns+` FROM clients WHERE agency_id=? AND lower(name)=lower(?) ORDER BY created_at LIMIT 1`,
		agencyID, strings.TrimSpace(name)))
}

// GetClientByPortalToken resolves a portal token across all agencies.
func (r Repo) GetClientByPortalToken(ctx context.Context, token string) (domain.Client, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return domain.Client{}, ErrNotFound
	}
	return scanClient(r.DB.QueryRowContext(ctx, `SELECT `+clientColumns+` FROM clients WHERE portal_token=?`, token))
}

func (r Repo) SetPortalToken(ctx context.Context, tx *sql.Tx, agencyID, id, token, updatedAt string) error {
	res, err := r.q(tx).ExecContext(ctx, `UPDATE clients SET portal_token=?, updated_at=? WHERE agency_id=? AND id=?`, token, updatedAt, agencyID, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) ListClients(ctx context.Context, agencyID string) ([]domain.Client, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+clientColumns+` FROM clients WHERE agency_id=? ORDER BY name, id`, agencyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Client
	for rows.Next() {
		c, err := scanClient(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, c)
	}
	return res, rows.Err()
}

// FindClientsByPhone returns clients whose normalised phone matches.
func (r Repo) FindClientsByPhone(ctx context.Context, tx *sql.Tx, agencyID, phoneNorm string) ([]domain.Client, error) {
	if phoneNorm == "" {
		return nil, nil
	}
	rows, err := r.q(tx).QueryContext(ctx, `SELECT `+clientColumns+` FROM clients WHERE agency_id=? AND phone_norm=? ORDER BY created_at, id`, agencyID, phoneNorm)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Client
	for rows.Next() {
		c, err := scanClient(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, c)
	}
	return res, rows.Err()
}
