package repo

import (
	"context"
	"database/sql"
	"errors"

	"staffline/internal/domain"
)

const candidateColumns = `id,agency_id,first_name,last_name,COALESCE(email,''),COALESCE(phone,''),COALESCE(phone_norm,''),COALESCE(city,''),skills_json,experience_years,availability,created_at,updated_at`

func scanCandidate(row scanner) (domain.Candidate, error) {
	var c domain.Candidate
	var skills string
	var exp sql.NullInt64
	err := row.Scan(&c.ID, &c.AgencyID, &c.FirstName, &c.LastName, &c.Email, &c.Phone, &c.PhoneNorm, &c.City, &skills, &exp, &c.Availability, &c.CreatedAt, &c.UpdatedAt)
	if err == sql.ErrNoRows {
		return c, ErrNotFound
	}
	if err != nil {
		return c, err
	}
	c.Skills = unmarshalList[string](skills)
	if exp.Valid {
		v := int(exp.Int64)
		c.ExperienceYears = &v
	}
	return c, nil
}

func (r Repo) InsertCandidate(ctx context.Context, tx *sql.Tx, c domain.Candidate) error {
	if c.ID == "" || c.AgencyID == "" {
		return errors.New("candidate id and agency_id required")
	}
	skills, err := marshalList(c.Skills)
	if err != nil {
		return err
	}
	if c.Availability == "" {
		c.Availability = domain.Available
	}
	_, err = r.q(tx).ExecContext(ctx, `INSERT INTO candidates(id,agency_id,first_name,last_name,email,phone,phone_norm,city,skills_json,experience_years,availability,created_at,updated_at)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		c.ID, c.AgencyID, c.FirstName, c.LastName, nullable(c.Email), nullable(c.Phone), nullable(c.PhoneNorm), nullable(c.City),
		skills, nullableIntPtr(c.ExperienceYears), c.Availability, c.CreatedAt, c.UpdatedAt)
	return err
}

func (r Repo) GetCandidate(ctx context.Context, tx *sql.Tx, agencyID, id string) (domain.Candidate, error) {
	return scanCandidate(r.q(tx).QueryRowContext(ctx, `SELECT `+candidateColumns+` FROM candidates WHERE agency_id=? AND id=?`, agencyID, id))
}

// ListCandidates returns an agency's candidates in pool order (oldest first).
// An empty availability returns every candidate.
func (r Repo) ListCandidates(ctx context.Context, agencyID string, availability domain.Availability) ([]domain.Candidate, error) {
	query := `SELECT ` + candidateColumns + ` FROM candidates WHERE agency_id=?`
	args := []any{agencyID}
	if availability != "" {
		query += ` AND availability=?`
		args = append(args, availability)
	}
	query += ` ORDER BY created_at ASC, rowid ASC`
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Candidate
	for rows.Next() {
		c, err := scanCandidate(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, c)
	}
	return res, rows.Err()
}

func (r Repo) SetCandidateAvailability(ctx context.Context, tx *sql.Tx, agencyID, id string, availability domain.Availability, updatedAt string) error {
	res, err := r.q(tx).ExecContext(ctx, `UPDATE candidates SET availability=?, updated_at=? WHERE agency_id=? AND id=?`, availability, updatedAt, agencyID, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
