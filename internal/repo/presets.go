package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"staffline/internal/domain"
)

const presetColumns = `id,agency_id,name,COALESCE(job_type,''),rubric_json,is_default,created_at`

func scanPreset(row scanner) (domain.ScoringPreset, error) {
	var p domain.ScoringPreset
	var rubric string
	var isDefault int
	err := row.Scan(&p.ID, &p.AgencyID, &p.Name, &p.JobType, &rubric, &isDefault, &p.CreatedAt)
	if err == sql.ErrNoRows {
		return p, ErrNotFound
	}
	if err != nil {
		return p, err
	}
	if err := json.Unmarshal([]byte(rubric), &p.Rubric); err != nil {
		return p, fmt.Errorf("preset %s rubric: %w", p.ID, err)
	}
	p.IsDefault = isDefault == 1
	return p, nil
}

func (r Repo) InsertPreset(ctx context.Context, tx *sql.Tx, p domain.ScoringPreset) error {
	if p.ID == "" || p.AgencyID == "" || p.Name == "" {
		return errors.New("preset id, agency_id and name required")
	}
	rubric, err := json.Marshal(p.Rubric)
	if err != nil {
		return err
	}
	_, err = r.q(tx).ExecContext(ctx, `INSERT INTO scoring_presets(id,agency_id,name,job_type,rubric_json,is_default,created_at) VALUES (?,?,?,?,?,?,?)`,
		p.ID, p.AgencyID, p.Name, nullable(p.JobType), string(rubric), boolInt(p.IsDefault), p.CreatedAt)
	return err
}

func (r Repo) GetPreset(ctx context.Context, agencyID, id string) (domain.ScoringPreset, error) {
	return scanPreset(r.DB.QueryRowContext(ctx, `SELECT `+presetColumns+` FROM scoring_presets WHERE agency_id=? AND id=?`, agencyID, id))
}

func (r Repo) GetDefaultPreset(ctx context.Context, agencyID string) (domain.ScoringPreset, error) {
	return scanPreset(r.DB.QueryRowContext(ctx, `SELECT `+presetColumns+` FROM scoring_presets WHERE agency_id=? AND is_default=1 LIMIT 1`, agencyID))
}

func (r Repo) ListPresets(ctx context.Context, agencyID string) ([]domain.ScoringPreset, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+presetColumns+` FROM scoring_presets WHERE agency_id=? ORDER BY is_default DESC, name`, agencyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.ScoringPreset
	for rows.Next() {
		p, err := scanPreset(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, p)
	}
	return res, rows.Err()
}

func (r Repo) DeletePreset(ctx context.Context, tx *sql.Tx, agencyID, id string) error {
	res, err := r.q(tx).ExecContext(ctx, `DELETE FROM scoring_presets WHERE agency_id=? AND id=?`, agencyID, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// SetDefaultPreset makes id the agency's only default preset.
func (r Repo) SetDefaultPreset(ctx context.Context, tx *sql.Tx, agencyID, id string) error {
	q := r.q(tx)
	if _, err := q.ExecContext(ctx, `UPDATE scoring_presets SET is_default=0 WHERE agency_id=? AND id<>?`, agencyID, id); err != nil {
		return err
	}
	res, err := q.ExecContext(ctx, `UPDATE scoring_presets SET is_default=1 WHERE agency_id=? AND id=?`, agencyID, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
