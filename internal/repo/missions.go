package repo

import (
	"context"
	"database/sql"
	"errors"

	"staffline/internal/domain"
)

const missionColumns = `id,agency_id,client_id,title,COALESCE(description,''),COALESCE(location,''),target,required_skills_json,channels_json,status,source,start_date,end_date,created_at,updated_at`

func scanMission(row scanner) (domain.Mission, error) {
	var m domain.Mission
	var skills, channels string
	var start, end sql.NullString
	err := row.Scan(&m.ID, &m.AgencyID, &m.ClientID, &m.Title, &m.Description, &m.Location, &m.Target, &skills, &channels,
		&m.Status, &m.Source, &start, &end, &m.CreatedAt, &m.UpdatedAt)
	if err == sql.ErrNoRows {
		return m, ErrNotFound
	}
	if err != nil {
		return m, err
	}
	m.RequiredSkills = unmarshalList[string](skills)
	m.Channels = unmarshalList[domain.Channel](channels)
	m.StartDate = stringPtr(start)
	m.EndDate = stringPtr(end)
	return m, nil
}

func (r Repo) InsertMission(ctx context.Context, tx *sql.Tx, m domain.Mission) error {
	if m.ID == "" || m.AgencyID == "" || m.ClientID == "" {
		return errors.New("mission id, agency_id and client_id required")
	}
	skills, err := marshalList(m.RequiredSkills)
	if err != nil {
		return err
	}
	channels, err := marshalList(m.Channels)
	if err != nil {
		return err
	}
	_, err = r.q(tx).ExecContext(ctx, `INSERT INTO missions(id,agency_id,client_id,title,description,location,target,required_skills_json,channels_json,status,source,start_date,end_date,created_at,updated_at)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		m.ID, m.AgencyID, m.ClientID, m.Title, nullable(m.Description), nullable(m.Location), m.Target, skills, channels,
		m.Status, m.Source, nullableStringPtr(m.StartDate), nullableStringPtr(m.EndDate), m.CreatedAt, m.UpdatedAt)
	return err
}

func (r Repo) UpdateMission(ctx context.Context, tx *sql.Tx, m domain.Mission) error {
	skills, err := marshalList(m.RequiredSkills)
	if err != nil {
		return err
	}
	channels, err := marshalList(m.Channels)
	if err != nil {
		return err
	}
	res, err := r.q(tx).ExecContext(ctx, `UPDATE missions SET title=?,description=?,location=?,target=?,required_skills_json=?,channels_json=?,status=?,start_date=?,end_date=?,updated_at=?
WHERE agency_id=? AND id=?`,
		m.Title, nullable(m.Description), nullable(m.Location), m.Target, skills, channels, m.Status,
		nullableStringPtr(m.StartDate), nullableStringPtr(m.EndDate), m.UpdatedAt, m.AgencyID, m.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteMission removes the mission; its pipeline and participants cascade.
func (r Repo) DeleteMission(ctx context.Context, tx *sql.Tx, agencyID, id string) error {
	res, err := r.q(tx).ExecContext(ctx, `DELETE FROM missions WHERE agency_id=? AND id=?`, agencyID, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) GetMission(ctx context.Context, tx *sql.Tx, agencyID, id string) (domain.Mission, error) {
	return scanMission(r.q(tx).QueryRowContext(ctx, `SELECT `+missionColumns+` FROM missions WHERE agency_id=? AND id=?`, agencyID, id))
}

// ListMissions returns an agency's missions, newest first, optionally for one client.
func (r Repo) ListMissions(ctx context.Context, agencyID, clientID string) ([]domain.Mission, error) {
	query := `SELECT ` + missionColumns + ` FROM missions WHERE agency_id=?`
	args := []any{agencyID}
	if clientID != "" {
		query += ` AND client_id=?`
		args = append(args, clientID)
	}
	query += ` ORDER BY created_at DESC, rowid DESC`
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Mission
	for rows.Next() {
		m, err := scanMission(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, m)
	}
	return res, rows.Err()
}

const pipelineColumns = `id,mission_id,agency_id,status,created_at,updated_at`

func scanPipeline(row scanner) (domain.Pipeline, error) {
	var p domain.Pipeline
	err := row.Scan(&p.ID, &p.MissionID, &p.AgencyID, &p.Status, &p.CreatedAt, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return p, ErrNotFound
	}
	return p, err
}

func (r Repo) InsertPipeline(ctx context.Context, tx *sql.Tx, p domain.Pipeline) error {
	_, err := r.q(tx).ExecContext(ctx, `INSERT INTO pipelines(id,mission_id,agency_id,status,created_at,updated_at) VALUES (?,?,?,?,?,?)`,
		p.ID, p.MissionID, p.AgencyID, p.Status, p.CreatedAt, p.UpdatedAt)
	return err
}

func (r Repo) GetPipeline(ctx context.Context, tx *sql.Tx, agencyID, id string) (domain.Pipeline, error) {
	return scanPipeline(r.q(tx).QueryRowContext(ctx, `SELECT `+pipelineColumns+` FROM pipelines WHERE agency_id=? AND id=?`, agencyID, id))
}

func (r Repo) GetPipelineByMission(ctx context.Context, tx *sql.Tx, agencyID, missionID string) (domain.Pipeline, error) {
	return scanPipeline(r.q(tx).QueryRowContext(ctx, `SELECT `+pipelineColumns+` FROM pipelines WHERE agency_id=? AND mission_id=?`, agencyID, missionID))
}

func (r Repo) ListPipelines(ctx context.Context, agencyID string, status domain.PipelineStatus) ([]domain.Pipeline, error) {
	query := `SELECT ` + pipelineColumns + ` FROM pipelines WHERE agency_id=?`
	args := []any{agencyID}
	if status != "" {
		query += ` AND status=?`
		args = append(args, status)
	}
	query += ` ORDER BY updated_at DESC, rowid DESC`
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Pipeline
	for rows.Next() {
		p, err := scanPipeline(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, p)
	}
	return res, rows.Err()
}

func (r Repo) UpdatePipelineStatus(ctx context.Context, tx *sql.Tx, id string, status domain.PipelineStatus, updatedAt string) error {
	_, err := r.q(tx).ExecContext(ctx, `UPDATE pipelines SET status=?, updated_at=? WHERE id=?`, status, updatedAt, id)
	return err
}

// WaitingClientPipelines lists a client's pipelines awaiting a client decision,
// most recently updated first.
func (r Repo) WaitingClientPipelines(ctx context.Context, tx *sql.Tx, agencyID, clientID string) ([]domain.Pipeline, error) {
	rows, err := r.q(tx).QueryContext(ctx, `SELECT pl.id,pl.mission_id,pl.agency_id,pl.status,pl.created_at,pl.updated_at
FROM pipelines pl JOIN missions m ON m.id=pl.mission_id
WHERE pl.agency_id=? AND m.client_id=? AND pl.status=?
ORDER BY pl.updated_at DESC, pl.rowid DESC`, agencyID, clientID, domain.PipelineWaitingClient)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Pipeline
	for rows.Next() {
		p, err := scanPipeline(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, p)
	}
	return res, rows.Err()
}
