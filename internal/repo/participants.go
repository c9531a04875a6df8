package repo

import (
	"context"
	"database/sql"

	"staffline/internal/domain"
)

const participantColumns = `pa.id,pa.pipeline_id,pa.candidate_id,pa.outreach_status,pa.last_response,pa.proposed_to_client,pa.proposed_at,pa.client_validated,pa.client_refused,pa.client_comment,pa.visibility,pa.selected,pa.created_at,pa.updated_at`

func scanParticipant(row scanner) (domain.Participant, error) {
	var p domain.Participant
	var last, proposedAt, comment sql.NullString
	var proposed, validated, refused, selected int
	err := row.Scan(&p.ID, &p.PipelineID, &p.CandidateID, &p.OutreachStatus, &last, &proposed, &proposedAt, &validated, &refused,
		&comment, &p.Visibility, &selected, &p.CreatedAt, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return p, ErrNotFound
	}
	if err != nil {
		return p, err
	}
	p.LastResponse = stringPtr(last)
	p.ProposedAt = stringPtr(proposedAt)
	p.ClientComment = stringPtr(comment)
	p.ProposedToClient = proposed == 1
	p.ClientValidated = validated == 1
	p.ClientRefused = refused == 1
	p.Selected = selected == 1
	return p, nil
}

func collectParticipants(rows *sql.Rows) ([]domain.Participant, error) {
	defer rows.Close()
	var res []domain.Participant
	for rows.Next() {
		p, err := scanParticipant(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, p)
	}
	return res, rows.Err()
}

// InsertParticipant admits a candidate into a pipeline. It reports false when the
// candidate already participates.
func (r Repo) InsertParticipant(ctx context.Context, tx *sql.Tx, p domain.Participant) (bool, error) {
	res, err := r.q(tx).ExecContext(ctx, `INSERT INTO participants(id,pipeline_id,candidate_id,outreach_status,last_response,proposed_to_client,proposed_at,client_validated,client_refused,client_comment,visibility,selected,created_at,updated_at)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?)
ON CONFLICT(pipeline_id,candidate_id) DO NOTHING`,
		p.ID, p.PipelineID, p.CandidateID, p.OutreachStatus, nullableStringPtr(p.LastResponse), boolInt(p.ProposedToClient),
		nullableStringPtr(p.ProposedAt), boolInt(p.ClientValidated), boolInt(p.ClientRefused), nullableStringPtr(p.ClientComment),
		p.Visibility, boolInt(p.Selected), p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	return n == 1, nil
}

func (r Repo) UpdateParticipant(ctx context.Context, tx *sql.Tx, p domain.Participant) error {
	res, err := r.q(tx).ExecContext(ctx, `UPDATE participants SET outreach_status=?,last_response=?,proposed_to_client=?,proposed_at=?,client_validated=?,client_refused=?,client_comment=?,visibility=?,selected=?,updated_at=?
WHERE id=?`,
		p.OutreachStatus, nullableStringPtr(p.LastResponse), boolInt(p.ProposedToClient), nullableStringPtr(p.ProposedAt),
		boolInt(p.ClientValidated), boolInt(p.ClientRefused), nullableStringPtr(p.ClientComment), p.Visibility, boolInt(p.Selected),
		p.UpdatedAt, p.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// GetParticipant loads a participant scoped to the agency owning its pipeline.
func (r Repo) GetParticipant(ctx context.Context, tx *sql.Tx, agencyID, id string) (domain.Participant, error) {
	return scanParticipant(r.q(tx).QueryRowContext(ctx, `SELECT `+participantColumns+`
FROM participants pa JOIN pipelines pl ON pl.id=pa.pipeline_id WHERE pl.agency_id=? AND pa.id=?`, agencyID, id))
}

// ListParticipants returns a pipeline's participants in admission order.
func (r Repo) ListParticipants(ctx context.Context, tx *sql.Tx, pipelineID string) ([]domain.Participant, error) {
	rows, err := r.q(tx).QueryContext(ctx, `SELECT `+participantColumns+` FROM participants pa WHERE pa.pipeline_id=? ORDER BY pa.created_at, pa.rowid`, pipelineID)
	if err != nil {
		return nil, err
	}
	return collectParticipants(rows)
}

// LatestSentParticipantByPhone finds the most recently admitted participant still
// awaiting a reply from a candidate with the given normalised phone.
func (r Repo) LatestSentParticipantByPhone(ctx context.Context, tx *sql.Tx, agencyID, phoneNorm string) (domain.Participant, error) {
	if phoneNorm == "" {
		return domain.Participant{}, ErrNotFound
	}
	return scanParticipant(r.q(tx).QueryRowContext(ctx, `SELECT `+participantColumns+`
FROM participants pa
JOIN candidates c ON c.id=pa.candidate_id
JOIN pipelines pl ON pl.id=pa.pipeline_id
WHERE pl.agency_id=? AND c.phone_norm=? AND pa.outreach_status=?
ORDER BY pa.created_at DESC, pa.rowid DESC LIMIT 1`, agencyID, phoneNorm, domain.OutreachSent))
}

// ProposedForClient lists participants proposed on any of the client's missions,
// newest proposal first.
func (r Repo) ProposedForClient(ctx context.Context, agencyID, clientID string) ([]domain.Participant, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+participantColumns+`
FROM participants pa
JOIN pipelines pl ON pl.id=pa.pipeline_id
JOIN missions m ON m.id=pl.mission_id
WHERE m.agency_id=? AND m.client_id=? AND pa.proposed_to_client=1
ORDER BY pa.proposed_at DESC, pa.rowid DESC`, agencyID, clientID)
	if err != nil {
		return nil, err
	}
	return collectParticipants(rows)
}

// ParticipantMissionClient returns the client owning the mission a participant belongs to.
func (r Repo) ParticipantMissionClient(ctx context.Context, participantID string) (agencyID, clientID string, err error) {
	err = r.DB.QueryRowContext(ctx, `SELECT m.agency_id, m.client_id
FROM participants pa JOIN pipelines pl ON pl.id=pa.pipeline_id JOIN missions m ON m.id=pl.mission_id
WHERE pa.id=?`, participantID).Scan(&agencyID, &clientID)
	if err == sql.ErrNoRows {
		return "", "", ErrNotFound
	}
	return agencyID, clientID, err
}
