package repo

import (
	"context"
	"database/sql"

	"staffline/internal/domain"
)

// RecordInbound stores a provider message once. It reports false when the
// message id was already recorded.
func (r Repo) RecordInbound(ctx context.Context, tx *sql.Tx, m domain.InboundMessage) (bool, error) {
	res, err := r.q(tx).ExecContext(ctx, `INSERT INTO inbound_messages(message_id,agency_id,sender,body,outcome,received_at) VALUES (?,?,?,?,?,?)
ON CONFLICT(message_id) DO NOTHING`, m.MessageID, m.AgencyID, m.Sender, m.Body, m.Outcome, m.ReceivedAt)
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	return n == 1, nil
}

func (r Repo) GetInbound(ctx context.Context, messageID string) (domain.InboundMessage, error) {
	var m domain.InboundMessage
	err := r.DB.QueryRowContext(ctx, `SELECT message_id,agency_id,sender,body,outcome,received_at FROM inbound_messages WHERE message_id=?`, messageID).
		Scan(&m.MessageID, &m.AgencyID, &m.Sender, &m.Body, &m.Outcome, &m.ReceivedAt)
	if err == sql.ErrNoRows {
		return m, ErrNotFound
	}
	return m, err
}

// SetInboundOutcome records what a message did once it has been applied.
func (r Repo) SetInboundOutcome(ctx context.Context, tx *sql.Tx, messageID, outcome string) error {
	_, err := r.q(tx).ExecContext(ctx, `UPDATE inbound_messages SET outcome=? WHERE message_id=?`, outcome, messageID)
	return err
}
