package audit

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq" // postgres driver for the audit sink

	"facturo/pkg/domain"
)

// Schema for the audit_events table. No updates, no deletes: the table only
// ever grows, matching the append-only contract.
const Schema = `
CREATE TABLE IF NOT EXISTS audit_events (
	id          BIGSERIAL PRIMARY KEY,
	occurred_at TIMESTAMPTZ NOT NULL,
	issuer_id   UUID NOT NULL,
	invoice_id  UUID NOT NULL,
	action      TEXT NOT NULL,
	number_text TEXT NOT NULL DEFAULT '',
	reason      TEXT NOT NULL DEFAULT '',
	request_id  TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS audit_events_issuer ON audit_events (issuer_id, occurred_at);`

// PostgresStore persists audit events through database/sql.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Append(ctx context.Context, event Event) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_events (occurred_at, issuer_id, invoice_id, action, number_text, reason, request_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		event.Timestamp, event.IssuerID.String(), event.InvoiceID.String(),
		string(event.Action), event.NumberText, event.Reason, event.RequestID)
	if err != nil {
		return fmt.Errorf("append audit event: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListByIssuer(ctx context.Context, issuerID domain.IssuerID) ([]Event, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT occurred_at, issuer_id, invoice_id, action, number_text, reason, request_id
		FROM audit_events WHERE issuer_id = $1 ORDER BY occurred_at, id`,
		issuerID.String())
	if err != nil {
		return nil, fmt.Errorf("list audit events: %w", err)
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var (
			e                     Event
			issuerStr, invoiceStr string
			action                string
		)
		if err := rows.Scan(&e.Timestamp, &issuerStr, &invoiceStr, &action,
			&e.NumberText, &e.Reason, &e.RequestID); err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		id, err := domain.ParseIssuerID(issuerStr)
		if err != nil {
			return nil, fmt.Errorf("stored issuer id: %w", err)
		}
		invID, err := domain.ParseInvoiceID(invoiceStr)
		if err != nil {
			return nil, fmt.Errorf("stored invoice id: %w", err)
		}
		e.IssuerID, e.InvoiceID, e.Action = id, invID, Action(action)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list audit events: %w", err)
	}
	return out, nil
}
