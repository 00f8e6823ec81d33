package chain

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"facturo/internal/ledger/models"
	"facturo/internal/platform/pg"
	"facturo/internal/sigchain"
	"facturo/pkg/domain"
	"facturo/pkg/platform/sentinel"
)

// Schema for the chain_links table. The (issuer_id, seq) key makes a forked
// chain unrepresentable: two concurrent appends computing the same seq
// collide on the unique constraint even if both passed the tail check.
const Schema = `
CREATE TABLE IF NOT EXISTS chain_links (
	issuer_id      UUID NOT NULL,
	seq            BIGINT NOT NULL,
	invoice_id     UUID NOT NULL UNIQUE,
	number_text    TEXT NOT NULL,
	content_digest TEXT NOT NULL,
	chained_digest TEXT NOT NULL,
	signature      TEXT NOT NULL,
	payload        TEXT NOT NULL,
	created_at     TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (issuer_id, seq)
);`

const linkColumns = `issuer_id, seq, invoice_id, number_text, content_digest,
	chained_digest, signature, payload, created_at`

// Postgres persists chain links. Append runs in one transaction: re-read the
// tail, compare against the caller's expectation, insert.
type Postgres struct {
	pool *pgxpool.Pool
}

func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

func (s *Postgres) Tail(ctx context.Context, issuerID domain.IssuerID) (*models.ChainLink, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+linkColumns+` FROM chain_links
		WHERE issuer_id = $1 ORDER BY seq DESC LIMIT 1`, issuerID.String())
	link, err := scanLink(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("read chain tail: %w", err)
	}
	return link, nil
}

func (s *Postgres) Append(ctx context.Context, link models.ChainLink, expectedPrev sigchain.Digest) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin append: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is a no-op

	var tail string
	err = tx.QueryRow(ctx, `SELECT chained_digest FROM chain_links
		WHERE issuer_id = $1 ORDER BY seq DESC LIMIT 1 FOR UPDATE`,
		link.IssuerID.String()).Scan(&tail)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		tail = string(sigchain.Genesis)
	case err != nil:
		return fmt.Errorf("lock chain tail: %w", err)
	}
	if tail != string(expectedPrev) {
		return sentinel.ErrConflict
	}

	_, err = tx.Exec(ctx, `INSERT INTO chain_links (`+linkColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		link.IssuerID.String(), link.Seq, link.InvoiceID.String(), link.NumberText,
		string(link.ContentDigest), string(link.ChainedDigest), link.Signature,
		link.Payload, link.CreatedAt)
	if err != nil {
		if pg.IsUniqueViolation(err) {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("append chain link: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit append: %w", err)
	}
	return nil
}

func (s *Postgres) List(ctx context.Context, issuerID domain.IssuerID, fromSeq, toSeq int64) ([]models.ChainLink, error) {
	query := `SELECT ` + linkColumns + ` FROM chain_links
		WHERE issuer_id = $1 AND seq >= $2`
	args := []any{issuerID.String(), fromSeq}
	if toSeq > 0 {
		query += ` AND seq <= $3`
		args = append(args, toSeq)
	}
	query += ` ORDER BY seq ASC`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list chain links: %w", err)
	}
	defer rows.Close()

	var out []models.ChainLink
	for rows.Next() {
		link, err := scanLink(rows)
		if err != nil {
			return nil, fmt.Errorf("scan chain link: %w", err)
		}
		out = append(out, *link)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list chain links: %w", err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanLink(row rowScanner) (*models.ChainLink, error) {
	var (
		link                   models.ChainLink
		issuerStr, invoiceStr  string
		contentStr, chainedStr string
	)
	err := row.Scan(&issuerStr, &link.Seq, &invoiceStr, &link.NumberText,
		&contentStr, &chainedStr, &link.Signature, &link.Payload, &link.CreatedAt)
	if err != nil {
		return nil, err
	}
	issuerID, err := domain.ParseIssuerID(issuerStr)
	if err != nil {
		return nil, fmt.Errorf("stored issuer id: %w", err)
	}
	invoiceID, err := domain.ParseInvoiceID(invoiceStr)
	if err != nil {
		return nil, fmt.Errorf("stored invoice id: %w", err)
	}
	content, err := sigchain.ParseDigest(contentStr)
	if err != nil {
		return nil, fmt.Errorf("stored content digest: %w", err)
	}
	chained, err := sigchain.ParseDigest(chainedStr)
	if err != nil {
		return nil, fmt.Errorf("stored chained digest: %w", err)
	}
	link.IssuerID, link.InvoiceID = issuerID, invoiceID
	link.ContentDigest, link.ChainedDigest = content, chained
	return &link, nil
}
