package invoice

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"facturo/internal/invoice/models"
	"facturo/internal/platform/pg"
	"facturo/pkg/domain"
	"facturo/pkg/platform/sentinel"
)

// Schema for the invoices table. Applied by deployment tooling; integration
// tests execute it directly.
const Schema = `
CREATE TABLE IF NOT EXISTS invoices (
	id               UUID PRIMARY KEY,
	issuer_id        UUID NOT NULL,
	series_id        UUID NOT NULL,
	number           BIGINT,
	number_text      TEXT NOT NULL DEFAULT '',
	recipient_tax_id TEXT NOT NULL DEFAULT '',
	recipient_name   TEXT NOT NULL DEFAULT '',
	issue_date       DATE,
	base             NUMERIC(14,2) NOT NULL DEFAULT 0,
	tax_rate         NUMERIC(6,2) NOT NULL DEFAULT 0,
	tax_amount       NUMERIC(14,2) NOT NULL DEFAULT 0,
	total            NUMERIC(14,2) NOT NULL DEFAULT 0,
	description      TEXT NOT NULL DEFAULT '',
	state            TEXT NOT NULL,
	void_reason      TEXT NOT NULL DEFAULT '',
	created_at       TIMESTAMPTZ NOT NULL,
	updated_at       TIMESTAMPTZ NOT NULL,
	UNIQUE (series_id, number)
);`

const invoiceColumns = `id, issuer_id, series_id, number, number_text, recipient_tax_id,
	recipient_name, issue_date, base, tax_rate, tax_amount, total, description,
	state, void_reason, created_at, updated_at`

// Postgres persists invoices in PostgreSQL. Execute serializes transitions
// with SELECT ... FOR UPDATE so guard and mutation see the same row version.
type Postgres struct {
	pool *pgxpool.Pool
}

func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

func (s *Postgres) Create(ctx context.Context, inv *models.Invoice) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO invoices (`+invoiceColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)`,
		inv.ID.String(), inv.IssuerID.String(), inv.SeriesID.String(),
		inv.Number, inv.NumberText, inv.RecipientTaxID.String(), inv.RecipientName,
		nullableDate(inv.IssueDate), inv.Base.StringFixed(2), inv.TaxRate.StringFixed(2),
		inv.TaxAmount.StringFixed(2), inv.Total.StringFixed(2), inv.Description,
		string(inv.State), inv.VoidReason, inv.CreatedAt, inv.UpdatedAt)
	if err != nil {
		if pg.IsUniqueViolation(err) {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("create invoice: %w", err)
	}
	return nil
}

func (s *Postgres) FindByID(ctx context.Context, id domain.InvoiceID) (*models.Invoice, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE id = $1`, id.String())
	inv, err := scanInvoice(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find invoice: %w", err)
	}
	return inv, nil
}

// Execute locks the row, runs validate, applies mutate, and writes the result
// in one transaction. Validation failures roll back without a write.
func (s *Postgres) Execute(ctx context.Context, id domain.InvoiceID,
	validate func(*models.Invoice) error, mutate func(*models.Invoice)) (*models.Invoice, error) {

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transition: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is a no-op

	row := tx.QueryRow(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE id = $1 FOR UPDATE`, id.String())
	inv, err := scanInvoice(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("lock invoice: %w", err)
	}

	if err := validate(inv); err != nil {
		return nil, err
	}
	mutate(inv)

	_, err = tx.Exec(ctx, `
		UPDATE invoices SET number = $2, number_text = $3, state = $4,
			void_reason = $5, updated_at = $6
		WHERE id = $1`,
		inv.ID.String(), inv.Number, inv.NumberText, string(inv.State),
		inv.VoidReason, inv.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("update invoice: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit transition: %w", err)
	}
	return inv, nil
}

func (s *Postgres) Delete(ctx context.Context, id domain.InvoiceID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM invoices WHERE id = $1 AND state = $2`,
		id.String(), string(models.StateDraft))
	if err != nil {
		return fmt.Errorf("delete invoice: %w", err)
	}
	if tag.RowsAffected() == 0 {
		// Either missing or not a draft; look to tell the caller which.
		if _, ferr := s.FindByID(ctx, id); ferr != nil {
			return ferr
		}
		return sentinel.ErrInvalidState
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanInvoice(row rowScanner) (*models.Invoice, error) {
	var (
		inv                                   models.Invoice
		idStr, issuerStr, seriesStr, taxIDStr string
		stateStr                              string
		baseStr, rateStr, taxStr, totalStr    string
		issueDate                             *time.Time
	)
	err := row.Scan(&idStr, &issuerStr, &seriesStr, &inv.Number, &inv.NumberText,
		&taxIDStr, &inv.RecipientName, &issueDate, &baseStr, &rateStr, &taxStr,
		&totalStr, &inv.Description, &stateStr, &inv.VoidReason, &inv.CreatedAt,
		&inv.UpdatedAt)
	if err != nil {
		return nil, err
	}

	invoiceID, err := domain.ParseInvoiceID(idStr)
	if err != nil {
		return nil, fmt.Errorf("stored invoice id: %w", err)
	}
	issuerID, err := domain.ParseIssuerID(issuerStr)
	if err != nil {
		return nil, fmt.Errorf("stored issuer id: %w", err)
	}
	seriesID, err := domain.ParseSeriesID(seriesStr)
	if err != nil {
		return nil, fmt.Errorf("stored series id: %w", err)
	}
	inv.ID, inv.IssuerID, inv.SeriesID = invoiceID, issuerID, seriesID

	if taxIDStr != "" {
		taxID, err := domain.ParseTaxID(taxIDStr)
		if err != nil {
			return nil, fmt.Errorf("stored recipient tax id: %w", err)
		}
		inv.RecipientTaxID = taxID
	}
	if issueDate != nil {
		inv.IssueDate = *issueDate
	}
	for _, f := range []struct {
		dst *decimal.Decimal
		src string
	}{
		{&inv.Base, baseStr}, {&inv.TaxRate, rateStr},
		{&inv.TaxAmount, taxStr}, {&inv.Total, totalStr},
	} {
		d, err := decimal.NewFromString(f.src)
		if err != nil {
			return nil, fmt.Errorf("stored amount %q: %w", f.src, err)
		}
		*f.dst = d
	}
	inv.State = models.LifecycleState(stateStr)
	return &inv, nil
}

func nullableDate(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
