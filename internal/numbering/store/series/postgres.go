package series

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"facturo/internal/numbering/models"
	"facturo/internal/platform/pg"
	"facturo/pkg/domain"
	"facturo/pkg/platform/sentinel"
)

// Schema for the numbering_series table. The partial unique index enforces
// the one-default-per-issuer invariant in the database, not in application
// code.
const Schema = `
CREATE TABLE IF NOT EXISTS numbering_series (
	id          UUID PRIMARY KEY,
	issuer_id   UUID NOT NULL,
	prefix      TEXT NOT NULL,
	fiscal_year INT NOT NULL,
	last_number BIGINT NOT NULL DEFAULT 0,
	is_default  BOOLEAN NOT NULL DEFAULT FALSE,
	UNIQUE (issuer_id, prefix, fiscal_year)
);
CREATE UNIQUE INDEX IF NOT EXISTS numbering_series_one_default
	ON numbering_series (issuer_id) WHERE is_default;`

// Postgres persists numbering series. The counter write is a conditional
// UPDATE: the WHERE clause carries the expected previous value, so a lost
// update is impossible regardless of isolation level.
type Postgres struct {
	pool *pgxpool.Pool
}

func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

func (s *Postgres) Create(ctx context.Context, sr *models.Series) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO numbering_series (id, issuer_id, prefix, fiscal_year, last_number, is_default)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		sr.ID.String(), sr.IssuerID.String(), sr.Prefix, sr.FiscalYear, sr.LastNumber, sr.Default)
	if err != nil {
		if pg.IsUniqueViolation(err) {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("create series: %w", err)
	}
	return nil
}

func (s *Postgres) FindByID(ctx context.Context, id domain.SeriesID) (*models.Series, error) {
	return s.findOne(ctx, `SELECT id, issuer_id, prefix, fiscal_year, last_number, is_default
		FROM numbering_series WHERE id = $1`, id.String())
}

func (s *Postgres) DefaultFor(ctx context.Context, issuerID domain.IssuerID) (*models.Series, error) {
	return s.findOne(ctx, `SELECT id, issuer_id, prefix, fiscal_year, last_number, is_default
		FROM numbering_series WHERE issuer_id = $1 AND is_default`, issuerID.String())
}

func (s *Postgres) findOne(ctx context.Context, query, arg string) (*models.Series, error) {
	var (
		sr               models.Series
		idStr, issuerStr string
	)
	err := s.pool.QueryRow(ctx, query, arg).
		Scan(&idStr, &issuerStr, &sr.Prefix, &sr.FiscalYear, &sr.LastNumber, &sr.Default)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find series: %w", err)
	}
	seriesID, err := domain.ParseSeriesID(idStr)
	if err != nil {
		return nil, fmt.Errorf("stored series id: %w", err)
	}
	issuerID, err := domain.ParseIssuerID(issuerStr)
	if err != nil {
		return nil, fmt.Errorf("stored issuer id: %w", err)
	}
	sr.ID, sr.IssuerID = seriesID, issuerID
	return &sr, nil
}

func (s *Postgres) ReadLast(ctx context.Context, id domain.SeriesID) (int64, error) {
	var last int64
	err := s.pool.QueryRow(ctx,
		`SELECT last_number FROM numbering_series WHERE id = $1`, id.String()).Scan(&last)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, sentinel.ErrNotFound
		}
		return 0, fmt.Errorf("read last number: %w", err)
	}
	return last, nil
}

func (s *Postgres) WriteLast(ctx context.Context, id domain.SeriesID, next, expectedPrev int64) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE numbering_series SET last_number = $2
		WHERE id = $1 AND last_number = $3`,
		id.String(), next, expectedPrev)
	if err != nil {
		return fmt.Errorf("write last number: %w", err)
	}
	if tag.RowsAffected() == 0 {
		// Row missing or counter advanced since the read; distinguish so the
		// caller retries only real races.
		if _, ferr := s.ReadLast(ctx, id); ferr != nil {
			return ferr
		}
		return sentinel.ErrConflict
	}
	return nil
}
