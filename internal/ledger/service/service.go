// Package service implements the issuance ledger: the emission operation
// that atomically numbers an invoice, appends its chain link, and assembles
// its verification record, plus the post-emission lifecycle transitions and
// the chain export for audit tooling.
package service

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	invoicemodels "facturo/internal/invoice/models"
	"facturo/internal/ledger/metrics"
	ledgermodels "facturo/internal/ledger/models"
	seriesmodels "facturo/internal/numbering/models"
	"facturo/internal/secrets"
	"facturo/internal/sigchain"
	"facturo/internal/verification"
	"facturo/pkg/domain"
)

// InvoiceStore is the invoice persistence port. Execute must run validate
// and mutate under the store's lock (mutex or FOR UPDATE).
type InvoiceStore interface {
	Create(ctx context.Context, inv *invoicemodels.Invoice) error
	FindByID(ctx context.Context, id domain.InvoiceID) (*invoicemodels.Invoice, error)
	Execute(ctx context.Context, id domain.InvoiceID,
		validate func(*invoicemodels.Invoice) error,
		mutate func(*invoicemodels.Invoice)) (*invoicemodels.Invoice, error)
	Delete(ctx context.Context, id domain.InvoiceID) error
}

// SeriesStore is the numbering persistence port. WriteLast has
// compare-and-swap semantics: it commits only when expectedPrev still holds
// and returns sentinel.ErrConflict otherwise.
type SeriesStore interface {
	FindByID(ctx context.Context, id domain.SeriesID) (*seriesmodels.Series, error)
	ReadLast(ctx context.Context, id domain.SeriesID) (int64, error)
	WriteLast(ctx context.Context, id domain.SeriesID, next, expectedPrev int64) error
}

// ChainStore is the chain persistence port. Append has compare-and-swap
// semantics on the issuer's tail digest.
type ChainStore interface {
	Tail(ctx context.Context, issuerID domain.IssuerID) (*ledgermodels.ChainLink, error)
	Append(ctx context.Context, link ledgermodels.ChainLink, expectedPrev sigchain.Digest) error
	List(ctx context.Context, issuerID domain.IssuerID, fromSeq, toSeq int64) ([]ledgermodels.ChainLink, error)
}

// IssuerDirectory resolves issuer master data (tax ID, display name).
// Master data storage is owned by the embedding application.
type IssuerDirectory interface {
	FindIssuer(ctx context.Context, id domain.IssuerID) (*domain.Issuer, error)
}

// Ledger orchestrates emission and lifecycle transitions.
type Ledger struct {
	invoices InvoiceStore
	series   SeriesStore
	chain    ChainStore
	issuers  IssuerDirectory
	keys     secrets.Provider

	locks      *issuerLocks
	logger     *slog.Logger
	metrics    *metrics.Metrics
	audit      auditEmitter
	tracer     trace.Tracer
	maxRetries int
	verifyURL  string
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithLogger sets the structured logger. Nil is safe; logging is discarded.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Ledger) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// WithMetrics enables prometheus metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(l *Ledger) { l.metrics = m }
}

// WithAuditPublisher routes ledger audit events into the audit trail.
func WithAuditPublisher(pub AuditPublisher) Option {
	return func(l *Ledger) { l.audit = auditEmitter{publisher: pub} }
}

// WithMaxRetries bounds the optimistic-concurrency retry loop.
func WithMaxRetries(n int) Option {
	return func(l *Ledger) {
		if n > 0 {
			l.maxRetries = n
		}
	}
}

// WithVerificationBaseURL sets the base URL embedded in verification
// locators. Empty is ignored and keeps the default.
func WithVerificationBaseURL(u string) Option {
	return func(l *Ledger) {
		if u != "" {
			l.verifyURL = u
		}
	}
}

// defaultMaxRetries bounds the read-increment-write cycle. Conflicts only
// arise from cross-process races, so a small bound is plenty.
const defaultMaxRetries = 3

// New constructs the ledger service.
func New(invoices InvoiceStore, series SeriesStore, chain ChainStore,
	issuers IssuerDirectory, keys secrets.Provider, opts ...Option) *Ledger {

	l := &Ledger{
		invoices:   invoices,
		series:     series,
		chain:      chain,
		issuers:    issuers,
		keys:       keys,
		locks:      newIssuerLocks(),
		logger:     slog.New(slog.DiscardHandler),
		tracer:     otel.Tracer("facturo/ledger"),
		maxRetries: defaultMaxRetries,
		verifyURL:  "https://verify.facturo.local",
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// EmissionResult is everything the caller persists and renders after a
// successful emission.
type EmissionResult struct {
	Invoice *invoicemodels.Invoice
	Link    ledgermodels.ChainLink
	Record  verification.Record
}
