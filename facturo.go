// Package facturo wires the issuance ledger together: stores, signing keys,
// audit trail, and the emission service. Embedding applications construct an
// App from configuration and drive everything through App.Ledger.
//
// Backends are selected by configuration. Without a Postgres URL the App
// runs fully in memory, which is what tests and evaluation sandboxes want.
// With Postgres configured the invoice, series, chain, and audit stores are
// durable; Redis optionally takes over the series counters, and Kafka
// optionally mirrors audit events to an external trail.
package facturo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/twmb/franz-go/pkg/kgo"

	"facturo/internal/audit"
	invoicemodels "facturo/internal/invoice/models"
	invoicestore "facturo/internal/invoice/store/invoice"
	"facturo/internal/ledger/metrics"
	"facturo/internal/ledger/service"
	chainstore "facturo/internal/ledger/store/chain"
	issuerstore "facturo/internal/ledger/store/issuer"
	seriesmodels "facturo/internal/numbering/models"
	seriesstore "facturo/internal/numbering/store/series"
	"facturo/internal/platform/config"
	"facturo/internal/platform/logger"
	"facturo/internal/platform/pg"
	platformredis "facturo/internal/platform/redis"
	"facturo/internal/secrets"
	"facturo/pkg/domain"
)

// Config aliases keep the configuration constructable by embedding
// applications without reaching into internal packages.
type (
	Config      = config.Config
	RedisConfig = config.RedisConfig
	KafkaConfig = config.KafkaConfig
)

// Ledger is the emission service; see the service package for operations.
type Ledger = service.Ledger

// DraftContent is the mutable content of a draft invoice.
type DraftContent = service.DraftContent

// EmissionResult is what Emit returns.
type EmissionResult = service.EmissionResult

// IssuerDirectory is the in-memory issuer registry backing the App. Issuer
// master data is owned by the embedding application; register issuers here
// before creating drafts for them.
type IssuerDirectory = issuerstore.InMemory

// Invoice and Series expose the aggregate types returned by Ledger
// operations.
type (
	Invoice = invoicemodels.Invoice
	Series  = seriesmodels.Series
)

// FromEnv builds a Config from FACTURO_* environment variables.
func FromEnv() Config {
	return config.FromEnv()
}

// App is a fully wired ledger instance.
type App struct {
	Ledger  *Ledger
	Issuers *IssuerDirectory
	Audit   *audit.Publisher

	seriesAdmin seriesstore.Metadata
	closers     []func() error
}

// RegisterIssuer validates the tax ID and adds the issuer to the directory.
func (a *App) RegisterIssuer(ctx context.Context, taxID, name string) (*domain.Issuer, error) {
	tid, err := domain.ParseTaxID(taxID)
	if err != nil {
		return nil, err
	}
	issuer, err := domain.NewIssuer(domain.NewIssuerID(), tid, name)
	if err != nil {
		return nil, err
	}
	if err := a.Issuers.Register(ctx, *issuer); err != nil {
		return nil, err
	}
	return issuer, nil
}

// CreateSeries creates a numbering series for the issuer. When Redis backs
// the counters the new series' counter is seeded as part of creation.
func (a *App) CreateSeries(ctx context.Context, issuerID domain.IssuerID,
	prefix string, fiscalYear int, isDefault bool) (*Series, error) {

	sr, err := seriesmodels.NewSeries(domain.NewSeriesID(), issuerID, prefix, fiscalYear, isDefault)
	if err != nil {
		return nil, err
	}
	if err := a.seriesAdmin.Create(ctx, sr); err != nil {
		return nil, err
	}
	return sr, nil
}

// Open constructs an App from cfg. Schemas are applied idempotently when
// Postgres is configured. Close releases every connection Open acquired.
func Open(ctx context.Context, cfg Config) (*App, error) {
	if cfg.HMACMasterKey == "" {
		return nil, errors.New("facturo: HMAC master key is required")
	}
	keys, err := secrets.NewHKDF([]byte(cfg.HMACMasterKey))
	if err != nil {
		return nil, fmt.Errorf("facturo: derive keys: %w", err)
	}

	log := logger.New(cfg.LogLevel)
	app := &App{Issuers: issuerstore.NewInMemory()}

	var (
		invoices   service.InvoiceStore
		seriesMeta seriesstore.Metadata
		series     service.SeriesStore
		chain      service.ChainStore
		auditStore audit.Store
	)

	if cfg.PostgresURL != "" {
		pool, err := pg.Connect(ctx, cfg.PostgresURL)
		if err != nil {
			return nil, app.fail(err)
		}
		app.closers = append(app.closers, func() error { pool.Close(); return nil })

		for _, schema := range []string{invoicestore.Schema, seriesstore.Schema, chainstore.Schema} {
			if _, err := pool.Exec(ctx, schema); err != nil {
				return nil, app.fail(fmt.Errorf("facturo: apply schema: %w", err))
			}
		}

		invoices = invoicestore.NewPostgres(pool)
		pgSeries := seriesstore.NewPostgres(pool)
		seriesMeta, series = pgSeries, pgSeries
		chain = chainstore.NewPostgres(pool)

		db, err := sql.Open("postgres", cfg.PostgresURL)
		if err != nil {
			return nil, app.fail(fmt.Errorf("facturo: open audit db: %w", err))
		}
		app.closers = append(app.closers, db.Close)
		if _, err := db.ExecContext(ctx, audit.Schema); err != nil {
			return nil, app.fail(fmt.Errorf("facturo: apply audit schema: %w", err))
		}
		auditStore = audit.NewPostgres(db)
	} else {
		mem := seriesstore.NewInMemory()
		invoices = invoicestore.NewInMemory()
		seriesMeta, series = mem, mem
		chain = chainstore.NewInMemory()
		auditStore = audit.NewInMemory()
	}

	app.seriesAdmin = seriesMeta
	if cfg.Redis.URL != "" {
		rclient, err := platformredis.New(cfg.Redis)
		if err != nil {
			return nil, app.fail(fmt.Errorf("facturo: connect redis: %w", err))
		}
		app.closers = append(app.closers, rclient.Close)
		hybrid := seriesstore.NewHybrid(seriesMeta, seriesstore.NewRedis(rclient.Client))
		series = hybrid
		app.seriesAdmin = hybrid
	}

	if len(cfg.Kafka.Brokers) > 0 {
		client, err := kgo.NewClient(kgo.SeedBrokers(cfg.Kafka.Brokers...))
		if err != nil {
			return nil, app.fail(fmt.Errorf("facturo: connect kafka: %w", err))
		}
		app.closers = append(app.closers, func() error { client.Close(); return nil })
		auditStore = audit.Tee{auditStore, audit.NewKafka(client, cfg.Kafka.Topic, log)}
	}

	app.Audit = audit.NewPublisher(auditStore)
	app.Ledger = service.New(invoices, series, chain, app.Issuers, keys,
		service.WithLogger(log),
		service.WithMetrics(metrics.New()),
		service.WithAuditPublisher(app.Audit),
		service.WithMaxRetries(cfg.EmitMaxRetries),
		service.WithVerificationBaseURL(cfg.VerificationBaseURL),
	)
	return app, nil
}

// Close releases everything Open acquired, in reverse order.
func (a *App) Close() error {
	var first error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (a *App) fail(err error) error {
	_ = a.Close()
	return err
}
