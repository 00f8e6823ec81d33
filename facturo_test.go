package facturo

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"facturo/internal/audit"
	"facturo/pkg/domain"
	"facturo/pkg/requestcontext"
)

// TestApp_EndToEnd drives the wired in-memory App through the full invoice
// life: register, draft, emit, pay, and audit.
func TestApp_EndToEnd(t *testing.T) {
	now := time.Date(2026, 5, 2, 9, 0, 0, 0, time.UTC)
	ctx := requestcontext.WithTime(context.Background(), now)

	app, err := Open(ctx, Config{
		HMACMasterKey:       "app-test-master-key",
		VerificationBaseURL: "https://verify.example.com",
		EmitMaxRetries:      3,
		LogLevel:            "error",
	})
	require.NoError(t, err)
	defer app.Close()

	issuer, err := app.RegisterIssuer(ctx, "B12345674", "Acme SL")
	require.NoError(t, err)

	series, err := app.CreateSeries(ctx, issuer.ID, "FA", 2026, true)
	require.NoError(t, err)

	draft, err := app.Ledger.CreateDraft(ctx, issuer.ID, series.ID, DraftContent{
		RecipientTaxID: domain.MustTaxID("12345678Z"),
		RecipientName:  "Cliente Uno",
		IssueDate:      now,
		Base:           decimal.RequireFromString("200.00"),
		TaxRate:        decimal.RequireFromString("10.00"),
		TaxAmount:      decimal.RequireFromString("20.00"),
		Total:          decimal.RequireFromString("220.00"),
		Description:    "training",
	})
	require.NoError(t, err)

	res, err := app.Ledger.Emit(ctx, draft.ID)
	require.NoError(t, err)
	require.Equal(t, "FA001", res.Invoice.NumberText)
	require.Contains(t, res.Record.Locator, "https://verify.example.com/verify?")

	_, err = app.Ledger.MarkPaid(ctx, res.Invoice.ID)
	require.NoError(t, err)

	breakAt, err := app.Ledger.VerifyChain(ctx, issuer.ID)
	require.NoError(t, err)
	require.Nil(t, breakAt)

	events, err := app.Audit.List(ctx, issuer.ID)
	require.NoError(t, err)
	require.Len(t, events, 2)
	require.Equal(t, audit.ActionIssued, events[0].Action)
	require.Equal(t, audit.ActionPaid, events[1].Action)
}

func TestOpen_RequiresMasterKey(t *testing.T) {
	_, err := Open(context.Background(), Config{})
	require.Error(t, err)
}
