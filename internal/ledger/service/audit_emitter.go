package service

import (
	"context"

	"facturo/internal/audit"
)

// AuditPublisher is the audit trail port.
type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// auditEmitter makes audit publishing nil-safe and non-fatal: a lost audit
// event is logged and counted, but never fails the business operation. The
// chain itself is the tamper-evident record.
type auditEmitter struct {
	publisher AuditPublisher
}

func (a auditEmitter) emit(ctx context.Context, l *Ledger, event audit.Event) {
	if a.publisher == nil {
		return
	}
	if err := a.publisher.Emit(ctx, event); err != nil {
		l.logger.Error("audit event dropped",
			"action", event.Action, "invoice_id", event.InvoiceID, "error", err)
	}
}
