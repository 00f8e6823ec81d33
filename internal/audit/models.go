// Package audit captures the ledger's append-only audit trail: one event per
// legally relevant action (emission, voiding, payment marking). Events fan
// out through a Publisher to pluggable sinks so tests run against memory,
// small deployments against Postgres, and larger ones against Kafka.
//
// Audit failures never fail the business operation; they are logged and
// counted. The chain itself is the tamper-evident record, the audit trail is
// operational visibility on top.
package audit

import (
	"time"

	"facturo/pkg/domain"
)

// Action names a ledger operation in the audit trail.
type Action string

const (
	ActionIssued Action = "invoice.issued"
	ActionVoided Action = "invoice.voided"
	ActionPaid   Action = "invoice.paid"
)

// Event is emitted from the ledger service to capture key actions. Keep it
// transport-agnostic so stores and sinks can fan out.
type Event struct {
	Timestamp  time.Time        `json:"timestamp"`
	IssuerID   domain.IssuerID  `json:"issuer_id"`
	InvoiceID  domain.InvoiceID `json:"invoice_id"`
	Action     Action           `json:"action"`
	NumberText string           `json:"number_text,omitempty"`
	Reason     string           `json:"reason,omitempty"`
	RequestID  string           `json:"request_id,omitempty"`
}
