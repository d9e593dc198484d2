package domain

import "time"

// AuditKind clasifica las líneas del audit.
type AuditKind string

const (
	AuditReject    AuditKind = "reject"
	AuditSubmit    AuditKind = "submit"
	AuditBuy       AuditKind = "buy"
	AuditSell      AuditKind = "sell"
	AuditFail      AuditKind = "fail"
	AuditAllowance AuditKind = "allowance"
	AuditMirror    AuditKind = "mirror"
	AuditManual    AuditKind = "manual"
	AuditWrap      AuditKind = "wrap"
)

// AuditEvent es una línea legible para el visor externo.
type AuditEvent struct {
	ID      string    `json:"id"`
	At      time.Time `json:"at"`
	Scope   string    `json:"scope"` // trade | sim | allow
	Kind    AuditKind `json:"kind"`
	PairKey string    `json:"pair,omitempty"`
	Message string    `json:"message"`
}

// Line formatea el evento como "[2006-01-02 15:04:05] [scope] message".
func (e AuditEvent) Line() string {
	return "[" + e.At.Format("2006-01-02 15:04:05") + "] [" + e.Scope + "] " + e.Message
}
