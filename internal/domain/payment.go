package domain

type PaymentMethod string

const (
	MethodCash   PaymentMethod = "cash"
	MethodCredit PaymentMethod = "credit"
	MethodBank   PaymentMethod = "bank"
)

// UpsertOutcome reports how a best-effort customer upsert ended. Failures
// are never propagated; the outcome makes the degraded path observable.
type UpsertOutcome string

const (
	UpsertApplied       UpsertOutcome = "applied"
	UpsertCreated       UpsertOutcome = "created"
	UpsertFailedIgnored UpsertOutcome = "failed-ignored"
)

// PaymentNotification is a gateway notification reduced to its raw fields.
// Gateway API revisions disagree on field names, so values are kept as a
// flat string map and consulted through ordered candidate lists.
type PaymentNotification struct {
	Fields map[string]string
}

func (n PaymentNotification) Get(name string) string {
	return n.Fields[name]
}

// Merge overlays other's fields onto n, returning a new notification.
// Used when a follow-up transaction lookup supersedes the initial push.
func (n PaymentNotification) Merge(other PaymentNotification) PaymentNotification {
	merged := PaymentNotification{Fields: make(map[string]string, len(n.Fields)+len(other.Fields))}
	for k, v := range n.Fields {
		merged.Fields[k] = v
	}
	for k, v := range other.Fields {
		if v != "" {
			merged.Fields[k] = v
		}
	}
	return merged
}
