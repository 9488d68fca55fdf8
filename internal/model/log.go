package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// AuditKind identifies the mutation an audit entry records.
type AuditKind string

const (
	AuditSet      AuditKind = "SET"
	AuditIncrease AuditKind = "INCREASE"
	AuditDecrease AuditKind = "DECREASE"
)

// Valid reports whether k is a known kind.
func (k AuditKind) Valid() bool {
	switch k {
	case AuditSet, AuditIncrease, AuditDecrease:
		return true
	}
	return false
}

// AuditEntry is an append-only record of an accepted quantity mutation.
type AuditEntry struct {
	ID                string           `json:"id"`
	ProductID         int64            `json:"product_id"`
	Kind              AuditKind        `json:"kind"`
	Quantity          int64            `json:"quantity"`
	PreviousQuantity  int64            `json:"previous_quantity"`
	ResultingQuantity int64            `json:"resulting_quantity"`
	UnitPrice         *decimal.Decimal `json:"unit_price,omitempty"`
	TotalPrice        *decimal.Decimal `json:"total_price,omitempty"`
	Note              string           `json:"note,omitempty"`
	RequestID         string           `json:"request_id,omitempty"`
	OccurredAt        time.Time        `json:"occurred_at"`
}
