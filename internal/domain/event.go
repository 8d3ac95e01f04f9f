package domain

import (
	"time"

	"github.com/google/uuid"
)

// TransitionEvent describes one persisted status change.
// From is empty for the creation event.
type TransitionEvent struct {
	TransactionID        uuid.UUID         `json:"transactionId"`
	From                 TransactionStatus `json:"from,omitempty"`
	To                   TransactionStatus `json:"to"`
	At                   time.Time         `json:"at"`
	PaidAt               *time.Time        `json:"paidAt,omitempty"`
	MobileMoneyReference string            `json:"mobileMoneyReference,omitempty"`
	InvoiceSource        InvoiceSource     `json:"invoiceSource"`
	InvoiceID            string            `json:"invoiceId,omitempty"`
	Origin               string            `json:"origin,omitempty"`
}

// IsCreation reports whether the event announces a newly issued transaction
func (e TransitionEvent) IsCreation() bool {
	return e.From == "" && e.To == StatusInvoiceGenerated
}

// NewTransitionEvent builds the event for tx having moved from `from` to its current status
func NewTransitionEvent(tx *Transaction, from TransactionStatus, at time.Time) TransitionEvent {
	return TransitionEvent{
		TransactionID:        tx.ID,
		From:                 from,
		To:                   tx.Status,
		At:                   at,
		PaidAt:               tx.PaidAt,
		MobileMoneyReference: tx.MobileMoneyReference,
		InvoiceSource:        tx.InvoiceSource,
		InvoiceID:            tx.InvoiceID,
	}
}
