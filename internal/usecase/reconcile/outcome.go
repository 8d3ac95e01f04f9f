package reconcile

import (
	"time"

	"github.com/simaogato/lnmomo-backend/internal/domain"
)

// Outcome is what one reconciliation invocation observed and persisted
type Outcome struct {
	// Transaction is the persisted state after the invocation
	Transaction   *domain.Transaction
	InitialStatus domain.TransactionStatus
	Transitions   []domain.TransitionEvent

	// PaidAt and MobileMoneyReference are set only when this invocation wrote them
	PaidAt               *time.Time
	MobileMoneyReference string

	Message string
	Skipped bool // another caller held the lease
}

// Status returns the final persisted status
func (o *Outcome) Status() domain.TransactionStatus {
	return o.Transaction.Status
}

// Changed reports whether the invocation persisted at least one transition
func (o *Outcome) Changed() bool {
	return len(o.Transitions) > 0
}
