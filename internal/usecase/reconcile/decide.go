package reconcile

import (
	"fmt"
	"time"

	"github.com/simaogato/lnmomo-backend/internal/domain"
)

// Step is one decision taken from an observation.
// An empty To leaves the transaction unchanged.
type Step struct {
	To      domain.TransactionStatus
	Update  domain.StatusUpdate
	Message string
}

// Changes reports whether the step moves the transaction
func (s Step) Changes() bool {
	return s.To != ""
}

func unchanged(message string) Step {
	return Step{Message: message}
}

// decideExpiry fails an unpaid invoice whose deadline has passed.
// The deadline itself is still payable.
func decideExpiry(tx *domain.Transaction, now time.Time) (Step, bool) {
	if tx.Status != domain.StatusInvoiceGenerated || !tx.IsExpired(now) {
		return Step{}, false
	}
	return Step{To: domain.StatusFailed, Message: "invoice expired"}, true
}

// decideInvoiceCheck moves a paid invoice to paid and stamps paidAt
func decideInvoiceCheck(check *domain.InvoiceCheck, err error, now time.Time) Step {
	if err != nil {
		return unchanged("could not check invoice status")
	}
	if check == nil || !check.Paid {
		status := "PENDING"
		if check != nil && check.Status != "" {
			status = check.Status
		}
		return unchanged(fmt.Sprintf("invoice not paid yet (%s)", status))
	}
	paidAt := now
	return Step{
		To:      domain.StatusPaid,
		Update:  domain.StatusUpdate{PaidAt: &paidAt},
		Message: "invoice paid",
	}
}

// decidePayoutInitiation settles a payout that this invocation just sent.
// Any failure, including a transport error, ends in failed: the payout is
// never sent twice.
func decidePayoutInitiation(result *domain.PayoutResult, err error) Step {
	switch {
	case err != nil:
		return Step{To: domain.StatusFailed, Message: fmt.Sprintf("payout failed: %v", err)}
	case result == nil:
		return Step{To: domain.StatusFailed, Message: "payout failed: empty response"}
	case !result.Success || result.PaymentReference == "":
		reason := result.Error
		if reason == "" {
			reason = "no payment reference returned"
		}
		return Step{To: domain.StatusFailed, Message: "payout failed: " + reason}
	default:
		return Step{
			To:      domain.StatusCompleted,
			Update:  domain.StatusUpdate{MobileMoneyReference: result.PaymentReference},
			Message: "mobile money sent",
		}
	}
}

// decidePayoutStatus follows up on a payout initiated earlier
func decidePayoutStatus(check *domain.PayoutCheck, err error) Step {
	if err != nil {
		return unchanged("could not check payout status")
	}
	if check == nil {
		return unchanged("payout pending")
	}
	switch check.Status {
	case domain.PayoutCompleted:
		return Step{To: domain.StatusCompleted, Message: "payout completed"}
	case domain.PayoutFailed:
		return Step{To: domain.StatusFailed, Message: "payout failed"}
	default:
		return unchanged("payout pending")
	}
}
