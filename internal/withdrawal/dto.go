package withdrawal

import (
	"time"

	"github.com/congo-pay/jointaccount/internal/ledger"
)

// RequestBody captures the amount an owner wants to take out.
type RequestBody struct {
	Amount int64 `json:"amount"`
}

// View is the API representation of a withdraw request.
type View struct {
	ID            uint64            `json:"id"`
	AccountID     uint64            `json:"account_id"`
	Requester     ledger.Identity   `json:"requester"`
	Amount        int64             `json:"amount"`
	Approvals     []ledger.Identity `json:"approvals"`
	ApprovalCount int               `json:"approval_count"`
	Threshold     int               `json:"threshold"`
	Status        string            `json:"status"`
	CreatedAt     time.Time         `json:"created_at"`
	ClosedAt      *time.Time        `json:"closed_at,omitempty"`
}

func toView(req ledger.WithdrawRequest) View {
	v := View{
		ID:            req.ID,
		AccountID:     req.AccountID,
		Requester:     req.Requester,
		Amount:        req.Amount,
		Approvals:     req.Approvals,
		ApprovalCount: len(req.Approvals),
		Threshold:     req.Threshold,
		Status:        req.Status(),
		CreatedAt:     req.CreatedAt,
	}
	if v.Approvals == nil {
		v.Approvals = []ledger.Identity{}
	}
	if !req.ClosedAt.IsZero() {
		closed := req.ClosedAt
		v.ClosedAt = &closed
	}
	return v
}
