package ledger

import (
	"context"
	"time"
)

// Identity is the authenticated party behind a ledger call.
type Identity string

const (
	// WithdrawStatusPending means the request still needs approvals.
	WithdrawStatusPending = "pending"
	// WithdrawStatusApproved means enough owners approved and the request may be executed.
	WithdrawStatusApproved = "approved"
	// WithdrawStatusExecuted is terminal: funds left the account.
	WithdrawStatusExecuted = "executed"
	// WithdrawStatusCancelled is terminal: the requester withdrew the request.
	WithdrawStatusCancelled = "cancelled"
)

// Account is a jointly owned custodial balance.
type Account struct {
	ID        uint64
	Owners    []Identity
	Balance   int64
	CreatedAt time.Time
}

// IsOwner reports whether id belongs to the owner set.
func (a Account) IsOwner(id Identity) bool {
	for _, owner := range a.Owners {
		if owner == id {
			return true
		}
	}
	return false
}

// WithdrawRequest is an outflow proposal waiting for owner approval.
type WithdrawRequest struct {
	ID        uint64
	AccountID uint64
	Requester Identity
	Amount    int64
	Approvals []Identity
	Threshold int
	Executed  bool
	Cancelled bool
	CreatedAt time.Time
	ClosedAt  time.Time
}

// Status derives the state machine position of the request.
func (r WithdrawRequest) Status() string {
	switch {
	case r.Executed:
		return WithdrawStatusExecuted
	case r.Cancelled:
		return WithdrawStatusCancelled
	case len(r.Approvals) >= r.Threshold:
		return WithdrawStatusApproved
	default:
		return WithdrawStatusPending
	}
}

func (r WithdrawRequest) approvedBy(id Identity) bool {
	for _, approver := range r.Approvals {
		if approver == id {
			return true
		}
	}
	return false
}

// Ledger defines the contract implemented by ledger backends (in-memory, Postgres).
// Every mutating call is atomic: on error nothing changes and no event is appended.
type Ledger interface {
	CreateAccount(ctx context.Context, caller Identity, otherOwners []Identity) (uint64, error)
	Deposit(ctx context.Context, caller Identity, accountID uint64, amount int64) error
	RequestWithdrawal(ctx context.Context, caller Identity, accountID uint64, amount int64) (uint64, error)
	ApproveWithdrawal(ctx context.Context, caller Identity, accountID, withdrawID uint64) error
	Withdraw(ctx context.Context, caller Identity, accountID, withdrawID uint64) error
	CancelWithdrawal(ctx context.Context, caller Identity, accountID, withdrawID uint64) error

	Accounts(ctx context.Context, caller Identity) ([]uint64, error)
	Owners(ctx context.Context, accountID uint64) ([]Identity, error)
	Balance(ctx context.Context, accountID uint64) (int64, error)
	Approvals(ctx context.Context, accountID, withdrawID uint64) (int, error)
	WithdrawRequest(ctx context.Context, accountID, withdrawID uint64) (WithdrawRequest, error)

	// Events returns up to limit committed events with Seq > afterSeq, in commit order.
	Events(ctx context.Context, afterSeq uint64, limit int) ([]Event, error)
}

// Option tunes a ledger backend.
type Option func(*options)

type options struct {
	now func() time.Time
}

// WithClock overrides the wall clock used for timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
