package ledger

import (
	"context"
	"math"
	"sync"
	"time"
)

// accountEntry carries the per-account lock. It guards the account and every
// request that belongs to it.
type accountEntry struct {
	mu      sync.Mutex
	account Account
}

type requestEntry struct {
	req WithdrawRequest
}

// Lock order: accountEntry.mu, then inMemoryLedger.mu, then memoryLog.mu.
type inMemoryLedger struct {
	policy Policy
	now    func() time.Time

	mu             sync.RWMutex
	accounts       map[uint64]*accountEntry
	requests       map[uint64]*requestEntry
	byOwner        map[Identity][]uint64
	nextAccountID  uint64
	nextWithdrawID uint64

	log *memoryLog
}

// NewInMemory creates a concurrency-safe in-memory ledger. Calls on different
// accounts do not block each other; calls on one account are serialized.
func NewInMemory(policy Policy, opts ...Option) Ledger {
	o := buildOptions(opts)
	return &inMemoryLedger{
		policy:   policy.normalized(),
		now:      o.now,
		accounts: make(map[uint64]*accountEntry),
		requests: make(map[uint64]*requestEntry),
		byOwner:  make(map[Identity][]uint64),
		log:      &memoryLog{now: o.now},
	}
}

func (l *inMemoryLedger) entry(accountID uint64) (*accountEntry, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	e, ok := l.accounts[accountID]
	if !ok {
		return nil, ErrAccountNotFound
	}
	return e, nil
}

// request must be called with the owning account lock held.
func (l *inMemoryLedger) request(accountID, withdrawID uint64) (*requestEntry, error) {
	l.mu.RLock()
	r, ok := l.requests[withdrawID]
	l.mu.RUnlock()
	if !ok {
		return nil, ErrRequestNotFound
	}
	if r.req.AccountID != accountID {
		return nil, ErrRequestAccountMismatch
	}
	return r, nil
}

func (l *inMemoryLedger) CreateAccount(_ context.Context, caller Identity, otherOwners []Identity) (uint64, error) {
	owners, err := l.policy.ownerSet(caller, otherOwners)
	if err != nil {
		return 0, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.nextAccountID++
	id := l.nextAccountID
	l.accounts[id] = &accountEntry{account: Account{ID: id, Owners: owners, CreatedAt: l.now().UTC()}}
	for _, owner := range owners {
		l.byOwner[owner] = append(l.byOwner[owner], id)
	}
	l.log.append(accountCreated(id, owners))
	return id, nil
}

func (l *inMemoryLedger) Deposit(_ context.Context, caller Identity, accountID uint64, amount int64) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	e, err := l.entry(accountID)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.account.Balance > math.MaxInt64-amount {
		return ErrInvalidAmount
	}
	e.account.Balance += amount
	l.log.append(deposited(caller, accountID, amount))
	return nil
}

func (l *inMemoryLedger) RequestWithdrawal(_ context.Context, caller Identity, accountID uint64, amount int64) (uint64, error) {
	e, err := l.entry(accountID)
	if err != nil {
		return 0, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.account.IsOwner(caller) {
		return 0, ErrUnauthorized
	}
	if amount <= 0 {
		return 0, ErrInvalidAmount
	}

	l.mu.Lock()
	l.nextWithdrawID++
	id := l.nextWithdrawID
	l.requests[id] = &requestEntry{req: WithdrawRequest{
		ID:        id,
		AccountID: accountID,
		Requester: caller,
		Amount:    amount,
		CreatedAt: l.now().UTC(),
	}}
	l.mu.Unlock()

	l.log.append(withdrawRequested(caller, accountID, id, amount))
	return id, nil
}

// open locks the account and resolves a request that can still change state.
// On success the caller owns e.mu and must unlock it.
func (l *inMemoryLedger) open(caller Identity, accountID, withdrawID uint64) (*accountEntry, *requestEntry, error) {
	e, err := l.entry(accountID)
	if err != nil {
		return nil, nil, err
	}
	e.mu.Lock()
	if !e.account.IsOwner(caller) {
		e.mu.Unlock()
		return nil, nil, ErrUnauthorized
	}
	r, err := l.request(accountID, withdrawID)
	if err != nil {
		e.mu.Unlock()
		return nil, nil, err
	}
	switch {
	case r.req.Executed:
		e.mu.Unlock()
		return nil, nil, ErrAlreadyExecuted
	case r.req.Cancelled:
		e.mu.Unlock()
		return nil, nil, ErrRequestCancelled
	}
	return e, r, nil
}

func (l *inMemoryLedger) ApproveWithdrawal(_ context.Context, caller Identity, accountID, withdrawID uint64) error {
	e, r, err := l.open(caller, accountID, withdrawID)
	if err != nil {
		return err
	}
	defer e.mu.Unlock()

	if r.req.approvedBy(caller) {
		return ErrAlreadyApproved
	}
	r.req.Approvals = append(r.req.Approvals, caller)
	l.log.append(withdrawApproved(caller, accountID, withdrawID))
	return nil
}

func (l *inMemoryLedger) Withdraw(_ context.Context, caller Identity, accountID, withdrawID uint64) error {
	e, r, err := l.open(caller, accountID, withdrawID)
	if err != nil {
		return err
	}
	defer e.mu.Unlock()

	if len(r.req.Approvals) < l.policy.Threshold(len(e.account.Owners)) {
		return ErrInsufficientApprovals
	}
	if r.req.Amount > e.account.Balance {
		return ErrInsufficientBalance
	}

	e.account.Balance -= r.req.Amount
	r.req.Executed = true
	r.req.ClosedAt = l.now().UTC()
	l.log.append(withdrawn(withdrawID))
	return nil
}

func (l *inMemoryLedger) CancelWithdrawal(_ context.Context, caller Identity, accountID, withdrawID uint64) error {
	e, r, err := l.open(caller, accountID, withdrawID)
	if err != nil {
		return err
	}
	defer e.mu.Unlock()

	if r.req.Requester != caller {
		return ErrUnauthorized
	}
	r.req.Cancelled = true
	r.req.ClosedAt = l.now().UTC()
	l.log.append(withdrawCancelled(caller, accountID, withdrawID))
	return nil
}

func (l *inMemoryLedger) Accounts(_ context.Context, caller Identity) ([]uint64, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]uint64{}, l.byOwner[caller]...), nil
}

func (l *inMemoryLedger) Owners(_ context.Context, accountID uint64) ([]Identity, error) {
	e, err := l.entry(accountID)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]Identity(nil), e.account.Owners...), nil
}

func (l *inMemoryLedger) Balance(_ context.Context, accountID uint64) (int64, error) {
	e, err := l.entry(accountID)
	if err != nil {
		return 0, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.account.Balance, nil
}

func (l *inMemoryLedger) Approvals(ctx context.Context, accountID, withdrawID uint64) (int, error) {
	req, err := l.WithdrawRequest(ctx, accountID, withdrawID)
	if err != nil {
		return 0, err
	}
	return len(req.Approvals), nil
}

func (l *inMemoryLedger) WithdrawRequest(_ context.Context, accountID, withdrawID uint64) (WithdrawRequest, error) {
	e, err := l.entry(accountID)
	if err != nil {
		return WithdrawRequest{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	r, err := l.request(accountID, withdrawID)
	if err != nil {
		return WithdrawRequest{}, err
	}
	out := r.req
	out.Approvals = append([]Identity(nil), r.req.Approvals...)
	out.Threshold = l.policy.Threshold(len(e.account.Owners))
	return out, nil
}

func (l *inMemoryLedger) Events(_ context.Context, afterSeq uint64, limit int) ([]Event, error) {
	return l.log.since(afterSeq, limit), nil
}
