package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// eventLogLockKey is the advisory lock taken by every transaction right before
// it appends to ledger_events, so sequence order equals commit order.
const eventLogLockKey int64 = 0x6a6f696e74

// PostgresLedger persists accounts, withdrawal requests and the event log in PostgreSQL.
type PostgresLedger struct {
	db     *pgxpool.Pool
	policy Policy
	now    func() time.Time
}

// NewPostgresLedger constructs a Postgres-backed ledger implementation.
// The schema is created by infra.EnsureSchema.
func NewPostgresLedger(db *pgxpool.Pool, policy Policy, opts ...Option) *PostgresLedger {
	o := buildOptions(opts)
	return &PostgresLedger{db: db, policy: policy.normalized(), now: o.now}
}

// CreateAccount inserts the account, its owners and the AccountCreated event in one transaction.
func (l *PostgresLedger) CreateAccount(ctx context.Context, caller Identity, otherOwners []Identity) (uint64, error) {
	owners, err := l.policy.ownerSet(caller, otherOwners)
	if err != nil {
		return 0, err
	}

	tx, err := l.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return 0, err
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	var id int64
	if err := tx.QueryRow(ctx, `INSERT INTO ledger_accounts (balance, created_at) VALUES (0, $1) RETURNING id`,
		l.now().UTC()).Scan(&id); err != nil {
		return 0, fmt.Errorf("insert account: %w", err)
	}
	for pos, owner := range owners {
		if _, err := tx.Exec(ctx, `INSERT INTO ledger_account_owners (account_id, owner, position) VALUES ($1, $2, $3)`,
			id, string(owner), pos); err != nil {
			return 0, fmt.Errorf("insert owner: %w", err)
		}
	}
	if err := l.appendEvent(ctx, tx, accountCreated(uint64(id), owners)); err != nil {
		return 0, err
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	return uint64(id), nil
}

// Deposit credits the account. Any caller may deposit.
func (l *PostgresLedger) Deposit(ctx context.Context, caller Identity, accountID uint64, amount int64) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}

	tx, err := l.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	balance, err := lockBalance(ctx, tx, accountID)
	if err != nil {
		return err
	}
	if balance > math.MaxInt64-amount {
		return ErrInvalidAmount
	}
	if _, err := tx.Exec(ctx, `UPDATE ledger_accounts SET balance = balance + $1 WHERE id = $2`, amount, int64(accountID)); err != nil {
		return fmt.Errorf("credit account: %w", err)
	}
	if err := l.appendEvent(ctx, tx, deposited(caller, accountID, amount)); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// RequestWithdrawal records a new pending request. The balance is checked at execution.
func (l *PostgresLedger) RequestWithdrawal(ctx context.Context, caller Identity, accountID uint64, amount int64) (uint64, error) {
	tx, err := l.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return 0, err
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	if _, err := lockBalance(ctx, tx, accountID); err != nil {
		return 0, err
	}
	owners, err := ownersOf(ctx, tx, accountID)
	if err != nil {
		return 0, err
	}
	if !(Account{Owners: owners}).IsOwner(caller) {
		return 0, ErrUnauthorized
	}
	if amount <= 0 {
		return 0, ErrInvalidAmount
	}

	var id int64
	if err := tx.QueryRow(ctx, `INSERT INTO withdraw_requests (account_id, requester, amount, created_at)
        VALUES ($1, $2, $3, $4) RETURNING id`, int64(accountID), string(caller), amount, l.now().UTC()).Scan(&id); err != nil {
		return 0, fmt.Errorf("insert withdraw request: %w", err)
	}
	if err := l.appendEvent(ctx, tx, withdrawRequested(caller, accountID, uint64(id), amount)); err != nil {
		return 0, err
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	return uint64(id), nil
}

// ApproveWithdrawal adds the caller to the approval set of an open request.
func (l *PostgresLedger) ApproveWithdrawal(ctx context.Context, caller Identity, accountID, withdrawID uint64) error {
	tx, err := l.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	if _, _, _, err := l.openRequest(ctx, tx, caller, accountID, withdrawID); err != nil {
		return err
	}
	cmd, err := tx.Exec(ctx, `INSERT INTO withdraw_approvals (withdraw_id, owner, approved_at) VALUES ($1, $2, $3)
        ON CONFLICT (withdraw_id, owner) DO NOTHING`, int64(withdrawID), string(caller), l.now().UTC())
	if err != nil {
		return fmt.Errorf("insert approval: %w", err)
	}
	if cmd.RowsAffected() == 0 {
		return ErrAlreadyApproved
	}
	if err := l.appendEvent(ctx, tx, withdrawApproved(caller, accountID, withdrawID)); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// Withdraw executes an approved request and debits the account.
func (l *PostgresLedger) Withdraw(ctx context.Context, caller Identity, accountID, withdrawID uint64) error {
	tx, err := l.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	balance, owners, req, err := l.openRequest(ctx, tx, caller, accountID, withdrawID)
	if err != nil {
		return err
	}
	if len(req.Approvals) < l.policy.Threshold(len(owners)) {
		return ErrInsufficientApprovals
	}
	if req.Amount > balance {
		return ErrInsufficientBalance
	}

	if _, err := tx.Exec(ctx, `UPDATE ledger_accounts SET balance = balance - $1 WHERE id = $2`, req.Amount, int64(accountID)); err != nil {
		return fmt.Errorf("debit account: %w", err)
	}
	if _, err := tx.Exec(ctx, `UPDATE withdraw_requests SET executed = true, closed_at = $1 WHERE id = $2`,
		l.now().UTC(), int64(withdrawID)); err != nil {
		return fmt.Errorf("close withdraw request: %w", err)
	}
	if err := l.appendEvent(ctx, tx, withdrawn(withdrawID)); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// CancelWithdrawal closes an open request. Only its requester may cancel.
func (l *PostgresLedger) CancelWithdrawal(ctx context.Context, caller Identity, accountID, withdrawID uint64) error {
	tx, err := l.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	_, _, req, err := l.openRequest(ctx, tx, caller, accountID, withdrawID)
	if err != nil {
		return err
	}
	if req.Requester != caller {
		return ErrUnauthorized
	}
	if _, err := tx.Exec(ctx, `UPDATE withdraw_requests SET cancelled = true, closed_at = $1 WHERE id = $2`,
		l.now().UTC(), int64(withdrawID)); err != nil {
		return fmt.Errorf("cancel withdraw request: %w", err)
	}
	if err := l.appendEvent(ctx, tx, withdrawCancelled(caller, accountID, withdrawID)); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// Accounts lists the ids of accounts the caller co-owns.
func (l *PostgresLedger) Accounts(ctx context.Context, caller Identity) ([]uint64, error) {
	rows, err := l.db.Query(ctx, `SELECT account_id FROM ledger_account_owners WHERE owner = $1 ORDER BY account_id`, string(caller))
	if err != nil {
		return nil, err
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	if err != nil {
		return nil, err
	}
	out := make([]uint64, 0, len(ids))
	for _, id := range ids {
		out = append(out, uint64(id))
	}
	return out, nil
}

// Owners returns the owner set, creator first.
func (l *PostgresLedger) Owners(ctx context.Context, accountID uint64) ([]Identity, error) {
	if _, err := l.Balance(ctx, accountID); err != nil {
		return nil, err
	}
	return ownersOf(ctx, l.db, accountID)
}

// Balance returns the committed balance.
func (l *PostgresLedger) Balance(ctx context.Context, accountID uint64) (int64, error) {
	var balance int64
	err := l.db.QueryRow(ctx, `SELECT balance FROM ledger_accounts WHERE id = $1`, int64(accountID)).Scan(&balance)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrAccountNotFound
	}
	return balance, err
}

// Approvals counts distinct approvals on the request.
func (l *PostgresLedger) Approvals(ctx context.Context, accountID, withdrawID uint64) (int, error) {
	req, err := l.WithdrawRequest(ctx, accountID, withdrawID)
	if err != nil {
		return 0, err
	}
	return len(req.Approvals), nil
}

// WithdrawRequest returns a snapshot of the request.
func (l *PostgresLedger) WithdrawRequest(ctx context.Context, accountID, withdrawID uint64) (WithdrawRequest, error) {
	owners, err := l.Owners(ctx, accountID)
	if err != nil {
		return WithdrawRequest{}, err
	}
	req, err := loadRequest(ctx, l.db, withdrawID, false)
	if err != nil {
		return WithdrawRequest{}, err
	}
	if req.AccountID != accountID {
		return WithdrawRequest{}, ErrRequestAccountMismatch
	}
	req.Threshold = l.policy.Threshold(len(owners))
	return req, nil
}

// Events pages through the log in sequence order.
func (l *PostgresLedger) Events(ctx context.Context, afterSeq uint64, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = DefaultEventPage
	}
	if afterSeq >= math.MaxInt64 {
		return []Event{}, nil
	}
	rows, err := l.db.Query(ctx, `SELECT payload FROM ledger_events WHERE seq > $1 ORDER BY seq LIMIT $2`, int64(afterSeq), limit)
	if err != nil {
		return nil, err
	}
	payloads, err := pgx.CollectRows(rows, pgx.RowTo[[]byte])
	if err != nil {
		return nil, err
	}
	out := make([]Event, 0, len(payloads))
	for _, raw := range payloads {
		var ev Event
		if err := json.Unmarshal(raw, &ev); err != nil {
			return nil, fmt.Errorf("decode event: %w", err)
		}
		out = append(out, ev)
	}
	return out, nil
}

// openRequest locks the account row and the request row and checks that the
// caller may still act on the request.
func (l *PostgresLedger) openRequest(ctx context.Context, tx pgx.Tx, caller Identity, accountID, withdrawID uint64) (int64, []Identity, WithdrawRequest, error) {
	balance, err := lockBalance(ctx, tx, accountID)
	if err != nil {
		return 0, nil, WithdrawRequest{}, err
	}
	owners, err := ownersOf(ctx, tx, accountID)
	if err != nil {
		return 0, nil, WithdrawRequest{}, err
	}
	if !(Account{Owners: owners}).IsOwner(caller) {
		return 0, nil, WithdrawRequest{}, ErrUnauthorized
	}
	req, err := loadRequest(ctx, tx, withdrawID, true)
	if err != nil {
		return 0, nil, WithdrawRequest{}, err
	}
	switch {
	case req.AccountID != accountID:
		return 0, nil, WithdrawRequest{}, ErrRequestAccountMismatch
	case req.Executed:
		return 0, nil, WithdrawRequest{}, ErrAlreadyExecuted
	case req.Cancelled:
		return 0, nil, WithdrawRequest{}, ErrRequestCancelled
	}
	return balance, owners, req, nil
}

// appendEvent stamps and stores ev. It must be the last write of the transaction.
func (l *PostgresLedger) appendEvent(ctx context.Context, tx pgx.Tx, ev Event) error {
	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, eventLogLockKey); err != nil {
		return fmt.Errorf("lock event log: %w", err)
	}
	// ts never decreases along seq, so the head row carries both maxima.
	var lastSeq, lastTS int64
	err := tx.QueryRow(ctx, `SELECT seq, ts FROM ledger_events ORDER BY seq DESC LIMIT 1`).Scan(&lastSeq, &lastTS)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("read event log head: %w", err)
	}
	ev.Seq = uint64(lastSeq) + 1
	ev.Timestamp = stamp(l.now(), lastTS)
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `INSERT INTO ledger_events (seq, type, payload, ts) VALUES ($1, $2, $3, $4)`,
		int64(ev.Seq), string(ev.Type), payload, ev.Timestamp); err != nil {
		return fmt.Errorf("append event: %w", err)
	}
	return nil
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func lockBalance(ctx context.Context, tx pgx.Tx, accountID uint64) (int64, error) {
	var balance int64
	err := tx.QueryRow(ctx, `SELECT balance FROM ledger_accounts WHERE id = $1 FOR UPDATE`, int64(accountID)).Scan(&balance)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrAccountNotFound
	}
	return balance, err
}

func ownersOf(ctx context.Context, q querier, accountID uint64) ([]Identity, error) {
	rows, err := q.Query(ctx, `SELECT owner FROM ledger_account_owners WHERE account_id = $1 ORDER BY position`, int64(accountID))
	if err != nil {
		return nil, err
	}
	names, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, err
	}
	return toIdentities(names), nil
}

func loadRequest(ctx context.Context, q querier, withdrawID uint64, forUpdate bool) (WithdrawRequest, error) {
	query := `SELECT id, account_id, requester, amount, executed, cancelled, created_at, closed_at
        FROM withdraw_requests WHERE id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	var (
		id, accountID int64
		requester     string
		closedAt      *time.Time
		req           WithdrawRequest
	)
	err := q.QueryRow(ctx, query, int64(withdrawID)).Scan(&id, &accountID, &requester, &req.Amount,
		&req.Executed, &req.Cancelled, &req.CreatedAt, &closedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return WithdrawRequest{}, ErrRequestNotFound
	}
	if err != nil {
		return WithdrawRequest{}, err
	}
	req.ID = uint64(id)
	req.AccountID = uint64(accountID)
	req.Requester = Identity(requester)
	req.CreatedAt = req.CreatedAt.UTC()
	if closedAt != nil {
		req.ClosedAt = closedAt.UTC()
	}

	rows, err := q.Query(ctx, `SELECT owner FROM withdraw_approvals WHERE withdraw_id = $1 ORDER BY approved_at, owner`, id)
	if err != nil {
		return WithdrawRequest{}, err
	}
	approvers, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return WithdrawRequest{}, err
	}
	req.Approvals = toIdentities(approvers)
	return req, nil
}

func toIdentities(names []string) []Identity {
	out := make([]Identity, 0, len(names))
	for _, n := range names {
		out = append(out, Identity(n))
	}
	return out
}
