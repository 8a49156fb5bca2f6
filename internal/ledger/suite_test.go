package ledger

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/google/uuid"
)

// missingID is never allocated by either backend.
const missingID uint64 = math.MaxInt64

type ledgerFactory func(t *testing.T, policy Policy) Ledger

// runLedgerSuite checks the behaviour every backend must share. Identities are
// unique per subtest so a persistent database can be reused across runs.
func runLedgerSuite(t *testing.T, newLedger ledgerFactory) {
	tests := []struct {
		name string
		run  func(t *testing.T, newLedger ledgerFactory)
	}{
		{"SingleOwnerAccount", testSingleOwnerAccount},
		{"CreateAccountRejectsBadOwnerSets", testCreateAccountRejectsBadOwnerSets},
		{"FourDistinctOwnersAccepted", testFourDistinctOwnersAccepted},
		{"EmptyCallerUnauthorized", testEmptyCallerUnauthorized},
		{"DepositOpenToAnyone", testDepositOpenToAnyone},
		{"JointWithdrawalFlow", testJointWithdrawalFlow},
		{"WithdrawWithoutApprovals", testWithdrawWithoutApprovals},
		{"BalanceCheckedAtExecution", testBalanceCheckedAtExecution},
		{"OwnerChecks", testOwnerChecks},
		{"RequestAccountMismatch", testRequestAccountMismatch},
		{"DoubleApprovalRejected", testDoubleApprovalRejected},
		{"CancelWithdrawal", testCancelWithdrawal},
		{"MajorityPolicy", testMajorityPolicy},
		{"QueriesAreIdempotent", testQueriesAreIdempotent},
		{"ReturnedSlicesAreCopies", testReturnedSlicesAreCopies},
		{"RejectedOperationsLeaveNoTrace", testRejectedOperationsLeaveNoTrace},
		{"EventSequence", testEventSequence},
		{"EventsAfterHugeCursor", testEventsAfterHugeCursor},
		{"ConcurrentWithdrawExecutesOnce", testConcurrentWithdrawExecutesOnce},
		{"ConcurrentWritersKeepLogGapFree", testConcurrentWritersKeepLogGapFree},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) { tc.run(t, newLedger) })
	}
}

func newOwners() [5]Identity {
	suffix := uuid.NewString()
	var out [5]Identity
	for i := range out {
		out[i] = Identity(fmt.Sprintf("owner-%d-%s", i+1, suffix))
	}
	return out
}

func mustCreate(t *testing.T, l Ledger, caller Identity, others ...Identity) uint64 {
	t.Helper()
	id, err := l.CreateAccount(context.Background(), caller, others)
	if err != nil {
		t.Fatalf("create account: %v", err)
	}
	return id
}

func mustDeposit(t *testing.T, l Ledger, id uint64, amount int64) {
	t.Helper()
	if err := l.Deposit(context.Background(), "depositor", id, amount); err != nil {
		t.Fatalf("deposit: %v", err)
	}
}

func mustRequest(t *testing.T, l Ledger, caller Identity, id uint64, amount int64) uint64 {
	t.Helper()
	wid, err := l.RequestWithdrawal(context.Background(), caller, id, amount)
	if err != nil {
		t.Fatalf("request withdrawal: %v", err)
	}
	return wid
}

func mustApprove(t *testing.T, l Ledger, id, wid uint64, owners ...Identity) {
	t.Helper()
	for _, owner := range owners {
		if err := l.ApproveWithdrawal(context.Background(), owner, id, wid); err != nil {
			t.Fatalf("approve %s: %v", owner, err)
		}
	}
}

// eventHead returns the seq of the last stored event.
func eventHead(t *testing.T, l Ledger) uint64 {
	t.Helper()
	var head uint64
	for {
		page, err := l.Events(context.Background(), head, 1000)
		if err != nil {
			t.Fatalf("events: %v", err)
		}
		if len(page) == 0 {
			return head
		}
		head = page[len(page)-1].Seq
	}
}

func eventsSince(t *testing.T, l Ledger, after uint64) []Event {
	t.Helper()
	events, err := l.Events(context.Background(), after, 10_000)
	if err != nil {
		t.Fatalf("events: %v", err)
	}
	return events
}

func testSingleOwnerAccount(t *testing.T, newLedger ledgerFactory) {
	l := newLedger(t, DefaultPolicy())
	ctx := context.Background()
	o := newOwners()

	id := mustCreate(t, l, o[0])

	accounts, err := l.Accounts(ctx, o[0])
	if err != nil {
		t.Fatalf("accounts: %v", err)
	}
	if len(accounts) != 1 || accounts[0] != id {
		t.Fatalf("expected [%d], got %v", id, accounts)
	}
	owners, err := l.Owners(ctx, id)
	if err != nil {
		t.Fatalf("owners: %v", err)
	}
	if len(owners) != 1 || owners[0] != o[0] {
		t.Fatalf("expected owners [%s], got %v", o[0], owners)
	}
	if other, _ := l.Accounts(ctx, o[1]); len(other) != 0 {
		t.Fatalf("expected no accounts for %s, got %v", o[1], other)
	}
}

func testCreateAccountRejectsBadOwnerSets(t *testing.T, newLedger ledgerFactory) {
	l := newLedger(t, DefaultPolicy())
	ctx := context.Background()
	o := newOwners()
	head := eventHead(t, l)

	cases := map[string][]Identity{
		"caller listed":  {o[0]},
		"duplicate":      {o[1], o[1]},
		"five owners":    {o[1], o[2], o[3], o[4]},
		"five with self": {o[0], o[1], o[2], o[3], o[4]},
		"empty identity": {""},
	}
	for name, others := range cases {
		if _, err := l.CreateAccount(ctx, o[0], others); !errors.Is(err, ErrInvalidOwnerSet) {
			t.Fatalf("%s: expected invalid owner set, got %v", name, err)
		}
	}
	if accounts, _ := l.Accounts(ctx, o[0]); len(accounts) != 0 {
		t.Fatalf("rejected creations must not leave accounts, got %v", accounts)
	}
	if events := eventsSince(t, l, head); len(events) != 0 {
		t.Fatalf("rejected creations must not emit events, got %d", len(events))
	}
}

func testFourDistinctOwnersAccepted(t *testing.T, newLedger ledgerFactory) {
	l := newLedger(t, DefaultPolicy())
	o := newOwners()
	id := mustCreate(t, l, o[0], o[1], o[2], o[3])

	owners, err := l.Owners(context.Background(), id)
	if err != nil {
		t.Fatalf("owners: %v", err)
	}
	want := o[:4]
	if fmt.Sprint(owners) != fmt.Sprint(want) {
		t.Fatalf("expected %v, got %v", want, owners)
	}
}

func testEmptyCallerUnauthorized(t *testing.T, newLedger ledgerFactory) {
	l := newLedger(t, DefaultPolicy())
	if _, err := l.CreateAccount(context.Background(), "", nil); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
}

func testDepositOpenToAnyone(t *testing.T, newLedger ledgerFactory) {
	l := newLedger(t, DefaultPolicy())
	ctx := context.Background()
	o := newOwners()
	id := mustCreate(t, l, o[0])

	if err := l.Deposit(ctx, "stranger", id, 250); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	balance, err := l.Balance(ctx, id)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if balance != 250 {
		t.Fatalf("expected balance 250, got %d", balance)
	}

	if err := l.Deposit(ctx, o[0], id, 0); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected invalid amount, got %v", err)
	}
	if err := l.Deposit(ctx, o[0], id, -5); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected invalid amount, got %v", err)
	}
	if err := l.Deposit(ctx, o[0], missingID, 10); !errors.Is(err, ErrAccountNotFound) {
		t.Fatalf("expected account not found, got %v", err)
	}
}

func testJointWithdrawalFlow(t *testing.T, newLedger ledgerFactory) {
	l := newLedger(t, DefaultPolicy())
	ctx := context.Background()
	o := newOwners()

	id := mustCreate(t, l, o[0], o[1])
	mustDeposit(t, l, id, 100)

	if balance, _ := l.Balance(ctx, id); balance != 100 {
		t.Fatalf("expected balance 100, got %d", balance)
	}

	wid := mustRequest(t, l, o[0], id, 40)
	mustApprove(t, l, id, wid, o[0])
	if err := l.Withdraw(ctx, o[0], id, wid); !errors.Is(err, ErrInsufficientApprovals) {
		t.Fatalf("expected insufficient approvals with one of two, got %v", err)
	}
	mustApprove(t, l, id, wid, o[1])
	if n, _ := l.Approvals(ctx, id, wid); n != 2 {
		t.Fatalf("expected 2 approvals, got %d", n)
	}
	if err := l.Withdraw(ctx, o[0], id, wid); err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if balance, _ := l.Balance(ctx, id); balance != 60 {
		t.Fatalf("expected balance 60, got %d", balance)
	}
	if err := l.Withdraw(ctx, o[0], id, wid); !errors.Is(err, ErrAlreadyExecuted) {
		t.Fatalf("expected already executed, got %v", err)
	}
	if balance, _ := l.Balance(ctx, id); balance != 60 {
		t.Fatalf("balance changed after rejected withdraw: %d", balance)
	}
	if err := l.ApproveWithdrawal(ctx, o[1], id, wid); !errors.Is(err, ErrAlreadyExecuted) {
		t.Fatalf("expected already executed on approve, got %v", err)
	}

	req, err := l.WithdrawRequest(ctx, id, wid)
	if err != nil {
		t.Fatalf("withdraw request: %v", err)
	}
	if req.Status() != WithdrawStatusExecuted || req.ClosedAt.IsZero() || req.Threshold != 2 {
		t.Fatalf("unexpected request state: %+v", req)
	}
}

func testWithdrawWithoutApprovals(t *testing.T, newLedger ledgerFactory) {
	l := newLedger(t, DefaultPolicy())
	o := newOwners()
	id := mustCreate(t, l, o[0])
	mustDeposit(t, l, id, 10)

	wid := mustRequest(t, l, o[0], id, 5)
	if err := l.Withdraw(context.Background(), o[0], id, wid); !errors.Is(err, ErrInsufficientApprovals) {
		t.Fatalf("expected insufficient approvals, got %v", err)
	}
}

func testBalanceCheckedAtExecution(t *testing.T, newLedger ledgerFactory) {
	l := newLedger(t, DefaultPolicy())
	ctx := context.Background()
	o := newOwners()
	id := mustCreate(t, l, o[0])

	wid, err := l.RequestWithdrawal(ctx, o[0], id, 50)
	if err != nil {
		t.Fatalf("request beyond balance must be accepted: %v", err)
	}
	mustApprove(t, l, id, wid, o[0])
	if err := l.Withdraw(ctx, o[0], id, wid); !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("expected insufficient balance, got %v", err)
	}
	mustDeposit(t, l, id, 50)
	if err := l.Withdraw(ctx, o[0], id, wid); err != nil {
		t.Fatalf("withdraw after top-up: %v", err)
	}
	if balance, _ := l.Balance(ctx, id); balance != 0 {
		t.Fatalf("expected empty account, got %d", balance)
	}
}

func testOwnerChecks(t *testing.T, newLedger ledgerFactory) {
	l := newLedger(t, DefaultPolicy())
	ctx := context.Background()
	o := newOwners()
	id := mustCreate(t, l, o[0], o[1])
	mustDeposit(t, l, id, 100)

	if _, err := l.RequestWithdrawal(ctx, o[2], id, 10); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected unauthorized request, got %v", err)
	}
	if _, err := l.RequestWithdrawal(ctx, o[0], id, 0); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected invalid amount, got %v", err)
	}
	wid := mustRequest(t, l, o[1], id, 10)
	if err := l.ApproveWithdrawal(ctx, o[2], id, wid); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected unauthorized approve, got %v", err)
	}
	if err := l.Withdraw(ctx, o[2], id, wid); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected unauthorized withdraw, got %v", err)
	}
	if err := l.CancelWithdrawal(ctx, o[2], id, wid); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected unauthorized cancel, got %v", err)
	}
	if err := l.ApproveWithdrawal(ctx, o[0], id, missingID); !errors.Is(err, ErrRequestNotFound) {
		t.Fatalf("expected request not found, got %v", err)
	}
	if _, err := l.RequestWithdrawal(ctx, o[0], missingID, 10); !errors.Is(err, ErrAccountNotFound) {
		t.Fatalf("expected account not found, got %v", err)
	}
}

func testRequestAccountMismatch(t *testing.T, newLedger ledgerFactory) {
	l := newLedger(t, DefaultPolicy())
	ctx := context.Background()
	o := newOwners()
	a := mustCreate(t, l, o[0])
	b := mustCreate(t, l, o[0])

	wid := mustRequest(t, l, o[0], a, 10)
	if err := l.ApproveWithdrawal(ctx, o[0], b, wid); !errors.Is(err, ErrRequestAccountMismatch) {
		t.Fatalf("expected mismatch on approve, got %v", err)
	}
	if err := l.Withdraw(ctx, o[0], b, wid); !errors.Is(err, ErrRequestAccountMismatch) {
		t.Fatalf("expected mismatch on withdraw, got %v", err)
	}
	if err := l.CancelWithdrawal(ctx, o[0], b, wid); !errors.Is(err, ErrRequestAccountMismatch) {
		t.Fatalf("expected mismatch on cancel, got %v", err)
	}
	if _, err := l.Approvals(ctx, b, wid); !errors.Is(err, ErrRequestAccountMismatch) {
		t.Fatalf("expected mismatch on approvals query, got %v", err)
	}
}

func testDoubleApprovalRejected(t *testing.T, newLedger ledgerFactory) {
	l := newLedger(t, DefaultPolicy())
	ctx := context.Background()
	o := newOwners()
	id := mustCreate(t, l, o[0], o[1])

	wid := mustRequest(t, l, o[0], id, 10)
	mustApprove(t, l, id, wid, o[1])
	if err := l.ApproveWithdrawal(ctx, o[1], id, wid); !errors.Is(err, ErrAlreadyApproved) {
		t.Fatalf("expected already approved, got %v", err)
	}
	if n, _ := l.Approvals(ctx, id, wid); n != 1 {
		t.Fatalf("double approval must not double count, got %d", n)
	}
}

func testCancelWithdrawal(t *testing.T, newLedger ledgerFactory) {
	l := newLedger(t, DefaultPolicy())
	ctx := context.Background()
	o := newOwners()
	id := mustCreate(t, l, o[0], o[1])
	mustDeposit(t, l, id, 100)

	wid := mustRequest(t, l, o[0], id, 30)
	if err := l.CancelWithdrawal(ctx, o[1], id, wid); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("only the requester may cancel, got %v", err)
	}
	head := eventHead(t, l)
	if err := l.CancelWithdrawal(ctx, o[0], id, wid); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	events := eventsSince(t, l, head)
	if len(events) != 1 || events[0].Type != EventWithdrawCancelled || events[0].WithdrawID != wid {
		t.Fatalf("expected one WithdrawCancelled event, got %+v", events)
	}
	if err := l.ApproveWithdrawal(ctx, o[1], id, wid); !errors.Is(err, ErrRequestCancelled) {
		t.Fatalf("expected cancelled on approve, got %v", err)
	}
	if err := l.Withdraw(ctx, o[0], id, wid); !errors.Is(err, ErrRequestCancelled) {
		t.Fatalf("expected cancelled on withdraw, got %v", err)
	}
	if err := l.CancelWithdrawal(ctx, o[0], id, wid); !errors.Is(err, ErrRequestCancelled) {
		t.Fatalf("expected cancelled on second cancel, got %v", err)
	}
	req, err := l.WithdrawRequest(ctx, id, wid)
	if err != nil {
		t.Fatalf("withdraw request: %v", err)
	}
	if req.Status() != WithdrawStatusCancelled || req.ClosedAt.IsZero() {
		t.Fatalf("expected cancelled status, got %+v", req)
	}
	if balance, _ := l.Balance(ctx, id); balance != 100 {
		t.Fatalf("cancel must not move funds, balance=%d", balance)
	}
}

func testMajorityPolicy(t *testing.T, newLedger ledgerFactory) {
	l := newLedger(t, Policy{MaxOwners: 4, Approval: ApprovalMajority})
	ctx := context.Background()
	o := newOwners()
	id := mustCreate(t, l, o[0], o[1], o[2])
	mustDeposit(t, l, id, 10)

	wid := mustRequest(t, l, o[2], id, 10)
	mustApprove(t, l, id, wid, o[0])
	if err := l.Withdraw(ctx, o[2], id, wid); !errors.Is(err, ErrInsufficientApprovals) {
		t.Fatalf("expected insufficient approvals, got %v", err)
	}
	mustApprove(t, l, id, wid, o[1])
	if err := l.Withdraw(ctx, o[2], id, wid); err != nil {
		t.Fatalf("withdraw with 2 of 3: %v", err)
	}
}

func testQueriesAreIdempotent(t *testing.T, newLedger ledgerFactory) {
	l := newLedger(t, DefaultPolicy())
	ctx := context.Background()
	o := newOwners()
	id := mustCreate(t, l, o[0], o[1])
	mustDeposit(t, l, id, 7)
	wid := mustRequest(t, l, o[0], id, 3)
	mustApprove(t, l, id, wid, o[1])

	head := eventHead(t, l)
	for i := 0; i < 2; i++ {
		b, _ := l.Balance(ctx, id)
		owners, _ := l.Owners(ctx, id)
		n, _ := l.Approvals(ctx, id, wid)
		accounts, _ := l.Accounts(ctx, o[1])
		if b != 7 || len(owners) != 2 || n != 1 || len(accounts) != 1 {
			t.Fatalf("query round %d: balance=%d owners=%v approvals=%d accounts=%v", i, b, owners, n, accounts)
		}
	}
	if events := eventsSince(t, l, head); len(events) != 0 {
		t.Fatalf("queries must not emit events, got %d", len(events))
	}
}

func testReturnedSlicesAreCopies(t *testing.T, newLedger ledgerFactory) {
	l := newLedger(t, DefaultPolicy())
	ctx := context.Background()
	o := newOwners()
	id := mustCreate(t, l, o[0], o[1])

	owners, _ := l.Owners(ctx, id)
	owners[0] = "mallory"
	again, _ := l.Owners(ctx, id)
	if again[0] != o[0] {
		t.Fatalf("owner set mutated through returned slice: %v", again)
	}
}

func testRejectedOperationsLeaveNoTrace(t *testing.T, newLedger ledgerFactory) {
	l := newLedger(t, DefaultPolicy())
	ctx := context.Background()
	o := newOwners()
	id := mustCreate(t, l, o[0], o[1])
	other := mustCreate(t, l, o[0])
	mustDeposit(t, l, id, 100)
	wid := mustRequest(t, l, o[0], id, 30)
	mustApprove(t, l, id, wid, o[0])

	head := eventHead(t, l)
	rejected := map[string]error{
		"create bad owners":   func() error { _, err := l.CreateAccount(ctx, o[0], []Identity{o[0]}); return err }(),
		"zero deposit":        l.Deposit(ctx, o[0], id, 0),
		"deposit missing":     l.Deposit(ctx, o[0], missingID, 5),
		"stranger request":    func() error { _, err := l.RequestWithdrawal(ctx, o[2], id, 5); return err }(),
		"zero request":        func() error { _, err := l.RequestWithdrawal(ctx, o[0], id, 0); return err }(),
		"stranger approve":    l.ApproveWithdrawal(ctx, o[2], id, wid),
		"double approve":      l.ApproveWithdrawal(ctx, o[0], id, wid),
		"mismatched approve":  l.ApproveWithdrawal(ctx, o[0], other, wid),
		"early withdraw":      l.Withdraw(ctx, o[0], id, wid),
		"co-owner cancel":     l.CancelWithdrawal(ctx, o[1], id, wid),
		"missing request":     l.Withdraw(ctx, o[0], id, missingID),
		"mismatched withdraw": l.Withdraw(ctx, o[0], other, wid),
	}
	for name, err := range rejected {
		if err == nil {
			t.Fatalf("%s: expected an error", name)
		}
	}

	if events := eventsSince(t, l, head); len(events) != 0 {
		t.Fatalf("rejected operations emitted %d events", len(events))
	}
	if balance, _ := l.Balance(ctx, id); balance != 100 {
		t.Fatalf("expected balance 100, got %d", balance)
	}
	req, err := l.WithdrawRequest(ctx, id, wid)
	if err != nil {
		t.Fatalf("withdraw request: %v", err)
	}
	if req.Status() != WithdrawStatusPending || len(req.Approvals) != 1 {
		t.Fatalf("request changed by rejected operations: %+v", req)
	}
	if accounts, _ := l.Accounts(ctx, o[0]); len(accounts) != 2 {
		t.Fatalf("expected 2 accounts, got %v", accounts)
	}
}

func testEventSequence(t *testing.T, newLedger ledgerFactory) {
	l := newLedger(t, DefaultPolicy())
	ctx := context.Background()
	o := newOwners()
	head := eventHead(t, l)

	id := mustCreate(t, l, o[0], o[1])
	mustDeposit(t, l, id, 100)
	wid := mustRequest(t, l, o[0], id, 40)
	mustApprove(t, l, id, wid, o[0], o[1])
	if err := l.Withdraw(ctx, o[1], id, wid); err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	_ = l.Withdraw(ctx, o[1], id, wid) // rejected, no event

	events := eventsSince(t, l, head)
	wantTypes := []EventType{EventAccountCreated, EventDeposit, EventWithdrawRequested, EventWithdrawApproved, EventWithdrawApproved, EventWithdraw}
	if len(events) != len(wantTypes) {
		t.Fatalf("expected %d events, got %d", len(wantTypes), len(events))
	}
	var lastTS int64
	for i, ev := range events {
		if ev.Type != wantTypes[i] {
			t.Fatalf("event %d: expected %s, got %s", i, wantTypes[i], ev.Type)
		}
		if ev.Seq != head+uint64(i+1) {
			t.Fatalf("event %d: expected seq %d, got %d", i, head+uint64(i+1), ev.Seq)
		}
		if ev.Timestamp < lastTS {
			t.Fatalf("timestamps decreased at seq %d", ev.Seq)
		}
		lastTS = ev.Timestamp
	}
	if events[0].ID != id || len(events[0].Owners) != 2 {
		t.Fatalf("unexpected AccountCreated payload: %+v", events[0])
	}
	if events[1].User != "depositor" || events[1].Value != 100 || events[1].AccountID != id {
		t.Fatalf("unexpected Deposit payload: %+v", events[1])
	}
	if events[2].User != o[0] || events[2].WithdrawID != wid || events[2].Amount != 40 {
		t.Fatalf("unexpected WithdrawRequested payload: %+v", events[2])
	}
	if events[5].WithdrawID != wid {
		t.Fatalf("unexpected Withdraw payload: %+v", events[5])
	}

	page, err := l.Events(ctx, head+4, 1)
	if err != nil {
		t.Fatalf("events: %v", err)
	}
	if len(page) != 1 || page[0].Seq != head+5 {
		t.Fatalf("expected page with seq %d, got %+v", head+5, page)
	}
	if tail := eventsSince(t, l, head+6); len(tail) != 0 {
		t.Fatalf("expected empty tail, got %d", len(tail))
	}
}

func testEventsAfterHugeCursor(t *testing.T, newLedger ledgerFactory) {
	l := newLedger(t, DefaultPolicy())
	o := newOwners()
	mustCreate(t, l, o[0])

	for _, after := range []uint64{math.MaxInt64, math.MaxInt64 + 1, math.MaxUint64} {
		events, err := l.Events(context.Background(), after, 10)
		if err != nil {
			t.Fatalf("events after %d: %v", after, err)
		}
		if len(events) != 0 {
			t.Fatalf("expected no events after %d, got %d", after, len(events))
		}
	}
}

func testConcurrentWithdrawExecutesOnce(t *testing.T, newLedger ledgerFactory) {
	l := newLedger(t, DefaultPolicy())
	ctx := context.Background()
	o := newOwners()
	id := mustCreate(t, l, o[0], o[1])
	mustDeposit(t, l, id, 1_000)

	wid := mustRequest(t, l, o[0], id, 600)
	mustApprove(t, l, id, wid, o[0], o[1])
	head := eventHead(t, l)

	const workers = 16
	var (
		wg        sync.WaitGroup
		successes int64
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			caller := o[0]
			if i%2 == 1 {
				caller = o[1]
			}
			err := l.Withdraw(ctx, caller, id, wid)
			switch {
			case err == nil:
				atomic.AddInt64(&successes, 1)
			case !errors.Is(err, ErrAlreadyExecuted):
				t.Errorf("worker %d: unexpected error %v", i, err)
			}
		}(i)
	}
	wg.Wait()

	if successes != 1 {
		t.Fatalf("expected exactly one execution, got %d", successes)
	}
	if balance, _ := l.Balance(ctx, id); balance != 400 {
		t.Fatalf("expected balance 400, got %d", balance)
	}
	if events := eventsSince(t, l, head); len(events) != 1 || events[0].Type != EventWithdraw {
		t.Fatalf("expected a single Withdraw event, got %+v", events)
	}
}

func testConcurrentWritersKeepLogGapFree(t *testing.T, newLedger ledgerFactory) {
	l := newLedger(t, DefaultPolicy())
	ctx := context.Background()
	o := newOwners()
	shared := mustCreate(t, l, o[0])
	head := eventHead(t, l)

	const rounds = 25
	var (
		wg       sync.WaitGroup
		executed int64
	)
	for i := 0; i < rounds; i++ {
		wg.Add(3)
		go func() {
			defer wg.Done()
			if err := l.Deposit(ctx, o[0], shared, 10); err != nil {
				t.Errorf("deposit: %v", err)
			}
		}()
		go func() {
			defer wg.Done()
			wid, err := l.RequestWithdrawal(ctx, o[0], shared, 7)
			if err != nil {
				t.Errorf("request: %v", err)
				return
			}
			if err := l.ApproveWithdrawal(ctx, o[0], shared, wid); err != nil {
				t.Errorf("approve: %v", err)
				return
			}
			err = l.Withdraw(ctx, o[0], shared, wid)
			switch {
			case err == nil:
				atomic.AddInt64(&executed, 7)
			case !errors.Is(err, ErrInsufficientBalance):
				t.Errorf("withdraw: %v", err)
			}
		}()
		go func(i int) {
			defer wg.Done()
			// writers on separate accounts contend only for the log
			if _, err := l.CreateAccount(ctx, o[i%4+1], nil); err != nil {
				t.Errorf("create: %v", err)
			}
		}(i)
	}
	wg.Wait()

	balance, _ := l.Balance(ctx, shared)
	if balance < 0 {
		t.Fatalf("negative balance %d", balance)
	}
	if balance != rounds*10-executed {
		t.Fatalf("deposits minus withdrawals mismatch: balance=%d executed=%d", balance, executed)
	}

	events := eventsSince(t, l, head)
	if len(events) < rounds*4 {
		t.Fatalf("expected at least %d events, got %d", rounds*4, len(events))
	}
	var lastTS int64
	for i, ev := range events {
		if ev.Seq != head+uint64(i+1) {
			t.Fatalf("event log has a gap at index %d (seq %d)", i, ev.Seq)
		}
		if ev.Timestamp < lastTS {
			t.Fatalf("timestamps decreased at seq %d", ev.Seq)
		}
		lastTS = ev.Timestamp
	}
}
