package withdrawal

import (
	"context"
	"log/slog"

	"github.com/congo-pay/jointaccount/internal/ledger"
)

// Service drives the withdraw request lifecycle on a joint account.
type Service struct {
	ledger ledger.Ledger
	logger *slog.Logger
}

// NewService constructs a withdrawal service.
func NewService(l ledger.Ledger, logger *slog.Logger) *Service {
	return &Service{ledger: l, logger: logger}
}

// Request opens a withdraw request on behalf of an owner.
func (s *Service) Request(ctx context.Context, caller ledger.Identity, accountID uint64, amount int64) (View, error) {
	id, err := s.ledger.RequestWithdrawal(ctx, caller, accountID, amount)
	if err != nil {
		return View{}, err
	}
	s.logger.Info("withdraw requested", slog.Uint64("account_id", accountID), slog.Uint64("withdraw_id", id), slog.Int64("amount", amount))
	return s.committed(ctx, View{
		ID:        id,
		AccountID: accountID,
		Requester: caller,
		Amount:    amount,
		Approvals: []ledger.Identity{},
		Status:    ledger.WithdrawStatusPending,
	}), nil
}

// Approve records the caller's approval.
func (s *Service) Approve(ctx context.Context, caller ledger.Identity, accountID, withdrawID uint64) (View, error) {
	if err := s.ledger.ApproveWithdrawal(ctx, caller, accountID, withdrawID); err != nil {
		return View{}, err
	}
	return s.committed(ctx, View{ID: withdrawID, AccountID: accountID}), nil
}

// Execute debits the account once enough owners approved.
func (s *Service) Execute(ctx context.Context, caller ledger.Identity, accountID, withdrawID uint64) (View, error) {
	if err := s.ledger.Withdraw(ctx, caller, accountID, withdrawID); err != nil {
		return View{}, err
	}
	s.logger.Info("withdraw executed", slog.Uint64("account_id", accountID), slog.Uint64("withdraw_id", withdrawID))
	return s.committed(ctx, View{ID: withdrawID, AccountID: accountID, Status: ledger.WithdrawStatusExecuted}), nil
}

// Cancel closes a pending request. Only the requester may cancel.
func (s *Service) Cancel(ctx context.Context, caller ledger.Identity, accountID, withdrawID uint64) (View, error) {
	if err := s.ledger.CancelWithdrawal(ctx, caller, accountID, withdrawID); err != nil {
		return View{}, err
	}
	return s.committed(ctx, View{ID: withdrawID, AccountID: accountID, Status: ledger.WithdrawStatusCancelled}), nil
}

// Get returns the current state of a withdraw request.
func (s *Service) Get(ctx context.Context, accountID, withdrawID uint64) (View, error) {
	req, err := s.ledger.WithdrawRequest(ctx, accountID, withdrawID)
	if err != nil {
		return View{}, err
	}
	return toView(req), nil
}

// committed reloads a request after a successful mutation. The mutation is
// already durable, so a failed reload falls back to the known fields instead
// of reporting an error that would invite a retry.
func (s *Service) committed(ctx context.Context, known View) View {
	view, err := s.Get(ctx, known.AccountID, known.ID)
	if err != nil {
		s.logger.Warn("reload withdraw request", slog.Uint64("withdraw_id", known.ID), slog.Any("error", err))
		return known
	}
	return view
}

// Approvals returns how many owners approved the request.
func (s *Service) Approvals(ctx context.Context, accountID, withdrawID uint64) (int, error) {
	return s.ledger.Approvals(ctx, accountID, withdrawID)
}
