package account

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/congo-pay/jointaccount/internal/identity"
	"github.com/congo-pay/jointaccount/internal/ledger"
)

// ErrUnknownOwner is returned when a co-owner is not a registered identity.
var ErrUnknownOwner = fmt.Errorf("%w: owner is not registered", ledger.ErrInvalidOwnerSet)

// Service exposes joint account operations backed by the ledger.
type Service struct {
	ledger ledger.Ledger
	users  identity.Repository
}

// NewService builds an account service. A nil users repository skips the
// registration check on co-owners.
func NewService(l ledger.Ledger, users identity.Repository) *Service {
	return &Service{ledger: l, users: users}
}

// Summary describes an account as returned to API callers.
type Summary struct {
	ID     uint64
	Owners []ledger.Identity
}

// Create opens a joint account owned by caller and the given co-owners.
func (s *Service) Create(ctx context.Context, caller ledger.Identity, coOwners []string) (Summary, error) {
	others := make([]ledger.Identity, 0, len(coOwners))
	for _, raw := range coOwners {
		id := ledger.Identity(strings.TrimSpace(raw))
		if err := s.ensureRegistered(ctx, id); err != nil {
			return Summary{}, err
		}
		others = append(others, id)
	}

	id, err := s.ledger.CreateAccount(ctx, caller, others)
	if err != nil {
		return Summary{}, err
	}
	owners, err := s.ledger.Owners(ctx, id)
	if err != nil {
		return Summary{}, err
	}
	return Summary{ID: id, Owners: owners}, nil
}

func (s *Service) ensureRegistered(ctx context.Context, id ledger.Identity) error {
	if s.users == nil || id == "" {
		// Empty identities are rejected by the ledger itself.
		return nil
	}
	_, err := s.users.FindByID(ctx, string(id))
	if errors.Is(err, identity.ErrUserNotFound) {
		return fmt.Errorf("%w (%s)", ErrUnknownOwner, id)
	}
	return err
}

// List returns the accounts the caller co-owns in creation order.
func (s *Service) List(ctx context.Context, caller ledger.Identity) ([]uint64, error) {
	return s.ledger.Accounts(ctx, caller)
}

// Owners returns the owner list of an account.
func (s *Service) Owners(ctx context.Context, accountID uint64) ([]ledger.Identity, error) {
	return s.ledger.Owners(ctx, accountID)
}

// Balance returns the current balance of an account.
func (s *Service) Balance(ctx context.Context, accountID uint64) (int64, error) {
	return s.ledger.Balance(ctx, accountID)
}

// Deposit credits an account. Any authenticated caller may deposit.
func (s *Service) Deposit(ctx context.Context, caller ledger.Identity, accountID uint64, amount int64) error {
	return s.ledger.Deposit(ctx, caller, accountID, amount)
}
