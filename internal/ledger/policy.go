package ledger

import (
	"fmt"
	"strings"
)

// ApprovalPolicy selects how many owners must approve a withdrawal.
type ApprovalPolicy string

const (
	// ApprovalUnanimous requires every owner.
	ApprovalUnanimous ApprovalPolicy = "unanimous"
	// ApprovalMajority requires more than half of the owners.
	ApprovalMajority ApprovalPolicy = "majority"

	// DefaultMaxOwners caps the owner set, creator included.
	DefaultMaxOwners = 4
)

// Policy holds the account rules shared by all backends.
type Policy struct {
	MaxOwners int
	Approval  ApprovalPolicy
}

// DefaultPolicy returns a four owner cap with unanimous approval.
func DefaultPolicy() Policy {
	return Policy{MaxOwners: DefaultMaxOwners, Approval: ApprovalUnanimous}
}

// ParseApprovalPolicy validates a policy name. An empty value selects unanimity.
func ParseApprovalPolicy(v string) (ApprovalPolicy, error) {
	switch ApprovalPolicy(strings.ToLower(strings.TrimSpace(v))) {
	case "", ApprovalUnanimous:
		return ApprovalUnanimous, nil
	case ApprovalMajority:
		return ApprovalMajority, nil
	default:
		return "", fmt.Errorf("unknown approval policy %q", v)
	}
}

func (p Policy) normalized() Policy {
	if p.MaxOwners <= 0 {
		p.MaxOwners = DefaultMaxOwners
	}
	if p.Approval == "" {
		p.Approval = ApprovalUnanimous
	}
	return p
}

// Threshold returns the number of distinct approvals needed to execute a
// withdrawal on an account with the given number of owners. Never below one.
func (p Policy) Threshold(owners int) int {
	if owners < 1 {
		return 1
	}
	if p.Approval == ApprovalMajority {
		return owners/2 + 1
	}
	return owners
}

// ownerSet builds {caller} ∪ others, creator first.
func (p Policy) ownerSet(caller Identity, others []Identity) ([]Identity, error) {
	if caller == "" {
		return nil, ErrUnauthorized
	}
	if len(others)+1 > p.MaxOwners {
		return nil, fmt.Errorf("%w: %d owners exceed the cap of %d", ErrInvalidOwnerSet, len(others)+1, p.MaxOwners)
	}
	owners := make([]Identity, 0, len(others)+1)
	owners = append(owners, caller)
	seen := map[Identity]struct{}{caller: {}}
	for _, owner := range others {
		if owner == "" {
			return nil, fmt.Errorf("%w: empty owner", ErrInvalidOwnerSet)
		}
		if _, dup := seen[owner]; dup {
			return nil, fmt.Errorf("%w: duplicate owner %s", ErrInvalidOwnerSet, owner)
		}
		seen[owner] = struct{}{}
		owners = append(owners, owner)
	}
	return owners, nil
}
