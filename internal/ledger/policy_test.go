package ledger

import (
	"errors"
	"testing"
)

func TestPolicyThreshold(t *testing.T) {
	unanimous := DefaultPolicy()
	majority := Policy{MaxOwners: 4, Approval: ApprovalMajority}

	cases := []struct {
		owners          int
		unanimous, majo int
	}{
		{owners: 0, unanimous: 1, majo: 1},
		{owners: 1, unanimous: 1, majo: 1},
		{owners: 2, unanimous: 2, majo: 2},
		{owners: 3, unanimous: 3, majo: 2},
		{owners: 4, unanimous: 4, majo: 3},
	}
	for _, tc := range cases {
		if got := unanimous.Threshold(tc.owners); got != tc.unanimous {
			t.Fatalf("unanimous(%d) = %d, want %d", tc.owners, got, tc.unanimous)
		}
		if got := majority.Threshold(tc.owners); got != tc.majo {
			t.Fatalf("majority(%d) = %d, want %d", tc.owners, got, tc.majo)
		}
	}
}

func TestParseApprovalPolicy(t *testing.T) {
	if p, err := ParseApprovalPolicy(""); err != nil || p != ApprovalUnanimous {
		t.Fatalf("empty: got %q, %v", p, err)
	}
	if p, err := ParseApprovalPolicy(" Majority "); err != nil || p != ApprovalMajority {
		t.Fatalf("majority: got %q, %v", p, err)
	}
	if _, err := ParseApprovalPolicy("any-two"); err == nil {
		t.Fatal("expected error for unknown policy")
	}
}

func TestPolicyOwnerSet(t *testing.T) {
	p := Policy{MaxOwners: 2}.normalized()

	owners, err := p.ownerSet(o1, []Identity{o2})
	if err != nil {
		t.Fatalf("owner set: %v", err)
	}
	if len(owners) != 2 || owners[0] != o1 || owners[1] != o2 {
		t.Fatalf("unexpected owners %v", owners)
	}
	if _, err := p.ownerSet(o1, []Identity{o2, o3}); !errors.Is(err, ErrInvalidOwnerSet) {
		t.Fatalf("expected cap error, got %v", err)
	}
	if p.Approval != ApprovalUnanimous {
		t.Fatalf("expected unanimous default, got %q", p.Approval)
	}
}
