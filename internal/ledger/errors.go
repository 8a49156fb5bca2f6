package ledger

import "errors"

var (
	// ErrInvalidOwnerSet occurs when the owner list repeats an identity, lists the
	// caller, contains an empty identity or exceeds the owner cap.
	ErrInvalidOwnerSet = errors.New("invalid owner set")

	// ErrAccountNotFound indicates the account id was never assigned.
	ErrAccountNotFound = errors.New("account not found")

	// ErrRequestNotFound indicates the withdrawal id was never assigned.
	ErrRequestNotFound = errors.New("withdraw request not found")

	// ErrRequestAccountMismatch indicates the withdrawal belongs to another account.
	ErrRequestAccountMismatch = errors.New("withdraw request belongs to another account")

	// ErrUnauthorized indicates the caller may not act on the account or request.
	ErrUnauthorized = errors.New("caller is not authorized")

	// ErrInvalidAmount is returned for zero or negative amounts and balance overflow.
	ErrInvalidAmount = errors.New("invalid amount")

	// ErrInsufficientBalance occurs when the account cannot cover an executed withdrawal.
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrAlreadyExecuted indicates the withdrawal already moved funds.
	ErrAlreadyExecuted = errors.New("withdraw request already executed")

	// ErrInsufficientApprovals indicates the approval threshold is not met yet.
	ErrInsufficientApprovals = errors.New("insufficient approvals")

	// ErrAlreadyApproved is returned when an owner approves the same request twice.
	ErrAlreadyApproved = errors.New("withdraw request already approved by caller")

	// ErrRequestCancelled indicates the withdrawal was cancelled by its requester.
	ErrRequestCancelled = errors.New("withdraw request cancelled")
)
