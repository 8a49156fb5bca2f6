package identity

import (
	"errors"
	"time"
)

var (
	// ErrUserNotFound is returned when no user matches the lookup key.
	ErrUserNotFound = errors.New("user not found")
	// ErrUserExists is returned when the phone number is already registered.
	ErrUserExists = errors.New("user exists")
)

// User represents a registered party that can co-own joint accounts.
type User struct {
	ID           string
	Phone        string
	PINHash      []byte
	DeviceID     string
	TokenVersion int
	CreatedAt    time.Time
	LastLogin    time.Time
}

// Credentials request structure.
type Credentials struct {
	Phone    string
	PIN      string
	DeviceID string
}
