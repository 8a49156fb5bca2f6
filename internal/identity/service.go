package identity

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

var (
	// ErrWeakPIN rejects PINs shorter than four digits.
	ErrWeakPIN = errors.New("PIN must be at least 4 digits")
	// ErrPhoneRequired rejects registrations without a phone number.
	ErrPhoneRequired = errors.New("phone is required")
	// ErrInvalidCredentials hides whether the phone or the PIN was wrong.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrDeviceRequired is returned on first login without a device identifier.
	ErrDeviceRequired = errors.New("device binding required")
	// ErrDeviceMismatch is returned when a login comes from another device.
	ErrDeviceMismatch = errors.New("device mismatch")
)

// Service manages identity lifecycle.
type Service struct {
	repo Repository
	now  func() time.Time
}

// NewService creates a new identity service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: time.Now}
}

// Register creates a new user and stores a hashed PIN.
func (s *Service) Register(ctx context.Context, creds Credentials) (User, error) {
	creds.Phone = strings.TrimSpace(creds.Phone)
	if creds.Phone == "" {
		return User{}, ErrPhoneRequired
	}
	if len(creds.PIN) < 4 {
		return User{}, ErrWeakPIN
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(creds.PIN), bcrypt.DefaultCost)
	if err != nil {
		return User{}, err
	}

	user := User{
		ID:        uuid.NewString(),
		Phone:     creds.Phone,
		PINHash:   hash,
		DeviceID:  creds.DeviceID,
		CreatedAt: s.now().UTC(),
	}
	if err := s.repo.Create(ctx, user); err != nil {
		return User{}, err
	}
	return user, nil
}

// Authenticate verifies credentials and device binding.
func (s *Service) Authenticate(ctx context.Context, creds Credentials) (User, error) {
	user, err := s.repo.FindByPhone(ctx, strings.TrimSpace(creds.Phone))
	if errors.Is(err, ErrUserNotFound) {
		return User{}, ErrInvalidCredentials
	}
	if err != nil {
		return User{}, err
	}

	if err := bcrypt.CompareHashAndPassword(user.PINHash, []byte(creds.PIN)); err != nil {
		return User{}, ErrInvalidCredentials
	}

	if user.DeviceID == "" {
		if creds.DeviceID == "" {
			return User{}, ErrDeviceRequired
		}
		if err := s.repo.UpdateDevice(ctx, user.ID, creds.DeviceID); err != nil {
			return User{}, err
		}
		user.DeviceID = creds.DeviceID
	} else if creds.DeviceID != "" && user.DeviceID != creds.DeviceID {
		return User{}, ErrDeviceMismatch
	}

	now := s.now().UTC()
	if err := s.repo.TouchLogin(ctx, user.ID, now); err != nil {
		return User{}, err
	}
	user.LastLogin = now
	return user, nil
}

// Lookup returns the user registered under id.
func (s *Service) Lookup(ctx context.Context, id string) (User, error) {
	return s.repo.FindByID(ctx, id)
}
