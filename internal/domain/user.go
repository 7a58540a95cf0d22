package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Common validation errors
var (
	ErrEmptyUserID     = errors.New("user ID cannot be empty")
	ErrNegativeBalance = errors.New("credit balance cannot be negative")
)

// User is the owner record that carries the credit balance. The balance
// always equals the running sum of the owner's CreditTransaction amounts;
// it is written in the same transaction as each ledger row.
type User struct {
	ID            uuid.UUID `json:"id"`
	Email         string    `json:"email,omitempty"`
	CreditBalance int       `json:"credit_balance"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// NewUser creates an owner record with a zero balance. Credits are only
// ever added through the ledger.
func NewUser(id uuid.UUID, email string) (*User, error) {
	now := time.Now().UTC()
	user := &User{
		ID:        id,
		Email:     email,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := user.Validate(); err != nil {
		return nil, err
	}
	return user, nil
}

// Validate checks if the User has valid data.
func (u *User) Validate() error {
	if u.ID == uuid.Nil {
		return ErrEmptyUserID
	}
	if u.CreditBalance < 0 {
		return ErrNegativeBalance
	}
	return nil
}
