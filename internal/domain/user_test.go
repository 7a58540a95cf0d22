package domain

import (
	"testing"

	"github.com/google/uuid"
)

func TestNewUser(t *testing.T) {
	t.Parallel()
	id := uuid.New()

	user, err := NewUser(id, "owner@example.com")
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if user.ID != id {
		t.Errorf("Expected ID %s, got %s", id, user.ID)
	}
	if user.CreditBalance != 0 {
		t.Errorf("Expected zero balance, got %d", user.CreditBalance)
	}
	if user.CreatedAt.IsZero() || user.UpdatedAt.IsZero() {
		t.Error("Expected timestamps to be set")
	}

	if _, err := NewUser(uuid.Nil, ""); err != ErrEmptyUserID {
		t.Errorf("Expected error %v, got %v", ErrEmptyUserID, err)
	}

	user.CreditBalance = -1
	if err := user.Validate(); err != ErrNegativeBalance {
		t.Errorf("Expected error %v, got %v", ErrNegativeBalance, err)
	}
}
