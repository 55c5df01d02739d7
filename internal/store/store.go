package store

import (
	"errors"
	"time"
)

// Status describes whether an account may be selected for login.
type Status string

const (
	StatusActive Status = "active"
	StatusBanned Status = "banned"
)

// Account is a reusable automation identity.
type Account struct {
	ID         string    `json:"id"`         // unique login key (email-equivalent)
	Credential string    `json:"credential"` // opaque secret; never logged in full
	Status     Status    `json:"status"`
	CreatedAt  time.Time `json:"created_at"`
}

// ErrNotFound is returned when an account id does not exist in the store.
var ErrNotFound = errors.New("account not found")

// ErrDuplicate is returned when creating an account whose id already exists.
var ErrDuplicate = errors.New("account already exists")

// Store defines the interface for durable account storage.
// Status is mutated only through UpdateStatus; selection logic never writes.
type Store interface {
	List() ([]Account, error)
	Get(id string) (Account, error)
	Create(id, credential string) (Account, error)
	UpdateStatus(id string, status Status) error
	// Delete removes the account and, where the backend owns the action
	// history too, its history in the same logical operation.
	Delete(id string) error
	Close() error
}
