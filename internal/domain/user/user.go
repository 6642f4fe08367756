package user

import (
	"context"

	"github.com/go-faster/errors"
)

// ErrNotFound is returned when a requested user does not exist.
var ErrNotFound = errors.New("user not found")

// Address is a postal address owned by a User. Orders copy it by value.
type Address struct {
	ID        string
	Street    string
	City      string
	State     string
	ZipCode   string
	Country   string
	IsDefault bool
}

// User is the account placing orders, with its address book.
type User struct {
	ID        string
	Email     string
	Name      string
	Addresses []Address
}

// DefaultAddress returns the address flagged as default, if any.
func (u User) DefaultAddress() (Address, bool) {
	for _, a := range u.Addresses {
		if a.IsDefault {
			return a, true
		}
	}
	return Address{}, false
}

// AddressByID returns the user's address with the given identifier.
func (u User) AddressByID(id string) (Address, bool) {
	for _, a := range u.Addresses {
		if a.ID == id {
			return a, true
		}
	}
	return Address{}, false
}

// Repository defines read operations for users.
type Repository interface {
	FindByID(ctx context.Context, id string) (*User, error)
}
