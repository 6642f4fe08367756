package user

import (
	"fmt"

	"github.com/go-faster/errors"
)

// ErrNoShippingAddress is returned when no address was requested and the user
// has no default address.
var ErrNoShippingAddress = errors.New("no shipping address available")

// AddressNotFoundError indicates that an explicitly requested address does
// not belong to the user.
type AddressNotFoundError struct {
	AddressID string
}

func (e *AddressNotFoundError) Error() string {
	return fmt.Sprintf("address %s not found for user", e.AddressID)
}

// ResolveAddress picks the shipping address for an order: the requested one
// when requestedID is set, otherwise the user's default.
func ResolveAddress(u User, requestedID string) (Address, error) {
	if requestedID != "" {
		a, ok := u.AddressByID(requestedID)
		if !ok {
			return Address{}, &AddressNotFoundError{AddressID: requestedID}
		}
		return a, nil
	}

	a, ok := u.DefaultAddress()
	if !ok {
		return Address{}, ErrNoShippingAddress
	}
	return a, nil
}
