package store

import (
	"errors"

	"github.com/lib/pq"
)

// ErrNotFound is returned when a record does not exist or does not belong
// to the calling user.
var ErrNotFound = errors.New("not found")

// ErrUsernameTaken is returned when a username is already registered.
var ErrUsernameTaken = errors.New("username already taken")

// ErrDuplicateOrderNumber is returned when a user already has an order with
// the same order number in the same calendar month.
var ErrDuplicateOrderNumber = errors.New("duplicate order number for month")

const pqUniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == pqUniqueViolation
}
