package services

import (
	"errors"

	"github.com/orderledger/apiserver/internal/store"
)

func isNotFound(err error) bool {
	return errors.Is(err, store.ErrNotFound)
}
