package errs

import (
	"errors"
)

var (
	ErrNotFound                 = errors.New("not found")
	ErrOutOfStock               = errors.New("no available copies")
	ErrAlreadyReturned          = errors.New("loan already returned")
	ErrAlreadyBorrowed          = errors.New("user already borrowed this book")
	ErrDuplicateReservation     = errors.New("user already has a pending reservation for this book")
	ErrReservationLimitExceeded = errors.New("pending reservation limit reached")
	ErrHasActiveLoans           = errors.New("book has active loans")
	ErrIsbnConflict             = errors.New("isbn already exists")
	ErrInventoryInconsistent    = errors.New("inventory counters inconsistent")
	ErrConcurrencyConflict      = errors.New("concurrent update, retry later")

	ErrForbidden       = errors.New("operation not permitted for this role")
	ErrNotPending      = errors.New("reservation is not pending")
	ErrInvalidArgument = errors.New("invalid argument")
	ErrUserID          = errors.New("user id is required")
)

type ErrorResponse struct {
	Message string `json:"message"`
}
