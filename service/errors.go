package service

import "errors"

// Sentinel errors. An insufficient balance is not an error — it is the OK=false
// arm of ConsumeResult/ReserveResult — so only genuinely exceptional states
// are represented here. Store/transport failures are returned wrapped.
var (
	// ErrAccountNotFound is returned when an operation targets an account
	// that was never initialized via GetOrInit.
	ErrAccountNotFound = errors.New("credits: account not found")

	// ErrReservationConfirmed is returned by Cancel when the reservation was
	// already confirmed. Confirmed debits are final and must not be refunded.
	ErrReservationConfirmed = errors.New("credits: reservation already confirmed")
)
