package reservation

import "errors"

var (
	// ErrSlotConflict means another active appointment overlaps the requested time.
	ErrSlotConflict = errors.New("slot conflict")
	// ErrTokenNotFound means no appointment matches the confirmation token.
	ErrTokenNotFound = errors.New("confirmation token not found")
	// ErrAlreadyConfirmed means the token's appointment was confirmed earlier.
	ErrAlreadyConfirmed = errors.New("appointment already confirmed")
	// ErrConfirmationExpired means the hold window lapsed before confirmation.
	ErrConfirmationExpired = errors.New("confirmation window expired")
	// ErrNotFound means the appointment does not exist for the tenant.
	ErrNotFound = errors.New("appointment not found")
	// ErrInvalidTransition means the requested status change is not allowed
	// from the appointment's current status.
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrCancellationWindowClosed means the appointment starts too soon for a
	// client-side cancellation.
	ErrCancellationWindowClosed = errors.New("cancellation window closed")
	// ErrInvalidDateTime means the requested start is unparseable, in the
	// past, or outside the tenant's working hours.
	ErrInvalidDateTime = errors.New("invalid date or time")
)
