package booking

import (
	"errors"
	"time"
)

// ResponseWindow is how long a provider has to share access before a
// confirmed booking is auto-cancelled. Fixed, not per-booking.
const ResponseWindow = 15 * time.Minute

// DefaultSweepInterval is how often the expiry sweeper scans for active
// bookings whose rental window has elapsed.
const DefaultSweepInterval = time.Hour

// MaxRentalDays bounds a booking's duration. Also keeps
// price_per_day * days well inside int64.
const MaxRentalDays = 365

// timeoutCancellationReason is stamped on bookings cancelled by the
// scheduler.
const timeoutCancellationReason = "provider did not share access within the response window"

var (
	ErrInvalidDuration = errors.New("duration must be between 1 and 365 days")
	ErrOwnListing      = errors.New("cannot book own listing")
	ErrListingInactive = errors.New("listing is not active")

	// ErrInvalidTransition means the requested transition is not legal from
	// the booking's current status. Callers that lost a benign race (timer
	// vs. provider response, double expiry) see more specific errors or
	// silent no-ops instead.
	ErrInvalidTransition = errors.New("invalid booking transition")

	// ErrAlreadyCancelled is returned to a provider who responds after the
	// response window already cancelled the booking.
	ErrAlreadyCancelled = errors.New("booking already cancelled")

	ErrNotProvider    = errors.New("caller is not the booking's provider")
	ErrNotParticipant = errors.New("caller is not a participant of the booking")
)
