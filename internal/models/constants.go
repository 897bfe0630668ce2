package models

const (
	StatusPending   = "pending"
	StatusConfirmed = "confirmed"
	StatusActive    = "active"
	StatusCompleted = "completed"
	StatusCancelled = "cancelled"
	StatusRejected  = "rejected"
)

const (
	RequestPending  = "pending"
	RequestAccepted = "accepted"
	RequestRejected = "rejected"
)

const (
	PointsActive    = "active"
	PointsReversed  = "reversed"
	PointsCancelled = "cancelled"
)

const (
	RoleRenter = "renter"
	RoleAdmin  = "admin"
)

const (
	LedgerTaskAllocate = "allocate"
	LedgerTaskReverse  = "reverse"

	TaskStatusPending   = "pending"
	TaskStatusRetry     = "retry"
	TaskStatusCompleted = "completed"
	TaskStatusFailed    = "failed"
)

const (
	// DefaultRejectionReason is stored when a guarantor declines without a reason.
	DefaultRejectionReason = "Guarantor declined the request"

	// DefaultCancellationReason is stamped on reversed ledger entries.
	DefaultCancellationReason = "Booking cancelled"

	// MaxGuarantorsPerBooking bounds totalGuarantors on ledger entries.
	MaxGuarantorsPerBooking = 5

	// DefaultPoolRate is the share of the final price distributed to guarantors.
	DefaultPoolRate = "0.10"
)

// LiveStatuses are the booking statuses that hold a car.
var LiveStatuses = []string{StatusPending, StatusConfirmed, StatusActive}

func IsLiveStatus(status string) bool {
	for _, s := range LiveStatuses {
		if s == status {
			return true
		}
	}
	return false
}

// bookingTransitions lists the allowed status changes of a booking.
var bookingTransitions = map[string][]string{
	StatusPending:   {StatusConfirmed, StatusRejected, StatusCancelled},
	StatusConfirmed: {StatusActive, StatusCancelled},
	StatusActive:    {StatusCompleted, StatusCancelled},
}

func CanTransition(from, to string) bool {
	for _, s := range bookingTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}
