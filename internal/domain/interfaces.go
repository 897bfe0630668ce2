package domain

import (
	"context"
	"time"

	"carrental/internal/models"

	"github.com/shopspring/decimal"
)

type BookingRepository interface {
	CreateBooking(ctx context.Context, booking *models.Booking) error
	GetBooking(ctx context.Context, id string) (*models.Booking, error)
	UpdateBookingStatusWithVersion(ctx context.Context, id string, version int64, status, reason string) error
	FindLiveBookingsOverlappingDateRange(ctx context.Context, from, to time.Time) ([]*models.Booking, error)
	GetUserBookings(ctx context.Context, userID string) ([]*models.Booking, error)
}

type CarRepository interface {
	GetCar(ctx context.Context, id string) (*models.Car, error)
	GetActiveCars(ctx context.Context) ([]*models.Car, error)
}

type UserRepository interface {
	GetUser(ctx context.Context, id string) (*models.User, error)
}

type GuarantorRequestRepository interface {
	CreateGuarantorRequest(ctx context.Context, req *models.GuarantorRequest) error
	GetGuarantorRequest(ctx context.Context, id string) (*models.GuarantorRequest, error)
	HasPendingGuarantorRequest(ctx context.Context, bookingID, guarantorID string) (bool, error)
	IsGuarantorAccepted(ctx context.Context, bookingID, guarantorID string) (bool, error)
	CountAcceptedGuarantors(ctx context.Context, bookingID string) (int, error)
	UpdateGuarantorRequestStatus(ctx context.Context, id, from, to, reason string) error
	ListGuarantorRequestsByGuarantor(ctx context.Context, guarantorID string) ([]*models.GuarantorRequest, error)
	ListGuarantorRequestsByBooking(ctx context.Context, bookingID string) ([]*models.GuarantorRequest, error)
}

// LedgerTx is the set of reads and writes the ledger performs atomically for one booking.
type LedgerTx interface {
	GetBooking(ctx context.Context, id string) (*models.Booking, error)
	CountAcceptedGuarantors(ctx context.Context, bookingID string) (int, error)
	FindActivePoints(ctx context.Context, bookingID, guarantorID string) (*models.GuarantorPoints, error)
	FindAllActivePoints(ctx context.Context, bookingID string) ([]*models.GuarantorPoints, error)
	InsertPoints(ctx context.Context, entry *models.GuarantorPoints) error
	UpdatePointsAllocation(ctx context.Context, entry *models.GuarantorPoints) error
	MarkPointsReversed(ctx context.Context, id, reason string, at time.Time) error
	// ApplyBalanceDelta adds delta to the user's balance. With floorAtZero the
	// result is clamped at zero; the amount actually applied is returned.
	ApplyBalanceDelta(ctx context.Context, userID string, delta decimal.Decimal, floorAtZero bool) (decimal.Decimal, error)
}

type LedgerStore interface {
	WithinTx(ctx context.Context, fn func(tx LedgerTx) error) error
	CreateLedgerTask(ctx context.Context, task *models.LedgerTask) error
	ListPointsByGuarantor(ctx context.Context, guarantorID string) ([]*models.GuarantorPoints, error)
	GetUser(ctx context.Context, id string) (*models.User, error)
}

type LedgerTaskStore interface {
	CreateLedgerTask(ctx context.Context, task *models.LedgerTask) error
	GetPendingLedgerTasks(ctx context.Context, limit int) ([]models.LedgerTask, error)
	UpdateLedgerTaskStatus(ctx context.Context, id int64, status, errMsg string, nextRetryAt *time.Time) error
}

// Locker serializes work keyed by an identifier across goroutines (and processes
// when backed by redis).
type Locker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

type EventPublisher interface {
	PublishJSON(eventType string, payload interface{}) error
}

type AvailabilityResolver interface {
	UnavailableCars(ctx context.Context, window models.SearchWindow) (map[string]struct{}, error)
}

// LedgerSettler is the best-effort face of the incentive ledger. Its methods
// cannot fail from the caller's point of view.
type LedgerSettler interface {
	SettleAcceptance(ctx context.Context, req *models.GuarantorRequest)
	SettleCancellation(ctx context.Context, bookingID, reason string)
}
