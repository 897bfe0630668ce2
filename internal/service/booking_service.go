package service

import (
	"context"
	"strings"

	"carrental/internal/availability"
	"carrental/internal/domain"
	"carrental/internal/events"
	"carrental/internal/lock"
	"carrental/internal/logging"
	"carrental/internal/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type BookingService struct {
	bookings domain.BookingRepository
	cars     domain.CarRepository
	users    domain.UserRepository
	resolver domain.AvailabilityResolver
	ledger   domain.LedgerSettler
	locker   domain.Locker
	eventBus domain.EventPublisher
	logger   *zerolog.Logger
}

func NewBookingService(
	bookings domain.BookingRepository,
	cars domain.CarRepository,
	users domain.UserRepository,
	resolver domain.AvailabilityResolver,
	ledger domain.LedgerSettler,
	locker domain.Locker,
	eventBus domain.EventPublisher,
	logger *zerolog.Logger,
) *BookingService {
	if locker == nil {
		locker = lock.NewMemoryLocker()
	}
	return &BookingService{
		bookings: bookings,
		cars:     cars,
		users:    users,
		resolver: resolver,
		ledger:   ledger,
		locker:   locker,
		eventBus: eventBus,
		logger:   logging.Component(logger, "booking_service"),
	}
}

// CreateBooking validates the trip and stores it as pending. The car must be
// active and free for the whole window.
func (s *BookingService) CreateBooking(ctx context.Context, booking *models.Booking) error {
	if booking.CarID == "" || booking.UserID == "" {
		return domain.InvalidInputf("car and user are required")
	}
	if booking.TripStart.Date.IsZero() || booking.TripEnd.Date.IsZero() {
		return domain.InvalidInputf("trip start and end dates are required")
	}
	if !booking.Pricing.FinalPrice.IsPositive() {
		return domain.InvalidInputf("final price must be positive")
	}
	if !availability.BookingWindow(booking).Valid() {
		return domain.InvalidInputf("trip end must be after trip start")
	}

	if _, err := s.users.GetUser(ctx, booking.UserID); err != nil {
		return domain.StoreFailure("get renter", err)
	}
	car, err := s.cars.GetCar(ctx, booking.CarID)
	if err != nil {
		return domain.StoreFailure("get car", err)
	}
	if !car.IsActive {
		return domain.InvalidInputf("car %s is not available for rent", car.ID)
	}

	unlock, err := s.locker.Lock(ctx, lock.CarKey(booking.CarID))
	if err != nil {
		return domain.StoreFailure("lock car", err)
	}
	defer unlock()

	free, err := s.carFree(ctx, booking)
	if err != nil {
		return err
	}
	if !free {
		return domain.Conflictf("car %s is already booked for this period", booking.CarID)
	}

	booking.ID = uuid.NewString()
	booking.Status = models.StatusPending
	booking.CancellationReason = ""
	if err := s.bookings.CreateBooking(ctx, booking); err != nil {
		return domain.StoreFailure("create booking", err)
	}

	s.logger.Info().Str("booking_id", booking.ID).Str("car_id", booking.CarID).Str("user_id", booking.UserID).
		Msg("Booking created")
	s.publishEvent(events.EventBookingCreated, booking, "", booking.UserID)
	return nil
}

func (s *BookingService) carFree(ctx context.Context, booking *models.Booking) (bool, error) {
	excluded, err := s.resolver.UnavailableCars(ctx, models.SearchWindow{
		StartDate: booking.TripStart.Date,
		StartTime: booking.TripStart.Time,
		EndDate:   booking.TripEnd.Date,
		EndTime:   booking.TripEnd.Time,
	})
	if err != nil {
		return false, err
	}
	_, busy := excluded[booking.CarID]
	return !busy, nil
}

// UpdateStatus moves a booking along its lifecycle on behalf of an admin.
// Cancellation goes through CancelBooking so the ledger is settled.
func (s *BookingService) UpdateStatus(ctx context.Context, bookingID, status, actorID string) (*models.Booking, error) {
	if status == models.StatusCancelled {
		return s.CancelBooking(ctx, bookingID, actorID, "")
	}

	actor, err := s.users.GetUser(ctx, actorID)
	if err != nil {
		return nil, domain.StoreFailure("get actor", err)
	}
	if !actor.IsAdmin() {
		return nil, domain.InvalidInputf("only an admin can change booking status")
	}

	booking, err := s.bookings.GetBooking(ctx, bookingID)
	if err != nil {
		return nil, domain.StoreFailure("get booking", err)
	}
	if !models.CanTransition(booking.Status, status) {
		return nil, domain.InvalidInputf("cannot move booking from %s to %s", booking.Status, status)
	}

	if err := s.bookings.UpdateBookingStatusWithVersion(ctx, booking.ID, booking.Version, status, ""); err != nil {
		return nil, domain.StoreFailure("update booking status", err)
	}

	prev := booking.Status
	booking.Status = status
	booking.Version++
	s.logger.Info().Str("booking_id", booking.ID).Str("from", prev).Str("to", status).Msg("Booking status changed")
	s.publishEvent(events.EventBookingStatusChanged, booking, prev, actorID)
	return booking, nil
}

// CancelBooking cancels a live booking for its renter or an admin, then
// reverses the booking's point allocations. The reversal cannot fail the
// cancellation.
func (s *BookingService) CancelBooking(ctx context.Context, bookingID, actorID, reason string) (*models.Booking, error) {
	booking, err := s.bookings.GetBooking(ctx, bookingID)
	if err != nil {
		return nil, domain.StoreFailure("get booking", err)
	}
	actor, err := s.users.GetUser(ctx, actorID)
	if err != nil {
		return nil, domain.StoreFailure("get actor", err)
	}
	if actor.ID != booking.UserID && !actor.IsAdmin() {
		return nil, domain.InvalidInputf("only the renter or an admin can cancel this booking")
	}
	if !models.CanTransition(booking.Status, models.StatusCancelled) {
		return nil, domain.InvalidInputf("cannot cancel a %s booking", booking.Status)
	}

	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = models.DefaultCancellationReason
	}

	if err := s.bookings.UpdateBookingStatusWithVersion(ctx, booking.ID, booking.Version, models.StatusCancelled, reason); err != nil {
		return nil, domain.StoreFailure("cancel booking", err)
	}

	prev := booking.Status
	booking.Status = models.StatusCancelled
	booking.CancellationReason = reason
	booking.Version++
	s.logger.Info().Str("booking_id", booking.ID).Str("actor_id", actorID).Msg("Booking cancelled")

	if s.ledger != nil {
		s.ledger.SettleCancellation(ctx, booking.ID, reason)
	}
	s.publishEvent(events.EventBookingCancelled, booking, prev, actorID)
	return booking, nil
}

// SearchCars lists active cars, dropping those committed during the window.
// Without both dates nothing is filtered.
func (s *BookingService) SearchCars(ctx context.Context, window models.SearchWindow) ([]*models.Car, error) {
	cars, err := s.cars.GetActiveCars(ctx)
	if err != nil {
		return nil, domain.StoreFailure("list cars", err)
	}
	if window.StartDate.IsZero() || window.EndDate.IsZero() {
		return cars, nil
	}

	excluded, err := s.resolver.UnavailableCars(ctx, window)
	if err != nil {
		return nil, err
	}
	return availability.Filter(cars, excluded), nil
}

func (s *BookingService) GetBooking(ctx context.Context, id string) (*models.Booking, error) {
	b, err := s.bookings.GetBooking(ctx, id)
	if err != nil {
		return nil, domain.StoreFailure("get booking", err)
	}
	return b, nil
}

func (s *BookingService) GetUserBookings(ctx context.Context, userID string) ([]*models.Booking, error) {
	list, err := s.bookings.GetUserBookings(ctx, userID)
	if err != nil {
		return nil, domain.StoreFailure("list user bookings", err)
	}
	return list, nil
}

func (s *BookingService) publishEvent(eventType string, b *models.Booking, prevStatus, changedBy string) {
	if s.eventBus == nil {
		return
	}

	w := availability.BookingWindow(b)
	payload := events.BookingEventPayload{
		BookingID:  b.ID,
		CarID:      b.CarID,
		UserID:     b.UserID,
		Status:     b.Status,
		PrevStatus: prevStatus,
		StartAt:    w.Start,
		EndAt:      w.End,
		FinalPrice: b.Pricing.FinalPrice,
		Reason:     b.CancellationReason,
		ChangedBy:  changedBy,
	}

	if err := s.eventBus.PublishJSON(eventType, payload); err != nil {
		s.logger.Error().Err(err).Str("event_type", eventType).Str("booking_id", b.ID).Msg("publish event error")
	}
}
