package service

import (
	"context"
	"strings"

	"carrental/internal/domain"
	"carrental/internal/events"
	"carrental/internal/lock"
	"carrental/internal/logging"
	"carrental/internal/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// GuarantorService drives guarantor requests through pending -> accepted or
// rejected and hands acceptances to the ledger.
type GuarantorService struct {
	requests      domain.GuarantorRequestRepository
	bookings      domain.BookingRepository
	users         domain.UserRepository
	ledger        domain.LedgerSettler
	locker        domain.Locker
	eventBus      domain.EventPublisher
	maxGuarantors int
	logger        *zerolog.Logger
}

func NewGuarantorService(
	requests domain.GuarantorRequestRepository,
	bookings domain.BookingRepository,
	users domain.UserRepository,
	ledger domain.LedgerSettler,
	locker domain.Locker,
	eventBus domain.EventPublisher,
	maxGuarantors int,
	logger *zerolog.Logger,
) *GuarantorService {
	if maxGuarantors <= 0 || maxGuarantors > models.MaxGuarantorsPerBooking {
		maxGuarantors = models.MaxGuarantorsPerBooking
	}
	if locker == nil {
		locker = lock.NewMemoryLocker()
	}
	return &GuarantorService{
		requests:      requests,
		bookings:      bookings,
		users:         users,
		ledger:        ledger,
		locker:        locker,
		eventBus:      eventBus,
		maxGuarantors: maxGuarantors,
		logger:        logging.Component(logger, "guarantor_service"),
	}
}

// RequestGuarantor asks guarantorID to vouch for the renter's booking.
func (s *GuarantorService) RequestGuarantor(ctx context.Context, bookingID, renterID, guarantorID string) (*models.GuarantorRequest, error) {
	if bookingID == "" || renterID == "" || guarantorID == "" {
		return nil, domain.InvalidInputf("booking, renter and guarantor are required")
	}

	booking, err := s.bookings.GetBooking(ctx, bookingID)
	if err != nil {
		return nil, domain.StoreFailure("get booking", err)
	}
	if _, err := s.users.GetUser(ctx, renterID); err != nil {
		return nil, domain.StoreFailure("get renter", err)
	}
	if _, err := s.users.GetUser(ctx, guarantorID); err != nil {
		return nil, domain.StoreFailure("get guarantor", err)
	}

	if booking.UserID != renterID {
		return nil, domain.InvalidInputf("booking %s does not belong to the renter", bookingID)
	}
	if guarantorID == renterID {
		return nil, domain.InvalidInputf("a user cannot guarantee their own booking")
	}
	if booking.Status == models.StatusCancelled {
		return nil, domain.InvalidInputf("booking %s is cancelled", bookingID)
	}

	pending, err := s.requests.HasPendingGuarantorRequest(ctx, bookingID, guarantorID)
	if err != nil {
		return nil, domain.StoreFailure("check pending request", err)
	}
	if pending {
		return nil, domain.Conflictf("a pending request already exists for this guarantor")
	}
	accepted, err := s.requests.IsGuarantorAccepted(ctx, bookingID, guarantorID)
	if err != nil {
		return nil, domain.StoreFailure("check accepted request", err)
	}
	if accepted {
		return nil, domain.Conflictf("guarantor already accepted this booking")
	}
	if err := s.checkCapacity(ctx, bookingID); err != nil {
		return nil, err
	}

	req := &models.GuarantorRequest{
		ID:          uuid.NewString(),
		BookingID:   bookingID,
		UserID:      renterID,
		GuarantorID: guarantorID,
		Status:      models.RequestPending,
	}
	if err := s.requests.CreateGuarantorRequest(ctx, req); err != nil {
		return nil, domain.StoreFailure("create guarantor request", err)
	}

	s.logger.Info().Str("request_id", req.ID).Str("booking_id", bookingID).Str("guarantor_id", guarantorID).
		Msg("Guarantor requested")
	s.publishEvent(events.EventGuarantorRequested, req)
	return req, nil
}

// Accept marks the request accepted and settles the ledger. Ledger failures
// are absorbed by the settler; the acceptance stands regardless.
func (s *GuarantorService) Accept(ctx context.Context, requestID, guarantorID string) (*models.GuarantorRequest, error) {
	req, err := s.pendingFor(ctx, requestID, guarantorID)
	if err != nil {
		return nil, err
	}

	if err := s.acceptUnderLock(ctx, req); err != nil {
		return nil, err
	}
	req.Status = models.RequestAccepted

	s.logger.Info().Str("request_id", req.ID).Str("booking_id", req.BookingID).Str("guarantor_id", req.GuarantorID).
		Msg("Guarantor accepted")
	if s.ledger != nil {
		s.ledger.SettleAcceptance(ctx, req)
	}
	s.publishEvent(events.EventGuarantorAccepted, req)
	return req, nil
}

// acceptUnderLock holds the booking lock across the capacity check and the
// status update. It is released before settling because the ledger takes the
// same key.
func (s *GuarantorService) acceptUnderLock(ctx context.Context, req *models.GuarantorRequest) error {
	unlock, err := s.locker.Lock(ctx, lock.BookingKey(req.BookingID))
	if err != nil {
		return domain.StoreFailure("lock booking", err)
	}
	defer unlock()

	booking, err := s.bookings.GetBooking(ctx, req.BookingID)
	if err != nil {
		return domain.StoreFailure("get booking", err)
	}
	if booking.Status == models.StatusCancelled {
		return domain.InvalidInputf("booking %s is cancelled", booking.ID)
	}
	if err := s.checkCapacity(ctx, booking.ID); err != nil {
		return err
	}

	if err := s.requests.UpdateGuarantorRequestStatus(ctx, req.ID, models.RequestPending, models.RequestAccepted, ""); err != nil {
		return domain.StoreFailure("accept guarantor request", err)
	}
	return nil
}

// Reject declines the request. An empty reason gets the default message.
func (s *GuarantorService) Reject(ctx context.Context, requestID, guarantorID, reason string) (*models.GuarantorRequest, error) {
	req, err := s.pendingFor(ctx, requestID, guarantorID)
	if err != nil {
		return nil, err
	}

	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = models.DefaultRejectionReason
	}
	if err := s.requests.UpdateGuarantorRequestStatus(ctx, req.ID, models.RequestPending, models.RequestRejected, reason); err != nil {
		return nil, domain.StoreFailure("reject guarantor request", err)
	}
	req.Status = models.RequestRejected
	req.RejectionReason = reason

	s.logger.Info().Str("request_id", req.ID).Str("guarantor_id", req.GuarantorID).Msg("Guarantor rejected")
	s.publishEvent(events.EventGuarantorRejected, req)
	return req, nil
}

func (s *GuarantorService) ListForGuarantor(ctx context.Context, guarantorID string) ([]*models.GuarantorRequest, error) {
	list, err := s.requests.ListGuarantorRequestsByGuarantor(ctx, guarantorID)
	if err != nil {
		return nil, domain.StoreFailure("list guarantor requests", err)
	}
	return list, nil
}

func (s *GuarantorService) ListForBooking(ctx context.Context, bookingID string) ([]*models.GuarantorRequest, error) {
	list, err := s.requests.ListGuarantorRequestsByBooking(ctx, bookingID)
	if err != nil {
		return nil, domain.StoreFailure("list booking requests", err)
	}
	return list, nil
}

func (s *GuarantorService) pendingFor(ctx context.Context, requestID, guarantorID string) (*models.GuarantorRequest, error) {
	req, err := s.requests.GetGuarantorRequest(ctx, requestID)
	if err != nil {
		return nil, domain.StoreFailure("get guarantor request", err)
	}
	if req.GuarantorID != guarantorID {
		return nil, domain.InvalidInputf("request %s is addressed to another user", requestID)
	}
	if req.Status != models.RequestPending {
		return nil, domain.Conflictf("request %s is already %s", requestID, req.Status)
	}
	return req, nil
}

func (s *GuarantorService) checkCapacity(ctx context.Context, bookingID string) error {
	n, err := s.requests.CountAcceptedGuarantors(ctx, bookingID)
	if err != nil {
		return domain.StoreFailure("count accepted guarantors", err)
	}
	if n >= s.maxGuarantors {
		return domain.Conflictf("booking %s already has %d guarantors", bookingID, n)
	}
	return nil
}

func (s *GuarantorService) publishEvent(eventType string, req *models.GuarantorRequest) {
	if s.eventBus == nil {
		return
	}
	payload := events.GuarantorEventPayload{
		RequestID:   req.ID,
		BookingID:   req.BookingID,
		UserID:      req.UserID,
		GuarantorID: req.GuarantorID,
		Status:      req.Status,
		Reason:      req.RejectionReason,
	}
	if err := s.eventBus.PublishJSON(eventType, payload); err != nil {
		s.logger.Error().Err(err).Str("event_type", eventType).Str("request_id", req.ID).Msg("publish event error")
	}
}
