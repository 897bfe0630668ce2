// Package ledger maintains guarantor point allocations. For every booking the
// active entries always hold bookingAmount * rate split evenly between the
// accepted guarantors, recomputed from the booking amount on every change.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"carrental/internal/config"
	"carrental/internal/domain"
	"carrental/internal/events"
	"carrental/internal/lock"
	"carrental/internal/metrics"
	"carrental/internal/models"
	"carrental/internal/points"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const (
	opAllocate = "allocate"
	opReverse  = "reverse"
)

// errBookingCancelled aborts an allocation that raced a cancellation.
var errBookingCancelled = errors.New("booking cancelled")

type Service struct {
	store         domain.LedgerStore
	locker        domain.Locker
	events        domain.EventPublisher
	rate          decimal.Decimal
	maxGuarantors int
	logger        *zerolog.Logger
	now           func() time.Time
}

func NewService(store domain.LedgerStore, locker domain.Locker, publisher domain.EventPublisher, cfg config.LedgerConfig, logger *zerolog.Logger) (*Service, error) {
	rate, err := points.ParseRate(cfg.PoolRate)
	if err != nil {
		return nil, err
	}
	maxGuarantors := cfg.MaxGuarantors
	if maxGuarantors <= 0 || maxGuarantors > models.MaxGuarantorsPerBooking {
		maxGuarantors = models.MaxGuarantorsPerBooking
	}
	return &Service{
		store:         store,
		locker:        locker,
		events:        publisher,
		rate:          rate,
		maxGuarantors: maxGuarantors,
		logger:        logger,
		now:           time.Now,
	}, nil
}

// Rate is the configured pool rate.
func (s *Service) Rate() decimal.Decimal {
	return s.rate
}

type balanceChange struct {
	guarantorID string
	points      decimal.Decimal
	delta       decimal.Decimal
	n           int
}

// Allocate credits guarantorID's share of the booking pool and rebalances
// every other active entry of the booking to the new even split. Running it
// again for the same guarantor changes nothing. Errors are *domain.LedgerError.
func (s *Service) Allocate(ctx context.Context, bookingID, guarantorID, requestID string) error {
	var changes []balanceChange

	err := s.underBookingLock(ctx, bookingID, func(tx domain.LedgerTx) error {
		changes = changes[:0]

		booking, err := tx.GetBooking(ctx, bookingID)
		if err != nil {
			return err
		}
		if booking.Status == models.StatusCancelled {
			return errBookingCancelled
		}

		amount := booking.Pricing.FinalPrice
		if amount.IsNegative() {
			return fmt.Errorf("booking amount %s is negative", amount)
		}

		n, err := tx.CountAcceptedGuarantors(ctx, bookingID)
		if err != nil {
			return err
		}
		if n < 1 {
			return fmt.Errorf("guarantor %s is not accepted", guarantorID)
		}
		if n > s.maxGuarantors {
			return fmt.Errorf("%d accepted guarantors exceeds limit %d", n, s.maxGuarantors)
		}

		pool := points.Pool(amount, s.rate)
		share, err := points.Share(pool, n)
		if err != nil {
			return err
		}

		own, err := tx.FindActivePoints(ctx, bookingID, guarantorID)
		if err != nil {
			return err
		}
		if own == nil {
			entry := &models.GuarantorPoints{
				ID:              uuid.NewString(),
				BookingID:       bookingID,
				GuarantorID:     guarantorID,
				RequestID:       requestID,
				BookingAmount:   amount,
				TotalPoolAmount: pool,
				TotalGuarantors: n,
				PointsAllocated: share,
				Status:          models.PointsActive,
			}
			if err := tx.InsertPoints(ctx, entry); err != nil {
				return err
			}
			if _, err := tx.ApplyBalanceDelta(ctx, guarantorID, share, false); err != nil {
				return err
			}
			changes = append(changes, balanceChange{guarantorID, share, share, n})
		}

		active, err := tx.FindAllActivePoints(ctx, bookingID)
		if err != nil {
			return err
		}
		for _, e := range active {
			if own == nil && e.GuarantorID == guarantorID {
				continue
			}
			delta := share.Sub(e.PointsAllocated)
			if delta.IsZero() && e.TotalGuarantors == n && e.BookingAmount.Equal(amount) {
				continue
			}
			e.BookingAmount = amount
			e.TotalPoolAmount = pool
			e.TotalGuarantors = n
			e.PointsAllocated = share
			if err := tx.UpdatePointsAllocation(ctx, e); err != nil {
				return err
			}
			if !delta.IsZero() {
				if _, err := tx.ApplyBalanceDelta(ctx, e.GuarantorID, delta, false); err != nil {
					return err
				}
			}
			changes = append(changes, balanceChange{e.GuarantorID, share, delta, n})
		}
		return nil
	})

	if errors.Is(err, errBookingCancelled) {
		metrics.IncLedger(opAllocate, "skipped")
		s.logger.Warn().Str("booking_id", bookingID).Str("guarantor_id", guarantorID).
			Msg("Booking cancelled before allocation, nothing to credit")
		return nil
	}
	if err != nil {
		metrics.IncLedger(opAllocate, "failed")
		return &domain.LedgerError{Op: opAllocate, BookingID: bookingID, GuarantorID: guarantorID, Err: err}
	}

	metrics.IncLedger(opAllocate, "ok")
	for _, c := range changes {
		s.publish(events.EventPointsAllocated, events.PointsEventPayload{
			BookingID:       bookingID,
			GuarantorID:     c.guarantorID,
			Points:          c.points,
			BalanceDelta:    c.delta,
			TotalGuarantors: c.n,
		})
	}
	s.logger.Info().Str("booking_id", bookingID).Str("guarantor_id", guarantorID).
		Int("entries_changed", len(changes)).Msg("Points allocated")
	return nil
}

// Reverse flips every active entry of the booking to reversed and debits each
// guarantor by the share recomputed from the entry's booking amount and
// guarantor count. Balances never drop below zero. Errors are
// *domain.LedgerError.
func (s *Service) Reverse(ctx context.Context, bookingID, reason string) error {
	if reason == "" {
		reason = models.DefaultCancellationReason
	}
	var changes []balanceChange

	err := s.underBookingLock(ctx, bookingID, func(tx domain.LedgerTx) error {
		changes = changes[:0]

		active, err := tx.FindAllActivePoints(ctx, bookingID)
		if err != nil {
			return err
		}
		at := s.now()
		for _, e := range active {
			amount, err := points.PerGuarantor(e.BookingAmount, s.rate, e.TotalGuarantors)
			if err != nil {
				return fmt.Errorf("entry %s: %w", e.ID, err)
			}
			if err := tx.MarkPointsReversed(ctx, e.ID, reason, at); err != nil {
				return err
			}
			applied, err := tx.ApplyBalanceDelta(ctx, e.GuarantorID, amount.Neg(), true)
			if err != nil {
				return err
			}
			if !applied.Equal(amount.Neg()) {
				s.logger.Warn().Str("booking_id", bookingID).Str("guarantor_id", e.GuarantorID).
					Str("wanted", amount.Neg().String()).Str("applied", applied.String()).
					Msg("Reversal floored at zero balance")
			}
			changes = append(changes, balanceChange{e.GuarantorID, amount, applied, e.TotalGuarantors})
		}
		return nil
	})
	if err != nil {
		metrics.IncLedger(opReverse, "failed")
		return &domain.LedgerError{Op: opReverse, BookingID: bookingID, Err: err}
	}

	metrics.IncLedger(opReverse, "ok")
	for _, c := range changes {
		s.publish(events.EventPointsReversed, events.PointsEventPayload{
			BookingID:       bookingID,
			GuarantorID:     c.guarantorID,
			Points:          c.points,
			BalanceDelta:    c.delta,
			TotalGuarantors: c.n,
			Reason:          reason,
		})
	}
	if len(changes) > 0 {
		s.logger.Info().Str("booking_id", bookingID).Int("entries", len(changes)).Msg("Points reversed")
	}
	return nil
}

// SettleAcceptance runs Allocate for a freshly accepted request. A failure is
// logged and queued for retry; it never reaches the caller.
func (s *Service) SettleAcceptance(ctx context.Context, req *models.GuarantorRequest) {
	ctx = context.WithoutCancel(ctx)
	err := s.Allocate(ctx, req.BookingID, req.GuarantorID, req.ID)
	if err == nil {
		return
	}
	s.logFailure(err)
	s.enqueue(ctx, &models.LedgerTask{
		TaskType:    models.LedgerTaskAllocate,
		BookingID:   req.BookingID,
		GuarantorID: req.GuarantorID,
		RequestID:   req.ID,
	}, err)
}

// SettleCancellation runs Reverse for a cancelled booking. A failure is
// logged and queued for retry; it never reaches the caller.
func (s *Service) SettleCancellation(ctx context.Context, bookingID, reason string) {
	ctx = context.WithoutCancel(ctx)
	err := s.Reverse(ctx, bookingID, reason)
	if err == nil {
		return
	}
	s.logFailure(err)
	s.enqueue(ctx, &models.LedgerTask{
		TaskType:  models.LedgerTaskReverse,
		BookingID: bookingID,
		Reason:    reason,
	}, err)
}

func (s *Service) underBookingLock(ctx context.Context, bookingID string, fn func(tx domain.LedgerTx) error) error {
	unlock, err := s.locker.Lock(ctx, lock.BookingKey(bookingID))
	if err != nil {
		return fmt.Errorf("lock booking: %w", err)
	}
	defer unlock()
	return s.store.WithinTx(ctx, fn)
}

func (s *Service) logFailure(err error) {
	ev := s.logger.Error().Err(err)
	var le *domain.LedgerError
	if errors.As(err, &le) {
		ev = ev.Str("op", le.Op).Str("booking_id", le.BookingID).Str("guarantor_id", le.GuarantorID)
	}
	ev.Msg("Ledger operation failed, queued for retry")
}

func (s *Service) enqueue(ctx context.Context, task *models.LedgerTask, cause error) {
	msg := cause.Error()
	task.Status = models.TaskStatusPending
	task.LastError = &msg
	if err := s.store.CreateLedgerTask(ctx, task); err != nil {
		s.logger.Error().Err(err).Str("booking_id", task.BookingID).Str("task_type", task.TaskType).
			Msg("Failed to queue ledger retry; reconcile manually")
	}
}

func (s *Service) publish(eventType string, payload interface{}) {
	if s.events == nil {
		return
	}
	if err := s.events.PublishJSON(eventType, payload); err != nil {
		s.logger.Warn().Err(err).Str("event_type", eventType).Msg("Failed to publish ledger event")
	}
}
