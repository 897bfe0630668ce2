// Package availability decides which cars are committed during a requested
// trip window.
package availability

import (
	"context"
	"time"

	"carrental/internal/domain"
	"carrental/internal/metrics"
	"carrental/internal/models"
	"carrental/internal/tripwindow"

	"github.com/rs/zerolog"
)

// BookingFinder is the coarse data source of the resolver.
type BookingFinder interface {
	FindLiveBookingsOverlappingDateRange(ctx context.Context, from, to time.Time) ([]*models.Booking, error)
}

type Resolver struct {
	bookings BookingFinder
	logger   *zerolog.Logger
}

func NewResolver(bookings BookingFinder, logger *zerolog.Logger) *Resolver {
	return &Resolver{bookings: bookings, logger: logger}
}

// UnavailableCars returns the ids of cars with a live booking whose trip
// window overlaps the requested one. A store failure is returned as-is
// (wrapped in domain.ErrStoreFailure); it never degrades into an empty set.
func (r *Resolver) UnavailableCars(ctx context.Context, w models.SearchWindow) (map[string]struct{}, error) {
	excluded := make(map[string]struct{})
	if w.StartDate.IsZero() || w.EndDate.IsZero() {
		return excluded, nil
	}

	search := tripwindow.New(w.StartDate, w.StartTime, w.EndDate, w.EndTime)

	candidates, err := r.bookings.FindLiveBookingsOverlappingDateRange(ctx, w.StartDate, w.EndDate)
	if err != nil {
		metrics.IncAvailability("error")
		return nil, domain.StoreFailure("availability coarse fetch", err)
	}

	for _, b := range candidates {
		if !b.IsLive() {
			continue
		}
		if _, seen := excluded[b.CarID]; seen {
			continue
		}
		if BookingWindow(b).Overlaps(search) {
			excluded[b.CarID] = struct{}{}
		}
	}

	metrics.IncAvailability("ok")
	r.logger.Debug().
		Str("from", search.Start.Format(time.RFC3339)).
		Str("to", search.End.Format(time.RFC3339)).
		Int("candidates", len(candidates)).
		Int("excluded", len(excluded)).
		Msg("Availability resolved")
	return excluded, nil
}

// IsCarAvailable reports whether carID is free for the whole window.
func (r *Resolver) IsCarAvailable(ctx context.Context, carID string, w models.SearchWindow) (bool, error) {
	excluded, err := r.UnavailableCars(ctx, w)
	if err != nil {
		return false, err
	}
	_, busy := excluded[carID]
	return !busy, nil
}

// BookingWindow is the absolute trip window of a stored booking.
func BookingWindow(b *models.Booking) tripwindow.Window {
	return tripwindow.New(b.TripStart.Date, b.TripStart.Time, b.TripEnd.Date, b.TripEnd.Time)
}

// Filter drops excluded cars, keeping order.
func Filter(cars []*models.Car, excluded map[string]struct{}) []*models.Car {
	out := make([]*models.Car, 0, len(cars))
	for _, c := range cars {
		if _, busy := excluded[c.ID]; !busy {
			out = append(out, c)
		}
	}
	return out
}
