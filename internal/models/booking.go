package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// TripPoint is one end of a reservation: where and when the car changes hands.
// Time is free-form ("14:30", "2:30 PM") and may be empty.
type TripPoint struct {
	Location  string    `json:"location"`
	Latitude  *float64  `json:"latitude,omitempty"`
	Longitude *float64  `json:"longitude,omitempty"`
	Date      time.Time `json:"date"`
	Time      string    `json:"time,omitempty"`
}

type Pricing struct {
	BasePrice  decimal.Decimal `json:"base_price"`
	Discount   decimal.Decimal `json:"discount"`
	FinalPrice decimal.Decimal `json:"final_price"`
}

type Booking struct {
	ID                 string    `json:"id"`
	CarID              string    `json:"car_id"`
	UserID             string    `json:"user_id"`
	GuarantorID        string    `json:"guarantor_id,omitempty"` // legacy single guarantor, see GuarantorPoints
	TripStart          TripPoint `json:"trip_start"`
	TripEnd            TripPoint `json:"trip_end"`
	Pricing            Pricing   `json:"pricing"`
	Status             string    `json:"status"` // pending, confirmed, active, completed, cancelled, rejected
	CancellationReason string    `json:"cancellation_reason,omitempty"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
	Version            int64     `json:"version"`
}

// IsLive reports whether the booking still holds its car.
func (b *Booking) IsLive() bool {
	return IsLiveStatus(b.Status)
}

// SearchWindow is the requested rental period of a car search.
type SearchWindow struct {
	StartDate time.Time
	StartTime string
	EndDate   time.Time
	EndTime   string
}
