package api

import (
	"time"

	"carrental/internal/ledger"
	"carrental/internal/models"
	"carrental/internal/points"

	"github.com/shopspring/decimal"
)

const dateLayout = "2006-01-02"

type tripPointRequest struct {
	Location  string   `json:"location" validate:"required,max=200"`
	Latitude  *float64 `json:"latitude" validate:"omitempty,latitude"`
	Longitude *float64 `json:"longitude" validate:"omitempty,longitude"`
	Date      string   `json:"date" validate:"required,datetime=2006-01-02"`
	Time      string   `json:"time" validate:"max=16"`
}

func (t tripPointRequest) toModel() (models.TripPoint, error) {
	date, err := time.Parse(dateLayout, t.Date)
	if err != nil {
		return models.TripPoint{}, err
	}
	return models.TripPoint{
		Location:  t.Location,
		Latitude:  t.Latitude,
		Longitude: t.Longitude,
		Date:      date,
		Time:      t.Time,
	}, nil
}

type createBookingRequest struct {
	CarID      string           `json:"car_id" validate:"required"`
	TripStart  tripPointRequest `json:"trip_start"`
	TripEnd    tripPointRequest `json:"trip_end"`
	BasePrice  string           `json:"base_price" validate:"omitempty,numeric"`
	Discount   string           `json:"discount" validate:"omitempty,numeric"`
	FinalPrice string           `json:"final_price" validate:"required,numeric"`
}

func (req createBookingRequest) toModel(userID string) (*models.Booking, error) {
	start, err := req.TripStart.toModel()
	if err != nil {
		return nil, err
	}
	end, err := req.TripEnd.toModel()
	if err != nil {
		return nil, err
	}
	final, err := decimal.NewFromString(req.FinalPrice)
	if err != nil {
		return nil, err
	}
	base := final
	if req.BasePrice != "" {
		if base, err = decimal.NewFromString(req.BasePrice); err != nil {
			return nil, err
		}
	}
	discount := decimal.Zero
	if req.Discount != "" {
		if discount, err = decimal.NewFromString(req.Discount); err != nil {
			return nil, err
		}
	}

	return &models.Booking{
		CarID:     req.CarID,
		UserID:    userID,
		TripStart: start,
		TripEnd:   end,
		Pricing:   models.Pricing{BasePrice: base, Discount: discount, FinalPrice: final},
	}, nil
}

type updateStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=confirmed active completed rejected cancelled"`
}

type reasonRequest struct {
	Reason string `json:"reason" validate:"max=500"`
}

type guarantorRequestRequest struct {
	BookingID   string `json:"booking_id" validate:"required"`
	GuarantorID string `json:"guarantor_id" validate:"required"`
}

type searchResponse struct {
	Cars     []*models.Car `json:"cars"`
	Filtered bool          `json:"filtered"`
}

type pointsEntryView struct {
	BookingID       string     `json:"booking_id"`
	RequestID       string     `json:"request_id"`
	BookingAmount   string     `json:"booking_amount"`
	TotalGuarantors int        `json:"total_guarantors"`
	Points          string     `json:"points"`
	PointsExact     string     `json:"points_exact"`
	Status          string     `json:"status"`
	ReversalReason  string     `json:"reversal_reason,omitempty"`
	ReversedAt      *time.Time `json:"reversed_at,omitempty"`
}

type pointsView struct {
	GuarantorID  string            `json:"guarantor_id"`
	Balance      string            `json:"balance"`
	BalanceExact string            `json:"balance_exact"`
	FromHistory  string            `json:"from_history"`
	InSync       bool              `json:"in_sync"`
	Entries      []pointsEntryView `json:"entries"`
}

func newPointsView(st *ledger.Statement) pointsView {
	v := pointsView{
		GuarantorID:  st.GuarantorID,
		Balance:      points.Display(st.StoredBalance),
		BalanceExact: st.StoredBalance.String(),
		FromHistory:  points.Display(st.Recomputed),
		InSync:       st.InSync(),
		Entries:      make([]pointsEntryView, 0, len(st.Entries)),
	}
	for _, e := range st.Entries {
		v.Entries = append(v.Entries, pointsEntryView{
			BookingID:       e.BookingID,
			RequestID:       e.RequestID,
			BookingAmount:   points.Display(e.BookingAmount),
			TotalGuarantors: e.TotalGuarantors,
			Points:          points.Display(e.PointsAllocated),
			PointsExact:     e.PointsAllocated.String(),
			Status:          e.Status,
			ReversalReason:  e.ReversalReason,
			ReversedAt:      e.ReversedAt,
		})
	}
	return v
}
