package ledger

import (
	"context"

	"carrental/internal/domain"
	"carrental/internal/models"
	"carrental/internal/points"

	"github.com/shopspring/decimal"
)

// Statement is a guarantor's balance next to the total recomputed from
// ledger history. It is for display and never written back.
type Statement struct {
	GuarantorID   string                    `json:"guarantor_id"`
	StoredBalance decimal.Decimal           `json:"stored_balance"`
	Recomputed    decimal.Decimal           `json:"recomputed"`
	Drift         decimal.Decimal           `json:"drift"`
	Entries       []*models.GuarantorPoints `json:"entries"`
}

// InSync reports whether the stored balance matches history at display
// precision.
func (s *Statement) InSync() bool {
	return points.Display(s.Drift) == points.Display(decimal.Zero)
}

// Reconcile recomputes what the guarantor's balance should be from the active
// entries (bookingAmount * rate / totalGuarantors each) and compares it with
// the stored running balance.
func (s *Service) Reconcile(ctx context.Context, guarantorID string) (*Statement, error) {
	user, err := s.store.GetUser(ctx, guarantorID)
	if err != nil {
		return nil, domain.StoreFailure("reconcile", err)
	}
	entries, err := s.store.ListPointsByGuarantor(ctx, guarantorID)
	if err != nil {
		return nil, domain.StoreFailure("reconcile", err)
	}

	total := decimal.Zero
	for _, e := range entries {
		if e.Status != models.PointsActive {
			continue
		}
		share, err := points.PerGuarantor(e.BookingAmount, s.rate, e.TotalGuarantors)
		if err != nil {
			return nil, domain.StoreFailure("reconcile", err)
		}
		total = total.Add(share)
	}

	st := &Statement{
		GuarantorID:   guarantorID,
		StoredBalance: user.PointsBalance,
		Recomputed:    total,
		Drift:         user.PointsBalance.Sub(total),
		Entries:       entries,
	}
	if !st.InSync() {
		s.logger.Warn().Str("guarantor_id", guarantorID).Str("drift", st.Drift.String()).
			Msg("Stored balance differs from ledger history")
	}
	return st, nil
}
