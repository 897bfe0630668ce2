package service

import (
	"context"
	"time"

	"carrental/internal/models"

	"github.com/stretchr/testify/mock"
)

type mockBookings struct {
	mock.Mock
}

func (m *mockBookings) CreateBooking(ctx context.Context, b *models.Booking) error {
	return m.Called(ctx, b).Error(0)
}

func (m *mockBookings) GetBooking(ctx context.Context, id string) (*models.Booking, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Booking), args.Error(1)
}

func (m *mockBookings) UpdateBookingStatusWithVersion(ctx context.Context, id string, v int64, status, reason string) error {
	return m.Called(ctx, id, v, status, reason).Error(0)
}

func (m *mockBookings) FindLiveBookingsOverlappingDateRange(ctx context.Context, from, to time.Time) ([]*models.Booking, error) {
	args := m.Called(ctx, from, to)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Booking), args.Error(1)
}

func (m *mockBookings) GetUserBookings(ctx context.Context, userID string) ([]*models.Booking, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Booking), args.Error(1)
}

type mockCars struct {
	mock.Mock
}

func (m *mockCars) GetCar(ctx context.Context, id string) (*models.Car, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Car), args.Error(1)
}

func (m *mockCars) GetActiveCars(ctx context.Context) ([]*models.Car, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Car), args.Error(1)
}

type mockUsers struct {
	mock.Mock
}

func (m *mockUsers) GetUser(ctx context.Context, id string) (*models.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

type mockResolver struct {
	mock.Mock
}

func (m *mockResolver) UnavailableCars(ctx context.Context, w models.SearchWindow) (map[string]struct{}, error) {
	args := m.Called(ctx, w)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]struct{}), args.Error(1)
}

type mockSettler struct {
	mock.Mock
}

func (m *mockSettler) SettleAcceptance(ctx context.Context, req *models.GuarantorRequest) {
	m.Called(ctx, req)
}

func (m *mockSettler) SettleCancellation(ctx context.Context, bookingID, reason string) {
	m.Called(ctx, bookingID, reason)
}

type mockPublisher struct {
	mock.Mock
}

func (m *mockPublisher) PublishJSON(eventType string, payload interface{}) error {
	return m.Called(eventType, payload).Error(0)
}

type mockRequests struct {
	mock.Mock
}

func (m *mockRequests) CreateGuarantorRequest(ctx context.Context, req *models.GuarantorRequest) error {
	return m.Called(ctx, req).Error(0)
}

func (m *mockRequests) GetGuarantorRequest(ctx context.Context, id string) (*models.GuarantorRequest, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.GuarantorRequest), args.Error(1)
}

func (m *mockRequests) HasPendingGuarantorRequest(ctx context.Context, bookingID, guarantorID string) (bool, error) {
	args := m.Called(ctx, bookingID, guarantorID)
	return args.Bool(0), args.Error(1)
}

func (m *mockRequests) IsGuarantorAccepted(ctx context.Context, bookingID, guarantorID string) (bool, error) {
	args := m.Called(ctx, bookingID, guarantorID)
	return args.Bool(0), args.Error(1)
}

func (m *mockRequests) CountAcceptedGuarantors(ctx context.Context, bookingID string) (int, error) {
	args := m.Called(ctx, bookingID)
	return args.Int(0), args.Error(1)
}

func (m *mockRequests) UpdateGuarantorRequestStatus(ctx context.Context, id, from, to, reason string) error {
	return m.Called(ctx, id, from, to, reason).Error(0)
}

func (m *mockRequests) ListGuarantorRequestsByGuarantor(ctx context.Context, guarantorID string) ([]*models.GuarantorRequest, error) {
	args := m.Called(ctx, guarantorID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.GuarantorRequest), args.Error(1)
}

func (m *mockRequests) ListGuarantorRequestsByBooking(ctx context.Context, bookingID string) ([]*models.GuarantorRequest, error) {
	args := m.Called(ctx, bookingID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.GuarantorRequest), args.Error(1)
}
