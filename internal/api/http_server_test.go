package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"carrental/internal/config"
	"carrental/internal/domain"
	"carrental/internal/export"
	"carrental/internal/ledger"
	"carrental/internal/models"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

type mockBookingAPI struct {
	mock.Mock
}

func (m *mockBookingAPI) CreateBooking(ctx context.Context, b *models.Booking) error {
	err := m.Called(b).Error(0)
	if err == nil {
		b.ID = "BK-new"
		b.Status = models.StatusPending
	}
	return err
}

func (m *mockBookingAPI) GetBooking(ctx context.Context, id string) (*models.Booking, error) {
	args := m.Called(id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Booking), args.Error(1)
}

func (m *mockBookingAPI) UpdateStatus(ctx context.Context, id, status, actor string) (*models.Booking, error) {
	args := m.Called(id, status, actor)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Booking), args.Error(1)
}

func (m *mockBookingAPI) CancelBooking(ctx context.Context, id, actor, reason string) (*models.Booking, error) {
	args := m.Called(id, actor, reason)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Booking), args.Error(1)
}

func (m *mockBookingAPI) SearchCars(ctx context.Context, w models.SearchWindow) ([]*models.Car, error) {
	args := m.Called(w)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Car), args.Error(1)
}

type mockGuarantorAPI struct {
	mock.Mock
}

func (m *mockGuarantorAPI) RequestGuarantor(ctx context.Context, bookingID, renterID, guarantorID string) (*models.GuarantorRequest, error) {
	args := m.Called(bookingID, renterID, guarantorID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.GuarantorRequest), args.Error(1)
}

func (m *mockGuarantorAPI) Accept(ctx context.Context, requestID, guarantorID string) (*models.GuarantorRequest, error) {
	args := m.Called(requestID, guarantorID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.GuarantorRequest), args.Error(1)
}

func (m *mockGuarantorAPI) Reject(ctx context.Context, requestID, guarantorID, reason string) (*models.GuarantorRequest, error) {
	args := m.Called(requestID, guarantorID, reason)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.GuarantorRequest), args.Error(1)
}

type mockPointsAPI struct {
	mock.Mock
}

func (m *mockPointsAPI) Reconcile(ctx context.Context, guarantorID string) (*ledger.Statement, error) {
	args := m.Called(guarantorID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ledger.Statement), args.Error(1)
}

type testServer struct {
	bookings   *mockBookingAPI
	guarantors *mockGuarantorAPI
	points     *mockPointsAPI
	handler    http.Handler
}

func testAPIConfig() config.APIConfig {
	return config.APIConfig{
		HTTP: config.APIHTTPConfig{Enabled: true, Port: 0},
		Auth: config.APIAuthConfig{
			Enabled: true,
			APIKeys: []config.APIClientKey{
				{Key: "full", Name: "web"},
				{Key: "cars-only", Name: "catalog", Permissions: []string{permReadCars}},
			},
		},
	}
}

func newTestServer(t *testing.T, cfg config.APIConfig, health func(context.Context) error) *testServer {
	t.Helper()
	logger := zerolog.Nop()
	ts := &testServer{
		bookings:   new(mockBookingAPI),
		guarantors: new(mockGuarantorAPI),
		points:     new(mockPointsAPI),
	}
	srv := NewHTTPServer(cfg, Deps{
		Bookings:   ts.bookings,
		Guarantors: ts.guarantors,
		Points:     ts.points,
		Statements: export.NewStatementExporter(t.TempDir(), &logger),
		Health:     health,
	}, &logger)
	ts.handler = srv.Handler()
	return ts
}

func (ts *testServer) do(method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("X-API-Key", "full")
	for k, v := range headers {
		if v == "" {
			req.Header.Del(k)
			continue
		}
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	return rec
}

func asUser(id string) map[string]string {
	return map[string]string{"X-User-ID": id}
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, dst any) {
	t.Helper()
	require.NoError(t, json.NewDecoder(rec.Body).Decode(dst))
}

func TestHealthz(t *testing.T) {
	ts := newTestServer(t, testAPIConfig(), nil)
	rec := ts.do(http.MethodGet, "/healthz", "", map[string]string{"X-API-Key": ""})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get(requestIDHeader))

	down := newTestServer(t, testAPIConfig(), func(context.Context) error { return errors.New("disk gone") })
	rec = down.do(http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestAuth(t *testing.T) {
	ts := newTestServer(t, testAPIConfig(), nil)
	ts.bookings.On("SearchCars", mock.Anything).Return([]*models.Car{}, nil)

	rec := ts.do(http.MethodGet, "/api/v1/cars/search", "", map[string]string{"X-API-Key": ""})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = ts.do(http.MethodGet, "/api/v1/cars/search", "", map[string]string{"X-API-Key": "nope"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = ts.do(http.MethodGet, "/api/v1/cars/search", "", map[string]string{"X-API-Key": "cars-only"})
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(http.MethodGet, "/api/v1/guarantors/g1/points", "", map[string]string{"X-API-Key": "cars-only"})
	assert.Equal(t, http.StatusForbidden, rec.Code)
	ts.points.AssertNotCalled(t, "Reconcile", mock.Anything)
}

func TestRateLimit(t *testing.T) {
	cfg := testAPIConfig()
	cfg.RateLimit = config.APIRateLimitConfig{RPS: 0.001, Burst: 1}
	ts := newTestServer(t, cfg, nil)
	ts.bookings.On("SearchCars", mock.Anything).Return([]*models.Car{}, nil)

	assert.Equal(t, http.StatusOK, ts.do(http.MethodGet, "/api/v1/cars/search", "", nil).Code)
	rec := ts.do(http.MethodGet, "/api/v1/cars/search", "", nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)

	// limits are per key
	assert.Equal(t, http.StatusOK, ts.do(http.MethodGet, "/api/v1/cars/search", "", map[string]string{"X-API-Key": "cars-only"}).Code)
}

func TestSearchCars(t *testing.T) {
	ts := newTestServer(t, testAPIConfig(), nil)
	ts.bookings.On("SearchCars", mock.MatchedBy(func(w models.SearchWindow) bool {
		return w.StartDate.Equal(time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)) && w.StartTime == "10:00" && w.EndTime == "6:00 PM"
	})).Return([]*models.Car{{ID: "car-1", Name: "Swift"}}, nil).Once()

	rec := ts.do(http.MethodGet, "/api/v1/cars/search?startDate=2026-05-01&endDate=2026-05-03&startTime=10:00&endTime=6:00+PM", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var body searchResponse
	decodeBody(t, rec, &body)
	assert.True(t, body.Filtered)
	require.Len(t, body.Cars, 1)
	assert.Equal(t, "car-1", body.Cars[0].ID)

	rec = ts.do(http.MethodGet, "/api/v1/cars/search?startDate=05/01/2026", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSearchCars_StoreFailureIsRetryable(t *testing.T) {
	ts := newTestServer(t, testAPIConfig(), nil)
	ts.bookings.On("SearchCars", mock.Anything).
		Return(nil, domain.StoreFailure("find live bookings", errors.New("database is locked")))

	rec := ts.do(http.MethodGet, "/api/v1/cars/search?startDate=2026-05-01&endDate=2026-05-03", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))
	assert.NotContains(t, rec.Body.String(), "cars")
}

const validBooking = `{
	"car_id": "car-1",
	"trip_start": {"location": "Airport", "date": "2026-05-01", "time": "10:00", "latitude": 12.97},
	"trip_end": {"location": "Airport", "date": "2026-05-03", "time": "10:00 AM"},
	"final_price": "2000.50"
}`

func TestCreateBooking(t *testing.T) {
	ts := newTestServer(t, testAPIConfig(), nil)
	ts.bookings.On("CreateBooking", mock.MatchedBy(func(b *models.Booking) bool {
		return b.UserID == "renter" && b.CarID == "car-1" &&
			b.Pricing.FinalPrice.Equal(decimal.RequireFromString("2000.50")) &&
			b.TripEnd.Time == "10:00 AM" && b.TripStart.Latitude != nil
	})).Return(nil).Once()

	rec := ts.do(http.MethodPost, "/api/v1/bookings", validBooking, asUser("renter"))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var created models.Booking
	decodeBody(t, rec, &created)
	assert.Equal(t, "BK-new", created.ID)
	ts.bookings.AssertExpectations(t)
}

func TestCreateBooking_Rejections(t *testing.T) {
	ts := newTestServer(t, testAPIConfig(), nil)

	rec := ts.do(http.MethodPost, "/api/v1/bookings", validBooking, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = ts.do(http.MethodPost, "/api/v1/bookings", `{"car_id": "car-1"}`, asUser("renter"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "validation error")

	rec = ts.do(http.MethodPost, "/api/v1/bookings", strings.Replace(validBooking, `"2000.50"`, `"lots"`, 1), asUser("renter"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(http.MethodPost, "/api/v1/bookings", `{"car_id": 1`, asUser("renter"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	ts.bookings.AssertNotCalled(t, "CreateBooking", mock.Anything)

	ts.bookings.On("CreateBooking", mock.Anything).Return(domain.Conflictf("car car-1 is already booked")).Once()
	rec = ts.do(http.MethodPost, "/api/v1/bookings", validBooking, asUser("renter"))
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestBookingStatusAndCancel(t *testing.T) {
	ts := newTestServer(t, testAPIConfig(), nil)
	ts.bookings.On("UpdateStatus", "BK-1", models.StatusConfirmed, "admin").
		Return(&models.Booking{ID: "BK-1", Status: models.StatusConfirmed}, nil)
	ts.bookings.On("UpdateStatus", "BK-1", models.StatusActive, "renter").
		Return(nil, domain.InvalidInputf("only an admin can change booking status"))
	ts.bookings.On("CancelBooking", "BK-1", "renter", "").
		Return(&models.Booking{ID: "BK-1", Status: models.StatusCancelled}, nil)
	ts.bookings.On("GetBooking", "BK-404").Return(nil, domain.NotFoundf("booking BK-404"))

	rec := ts.do(http.MethodPost, "/api/v1/bookings/BK-1/status", `{"status": "confirmed"}`, asUser("admin"))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(http.MethodPost, "/api/v1/bookings/BK-1/status", `{"status": "active"}`, asUser("renter"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(http.MethodPost, "/api/v1/bookings/BK-1/status", `{"status": "teleported"}`, asUser("admin"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(http.MethodPost, "/api/v1/bookings/BK-1/cancel", "", asUser("renter"))
	require.Equal(t, http.StatusOK, rec.Code)
	var b models.Booking
	decodeBody(t, rec, &b)
	assert.Equal(t, models.StatusCancelled, b.Status)

	rec = ts.do(http.MethodGet, "/api/v1/bookings/BK-404", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGuarantorEndpoints(t *testing.T) {
	ts := newTestServer(t, testAPIConfig(), nil)
	ts.guarantors.On("RequestGuarantor", "BK-1", "renter", "g1").
		Return(&models.GuarantorRequest{ID: "req-1", Status: models.RequestPending}, nil)
	ts.guarantors.On("RequestGuarantor", "BK-1", "renter", "renter").
		Return(nil, domain.InvalidInputf("a user cannot guarantee their own booking"))
	ts.guarantors.On("Accept", "req-1", "g1").
		Return(&models.GuarantorRequest{ID: "req-1", Status: models.RequestAccepted}, nil)
	ts.guarantors.On("Accept", "req-1", "g2").Return(nil, domain.Conflictf("request req-1 is already accepted"))
	ts.guarantors.On("Reject", "req-2", "g1", "busy").
		Return(&models.GuarantorRequest{ID: "req-2", Status: models.RequestRejected, RejectionReason: "busy"}, nil)

	rec := ts.do(http.MethodPost, "/api/v1/guarantor-requests", `{"booking_id": "BK-1", "guarantor_id": "g1"}`, asUser("renter"))
	assert.Equal(t, http.StatusCreated, rec.Code)

	rec = ts.do(http.MethodPost, "/api/v1/guarantor-requests", `{"booking_id": "BK-1", "guarantor_id": "renter"}`, asUser("renter"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(http.MethodPost, "/api/v1/guarantor-requests", `{"booking_id": "BK-1"}`, asUser("renter"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(http.MethodPost, "/api/v1/guarantor-requests/req-1/accept", "", asUser("g1"))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(http.MethodPost, "/api/v1/guarantor-requests/req-1/accept", "", asUser("g2"))
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = ts.do(http.MethodPost, "/api/v1/guarantor-requests/req-2/reject", `{"reason": "busy"}`, asUser("g1"))
	require.Equal(t, http.StatusOK, rec.Code)
	var rejected models.GuarantorRequest
	decodeBody(t, rec, &rejected)
	assert.Equal(t, "busy", rejected.RejectionReason)
}

func sampleStatement() *ledger.Statement {
	return &ledger.Statement{
		GuarantorID:   "g1",
		StoredBalance: decimal.RequireFromString("33.333333333333333333"),
		Recomputed:    decimal.RequireFromString("33.333333333333333333"),
		Drift:         decimal.Zero,
		Entries: []*models.GuarantorPoints{{
			BookingID:       "BK-1",
			RequestID:       "req-1",
			BookingAmount:   decimal.NewFromInt(1000),
			TotalPoolAmount: decimal.NewFromInt(100),
			TotalGuarantors: 3,
			PointsAllocated: decimal.RequireFromString("33.333333333333333333"),
			Status:          models.PointsActive,
		}},
	}
}

func TestPoints(t *testing.T) {
	ts := newTestServer(t, testAPIConfig(), nil)
	ts.points.On("Reconcile", "g1").Return(sampleStatement(), nil)
	ts.points.On("Reconcile", "ghost").Return(nil, domain.StoreFailure("reconcile", domain.NotFoundf("user ghost")))

	rec := ts.do(http.MethodGet, "/api/v1/guarantors/g1/points", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var view pointsView
	decodeBody(t, rec, &view)
	assert.Equal(t, "33.33", view.Balance)
	assert.Equal(t, "33.333333333333333333", view.BalanceExact)
	assert.True(t, view.InSync)
	require.Len(t, view.Entries, 1)
	assert.Equal(t, "33.33", view.Entries[0].Points)

	rec = ts.do(http.MethodGet, "/api/v1/guarantors/ghost/points", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPointsExport(t *testing.T) {
	ts := newTestServer(t, testAPIConfig(), nil)
	ts.points.On("Reconcile", "g1").Return(sampleStatement(), nil)

	rec := ts.do(http.MethodGet, "/api/v1/guarantors/g1/points/export", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "points_g1.xlsx")

	f, err := excelize.OpenReader(bytes.NewReader(rec.Body.Bytes()))
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows("Entries")
	require.NoError(t, err)
	assert.Len(t, rows, 2)
}

func TestStatusFor(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{domain.NotFoundf("x"), http.StatusNotFound},
		{domain.InvalidInputf("x"), http.StatusBadRequest},
		{domain.Conflictf("x"), http.StatusConflict},
		{domain.StoreFailure("op", errors.New("io")), http.StatusServiceUnavailable},
		{&domain.LedgerError{Op: "allocate", Err: errors.New("x")}, http.StatusServiceUnavailable},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, statusFor(tc.err), tc.err.Error())
	}
}
