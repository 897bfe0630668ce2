package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"carrental/internal/config"
	"carrental/internal/domain"
	"carrental/internal/ledger"
	"carrental/internal/logging"
	"carrental/internal/models"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
)

type BookingAPI interface {
	CreateBooking(ctx context.Context, booking *models.Booking) error
	GetBooking(ctx context.Context, id string) (*models.Booking, error)
	UpdateStatus(ctx context.Context, bookingID, status, actorID string) (*models.Booking, error)
	CancelBooking(ctx context.Context, bookingID, actorID, reason string) (*models.Booking, error)
	SearchCars(ctx context.Context, window models.SearchWindow) ([]*models.Car, error)
}

type GuarantorAPI interface {
	RequestGuarantor(ctx context.Context, bookingID, renterID, guarantorID string) (*models.GuarantorRequest, error)
	Accept(ctx context.Context, requestID, guarantorID string) (*models.GuarantorRequest, error)
	Reject(ctx context.Context, requestID, guarantorID, reason string) (*models.GuarantorRequest, error)
}

type PointsAPI interface {
	Reconcile(ctx context.Context, guarantorID string) (*ledger.Statement, error)
}

type StatementWriter interface {
	Write(w io.Writer, st *ledger.Statement) error
}

// Deps are the collaborators behind the HTTP surface.
type Deps struct {
	Bookings   BookingAPI
	Guarantors GuarantorAPI
	Points     PointsAPI
	Statements StatementWriter
	// Health reports whether storage is reachable; nil means always healthy.
	Health func(ctx context.Context) error
}

type HTTPServer struct {
	cfg      config.APIConfig
	deps     Deps
	auth     *HTTPAuth
	validate *validator.Validate
	server   *http.Server
	logger   *zerolog.Logger
}

func NewHTTPServer(cfg config.APIConfig, deps Deps, logger *zerolog.Logger) *HTTPServer {
	srv := &HTTPServer{
		cfg:      cfg,
		deps:     deps,
		auth:     NewHTTPAuth(cfg),
		validate: validator.New(),
		logger:   logging.Component(logger, "http"),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", srv.handleHealth)
	mux.Handle("GET /api/v1/cars/search", srv.auth.Require(permReadCars, srv.handleSearchCars))
	mux.Handle("POST /api/v1/bookings", srv.auth.Require(permWriteBookings, srv.handleCreateBooking))
	mux.Handle("GET /api/v1/bookings/{id}", srv.auth.Require(permWriteBookings, srv.handleGetBooking))
	mux.Handle("POST /api/v1/bookings/{id}/status", srv.auth.Require(permWriteBookings, srv.handleUpdateStatus))
	mux.Handle("POST /api/v1/bookings/{id}/cancel", srv.auth.Require(permWriteBookings, srv.handleCancelBooking))
	mux.Handle("POST /api/v1/guarantor-requests", srv.auth.Require(permWriteGuarantors, srv.handleRequestGuarantor))
	mux.Handle("POST /api/v1/guarantor-requests/{id}/accept", srv.auth.Require(permWriteGuarantors, srv.handleAccept))
	mux.Handle("POST /api/v1/guarantor-requests/{id}/reject", srv.auth.Require(permWriteGuarantors, srv.handleReject))
	mux.Handle("GET /api/v1/guarantors/{id}/points", srv.auth.Require(permReadPoints, srv.handlePoints))
	mux.Handle("GET /api/v1/guarantors/{id}/points/export", srv.auth.Require(permReadPoints, srv.handlePointsExport))

	srv.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:           recoverMiddleware(srv.logger, loggingMiddleware(srv.logger, mux)),
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      15 * time.Second,
	}
	return srv
}

// Handler exposes the routed handler, mainly for tests.
func (s *HTTPServer) Handler() http.Handler {
	return s.server.Handler
}

func (s *HTTPServer) Start() error {
	if s.server == nil {
		return fmt.Errorf("http server is not initialized")
	}
	s.logger.Info().Str("addr", s.server.Addr).Msg("HTTP API listening")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *HTTPServer) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.deps.Health != nil {
		if err := s.deps.Health(r.Context()); err != nil {
			s.logger.Warn().Err(err).Msg("health check failed")
			writeError(w, http.StatusServiceUnavailable, "storage unavailable")
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *HTTPServer) handleSearchCars(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var window models.SearchWindow
	var err error

	if raw := strings.TrimSpace(q.Get("startDate")); raw != "" {
		if window.StartDate, err = time.Parse(dateLayout, raw); err != nil {
			writeError(w, http.StatusBadRequest, "invalid startDate; expected YYYY-MM-DD")
			return
		}
	}
	if raw := strings.TrimSpace(q.Get("endDate")); raw != "" {
		if window.EndDate, err = time.Parse(dateLayout, raw); err != nil {
			writeError(w, http.StatusBadRequest, "invalid endDate; expected YYYY-MM-DD")
			return
		}
	}
	window.StartTime = strings.TrimSpace(q.Get("startTime"))
	window.EndTime = strings.TrimSpace(q.Get("endTime"))

	cars, err := s.deps.Bookings.SearchCars(r.Context(), window)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, searchResponse{
		Cars:     cars,
		Filtered: !window.StartDate.IsZero() && !window.EndDate.IsZero(),
	})
}

func (s *HTTPServer) handleCreateBooking(w http.ResponseWriter, r *http.Request) {
	uid, ok := s.requireCaller(w, r)
	if !ok {
		return
	}
	var req createBookingRequest
	if !s.decode(w, r, &req, false) {
		return
	}

	booking, err := req.toModel(uid)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.deps.Bookings.CreateBooking(r.Context(), booking); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, booking)
}

func (s *HTTPServer) handleGetBooking(w http.ResponseWriter, r *http.Request) {
	booking, err := s.deps.Bookings.GetBooking(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, booking)
}

func (s *HTTPServer) handleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	uid, ok := s.requireCaller(w, r)
	if !ok {
		return
	}
	var req updateStatusRequest
	if !s.decode(w, r, &req, false) {
		return
	}

	booking, err := s.deps.Bookings.UpdateStatus(r.Context(), r.PathValue("id"), req.Status, uid)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, booking)
}

func (s *HTTPServer) handleCancelBooking(w http.ResponseWriter, r *http.Request) {
	uid, ok := s.requireCaller(w, r)
	if !ok {
		return
	}
	var req reasonRequest
	if !s.decode(w, r, &req, true) {
		return
	}

	booking, err := s.deps.Bookings.CancelBooking(r.Context(), r.PathValue("id"), uid, req.Reason)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, booking)
}

func (s *HTTPServer) handleRequestGuarantor(w http.ResponseWriter, r *http.Request) {
	uid, ok := s.requireCaller(w, r)
	if !ok {
		return
	}
	var req guarantorRequestRequest
	if !s.decode(w, r, &req, false) {
		return
	}

	created, err := s.deps.Guarantors.RequestGuarantor(r.Context(), req.BookingID, uid, req.GuarantorID)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (s *HTTPServer) handleAccept(w http.ResponseWriter, r *http.Request) {
	uid, ok := s.requireCaller(w, r)
	if !ok {
		return
	}
	req, err := s.deps.Guarantors.Accept(r.Context(), r.PathValue("id"), uid)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, req)
}

func (s *HTTPServer) handleReject(w http.ResponseWriter, r *http.Request) {
	uid, ok := s.requireCaller(w, r)
	if !ok {
		return
	}
	var body reasonRequest
	if !s.decode(w, r, &body, true) {
		return
	}

	req, err := s.deps.Guarantors.Reject(r.Context(), r.PathValue("id"), uid, body.Reason)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, req)
}

func (s *HTTPServer) handlePoints(w http.ResponseWriter, r *http.Request) {
	st, err := s.deps.Points.Reconcile(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newPointsView(st))
}

func (s *HTTPServer) handlePointsExport(w http.ResponseWriter, r *http.Request) {
	if s.deps.Statements == nil {
		writeError(w, http.StatusNotFound, "export disabled")
		return
	}
	st, err := s.deps.Points.Reconcile(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	var buf bytes.Buffer
	if err := s.deps.Statements.Write(&buf, st); err != nil {
		s.logger.Error().Err(err).Str("guarantor_id", st.GuarantorID).Msg("render statement failed")
		writeError(w, http.StatusInternalServerError, "export failed")
		return
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="points_%s.xlsx"`, st.GuarantorID))
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}

func (s *HTTPServer) requireCaller(w http.ResponseWriter, r *http.Request) (string, bool) {
	uid, err := callerID(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return "", false
	}
	return uid, true
}

// decode reads a JSON body into dst and validates it. With optional set an
// empty body is accepted.
func (s *HTTPServer) decode(w http.ResponseWriter, r *http.Request, dst any, optional bool) bool {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		if !(optional && errors.Is(err, io.EOF)) {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return false
		}
	}
	if err := s.validate.Struct(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error":   "validation error",
			"details": err.Error(),
		})
		return false
	}
	return true
}

func (s *HTTPServer) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	ev := s.logger.Debug()
	if status >= http.StatusInternalServerError {
		ev = s.logger.Error()
	}
	ev.Err(err).Str("path", r.URL.Path).Str("client", clientName(r)).Int("status", status).Msg("request failed")

	switch status {
	case http.StatusServiceUnavailable:
		w.Header().Set("Retry-After", "1")
		writeError(w, status, "temporarily unavailable, retry later")
	case http.StatusInternalServerError:
		writeError(w, status, "internal error")
	default:
		writeError(w, status, err.Error())
	}
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, domain.ErrStoreFailure):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, map[string]string{"error": message})
}
