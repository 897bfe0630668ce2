package events

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const (
	EventBookingCreated       = "booking_created"
	EventBookingCancelled     = "booking_cancelled"
	EventBookingStatusChanged = "booking_status_changed"
	EventGuarantorRequested   = "guarantor_requested"
	EventGuarantorAccepted    = "guarantor_accepted"
	EventGuarantorRejected    = "guarantor_rejected"
	EventPointsAllocated      = "points_allocated"
	EventPointsReversed       = "points_reversed"
)

// AllTypes lists every event type the system emits.
var AllTypes = []string{
	EventBookingCreated,
	EventBookingCancelled,
	EventBookingStatusChanged,
	EventGuarantorRequested,
	EventGuarantorAccepted,
	EventGuarantorRejected,
	EventPointsAllocated,
	EventPointsReversed,
}

// BookingEventPayload is the booking snapshot sent to event consumers.
type BookingEventPayload struct {
	BookingID  string          `json:"booking_id"`
	CarID      string          `json:"car_id"`
	UserID     string          `json:"user_id"`
	Status     string          `json:"status"`
	PrevStatus string          `json:"prev_status,omitempty"`
	StartAt    time.Time       `json:"start_at"`
	EndAt      time.Time       `json:"end_at"`
	FinalPrice decimal.Decimal `json:"final_price"`
	Reason     string          `json:"reason,omitempty"`
	ChangedBy  string          `json:"changed_by,omitempty"`
}

type GuarantorEventPayload struct {
	RequestID   string `json:"request_id"`
	BookingID   string `json:"booking_id"`
	UserID      string `json:"user_id"`
	GuarantorID string `json:"guarantor_id"`
	Status      string `json:"status"`
	Reason      string `json:"reason,omitempty"`
}

// PointsEventPayload carries exact values; consumers round for display.
type PointsEventPayload struct {
	BookingID       string          `json:"booking_id"`
	GuarantorID     string          `json:"guarantor_id"`
	Points          decimal.Decimal `json:"points"`
	BalanceDelta    decimal.Decimal `json:"balance_delta"`
	TotalGuarantors int             `json:"total_guarantors"`
	Reason          string          `json:"reason,omitempty"`
}

type Event struct {
	ID        string
	Type      string
	Payload   []byte
	CreatedAt time.Time
}

type EventHandler func(event *Event) error

// EventBus is an in-process pub/sub. Handlers run synchronously on the
// publishing goroutine; handler errors are logged, never returned.
type EventBus struct {
	subscribers map[string][]EventHandler
	wildcard    []EventHandler
	mu          sync.RWMutex
	logger      *zerolog.Logger
}

func NewEventBus(logger *zerolog.Logger) *EventBus {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &EventBus{subscribers: make(map[string][]EventHandler), logger: logger}
}

func (b *EventBus) Subscribe(eventType string, handler EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[eventType] = append(b.subscribers[eventType], handler)
}

// SubscribeAll registers a handler for every event type.
func (b *EventBus) SubscribeAll(handler EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.wildcard = append(b.wildcard, handler)
}

func (b *EventBus) Publish(event *Event) {
	b.mu.RLock()
	handlers := make([]EventHandler, 0, len(b.subscribers[event.Type])+len(b.wildcard))
	handlers = append(handlers, b.subscribers[event.Type]...)
	handlers = append(handlers, b.wildcard...)
	b.mu.RUnlock()

	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	for _, handler := range handlers {
		if err := handler(event); err != nil {
			b.logger.Warn().Err(err).Str("event_type", event.Type).Str("event_id", event.ID).Msg("Event handler failed")
		}
	}
}

// PublishJSON serializes the payload and publishes an event. A nil bus is a
// no-op.
func (b *EventBus) PublishJSON(eventType string, payload interface{}) error {
	if b == nil {
		return nil
	}

	ev, err := NewJSONEvent(eventType, payload)
	if err != nil {
		return err
	}
	b.Publish(&ev)
	return nil
}

func NewJSONEvent(eventType string, payload interface{}) (Event, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Event{}, err
	}
	return Event{ID: uuid.NewString(), Type: eventType, Payload: raw, CreatedAt: time.Now()}, nil
}
