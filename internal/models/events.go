package models

import "time"

// Event types
const (
	EventTypeReservationHeld      = "RESERVATION_HELD"
	EventTypeReservationConfirmed = "RESERVATION_CONFIRMED"
	EventTypeReservationReleased  = "RESERVATION_RELEASED"
	EventTypeReservationExpired   = "RESERVATION_EXPIRED"
	EventTypeInventoryUpdated     = "INVENTORY_UPDATED"
	EventTypePaymentSuccess       = "PAYMENT_SUCCESS"
	EventTypePaymentFailed        = "PAYMENT_FAILED"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// ReservationEvent is published on every reservation state change
type ReservationEvent struct {
	BaseEvent
	ReservationID  string           `json:"reservation_id"`
	BookingID      string           `json:"booking_id"`
	TourID         string           `json:"tour_id"`
	Date           Date             `json:"date"`
	Participants   int              `json:"participants"`
	State          ReservationState `json:"state"`
	Reason         string           `json:"reason,omitempty"`
	ExpiresAt      time.Time        `json:"expires_at"`
	AvailableCount int              `json:"available_count"`
}

// InventoryUpdatedEvent is published after an operator edit
type InventoryUpdatedEvent struct {
	BaseEvent
	TourID    string `json:"tour_id"`
	StartDate Date   `json:"start_date"`
	EndDate   Date   `json:"end_date"`
	Updated   int    `json:"updated"`
	Failed    int    `json:"failed"`
	UpdatedBy string `json:"updated_by,omitempty"`
}

// PaymentSuccessEvent published by the payment collaborator
type PaymentSuccessEvent struct {
	BaseEvent
	ReservationID string `json:"reservation_id"`
	BookingID     string `json:"booking_id"`
	PaymentID     string `json:"payment_id"`
	Amount        int64  `json:"amount"`
	TxID          string `json:"tx_id"`
}

// PaymentFailedEvent published by the payment collaborator
type PaymentFailedEvent struct {
	BaseEvent
	ReservationID string `json:"reservation_id"`
	BookingID     string `json:"booking_id"`
	PaymentID     string `json:"payment_id"`
	Reason        string `json:"reason"`
}
