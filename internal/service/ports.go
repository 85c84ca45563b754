package service

import (
	"context"
	"time"

	"tour-inventory/internal/models"
)

// TxRunner runs fn in a transaction carried by the context passed to it.
type TxRunner interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// SlotReader is the read side of the slot store.
type SlotReader interface {
	GetSlot(ctx context.Context, tourID string, date models.Date) (*models.InventorySlot, error)
	ListSlots(ctx context.Context, tourID string, start, end models.Date) ([]models.InventorySlot, error)
}

// SlotStore is the durable record of capacity per (tour, date). AdjustSlot
// is the only operation that changes the booked and reserved counters.
type SlotStore interface {
	SlotReader
	GetSlotForUpdate(ctx context.Context, tourID string, date models.Date) (*models.InventorySlot, error)
	UpsertSlot(ctx context.Context, slot *models.InventorySlot) error
	AdjustSlot(ctx context.Context, tourID string, date models.Date, deltaReserved, deltaBooked int) (*models.InventorySlot, error)
}

type ReservationStore interface {
	CreateReservation(ctx context.Context, r *models.Reservation) error
	GetReservation(ctx context.Context, id string) (*models.Reservation, error)
	GetReservationForUpdate(ctx context.Context, id string) (*models.Reservation, error)
	GetActiveReservationByBookingID(ctx context.Context, bookingID string) (*models.Reservation, error)
	ListReservationsByBookingID(ctx context.Context, bookingID string) ([]models.Reservation, error)
	UpdateReservationState(ctx context.Context, id string, from, to models.ReservationState, reason string, at time.Time) error
	ListExpiredReservations(ctx context.Context, now time.Time, limit int) ([]models.Reservation, error)
}

// PricingReader supplies the inputs of price resolution.
type PricingReader interface {
	GetTour(ctx context.Context, id string) (*models.Tour, error)
	ListActiveRules(ctx context.Context, tourID string, start, end models.Date) ([]models.SeasonalPricingRule, error)
}

type RuleStore interface {
	PricingReader
	CreateRule(ctx context.Context, rule *models.SeasonalPricingRule) error
	ListRules(ctx context.Context, tourID string) ([]models.SeasonalPricingRule, error)
	SetRuleActive(ctx context.Context, ruleID string, active bool) (*models.SeasonalPricingRule, error)
}

type ProcessedEventStore interface {
	IsEventProcessed(ctx context.Context, eventID string) (bool, error)
	MarkEventProcessed(ctx context.Context, eventID, eventType string) error
}

// EventPublisher announces state changes to other services.
type EventPublisher interface {
	PublishReservationEvent(ctx context.Context, event *models.ReservationEvent) error
	PublishInventoryUpdated(ctx context.Context, event *models.InventoryUpdatedEvent) error
}

// SlotCache holds short-lived slot snapshots for the read path. Every
// InvalidateSlot bumps the key's generation; SetSlot only stores a snapshot
// when the generation still matches the one read before the store lookup,
// so a slow reader cannot re-cache a slot a writer just invalidated.
type SlotCache interface {
	GetSlot(ctx context.Context, tourID string, date models.Date) (*models.InventorySlot, bool, error)
	Generation(ctx context.Context, tourID string, date models.Date) (int64, error)
	SetSlot(ctx context.Context, slot *models.InventorySlot, generation int64) (bool, error)
	InvalidateSlot(ctx context.Context, tourID string, date models.Date) error
}

type nopPublisher struct{}

func (nopPublisher) PublishReservationEvent(context.Context, *models.ReservationEvent) error {
	return nil
}

func (nopPublisher) PublishInventoryUpdated(context.Context, *models.InventoryUpdatedEvent) error {
	return nil
}

type nopCache struct{}

func (nopCache) GetSlot(context.Context, string, models.Date) (*models.InventorySlot, bool, error) {
	return nil, false, nil
}

func (nopCache) Generation(context.Context, string, models.Date) (int64, error) { return 0, nil }

func (nopCache) SetSlot(context.Context, *models.InventorySlot, int64) (bool, error) {
	return false, nil
}

func (nopCache) InvalidateSlot(context.Context, string, models.Date) error { return nil }
