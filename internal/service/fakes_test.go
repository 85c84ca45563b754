package service

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"tour-inventory/internal/models"
)

// fakeStore is an in-memory store. Transactions are serialized by txMu and
// roll back by restoring a snapshot; mu guards the maps themselves.
type fakeStore struct {
	txMu sync.Mutex

	mu           sync.Mutex
	tours        map[string]models.Tour
	slots        map[string]models.InventorySlot
	reservations map[string]models.Reservation
	rules        map[string]models.SeasonalPricingRule
	processed    map[string]string

	adjustCalls int
	failAdjust  error
}

type fakeTxKey struct{}

func newFakeStore() *fakeStore {
	return &fakeStore{
		tours:        map[string]models.Tour{},
		slots:        map[string]models.InventorySlot{},
		reservations: map[string]models.Reservation{},
		rules:        map[string]models.SeasonalPricingRule{},
		processed:    map[string]string{},
	}
}

func fakeSlotKey(tourID string, date models.Date) string {
	return tourID + "/" + date.String()
}

func (f *fakeStore) addTour(id string, basePrice int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tours[id] = models.Tour{ID: id, Name: id, BasePrice: basePrice}
}

func (f *fakeStore) addSlot(tourID string, date models.Date, capacity int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	slot := models.InventorySlot{TourID: tourID, Date: date, MaxCapacity: capacity, IsAvailable: true}
	slot.Recompute()
	f.slots[fakeSlotKey(tourID, date)] = slot
}

func (f *fakeStore) slot(tourID string, date models.Date) models.InventorySlot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.slots[fakeSlotKey(tourID, date)]
}

func (f *fakeStore) reservation(id string) models.Reservation {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reservations[id]
}

func (f *fakeStore) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx.Value(fakeTxKey{}) != nil {
		return fn(ctx)
	}

	f.txMu.Lock()
	defer f.txMu.Unlock()

	f.mu.Lock()
	slots := make(map[string]models.InventorySlot, len(f.slots))
	for k, v := range f.slots {
		slots[k] = v
	}
	reservations := make(map[string]models.Reservation, len(f.reservations))
	for k, v := range f.reservations {
		reservations[k] = v
	}
	f.mu.Unlock()

	if err := fn(context.WithValue(ctx, fakeTxKey{}, true)); err != nil {
		f.mu.Lock()
		f.slots = slots
		f.reservations = reservations
		f.mu.Unlock()
		return err
	}
	return nil
}

func (f *fakeStore) GetSlot(_ context.Context, tourID string, date models.Date) (*models.InventorySlot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	slot, ok := f.slots[fakeSlotKey(tourID, date)]
	if !ok {
		return nil, models.Errorf(models.CodeInventoryNotFound, "no inventory for tour %s on %s", tourID, date)
	}
	return &slot, nil
}

func (f *fakeStore) GetSlotForUpdate(ctx context.Context, tourID string, date models.Date) (*models.InventorySlot, error) {
	return f.GetSlot(ctx, tourID, date)
}

func (f *fakeStore) ListSlots(_ context.Context, tourID string, start, end models.Date) ([]models.InventorySlot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.InventorySlot
	for _, slot := range f.slots {
		if slot.TourID == tourID && !slot.Date.Before(start) && !slot.Date.After(end) {
			out = append(out, slot)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

func (f *fakeStore) UpsertSlot(_ context.Context, slot *models.InventorySlot) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := fakeSlotKey(slot.TourID, slot.Date)
	stored := *slot
	if existing, ok := f.slots[key]; ok {
		stored.BookedCount = existing.BookedCount
		stored.ReservedCount = existing.ReservedCount
	} else {
		stored.BookedCount, stored.ReservedCount = 0, 0
	}
	if stored.Held() > stored.MaxCapacity {
		return models.Errorf(models.CodeInvalidCapacity, "capacity below held")
	}
	stored.Recompute()
	f.slots[key] = stored
	*slot = stored
	return nil
}

func (f *fakeStore) AdjustSlot(_ context.Context, tourID string, date models.Date, deltaReserved, deltaBooked int) (*models.InventorySlot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.adjustCalls++
	if f.failAdjust != nil {
		return nil, f.failAdjust
	}
	key := fakeSlotKey(tourID, date)
	slot, ok := f.slots[key]
	if !ok {
		return nil, models.Errorf(models.CodeInventoryNotFound, "no inventory for tour %s on %s", tourID, date)
	}
	if err := slot.Adjust(deltaReserved, deltaBooked); err != nil {
		return nil, err
	}
	f.slots[key] = slot
	return &slot, nil
}

func (f *fakeStore) CreateReservation(_ context.Context, r *models.Reservation) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.reservations {
		if existing.BookingID == r.BookingID && existing.State == models.ReservationStateReserved {
			return models.Errorf(models.CodeReservationConflict, "booking %s already holds a reservation", r.BookingID)
		}
	}
	f.reservations[r.ID] = *r
	return nil
}

func (f *fakeStore) GetReservation(_ context.Context, id string) (*models.Reservation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.reservations[id]
	if !ok {
		return nil, models.Errorf(models.CodeReservationNotFound, "reservation %s not found", id)
	}
	return &r, nil
}

func (f *fakeStore) GetReservationForUpdate(ctx context.Context, id string) (*models.Reservation, error) {
	return f.GetReservation(ctx, id)
}

func (f *fakeStore) GetActiveReservationByBookingID(_ context.Context, bookingID string) (*models.Reservation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.reservations {
		if r.BookingID == bookingID && r.State == models.ReservationStateReserved {
			found := r
			return &found, nil
		}
	}
	return nil, nil
}

func (f *fakeStore) ListReservationsByBookingID(_ context.Context, bookingID string) ([]models.Reservation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Reservation
	for _, r := range f.reservations {
		if r.BookingID == bookingID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ReservedAt.Before(out[j].ReservedAt) })
	return out, nil
}

func (f *fakeStore) UpdateReservationState(_ context.Context, id string, from, to models.ReservationState, reason string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.reservations[id]
	if !ok || r.State != from {
		return models.Errorf(models.CodeReservationConflict, "reservation %s is not %s", id, from)
	}
	r.State = to
	r.Reason = reason
	r.ResolvedAt = &at
	f.reservations[id] = r
	return nil
}

func (f *fakeStore) ListExpiredReservations(_ context.Context, now time.Time, limit int) ([]models.Reservation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Reservation
	for _, r := range f.reservations {
		if r.State == models.ReservationStateReserved && r.ExpiresAt.Before(now) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ExpiresAt.Before(out[j].ExpiresAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeStore) GetTour(_ context.Context, id string) (*models.Tour, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	tour, ok := f.tours[id]
	if !ok {
		return nil, models.Errorf(models.CodeInventoryNotFound, "tour %s not found", id)
	}
	return &tour, nil
}

func (f *fakeStore) ListActiveRules(_ context.Context, tourID string, start, end models.Date) ([]models.SeasonalPricingRule, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.SeasonalPricingRule
	for _, rule := range f.rules {
		if rule.TourID == tourID && rule.IsActive && !rule.EndDate.Before(start) && !rule.StartDate.After(end) {
			out = append(out, rule)
		}
	}
	return out, nil
}

func (f *fakeStore) CreateRule(_ context.Context, rule *models.SeasonalPricingRule) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.rules {
		if existing.TourID == rule.TourID && existing.Name == rule.Name {
			return models.Errorf(models.CodeSeasonalPricingConflict, "rule %q already exists", rule.Name)
		}
	}
	f.rules[rule.ID] = *rule
	return nil
}

func (f *fakeStore) ListRules(_ context.Context, tourID string) ([]models.SeasonalPricingRule, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.SeasonalPricingRule
	for _, rule := range f.rules {
		if rule.TourID == tourID {
			out = append(out, rule)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (f *fakeStore) SetRuleActive(_ context.Context, ruleID string, active bool) (*models.SeasonalPricingRule, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rule, ok := f.rules[ruleID]
	if !ok {
		return nil, models.Errorf(models.CodeInventoryNotFound, "pricing rule %s not found", ruleID)
	}
	rule.IsActive = active
	f.rules[ruleID] = rule
	return &rule, nil
}

func (f *fakeStore) IsEventProcessed(_ context.Context, eventID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.processed[eventID]
	return ok, nil
}

func (f *fakeStore) MarkEventProcessed(_ context.Context, eventID, eventType string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.processed[eventID] = eventType
	return nil
}

// recordingPublisher captures published events.
type recordingPublisher struct {
	mu        sync.Mutex
	events    []models.ReservationEvent
	inventory []models.InventoryUpdatedEvent
	err       error
}

func (p *recordingPublisher) PublishReservationEvent(_ context.Context, event *models.ReservationEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, *event)
	return p.err
}

func (p *recordingPublisher) PublishInventoryUpdated(_ context.Context, event *models.InventoryUpdatedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.inventory = append(p.inventory, *event)
	return p.err
}

func (p *recordingPublisher) eventTypes() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	types := make([]string, 0, len(p.events))
	for _, e := range p.events {
		types = append(types, e.EventType)
	}
	return types
}

// mapCache is a SlotCache over a map.
type mapCache struct {
	mu          sync.Mutex
	slots       map[string]models.InventorySlot
	generations map[string]int64
	invalidated int
	getErr      error
}

func newMapCache() *mapCache {
	return &mapCache{slots: map[string]models.InventorySlot{}, generations: map[string]int64{}}
}

func (c *mapCache) GetSlot(_ context.Context, tourID string, date models.Date) (*models.InventorySlot, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.getErr != nil {
		return nil, false, c.getErr
	}
	slot, ok := c.slots[fakeSlotKey(tourID, date)]
	if !ok {
		return nil, false, nil
	}
	return &slot, true, nil
}

func (c *mapCache) Generation(_ context.Context, tourID string, date models.Date) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generations[fakeSlotKey(tourID, date)], nil
}

func (c *mapCache) SetSlot(_ context.Context, slot *models.InventorySlot, generation int64) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := fakeSlotKey(slot.TourID, slot.Date)
	if c.generations[key] != generation {
		return false, nil
	}
	c.slots[key] = *slot
	return true, nil
}

func (c *mapCache) InvalidateSlot(_ context.Context, tourID string, date models.Date) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := fakeSlotKey(tourID, date)
	c.invalidated++
	c.generations[key]++
	delete(c.slots, key)
	return nil
}

var errDatabaseDown = errors.New("connection refused")
