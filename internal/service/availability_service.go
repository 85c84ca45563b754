package service

import (
	"context"

	"tour-inventory/internal/clock"
	"tour-inventory/internal/models"
	"tour-inventory/internal/util"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// DefaultMaxQueryDays bounds a range query, matching the bulk edit limit.
const DefaultMaxQueryDays = 365

// Per-date availability classification.
const (
	StatusOpen            = "open"
	StatusPartiallyBooked = "partially_booked"
	StatusFullyBooked     = "fully_booked"
	StatusNoInventory     = "no_inventory"
)

// DateAvailability answers "can a party of N book this date, and at what price".
type DateAvailability struct {
	TourID         string      `json:"tour_id"`
	Date           models.Date `json:"date"`
	Status         string      `json:"status"`
	Available      bool        `json:"available"`
	IsAvailable    bool        `json:"is_available"`
	MaxCapacity    int         `json:"max_capacity"`
	RemainingSpots int         `json:"remaining_spots"`
	Price          *PriceQuote `json:"price,omitempty"`
}

// RangeSummary counts dates of a range query by outcome.
type RangeSummary struct {
	TotalDates           int `json:"total_dates"`
	AvailableDates       int `json:"available_dates"`
	OpenDates            int `json:"open_dates"`
	PartiallyBookedDates int `json:"partially_booked_dates"`
	FullyBookedDates     int `json:"fully_booked_dates"`
	NoInventoryDates     int `json:"no_inventory_dates"`
}

type RangeAvailability struct {
	TourID       string             `json:"tour_id"`
	StartDate    models.Date        `json:"start_date"`
	EndDate      models.Date        `json:"end_date"`
	Participants int                `json:"participants"`
	Dates        []DateAvailability `json:"dates"`
	Summary      RangeSummary       `json:"summary"`
}

// DatePrice is one row of a price preview.
type DatePrice struct {
	Date  models.Date `json:"date"`
	Quote PriceQuote  `json:"quote"`
}

// AvailabilityService is the read side: per-date and range availability
// with prices. It never modifies slots.
type AvailabilityService struct {
	slots   SlotReader
	pricing *PricingResolver
	cache   SlotCache
	clock   clock.Clock
	maxDays int
	logger  *zap.Logger
}

// NewAvailabilityService creates a new availability service. cache may be nil.
func NewAvailabilityService(slots SlotReader, pricing *PricingResolver, cache SlotCache, clk clock.Clock, maxDays int) *AvailabilityService {
	if cache == nil {
		cache = nopCache{}
	}
	if maxDays <= 0 {
		maxDays = DefaultMaxQueryDays
	}
	return &AvailabilityService{
		slots:   slots,
		pricing: pricing,
		cache:   cache,
		clock:   clk,
		maxDays: maxDays,
		logger:  util.GetLogger(),
	}
}

// CheckOne reports availability and price of a single date.
func (s *AvailabilityService) CheckOne(ctx context.Context, tourID string, date models.Date, participants int) (*DateAvailability, error) {
	ctx, span := util.StartSpan(ctx, "AvailabilityService.CheckOne",
		attribute.String("tour_id", tourID),
		attribute.String("date", date.String()))
	defer span.End()

	util.AvailabilityChecksTotal.WithLabelValues("single").Inc()

	if participants < 1 {
		return nil, models.Errorf(models.CodeValidation, "participants must be at least 1, got %d", participants)
	}

	slot, err := s.loadSlot(ctx, tourID, date)
	if err != nil {
		util.RecordSpanError(span, err)
		return nil, err
	}

	quote, err := s.pricing.Quote(ctx, tourID, date, participants, slot)
	if err != nil {
		util.RecordSpanError(span, err)
		return nil, err
	}

	result := s.classify(tourID, date, participants, slot)
	result.Price = quote
	return &result, nil
}

// CheckRange reports availability of every date in [start, end]. Dates
// without a slot are listed as no_inventory rather than failing the query.
func (s *AvailabilityService) CheckRange(ctx context.Context, tourID string, start, end models.Date, participants int) (*RangeAvailability, error) {
	ctx, span := util.StartSpan(ctx, "AvailabilityService.CheckRange",
		attribute.String("tour_id", tourID),
		attribute.String("start", start.String()),
		attribute.String("end", end.String()))
	defer span.End()

	util.AvailabilityChecksTotal.WithLabelValues("range").Inc()

	if participants < 1 {
		return nil, models.Errorf(models.CodeValidation, "participants must be at least 1, got %d", participants)
	}
	if err := s.validateRange(start, end); err != nil {
		return nil, err
	}

	slots, err := s.slotsByDate(ctx, tourID, start, end)
	if err != nil {
		util.RecordSpanError(span, err)
		return nil, err
	}
	quotes, err := s.pricing.QuoteRange(ctx, tourID, start, end, participants, slots)
	if err != nil {
		util.RecordSpanError(span, err)
		return nil, err
	}

	result := &RangeAvailability{
		TourID:       tourID,
		StartDate:    start,
		EndDate:      end,
		Participants: participants,
		Dates:        make([]DateAvailability, 0, models.DaysInRange(start, end)),
	}
	for d := start; !d.After(end); d = d.AddDays(1) {
		entry := s.classify(tourID, d, participants, slots[d.String()])
		if entry.Status != StatusNoInventory {
			q := quotes[d.String()]
			entry.Price = &q
		}

		result.Summary.TotalDates++
		if entry.Available {
			result.Summary.AvailableDates++
		}
		switch entry.Status {
		case StatusOpen:
			result.Summary.OpenDates++
		case StatusPartiallyBooked:
			result.Summary.PartiallyBookedDates++
		case StatusFullyBooked:
			result.Summary.FullyBookedDates++
		case StatusNoInventory:
			result.Summary.NoInventoryDates++
		}
		result.Dates = append(result.Dates, entry)
	}
	return result, nil
}

// PricePreview prices every date of [start, end] that has inventory.
func (s *AvailabilityService) PricePreview(ctx context.Context, tourID string, start, end models.Date, participants int) ([]DatePrice, error) {
	ctx, span := util.StartSpan(ctx, "AvailabilityService.PricePreview")
	defer span.End()

	if participants < 0 {
		return nil, models.Errorf(models.CodeValidation, "participants must not be negative")
	}
	if err := s.validateRange(start, end); err != nil {
		return nil, err
	}

	slots, err := s.slotsByDate(ctx, tourID, start, end)
	if err != nil {
		return nil, err
	}
	quotes, err := s.pricing.QuoteRange(ctx, tourID, start, end, participants, slots)
	if err != nil {
		return nil, err
	}

	preview := make([]DatePrice, 0, len(slots))
	for d := start; !d.After(end); d = d.AddDays(1) {
		if slots[d.String()] == nil {
			continue
		}
		preview = append(preview, DatePrice{Date: d, Quote: quotes[d.String()]})
	}
	return preview, nil
}

// ListSlots returns the raw slots of a tour in [start, end].
func (s *AvailabilityService) ListSlots(ctx context.Context, tourID string, start, end models.Date) ([]models.InventorySlot, error) {
	if err := s.validateRange(start, end); err != nil {
		return nil, err
	}
	return s.slots.ListSlots(ctx, tourID, start, end)
}

// GetSlot returns one slot, bypassing the cache.
func (s *AvailabilityService) GetSlot(ctx context.Context, tourID string, date models.Date) (*models.InventorySlot, error) {
	return s.slots.GetSlot(ctx, tourID, date)
}

func (s *AvailabilityService) validateRange(start, end models.Date) error {
	if end.Before(start) {
		return models.Errorf(models.CodeValidation, "end date %s is before start date %s", end, start)
	}
	if days := models.DaysInRange(start, end); days > s.maxDays {
		return models.Errorf(models.CodeValidation, "range of %d days exceeds the %d day limit", days, s.maxDays)
	}
	return nil
}

func (s *AvailabilityService) slotsByDate(ctx context.Context, tourID string, start, end models.Date) (map[string]*models.InventorySlot, error) {
	slots, err := s.slots.ListSlots(ctx, tourID, start, end)
	if err != nil {
		return nil, err
	}
	byDate := make(map[string]*models.InventorySlot, len(slots))
	for i := range slots {
		byDate[slots[i].Date.String()] = &slots[i]
	}
	return byDate, nil
}

// loadSlot reads through the cache. Cache failures fall back to the store.
func (s *AvailabilityService) loadSlot(ctx context.Context, tourID string, date models.Date) (*models.InventorySlot, error) {
	cached, ok, err := s.cache.GetSlot(ctx, tourID, date)
	if err != nil {
		s.logger.Warn("Slot cache read failed", zap.String("tour_id", tourID), zap.Error(err))
	}
	if ok {
		util.AvailabilityCacheTotal.WithLabelValues("hit").Inc()
		return cached, nil
	}
	util.AvailabilityCacheTotal.WithLabelValues("miss").Inc()

	generation, genErr := s.cache.Generation(ctx, tourID, date)
	if genErr != nil {
		s.logger.Warn("Slot cache generation read failed", zap.String("tour_id", tourID), zap.Error(genErr))
	}

	slot, err := s.slots.GetSlot(ctx, tourID, date)
	if err != nil {
		return nil, err
	}
	if genErr != nil {
		return slot, nil
	}

	stored, err := s.cache.SetSlot(ctx, slot, generation)
	if err != nil {
		s.logger.Warn("Slot cache write failed", zap.String("tour_id", tourID), zap.Error(err))
	} else if !stored {
		util.AvailabilityCacheTotal.WithLabelValues("stale_fill").Inc()
	}
	return slot, nil
}

// classify derives the status of a date. A slot that is closed or dated in
// the past still reports its counters but is never available.
func (s *AvailabilityService) classify(tourID string, date models.Date, participants int, slot *models.InventorySlot) DateAvailability {
	if slot == nil {
		return DateAvailability{TourID: tourID, Date: date, Status: StatusNoInventory}
	}

	status := StatusPartiallyBooked
	switch {
	case slot.AvailableCount <= 0:
		status = StatusFullyBooked
	case slot.AvailableCount >= slot.MaxCapacity:
		status = StatusOpen
	}

	past := date.Before(models.DateOf(s.clock.Now()))
	return DateAvailability{
		TourID:         tourID,
		Date:           date,
		Status:         status,
		Available:      !past && slot.CanHold(participants),
		IsAvailable:    slot.IsAvailable,
		MaxCapacity:    slot.MaxCapacity,
		RemainingSpots: slot.AvailableCount,
	}
}
