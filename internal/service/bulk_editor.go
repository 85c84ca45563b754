package service

import (
	"context"
	"errors"

	"tour-inventory/internal/clock"
	"tour-inventory/internal/models"
	"tour-inventory/internal/util"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// DefaultMaxBulkRangeDays is the widest range one bulk edit may touch.
const DefaultMaxBulkRangeDays = 365

// BulkStores is what operator edits persist through.
type BulkStores interface {
	TxRunner
	SlotStore
}

// SlotEdit is a partial update of a slot's operator-editable fields. Nil
// fields are left unchanged.
type SlotEdit struct {
	MaxCapacity        *int   `json:"max_capacity,omitempty"`
	BasePriceOverride  *int64 `json:"base_price_override,omitempty"`
	ClearPriceOverride bool   `json:"clear_price_override,omitempty"`
	IsAvailable        *bool  `json:"is_available,omitempty"`
	UpdatedBy          string `json:"updated_by,omitempty"`
}

// DateFailure is one date a bulk edit could not apply.
type DateFailure struct {
	Date  models.Date `json:"date"`
	Code  string      `json:"code"`
	Error string      `json:"error"`
}

// RangeEditResult reports per-date outcomes. A failed date never prevents
// the others from being applied.
type RangeEditResult struct {
	Updated []models.InventorySlot `json:"updated"`
	Failed  []DateFailure          `json:"failed"`
}

// BulkEditor applies operator edits to one slot or a date range.
type BulkEditor struct {
	store     BulkStores
	publisher EventPublisher
	cache     SlotCache
	clock     clock.Clock
	maxDays   int
	logger    *zap.Logger
}

// NewBulkEditor creates a new bulk editor. publisher and cache may be nil.
func NewBulkEditor(store BulkStores, publisher EventPublisher, cache SlotCache, clk clock.Clock, maxDays int) *BulkEditor {
	if publisher == nil {
		publisher = nopPublisher{}
	}
	if cache == nil {
		cache = nopCache{}
	}
	if maxDays <= 0 {
		maxDays = DefaultMaxBulkRangeDays
	}
	return &BulkEditor{
		store:     store,
		publisher: publisher,
		cache:     cache,
		clock:     clk,
		maxDays:   maxDays,
		logger:    util.GetLogger(),
	}
}

// UpsertSlot applies edit to a single date, creating the slot when missing.
func (e *BulkEditor) UpsertSlot(ctx context.Context, tourID string, date models.Date, edit SlotEdit) (*models.InventorySlot, error) {
	ctx, span := util.StartSpan(ctx, "BulkEditor.UpsertSlot",
		attribute.String("tour_id", tourID),
		attribute.String("date", date.String()))
	defer span.End()

	if err := validateEdit(edit); err != nil {
		return nil, err
	}

	slot, err := e.applyOne(ctx, tourID, date, edit, models.DateOf(e.clock.Now()))
	if err != nil {
		util.RecordSpanError(span, err)
		return nil, err
	}

	e.publishUpdated(ctx, tourID, date, date, 1, 0, edit.UpdatedBy)
	return slot, nil
}

// ApplyRange applies edit to every date of [start, end]. Ranges wider than
// the configured limit are rejected before any date is touched.
func (e *BulkEditor) ApplyRange(ctx context.Context, tourID string, start, end models.Date, edit SlotEdit) (*RangeEditResult, error) {
	ctx, span := util.StartSpan(ctx, "BulkEditor.ApplyRange",
		attribute.String("tour_id", tourID),
		attribute.String("start", start.String()),
		attribute.String("end", end.String()))
	defer span.End()

	if err := validateEdit(edit); err != nil {
		return nil, err
	}
	if end.Before(start) {
		return nil, models.Errorf(models.CodeValidation, "end date %s is before start date %s", end, start)
	}
	if days := models.DaysInRange(start, end); days > e.maxDays {
		return nil, models.Errorf(models.CodeBulkUpdateLimitExceeded,
			"range of %d days exceeds the %d day limit", days, e.maxDays)
	}

	today := models.DateOf(e.clock.Now())
	result := &RangeEditResult{
		Updated: []models.InventorySlot{},
		Failed:  []DateFailure{},
	}
	for d := start; !d.After(end); d = d.AddDays(1) {
		if ctx.Err() != nil {
			return result, ctx.Err()
		}

		slot, err := e.applyOne(ctx, tourID, d, edit, today)
		if err != nil {
			util.BulkUpdateDatesTotal.WithLabelValues("failed").Inc()
			if !models.IsBusiness(err) {
				e.logger.Error("Failed to apply bulk edit",
					zap.String("tour_id", tourID),
					zap.String("date", d.String()),
					zap.Error(err))
			}
			result.Failed = append(result.Failed, DateFailure{
				Date:  d,
				Code:  models.ErrorCode(err),
				Error: err.Error(),
			})
			continue
		}
		util.BulkUpdateDatesTotal.WithLabelValues("updated").Inc()
		result.Updated = append(result.Updated, *slot)
	}

	e.logger.Info("Bulk edit applied",
		zap.String("tour_id", tourID),
		zap.String("start", start.String()),
		zap.String("end", end.String()),
		zap.Int("updated", len(result.Updated)),
		zap.Int("failed", len(result.Failed)))

	if len(result.Updated) > 0 {
		e.publishUpdated(ctx, tourID, start, end, len(result.Updated), len(result.Failed), edit.UpdatedBy)
	}
	return result, nil
}

// applyOne edits a single date in its own transaction. The slot row is
// locked so a capacity change cannot race a hold on the same date.
func (e *BulkEditor) applyOne(ctx context.Context, tourID string, date models.Date, edit SlotEdit, today models.Date) (*models.InventorySlot, error) {
	if date.Before(today) {
		return nil, models.Errorf(models.CodeDateInPast, "cannot edit %s, it is in the past", date)
	}

	var slot *models.InventorySlot
	err := e.store.WithTx(ctx, func(ctx context.Context) error {
		current, err := e.store.GetSlotForUpdate(ctx, tourID, date)
		if err != nil && !errors.Is(err, models.ErrInventoryNotFound) {
			return err
		}

		merged, err := mergeEdit(tourID, date, current, edit)
		if err != nil {
			return err
		}
		if err := e.store.UpsertSlot(ctx, merged); err != nil {
			return err
		}
		slot = merged
		return nil
	})
	if err != nil {
		return nil, err
	}

	if err := e.cache.InvalidateSlot(ctx, tourID, date); err != nil {
		e.logger.Warn("Failed to invalidate slot cache", zap.String("tour_id", tourID), zap.Error(err))
	}
	return slot, nil
}

// mergeEdit overlays edit on current. A new slot needs an explicit capacity
// and opens for sale unless the edit says otherwise.
func mergeEdit(tourID string, date models.Date, current *models.InventorySlot, edit SlotEdit) (*models.InventorySlot, error) {
	var merged models.InventorySlot
	if current != nil {
		merged = *current
	} else {
		if edit.MaxCapacity == nil {
			return nil, models.Errorf(models.CodeInvalidCapacity,
				"no inventory for tour %s on %s; max_capacity is required to create it", tourID, date)
		}
		merged = models.InventorySlot{TourID: tourID, Date: date, IsAvailable: true}
	}

	if edit.MaxCapacity != nil {
		merged.MaxCapacity = *edit.MaxCapacity
	}
	if edit.ClearPriceOverride {
		merged.BasePriceOverride = nil
	} else if edit.BasePriceOverride != nil {
		price := *edit.BasePriceOverride
		merged.BasePriceOverride = &price
	}
	if edit.IsAvailable != nil {
		merged.IsAvailable = *edit.IsAvailable
	}
	merged.UpdatedBy = edit.UpdatedBy

	if merged.MaxCapacity < merged.Held() {
		return nil, models.Errorf(models.CodeInvalidCapacity,
			"capacity %d is below the %d participants already held on %s", merged.MaxCapacity, merged.Held(), date)
	}
	merged.Recompute()
	return &merged, nil
}

func validateEdit(edit SlotEdit) error {
	if edit.MaxCapacity == nil && edit.BasePriceOverride == nil && !edit.ClearPriceOverride && edit.IsAvailable == nil {
		return models.Errorf(models.CodeValidation, "edit changes nothing")
	}
	if edit.MaxCapacity != nil && *edit.MaxCapacity < 1 {
		return models.Errorf(models.CodeInvalidCapacity, "max_capacity must be at least 1, got %d", *edit.MaxCapacity)
	}
	if edit.BasePriceOverride != nil && *edit.BasePriceOverride < 0 {
		return models.Errorf(models.CodeValidation, "base_price_override must not be negative")
	}
	if edit.BasePriceOverride != nil && edit.ClearPriceOverride {
		return models.Errorf(models.CodeValidation, "base_price_override and clear_price_override are exclusive")
	}
	return nil
}

func (e *BulkEditor) publishUpdated(ctx context.Context, tourID string, start, end models.Date, updated, failed int, updatedBy string) {
	event := &models.InventoryUpdatedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeInventoryUpdated,
			Timestamp: e.clock.Now(),
		},
		TourID:    tourID,
		StartDate: start,
		EndDate:   end,
		Updated:   updated,
		Failed:    failed,
		UpdatedBy: updatedBy,
	}
	if err := e.publisher.PublishInventoryUpdated(ctx, event); err != nil {
		e.logger.Error("Failed to publish InventoryUpdated event", zap.String("tour_id", tourID), zap.Error(err))
	}
}
