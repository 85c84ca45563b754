package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"tour-inventory/internal/models"
	"tour-inventory/internal/util"
)

const slotColumns = `tour_id, date, max_capacity, booked_count, reserved_count, available_count,
	base_price_override, is_available, updated_at, updated_by`

// GetSlot retrieves the slot of a tour on a date
func (s *Store) GetSlot(ctx context.Context, tourID string, date models.Date) (*models.InventorySlot, error) {
	return s.getSlot(ctx, tourID, date, "")
}

// GetSlotForUpdate retrieves and row-locks a slot; it must run inside WithTx
func (s *Store) GetSlotForUpdate(ctx context.Context, tourID string, date models.Date) (*models.InventorySlot, error) {
	return s.getSlot(ctx, tourID, date, " FOR UPDATE")
}

func (s *Store) getSlot(ctx context.Context, tourID string, date models.Date, lock string) (*models.InventorySlot, error) {
	var slot models.InventorySlot
	err := s.conn(ctx).GetContext(ctx, &slot,
		"SELECT "+slotColumns+" FROM inventory_slots WHERE tour_id = $1 AND date = $2"+lock,
		tourID, date)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.Errorf(models.CodeInventoryNotFound, "no inventory for tour %s on %s", tourID, date)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get slot: %w", err)
	}
	return &slot, nil
}

// ListSlots retrieves the slots of a tour in [start, end] ordered by date
func (s *Store) ListSlots(ctx context.Context, tourID string, start, end models.Date) ([]models.InventorySlot, error) {
	var slots []models.InventorySlot
	err := s.conn(ctx).SelectContext(ctx, &slots,
		"SELECT "+slotColumns+" FROM inventory_slots WHERE tour_id = $1 AND date BETWEEN $2 AND $3 ORDER BY date",
		tourID, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to list slots: %w", err)
	}
	return slots, nil
}

// UpsertSlot writes the operator-editable fields of a slot, creating it when
// missing. Counters are never written here; AdjustSlot owns them.
func (s *Store) UpsertSlot(ctx context.Context, slot *models.InventorySlot) error {
	query := `
		INSERT INTO inventory_slots (tour_id, date, max_capacity, base_price_override, is_available, updated_by)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (tour_id, date) DO UPDATE SET
			max_capacity = EXCLUDED.max_capacity,
			base_price_override = EXCLUDED.base_price_override,
			is_available = EXCLUDED.is_available,
			updated_by = EXCLUDED.updated_by,
			updated_at = NOW()
		RETURNING ` + slotColumns

	err := s.conn(ctx).GetContext(ctx, slot, query,
		slot.TourID, slot.Date, slot.MaxCapacity, slot.BasePriceOverride, slot.IsAvailable, slot.UpdatedBy)
	if isCheckViolation(err) {
		return models.Errorf(models.CodeInvalidCapacity,
			"capacity %d is below the %d participants already held on %s", slot.MaxCapacity, slot.Held(), slot.Date)
	}
	if err != nil {
		return fmt.Errorf("failed to upsert slot: %w", err)
	}
	return nil
}

// AdjustSlot atomically applies counter deltas to a slot. The row is locked
// for the read-check-write so concurrent adjustments of the same slot
// serialize; a delta that would overdraw capacity is rejected, never clamped.
func (s *Store) AdjustSlot(ctx context.Context, tourID string, date models.Date, deltaReserved, deltaBooked int) (*models.InventorySlot, error) {
	start := time.Now()
	defer func() {
		util.SlotAdjustLatency.Observe(time.Since(start).Seconds())
	}()

	var result *models.InventorySlot
	err := s.WithTx(ctx, func(ctx context.Context) error {
		slot, err := s.GetSlotForUpdate(ctx, tourID, date)
		if err != nil {
			return err
		}

		if err := slot.Adjust(deltaReserved, deltaBooked); err != nil {
			return err
		}

		var updated models.InventorySlot
		err = s.conn(ctx).GetContext(ctx, &updated, `
			UPDATE inventory_slots
			SET reserved_count = $1, booked_count = $2, updated_at = NOW()
			WHERE tour_id = $3 AND date = $4
			RETURNING `+slotColumns,
			slot.ReservedCount, slot.BookedCount, tourID, date)
		if err != nil {
			return fmt.Errorf("failed to adjust slot: %w", err)
		}

		result = &updated
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}
