package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"tour-inventory/internal/models"
)

const reservationColumns = `id, booking_id, tour_id, date, participants, state, reason, reserved_at, expires_at, resolved_at`

// CreateReservation inserts a new reservation
func (s *Store) CreateReservation(ctx context.Context, r *models.Reservation) error {
	_, err := s.conn(ctx).ExecContext(ctx, `
		INSERT INTO reservations (id, booking_id, tour_id, date, participants, state, reason, reserved_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		r.ID, r.BookingID, r.TourID, r.Date, r.Participants, r.State, r.Reason, r.ReservedAt, r.ExpiresAt)
	if isUniqueViolation(err) {
		return models.Errorf(models.CodeReservationConflict, "booking %s already has an active reservation", r.BookingID)
	}
	if err != nil {
		return fmt.Errorf("failed to create reservation: %w", err)
	}
	return nil
}

// GetReservation retrieves a reservation by ID
func (s *Store) GetReservation(ctx context.Context, id string) (*models.Reservation, error) {
	return s.getReservation(ctx, id, "")
}

// GetReservationForUpdate retrieves and row-locks a reservation; it must run inside WithTx
func (s *Store) GetReservationForUpdate(ctx context.Context, id string) (*models.Reservation, error) {
	return s.getReservation(ctx, id, " FOR UPDATE")
}

func (s *Store) getReservation(ctx context.Context, id, lock string) (*models.Reservation, error) {
	var r models.Reservation
	err := s.conn(ctx).GetContext(ctx, &r,
		"SELECT "+reservationColumns+" FROM reservations WHERE id = $1"+lock, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.Errorf(models.CodeReservationNotFound, "reservation not found: %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get reservation: %w", err)
	}
	return &r, nil
}

// GetActiveReservationByBookingID returns the reserved hold of a booking, or nil
func (s *Store) GetActiveReservationByBookingID(ctx context.Context, bookingID string) (*models.Reservation, error) {
	var r models.Reservation
	err := s.conn(ctx).GetContext(ctx, &r,
		"SELECT "+reservationColumns+" FROM reservations WHERE booking_id = $1 AND state = $2",
		bookingID, models.ReservationStateReserved)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get reservation by booking: %w", err)
	}
	return &r, nil
}

// ListReservationsByBookingID retrieves every reservation of a booking, newest first
func (s *Store) ListReservationsByBookingID(ctx context.Context, bookingID string) ([]models.Reservation, error) {
	var rs []models.Reservation
	err := s.conn(ctx).SelectContext(ctx, &rs,
		"SELECT "+reservationColumns+" FROM reservations WHERE booking_id = $1 ORDER BY reserved_at DESC", bookingID)
	if err != nil {
		return nil, fmt.Errorf("failed to list reservations: %w", err)
	}
	return rs, nil
}

// UpdateReservationState moves a reservation from one state to another. The
// update only applies while the row is still in from, so a concurrent
// transition makes it fail with RESERVATION_CONFLICT instead of overwriting.
func (s *Store) UpdateReservationState(ctx context.Context, id string, from, to models.ReservationState, reason string, at time.Time) error {
	res, err := s.conn(ctx).ExecContext(ctx, `
		UPDATE reservations SET state = $1, reason = $2, resolved_at = $3
		WHERE id = $4 AND state = $5`,
		to, reason, at, id, from)
	if err != nil {
		return fmt.Errorf("failed to update reservation state: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update reservation state: %w", err)
	}
	if n == 0 {
		return models.Errorf(models.CodeReservationConflict, "reservation %s is no longer %s", id, from)
	}
	return nil
}

// ListExpiredReservations retrieves reserved holds whose expiry is before now
func (s *Store) ListExpiredReservations(ctx context.Context, now time.Time, limit int) ([]models.Reservation, error) {
	var rs []models.Reservation
	err := s.conn(ctx).SelectContext(ctx, &rs,
		"SELECT "+reservationColumns+" FROM reservations WHERE state = $1 AND expires_at < $2 ORDER BY expires_at LIMIT $3",
		models.ReservationStateReserved, now, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list expired reservations: %w", err)
	}
	return rs, nil
}
