package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"tour-inventory/internal/clock"
	"tour-inventory/internal/models"
	"tour-inventory/internal/util"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

const (
	DefaultHoldTTL        = 24 * time.Hour
	DefaultSweepBatchSize = 100
)

// ReservationStores is what the reservation lifecycle persists through.
type ReservationStores interface {
	TxRunner
	SlotStore
	ReservationStore
}

// ReservationManager owns the hold, confirm, release and expire lifecycle.
// Every transition moves the slot counters and the reservation state in one
// transaction.
type ReservationManager struct {
	store          ReservationStores
	publisher      EventPublisher
	cache          SlotCache
	clock          clock.Clock
	holdTTL        time.Duration
	sweepBatchSize int
	logger         *zap.Logger
}

type ReservationManagerOption func(*ReservationManager)

func WithHoldTTL(ttl time.Duration) ReservationManagerOption {
	return func(m *ReservationManager) {
		if ttl > 0 {
			m.holdTTL = ttl
		}
	}
}

func WithSweepBatchSize(n int) ReservationManagerOption {
	return func(m *ReservationManager) {
		if n > 0 {
			m.sweepBatchSize = n
		}
	}
}

func WithReservationEvents(publisher EventPublisher) ReservationManagerOption {
	return func(m *ReservationManager) {
		if publisher != nil {
			m.publisher = publisher
		}
	}
}

func WithReservationCache(cache SlotCache) ReservationManagerOption {
	return func(m *ReservationManager) {
		if cache != nil {
			m.cache = cache
		}
	}
}

// NewReservationManager creates a new reservation manager
func NewReservationManager(store ReservationStores, clk clock.Clock, opts ...ReservationManagerOption) *ReservationManager {
	m := &ReservationManager{
		store:          store,
		publisher:      nopPublisher{},
		cache:          nopCache{},
		clock:          clk,
		holdTTL:        DefaultHoldTTL,
		sweepBatchSize: DefaultSweepBatchSize,
		logger:         util.GetLogger(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// HoldRequest asks for a temporary claim on a slot.
type HoldRequest struct {
	BookingID    string      `json:"booking_id" binding:"required"`
	TourID       string      `json:"tour_id" binding:"required"`
	Date         models.Date `json:"date"`
	Participants int         `json:"participants"`
	TTLSeconds   int         `json:"ttl_seconds,omitempty"`
}

// Hold reserves participants on a slot until the hold expires. A repeated
// request for a booking that already holds the same slot returns the
// existing reservation.
func (m *ReservationManager) Hold(ctx context.Context, req *HoldRequest) (*models.Reservation, error) {
	ctx, span := util.StartSpan(ctx, "ReservationManager.Hold",
		attribute.String("tour_id", req.TourID),
		attribute.String("date", req.Date.String()),
		attribute.Int("participants", req.Participants))
	defer span.End()

	out, err := m.hold(ctx, req)
	if err != nil {
		util.ReservationHoldFailures.WithLabelValues(strings.ToLower(models.ErrorCode(err))).Inc()
		util.RecordSpanError(span, err)
		if !models.IsBusiness(err) {
			m.logger.Error("Failed to hold reservation",
				zap.String("booking_id", req.BookingID),
				zap.String("tour_id", req.TourID),
				zap.Error(err))
		}
		return nil, err
	}

	reservation := out.reservation
	if out.replayed {
		m.logger.Info("Duplicate hold request detected",
			zap.String("booking_id", req.BookingID),
			zap.String("reservation_id", reservation.ID))
		return reservation, nil
	}

	if out.lapsed != nil {
		util.ReservationsExpiredTotal.WithLabelValues("hold").Inc()
		m.logger.Info("Lapsed hold replaced",
			zap.String("booking_id", req.BookingID),
			zap.String("reservation_id", out.lapsed.ID))
		m.afterTransition(ctx, out.lapsed, out.lapsedSlot, models.EventTypeReservationExpired)
	}

	util.ReservationsHeldTotal.Inc()
	m.logger.Info("Reservation held",
		zap.String("reservation_id", reservation.ID),
		zap.String("tour_id", reservation.TourID),
		zap.String("date", reservation.Date.String()),
		zap.Int("participants", reservation.Participants))
	m.afterTransition(ctx, reservation, out.slot, models.EventTypeReservationHeld)
	return reservation, nil
}

// holdOutcome is what a committed hold transaction produced. lapsed is set
// when an earlier hold of the same booking was expired to make room.
type holdOutcome struct {
	reservation *models.Reservation
	slot        *models.InventorySlot
	replayed    bool
	lapsed      *models.Reservation
	lapsedSlot  *models.InventorySlot
}

func (m *ReservationManager) hold(ctx context.Context, req *HoldRequest) (*holdOutcome, error) {
	if req.Participants < 1 {
		return nil, models.Errorf(models.CodeValidation, "participants must be at least 1, got %d", req.Participants)
	}
	if strings.TrimSpace(req.BookingID) == "" {
		return nil, models.Errorf(models.CodeValidation, "booking_id is required")
	}
	if req.TTLSeconds < 0 {
		return nil, models.Errorf(models.CodeValidation, "ttl_seconds must not be negative")
	}
	if req.Date.IsZero() {
		return nil, models.Errorf(models.CodeValidation, "date is required")
	}

	now := m.clock.Now()
	if req.Date.Before(models.DateOf(now)) {
		return nil, models.Errorf(models.CodeDateInPast, "cannot hold %s, it is in the past", req.Date)
	}

	ttl := m.holdTTL
	if req.TTLSeconds > 0 {
		ttl = time.Duration(req.TTLSeconds) * time.Second
	}

	out := &holdOutcome{}
	err := m.store.WithTx(ctx, func(ctx context.Context) error {
		existing, err := m.store.GetActiveReservationByBookingID(ctx, req.BookingID)
		if err != nil {
			return err
		}
		if existing != nil {
			if !existing.IsExpiredAt(now) {
				if existing.TourID == req.TourID && existing.Date.Equal(req.Date) && existing.Participants == req.Participants {
					out.reservation, out.replayed = existing, true
					return nil
				}
				return models.Errorf(models.CodeReservationConflict,
					"booking %s already holds reservation %s", req.BookingID, existing.ID)
			}
			// A lapsed hold the sweeper has not reached yet gives its capacity back first.
			lapsed, lapsedSlot, changed, err := m.expireLocked(ctx, existing.ID, now)
			if err != nil {
				return err
			}
			if changed {
				out.lapsed, out.lapsedSlot = lapsed, lapsedSlot
			}
		}

		current, err := m.store.GetSlotForUpdate(ctx, req.TourID, req.Date)
		if err != nil {
			return err
		}
		if !current.IsAvailable {
			return models.Errorf(models.CodeSlotUnavailable, "tour %s is closed on %s", req.TourID, req.Date)
		}

		out.slot, err = m.store.AdjustSlot(ctx, req.TourID, req.Date, req.Participants, 0)
		if err != nil {
			return err
		}

		out.reservation = &models.Reservation{
			ID:           uuid.New().String(),
			BookingID:    req.BookingID,
			TourID:       req.TourID,
			Date:         req.Date,
			Participants: req.Participants,
			State:        models.ReservationStateReserved,
			ReservedAt:   now,
			ExpiresAt:    now.Add(ttl),
		}
		return m.store.CreateReservation(ctx, out.reservation)
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Confirm converts a live hold into a booking. Confirming an already
// confirmed reservation returns it unchanged. A hold whose TTL has passed is
// expired on the spot and RESERVATION_EXPIRED is returned.
func (m *ReservationManager) Confirm(ctx context.Context, id string) (*models.Reservation, error) {
	ctx, span := util.StartSpan(ctx, "ReservationManager.Confirm", attribute.String("reservation_id", id))
	defer span.End()

	now := m.clock.Now()
	var (
		result  *models.Reservation
		slot    *models.InventorySlot
		changed bool
		lapsed  bool
	)
	err := m.store.WithTx(ctx, func(ctx context.Context) error {
		r, err := m.store.GetReservationForUpdate(ctx, id)
		if err != nil {
			return err
		}

		switch r.State {
		case models.ReservationStateConfirmed:
			result = r
			return nil
		case models.ReservationStateExpired:
			return models.Errorf(models.CodeReservationExpired, "reservation %s expired at %s", id, r.ExpiresAt.Format(time.RFC3339))
		case models.ReservationStateCancelled:
			return models.Errorf(models.CodeReservationConflict, "reservation %s was cancelled", id)
		}

		if r.IsExpiredAt(now) {
			lapsed = true
			result, slot, err = m.transition(ctx, r, models.ReservationStateExpired, "expired before confirmation", now)
			return err
		}

		changed = true
		result, slot, err = m.transition(ctx, r, models.ReservationStateConfirmed, "", now)
		return err
	})
	if err != nil {
		util.RecordSpanError(span, err)
		return nil, err
	}

	if lapsed {
		util.ReservationsExpiredTotal.WithLabelValues("confirm").Inc()
		m.logger.Info("Reservation expired at confirmation", zap.String("reservation_id", id))
		m.afterTransition(ctx, result, slot, models.EventTypeReservationExpired)
		return nil, models.Errorf(models.CodeReservationExpired, "reservation %s expired at %s", id, result.ExpiresAt.Format(time.RFC3339))
	}

	if changed {
		util.ReservationsConfirmedTotal.Inc()
		m.logger.Info("Reservation confirmed",
			zap.String("reservation_id", id),
			zap.String("booking_id", result.BookingID))
		m.afterTransition(ctx, result, slot, models.EventTypeReservationConfirmed)
	}
	return result, nil
}

// Release gives a live hold's capacity back. Releasing a reservation that is
// already cancelled or expired returns it unchanged; confirmed reservations
// cannot be released.
func (m *ReservationManager) Release(ctx context.Context, id, reason string) (*models.Reservation, error) {
	ctx, span := util.StartSpan(ctx, "ReservationManager.Release", attribute.String("reservation_id", id))
	defer span.End()

	if reason == "" {
		reason = "released"
	}

	now := m.clock.Now()
	var (
		result *models.Reservation
		slot   *models.InventorySlot
		to     models.ReservationState
	)
	err := m.store.WithTx(ctx, func(ctx context.Context) error {
		r, err := m.store.GetReservationForUpdate(ctx, id)
		if err != nil {
			return err
		}

		switch r.State {
		case models.ReservationStateCancelled, models.ReservationStateExpired:
			result = r
			return nil
		case models.ReservationStateConfirmed:
			return models.Errorf(models.CodeReservationConflict, "reservation %s is confirmed and cannot be released", id)
		}

		to = models.ReservationStateCancelled
		if r.IsExpiredAt(now) {
			to, reason = models.ReservationStateExpired, "hold expired"
		}
		result, slot, err = m.transition(ctx, r, to, reason, now)
		return err
	})
	if err != nil {
		util.RecordSpanError(span, err)
		return nil, err
	}

	switch to {
	case models.ReservationStateCancelled:
		util.ReservationsReleasedTotal.Inc()
		m.logger.Info("Reservation released", zap.String("reservation_id", id), zap.String("reason", reason))
		m.afterTransition(ctx, result, slot, models.EventTypeReservationReleased)
	case models.ReservationStateExpired:
		util.ReservationsExpiredTotal.WithLabelValues("release").Inc()
		m.afterTransition(ctx, result, slot, models.EventTypeReservationExpired)
	}
	return result, nil
}

// Sweep expires every reserved hold whose TTL has passed at now. Each
// reservation is expired in its own transaction, so one failure does not
// block the rest. Running it twice with the same now changes nothing.
func (m *ReservationManager) Sweep(ctx context.Context, now time.Time) ([]models.Reservation, error) {
	ctx, span := util.StartSpan(ctx, "ReservationManager.Sweep")
	defer span.End()

	start := time.Now()
	defer func() {
		util.SweepDuration.Observe(time.Since(start).Seconds())
	}()

	var expired []models.Reservation
	for {
		batch, err := m.store.ListExpiredReservations(ctx, now, m.sweepBatchSize)
		if err != nil {
			util.RecordSpanError(span, err)
			return expired, fmt.Errorf("failed to list expired reservations: %w", err)
		}

		progressed := 0
		for _, candidate := range batch {
			if ctx.Err() != nil {
				return expired, ctx.Err()
			}

			var (
				r       *models.Reservation
				slot    *models.InventorySlot
				changed bool
			)
			err := m.store.WithTx(ctx, func(ctx context.Context) error {
				var err error
				r, slot, changed, err = m.expireLocked(ctx, candidate.ID, now)
				return err
			})
			if err != nil {
				util.SweepErrorsTotal.Inc()
				m.logger.Warn("Failed to expire reservation",
					zap.String("reservation_id", candidate.ID),
					zap.Error(err))
				continue
			}
			if !changed {
				continue
			}

			progressed++
			expired = append(expired, *r)
			util.ReservationsExpiredTotal.WithLabelValues("sweep").Inc()
			m.afterTransition(ctx, r, slot, models.EventTypeReservationExpired)
		}

		if len(batch) < m.sweepBatchSize || progressed == 0 {
			break
		}
	}

	if len(expired) > 0 {
		m.logger.Info("Expired reservations swept", zap.Int("count", len(expired)))
	}
	return expired, nil
}

// Get returns one reservation.
func (m *ReservationManager) Get(ctx context.Context, id string) (*models.Reservation, error) {
	return m.store.GetReservation(ctx, id)
}

// ListByBooking returns every reservation made under a booking, oldest first.
func (m *ReservationManager) ListByBooking(ctx context.Context, bookingID string) ([]models.Reservation, error) {
	return m.store.ListReservationsByBookingID(ctx, bookingID)
}

// expireLocked moves a lapsed reserved hold to expired. It must run inside a
// transaction; changed is false when the reservation was no longer eligible.
func (m *ReservationManager) expireLocked(ctx context.Context, id string, now time.Time) (*models.Reservation, *models.InventorySlot, bool, error) {
	r, err := m.store.GetReservationForUpdate(ctx, id)
	if err != nil {
		return nil, nil, false, err
	}
	if r.State != models.ReservationStateReserved || !r.IsExpiredAt(now) {
		return r, nil, false, nil
	}

	r, slot, err := m.transition(ctx, r, models.ReservationStateExpired, "hold expired", now)
	if err != nil {
		return nil, nil, false, err
	}
	return r, slot, true, nil
}

// transition moves a reserved hold to a terminal state and applies the
// matching counter deltas to its slot.
func (m *ReservationManager) transition(ctx context.Context, r *models.Reservation, to models.ReservationState, reason string, now time.Time) (*models.Reservation, *models.InventorySlot, error) {
	deltaReserved, deltaBooked := -r.Participants, 0
	if to == models.ReservationStateConfirmed {
		deltaBooked = r.Participants
	}

	slot, err := m.store.AdjustSlot(ctx, r.TourID, r.Date, deltaReserved, deltaBooked)
	if err != nil {
		return nil, nil, err
	}
	if err := m.store.UpdateReservationState(ctx, r.ID, models.ReservationStateReserved, to, reason, now); err != nil {
		return nil, nil, err
	}

	updated := *r
	updated.State = to
	updated.Reason = reason
	updated.ResolvedAt = &now
	return &updated, slot, nil
}

// afterTransition runs the committed side effects of a state change. Both
// are best effort; the transaction has already succeeded.
func (m *ReservationManager) afterTransition(ctx context.Context, r *models.Reservation, slot *models.InventorySlot, eventType string) {
	if err := m.cache.InvalidateSlot(ctx, r.TourID, r.Date); err != nil {
		m.logger.Warn("Failed to invalidate slot cache", zap.String("tour_id", r.TourID), zap.Error(err))
	}

	event := &models.ReservationEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: eventType,
			Timestamp: m.clock.Now(),
		},
		ReservationID: r.ID,
		BookingID:     r.BookingID,
		TourID:        r.TourID,
		Date:          r.Date,
		Participants:  r.Participants,
		State:         r.State,
		Reason:        r.Reason,
		ExpiresAt:     r.ExpiresAt,
	}
	if slot != nil {
		event.AvailableCount = slot.AvailableCount
	}

	if err := m.publisher.PublishReservationEvent(ctx, event); err != nil {
		m.logger.Error("Failed to publish reservation event",
			zap.String("event_type", eventType),
			zap.String("reservation_id", r.ID),
			zap.Error(err))
	}
}
