package models

import "time"

// Tour is the slice of the catalog the engine needs: the default price.
type Tour struct {
	ID        string    `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	BasePrice int64     `db:"base_price" json:"base_price"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// InventorySlot is the capacity record of one tour on one calendar date.
type InventorySlot struct {
	TourID            string    `db:"tour_id" json:"tour_id"`
	Date              Date      `db:"date" json:"date"`
	MaxCapacity       int       `db:"max_capacity" json:"max_capacity"`
	BookedCount       int       `db:"booked_count" json:"booked_count"`
	ReservedCount     int       `db:"reserved_count" json:"reserved_count"`
	AvailableCount    int       `db:"available_count" json:"available_count"`
	BasePriceOverride *int64    `db:"base_price_override" json:"base_price_override,omitempty"`
	IsAvailable       bool      `db:"is_available" json:"is_available"`
	UpdatedAt         time.Time `db:"updated_at" json:"updated_at"`
	UpdatedBy         string    `db:"updated_by" json:"updated_by,omitempty"`
}

// Held is the number of participants counted against capacity.
func (s *InventorySlot) Held() int {
	return s.BookedCount + s.ReservedCount
}

// Recompute refreshes AvailableCount from the counters.
func (s *InventorySlot) Recompute() {
	s.AvailableCount = s.MaxCapacity - s.BookedCount - s.ReservedCount
}

// Adjust applies counter deltas in place. It refuses, without modifying the
// slot, any change that would make a counter negative or push held
// participants past MaxCapacity.
func (s *InventorySlot) Adjust(deltaReserved, deltaBooked int) error {
	reserved := s.ReservedCount + deltaReserved
	booked := s.BookedCount + deltaBooked
	if reserved < 0 || booked < 0 {
		return Errorf(CodeReservationConflict,
			"slot %s/%s counters would go negative (reserved %d, booked %d)", s.TourID, s.Date, reserved, booked)
	}
	if reserved+booked > s.MaxCapacity {
		return Errorf(CodeInsufficientCapacity,
			"requested %d participants on %s but only %d available", deltaReserved+deltaBooked, s.Date,
			s.MaxCapacity-s.BookedCount-s.ReservedCount)
	}
	s.ReservedCount = reserved
	s.BookedCount = booked
	s.Recompute()
	return nil
}

// CanHold reports whether the slot accepts a new hold of n participants.
func (s *InventorySlot) CanHold(n int) bool {
	return s.IsAvailable && s.AvailableCount >= n
}

// ReservationState is the lifecycle position of a hold.
type ReservationState string

// Reservation states. Only reserved is non-terminal.
const (
	ReservationStateReserved  ReservationState = "reserved"
	ReservationStateConfirmed ReservationState = "confirmed"
	ReservationStateCancelled ReservationState = "cancelled"
	ReservationStateExpired   ReservationState = "expired"
)

// IsTerminal reports whether no further transition is possible.
func (s ReservationState) IsTerminal() bool {
	return s != ReservationStateReserved
}

// Reservation is one time-bounded hold of capacity.
type Reservation struct {
	ID           string           `db:"id" json:"reservation_id"`
	BookingID    string           `db:"booking_id" json:"booking_id"`
	TourID       string           `db:"tour_id" json:"tour_id"`
	Date         Date             `db:"date" json:"date"`
	Participants int              `db:"participants" json:"participants"`
	State        ReservationState `db:"state" json:"state"`
	Reason       string           `db:"reason" json:"reason,omitempty"`
	ReservedAt   time.Time        `db:"reserved_at" json:"reserved_at"`
	ExpiresAt    time.Time        `db:"expires_at" json:"expires_at"`
	ResolvedAt   *time.Time       `db:"resolved_at" json:"resolved_at,omitempty"`
}

// IsExpiredAt reports whether the hold's TTL has passed at now,
// regardless of whether a sweep has recorded it.
func (r *Reservation) IsExpiredAt(now time.Time) bool {
	return now.After(r.ExpiresAt)
}

// SeasonalPricingRule is a percentage adjustment over a date window.
type SeasonalPricingRule struct {
	ID              string    `db:"id" json:"id"`
	TourID          string    `db:"tour_id" json:"tour_id"`
	Name            string    `db:"name" json:"name"`
	StartDate       Date      `db:"start_date" json:"start_date"`
	EndDate         Date      `db:"end_date" json:"end_date"`
	PriceModifier   float64   `db:"price_modifier" json:"price_modifier"`
	MinParticipants *int      `db:"min_participants" json:"min_participants,omitempty"`
	MaxParticipants *int      `db:"max_participants" json:"max_participants,omitempty"`
	IsActive        bool      `db:"is_active" json:"is_active"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time `db:"updated_at" json:"updated_at"`
}

// Covers reports whether date falls in the rule's inclusive window.
func (r *SeasonalPricingRule) Covers(date Date) bool {
	return !date.Before(r.StartDate) && !date.After(r.EndDate)
}

// AcceptsParticipants reports whether a party of n is inside the rule's
// bounds. A non-positive n means the party size is unknown and bounds are ignored.
func (r *SeasonalPricingRule) AcceptsParticipants(n int) bool {
	if n <= 0 {
		return true
	}
	if r.MinParticipants != nil && n < *r.MinParticipants {
		return false
	}
	if r.MaxParticipants != nil && n > *r.MaxParticipants {
		return false
	}
	return true
}

// Price rule bounds, in percent.
const (
	MinPriceModifier = -50.0
	MaxPriceModifier = 200.0
)

// ProcessedEvent records a consumed message for idempotency.
type ProcessedEvent struct {
	EventID     string    `db:"event_id"`
	EventType   string    `db:"event_type"`
	ProcessedAt time.Time `db:"processed_at"`
}
