package service

import (
	"context"
	"math"
	"sort"

	"tour-inventory/internal/clock"
	"tour-inventory/internal/models"
	"tour-inventory/internal/util"

	"go.opentelemetry.io/otel/attribute"
)

// Time-to-departure discounts. The day windows are disjoint, so at most one applies.
const (
	AdvanceBookingMinDays = 30
	AdvanceBookingPercent = 5
	LastMinuteMaxDays     = 7
	LastMinutePercent     = 10
)

// Adjustment kinds reported in a PriceQuote.
const (
	AdjustmentSeasonal       = "seasonal"
	AdjustmentAdvanceBooking = "advance_booking"
	AdjustmentLastMinute     = "last_minute"
)

// PriceInput is everything needed to price one date.
type PriceInput struct {
	BasePrice    int64
	SlotOverride *int64
	Date         models.Date
	Today        models.Date
	Participants int
	Rules        []models.SeasonalPricingRule
}

// Adjustment is one contribution to the final price.
type Adjustment struct {
	Kind    string  `json:"kind"`
	RuleID  string  `json:"rule_id,omitempty"`
	Name    string  `json:"name"`
	Percent float64 `json:"percent"`
	Amount  int64   `json:"amount"`
}

// PriceQuote is a resolved per-participant price in minor units.
type PriceQuote struct {
	BasePrice     int64        `json:"base_price"`
	AdjustedPrice int64        `json:"adjusted_price"`
	DaysUntil     int          `json:"days_until"`
	Applied       []Adjustment `json:"applied_rules"`
}

// ResolvePrice computes the effective price of a date. Seasonal rules that
// are active, cover the date and accept the party size each add
// base*modifier% computed from the same base, so their order never matters.
// One time-to-departure discount is then taken off the running total.
func ResolvePrice(in PriceInput) PriceQuote {
	base := in.BasePrice
	if in.SlotOverride != nil {
		base = *in.SlotOverride
	}

	quote := PriceQuote{
		BasePrice: base,
		DaysUntil: in.Today.DaysUntil(in.Date),
		Applied:   []Adjustment{},
	}

	rules := make([]models.SeasonalPricingRule, 0, len(in.Rules))
	for _, rule := range in.Rules {
		if rule.IsActive && rule.Covers(in.Date) && rule.AcceptsParticipants(in.Participants) {
			rules = append(rules, rule)
		}
	}
	sort.Slice(rules, func(i, j int) bool {
		if !rules[i].StartDate.Equal(rules[j].StartDate) {
			return rules[i].StartDate.Before(rules[j].StartDate)
		}
		if rules[i].Name != rules[j].Name {
			return rules[i].Name < rules[j].Name
		}
		return rules[i].ID < rules[j].ID
	})

	total := base
	for _, rule := range rules {
		amount := percentOf(base, rule.PriceModifier)
		total += amount
		quote.Applied = append(quote.Applied, Adjustment{
			Kind:    AdjustmentSeasonal,
			RuleID:  rule.ID,
			Name:    rule.Name,
			Percent: rule.PriceModifier,
			Amount:  amount,
		})
	}
	if total < 0 {
		total = 0
	}

	switch days := quote.DaysUntil; {
	case days > AdvanceBookingMinDays:
		discount := percentOf(total, AdvanceBookingPercent)
		total -= discount
		quote.Applied = append(quote.Applied, Adjustment{
			Kind:    AdjustmentAdvanceBooking,
			Name:    "Advance booking bonus",
			Percent: -AdvanceBookingPercent,
			Amount:  -discount,
		})
	case days >= 0 && days <= LastMinuteMaxDays:
		discount := percentOf(total, LastMinutePercent)
		total -= discount
		quote.Applied = append(quote.Applied, Adjustment{
			Kind:    AdjustmentLastMinute,
			Name:    "Last-minute discount",
			Percent: -LastMinutePercent,
			Amount:  -discount,
		})
	}

	quote.AdjustedPrice = total
	return quote
}

// percentOf returns amount*percent/100 in integer minor units. The percent is
// taken to two decimals (basis points) and the result rounds half away from zero.
func percentOf(amount int64, percent float64) int64 {
	bps := int64(math.Round(percent * 100))
	return roundDiv(amount*bps, 10000)
}

func roundDiv(n, d int64) int64 {
	if n < 0 {
		return -((-n + d/2) / d)
	}
	return (n + d/2) / d
}

// PricingResolver loads the tour, slot and rule inputs of ResolvePrice.
type PricingResolver struct {
	pricing PricingReader
	clock   clock.Clock
}

// NewPricingResolver creates a new pricing resolver
func NewPricingResolver(pricing PricingReader, clk clock.Clock) *PricingResolver {
	return &PricingResolver{pricing: pricing, clock: clk}
}

// Quote prices date for a party of participants. slot may be nil when the
// date has no inventory; the tour's base price is used then.
func (p *PricingResolver) Quote(ctx context.Context, tourID string, date models.Date, participants int, slot *models.InventorySlot) (*PriceQuote, error) {
	quotes, err := p.QuoteRange(ctx, tourID, date, date, participants, map[string]*models.InventorySlot{date.String(): slot})
	if err != nil {
		return nil, err
	}
	q := quotes[date.String()]
	return &q, nil
}

// QuoteRange prices every date of [start, end] with one tour lookup and one
// rule query. slots is keyed by date string; missing dates use the tour price.
func (p *PricingResolver) QuoteRange(ctx context.Context, tourID string, start, end models.Date, participants int, slots map[string]*models.InventorySlot) (map[string]PriceQuote, error) {
	ctx, span := util.StartSpan(ctx, "PricingResolver.QuoteRange",
		attribute.String("tour_id", tourID),
		attribute.String("start", start.String()),
		attribute.String("end", end.String()))
	defer span.End()

	tour, err := p.pricing.GetTour(ctx, tourID)
	if err != nil {
		util.RecordSpanError(span, err)
		return nil, err
	}
	rules, err := p.pricing.ListActiveRules(ctx, tourID, start, end)
	if err != nil {
		util.RecordSpanError(span, err)
		return nil, err
	}

	today := models.DateOf(p.clock.Now())
	quotes := make(map[string]PriceQuote, models.DaysInRange(start, end))
	for d := start; !d.After(end); d = d.AddDays(1) {
		in := PriceInput{
			BasePrice:    tour.BasePrice,
			Date:         d,
			Today:        today,
			Participants: participants,
			Rules:        rules,
		}
		if slot := slots[d.String()]; slot != nil {
			in.SlotOverride = slot.BasePriceOverride
		}
		quotes[d.String()] = ResolvePrice(in)
	}
	return quotes, nil
}
