package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"tour-inventory/internal/models"
)

const ruleColumns = `id, tour_id, name, start_date, end_date, price_modifier, min_participants,
	max_participants, is_active, created_at, updated_at`

// GetTour retrieves a tour by ID
func (s *Store) GetTour(ctx context.Context, id string) (*models.Tour, error) {
	var tour models.Tour
	err := s.conn(ctx).GetContext(ctx, &tour,
		"SELECT id, name, base_price, created_at, updated_at FROM tours WHERE id = $1", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.Errorf(models.CodeInventoryNotFound, "tour not found: %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get tour: %w", err)
	}
	return &tour, nil
}

// UpsertTour creates a tour or updates its name and base price
func (s *Store) UpsertTour(ctx context.Context, tour *models.Tour) error {
	err := s.conn(ctx).GetContext(ctx, tour, `
		INSERT INTO tours (id, name, base_price) VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, base_price = EXCLUDED.base_price, updated_at = NOW()
		RETURNING id, name, base_price, created_at, updated_at`,
		tour.ID, tour.Name, tour.BasePrice)
	if err != nil {
		return fmt.Errorf("failed to upsert tour: %w", err)
	}
	return nil
}

// CreateRule inserts a seasonal pricing rule
func (s *Store) CreateRule(ctx context.Context, rule *models.SeasonalPricingRule) error {
	err := s.conn(ctx).GetContext(ctx, rule, `
		INSERT INTO seasonal_pricing_rules
			(id, tour_id, name, start_date, end_date, price_modifier, min_participants, max_participants, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING `+ruleColumns,
		rule.ID, rule.TourID, rule.Name, rule.StartDate, rule.EndDate, rule.PriceModifier,
		rule.MinParticipants, rule.MaxParticipants, rule.IsActive)
	if isUniqueViolation(err) {
		return models.Errorf(models.CodeSeasonalPricingConflict, "tour %s already has a rule named %q", rule.TourID, rule.Name)
	}
	if err != nil {
		return fmt.Errorf("failed to create pricing rule: %w", err)
	}
	return nil
}

// ListRules retrieves every rule of a tour
func (s *Store) ListRules(ctx context.Context, tourID string) ([]models.SeasonalPricingRule, error) {
	var rules []models.SeasonalPricingRule
	err := s.conn(ctx).SelectContext(ctx, &rules,
		"SELECT "+ruleColumns+" FROM seasonal_pricing_rules WHERE tour_id = $1 ORDER BY start_date, name", tourID)
	if err != nil {
		return nil, fmt.Errorf("failed to list pricing rules: %w", err)
	}
	return rules, nil
}

// ListActiveRules retrieves the active rules of a tour overlapping [start, end]
func (s *Store) ListActiveRules(ctx context.Context, tourID string, start, end models.Date) ([]models.SeasonalPricingRule, error) {
	var rules []models.SeasonalPricingRule
	err := s.conn(ctx).SelectContext(ctx, &rules,
		"SELECT "+ruleColumns+` FROM seasonal_pricing_rules
		WHERE tour_id = $1 AND is_active AND start_date <= $3 AND end_date >= $2
		ORDER BY start_date, name`, tourID, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to list active pricing rules: %w", err)
	}
	return rules, nil
}

// SetRuleActive toggles a rule and returns it
func (s *Store) SetRuleActive(ctx context.Context, ruleID string, active bool) (*models.SeasonalPricingRule, error) {
	var rule models.SeasonalPricingRule
	err := s.conn(ctx).GetContext(ctx, &rule,
		"UPDATE seasonal_pricing_rules SET is_active = $1, updated_at = NOW() WHERE id = $2 RETURNING "+ruleColumns,
		active, ruleID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.Errorf(models.CodeInventoryNotFound, "pricing rule not found: %s", ruleID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update pricing rule: %w", err)
	}
	return &rule, nil
}
