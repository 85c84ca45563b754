package service

import (
	"context"
	"strings"

	"tour-inventory/internal/clock"
	"tour-inventory/internal/models"
	"tour-inventory/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// CreateRuleRequest defines a seasonal price adjustment for a tour.
type CreateRuleRequest struct {
	TourID          string      `json:"tour_id"`
	Name            string      `json:"name" binding:"required"`
	StartDate       models.Date `json:"start_date"`
	EndDate         models.Date `json:"end_date"`
	PriceModifier   float64     `json:"price_modifier"`
	MinParticipants *int        `json:"min_participants,omitempty"`
	MaxParticipants *int        `json:"max_participants,omitempty"`
	IsActive        *bool       `json:"is_active,omitempty"`
}

// PricingRuleService manages seasonal pricing rules.
type PricingRuleService struct {
	store  RuleStore
	clock  clock.Clock
	logger *zap.Logger
}

// NewPricingRuleService creates a new pricing rule service
func NewPricingRuleService(store RuleStore, clk clock.Clock) *PricingRuleService {
	return &PricingRuleService{
		store:  store,
		clock:  clk,
		logger: util.GetLogger(),
	}
}

// CreateRule validates and stores a rule. Rule names are unique per tour;
// a duplicate name fails with SEASONAL_PRICING_CONFLICT.
func (s *PricingRuleService) CreateRule(ctx context.Context, req *CreateRuleRequest) (*models.SeasonalPricingRule, error) {
	ctx, span := util.StartSpan(ctx, "PricingRuleService.CreateRule")
	defer span.End()

	if err := validateRule(req); err != nil {
		return nil, err
	}

	if _, err := s.store.GetTour(ctx, req.TourID); err != nil {
		return nil, err
	}

	now := s.clock.Now()
	rule := &models.SeasonalPricingRule{
		ID:              uuid.New().String(),
		TourID:          req.TourID,
		Name:            strings.TrimSpace(req.Name),
		StartDate:       req.StartDate,
		EndDate:         req.EndDate,
		PriceModifier:   req.PriceModifier,
		MinParticipants: req.MinParticipants,
		MaxParticipants: req.MaxParticipants,
		IsActive:        req.IsActive == nil || *req.IsActive,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.store.CreateRule(ctx, rule); err != nil {
		util.RecordSpanError(span, err)
		return nil, err
	}

	s.logger.Info("Seasonal pricing rule created",
		zap.String("rule_id", rule.ID),
		zap.String("tour_id", rule.TourID),
		zap.Float64("price_modifier", rule.PriceModifier))
	return rule, nil
}

// ListRules returns every rule of a tour, active or not.
func (s *PricingRuleService) ListRules(ctx context.Context, tourID string) ([]models.SeasonalPricingRule, error) {
	return s.store.ListRules(ctx, tourID)
}

// SetActive switches a rule on or off.
func (s *PricingRuleService) SetActive(ctx context.Context, ruleID string, active bool) (*models.SeasonalPricingRule, error) {
	rule, err := s.store.SetRuleActive(ctx, ruleID, active)
	if err != nil {
		return nil, err
	}
	s.logger.Info("Seasonal pricing rule toggled", zap.String("rule_id", ruleID), zap.Bool("active", active))
	return rule, nil
}

func validateRule(req *CreateRuleRequest) error {
	if strings.TrimSpace(req.TourID) == "" {
		return models.Errorf(models.CodeValidation, "tour_id is required")
	}
	if strings.TrimSpace(req.Name) == "" {
		return models.Errorf(models.CodeValidation, "name is required")
	}
	if req.StartDate.IsZero() || req.EndDate.IsZero() {
		return models.Errorf(models.CodeValidation, "start_date and end_date are required")
	}
	if req.EndDate.Before(req.StartDate) {
		return models.Errorf(models.CodeValidation, "end_date %s is before start_date %s", req.EndDate, req.StartDate)
	}
	if req.PriceModifier < models.MinPriceModifier || req.PriceModifier > models.MaxPriceModifier {
		return models.Errorf(models.CodeValidation, "price_modifier %.2f is outside [%.0f, %.0f]",
			req.PriceModifier, models.MinPriceModifier, models.MaxPriceModifier)
	}
	if req.MinParticipants != nil && *req.MinParticipants < 1 {
		return models.Errorf(models.CodeValidation, "min_participants must be at least 1")
	}
	if req.MaxParticipants != nil && *req.MaxParticipants < 1 {
		return models.Errorf(models.CodeValidation, "max_participants must be at least 1")
	}
	if req.MinParticipants != nil && req.MaxParticipants != nil && *req.MinParticipants > *req.MaxParticipants {
		return models.Errorf(models.CodeValidation, "min_participants %d exceeds max_participants %d",
			*req.MinParticipants, *req.MaxParticipants)
	}
	return nil
}
