package service

import (
	"context"
	"fmt"

	"tour-inventory/internal/models"
	"tour-inventory/internal/util"

	"go.uber.org/zap"
)

// ReservationLifecycle is the part of ReservationManager the payment flow drives.
type ReservationLifecycle interface {
	Confirm(ctx context.Context, id string) (*models.Reservation, error)
	Release(ctx context.Context, id, reason string) (*models.Reservation, error)
}

// PaymentEventHandler turns payment outcomes into reservation transitions.
// Each event is applied at most once. Business rejections (an expired or
// already-resolved hold) are logged and acknowledged; infrastructure
// failures are returned so the message is redelivered.
type PaymentEventHandler struct {
	events       ProcessedEventStore
	reservations ReservationLifecycle
	logger       *zap.Logger
}

// NewPaymentEventHandler creates a new payment event handler
func NewPaymentEventHandler(events ProcessedEventStore, reservations ReservationLifecycle) *PaymentEventHandler {
	return &PaymentEventHandler{
		events:       events,
		reservations: reservations,
		logger:       util.GetLogger(),
	}
}

// HandlePaymentSuccess confirms the paid reservation
func (h *PaymentEventHandler) HandlePaymentSuccess(ctx context.Context, event *models.PaymentSuccessEvent) error {
	ctx, span := util.StartSpan(ctx, "PaymentEventHandler.HandlePaymentSuccess")
	defer span.End()

	processed, err := h.events.IsEventProcessed(ctx, event.EventID)
	if err != nil {
		return fmt.Errorf("failed to check event processed: %w", err)
	}
	if processed {
		h.logger.Info("Event already processed", zap.String("event_id", event.EventID))
		return nil
	}

	h.logger.Info("Handling payment success",
		zap.String("reservation_id", event.ReservationID),
		zap.String("payment_id", event.PaymentID),
		zap.String("tx_id", event.TxID))

	if _, err := h.reservations.Confirm(ctx, event.ReservationID); err != nil {
		if !models.IsBusiness(err) {
			util.RecordSpanError(span, err)
			return fmt.Errorf("failed to confirm reservation: %w", err)
		}
		// Payment captured for a hold we can no longer honour; the booking
		// side owns the refund.
		h.logger.Warn("Payment succeeded but reservation could not be confirmed",
			zap.String("reservation_id", event.ReservationID),
			zap.String("code", models.ErrorCode(err)),
			zap.Error(err))
	}

	return h.markProcessed(ctx, event.EventID, models.EventTypePaymentSuccess)
}

// HandlePaymentFailed releases the unpaid reservation
func (h *PaymentEventHandler) HandlePaymentFailed(ctx context.Context, event *models.PaymentFailedEvent) error {
	ctx, span := util.StartSpan(ctx, "PaymentEventHandler.HandlePaymentFailed")
	defer span.End()

	processed, err := h.events.IsEventProcessed(ctx, event.EventID)
	if err != nil {
		return fmt.Errorf("failed to check event processed: %w", err)
	}
	if processed {
		h.logger.Info("Event already processed", zap.String("event_id", event.EventID))
		return nil
	}

	h.logger.Info("Handling payment failure",
		zap.String("reservation_id", event.ReservationID),
		zap.String("reason", event.Reason))

	reason := "payment failed"
	if event.Reason != "" {
		reason = "payment failed: " + event.Reason
	}
	if _, err := h.reservations.Release(ctx, event.ReservationID, reason); err != nil {
		if !models.IsBusiness(err) {
			util.RecordSpanError(span, err)
			return fmt.Errorf("failed to release reservation: %w", err)
		}
		h.logger.Warn("Payment failed but reservation could not be released",
			zap.String("reservation_id", event.ReservationID),
			zap.String("code", models.ErrorCode(err)),
			zap.Error(err))
	}

	return h.markProcessed(ctx, event.EventID, models.EventTypePaymentFailed)
}

func (h *PaymentEventHandler) markProcessed(ctx context.Context, eventID, eventType string) error {
	if err := h.events.MarkEventProcessed(ctx, eventID, eventType); err != nil {
		return fmt.Errorf("failed to mark event processed: %w", err)
	}
	return nil
}
