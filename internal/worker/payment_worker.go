package worker

import (
	"context"
	"log"

	"tour-inventory/internal/broker"
	"tour-inventory/internal/service"
)

// PaymentWorker applies payment outcomes from the payment topic to reservations
type PaymentWorker struct {
	consumer     *broker.Consumer
	eventHandler *broker.EventHandler
}

// NewPaymentWorker creates a new payment worker
func NewPaymentWorker(consumer *broker.Consumer, payments *service.PaymentEventHandler) *PaymentWorker {
	return &PaymentWorker{
		consumer:     consumer,
		eventHandler: NewPaymentRouter(payments),
	}
}

// NewPaymentRouter routes payment events to the handler that applies them.
func NewPaymentRouter(payments *service.PaymentEventHandler) *broker.EventHandler {
	eventHandler := broker.NewEventHandler()
	eventHandler.OnPaymentSuccess(payments.HandlePaymentSuccess)
	eventHandler.OnPaymentFailed(payments.HandlePaymentFailed)
	return eventHandler
}

// Start consumes until ctx is cancelled
func (w *PaymentWorker) Start(ctx context.Context) error {
	log.Println("Starting payment worker...")
	return w.consumer.StartConsuming(ctx, w.eventHandler.HandleMessage)
}

// Stop stops the worker
func (w *PaymentWorker) Stop() error {
	log.Println("Stopping payment worker...")
	return w.consumer.Close()
}
