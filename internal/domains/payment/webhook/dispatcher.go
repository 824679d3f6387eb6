package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"paysync-backend/internal/domains/payment/gateway"
	"paysync-backend/internal/domains/payment/model"
	"paysync-backend/internal/domains/payment/repository"
	"paysync-backend/internal/infrastructure/metrics"
	"paysync-backend/internal/infrastructure/tracing"
	"paysync-backend/pkg/logger"
)

// Event is the envelope of a gateway notification. Resource holds the
// authorization, capture, refund or order the event is about.
type Event struct {
	ID           string           `json:"id"`
	EventType    string           `json:"event_type"`
	ResourceType string           `json:"resource_type"`
	Summary      string           `json:"summary"`
	CreateTime   *time.Time       `json:"create_time,omitempty"`
	Resource     gateway.Resource `json:"resource"`
}

func ParseEvent(body []byte) (*Event, error) {
	var e Event
	if err := json.Unmarshal(body, &e); err != nil {
		return nil, fmt.Errorf("decode webhook event: %w", err)
	}
	if e.EventType == "" {
		return nil, errors.New("decode webhook event: missing event_type")
	}
	return &e, nil
}

// Handler reacts to one or more event types for a resolved order.
type Handler interface {
	EventTypes() []string
	Handle(ctx context.Context, orderID string, event *Event) error
}

// Dispatch results recorded in metrics.
const (
	resultHandled      = "handled"
	resultFailed       = "failed"
	resultUnregistered = "unregistered"
	resultUnknownOrder = "unknown_order"
)

// =====================================================
// DISPATCHER
// =====================================================

// Dispatcher routes verified events to their handler. The registry is built
// once at startup; registering the same event type twice panics.
type Dispatcher struct {
	handlers map[string]Handler
	store    repository.TransactionStore
	webhooks repository.WebhookRepository
	now      func() time.Time
}

func NewDispatcher(store repository.TransactionStore, webhooks repository.WebhookRepository, handlers ...Handler) *Dispatcher {
	d := &Dispatcher{
		handlers: make(map[string]Handler),
		store:    store,
		webhooks: webhooks,
		now:      time.Now,
	}
	for _, h := range handlers {
		d.Register(h)
	}
	return d
}

func (d *Dispatcher) Register(h Handler) {
	for _, eventType := range h.EventTypes() {
		if _, exists := d.handlers[eventType]; exists {
			panic(fmt.Sprintf("webhook: duplicate handler for %s", eventType))
		}
		d.handlers[eventType] = h
	}
}

// Handles reports whether an event type has a registered handler.
func (d *Dispatcher) Handles(eventType string) bool {
	_, ok := d.handlers[eventType]
	return ok
}

// Dispatch records the audit row and runs the handler for the event.
// Unregistered types and events for unknown orders are acknowledged and dropped.
func (d *Dispatcher) Dispatch(ctx context.Context, body []byte, verification string) (err error) {
	event, err := ParseEvent(body)
	if err != nil {
		return err
	}

	ctx, span := tracing.StartSpan(ctx, "webhook.Dispatch",
		tracing.EventType(event.EventType),
		tracing.TxnID(event.Resource.ID),
	)
	defer func() { tracing.EndSpan(span, err) }()

	orderID, err := d.resolveOrder(ctx, &event.Resource)
	if err != nil {
		return err
	}

	audit := &model.WebhookEvent{
		WebhookID:    event.ID,
		EventType:    event.EventType,
		ResourceID:   event.Resource.ID,
		Verification: verification,
		RawBody:      body,
		ReceivedAt:   d.now().UTC(),
	}
	if orderID != "" {
		audit.OrderID = &orderID
	}
	if err := d.webhooks.Save(ctx, audit); err != nil {
		return fmt.Errorf("save webhook audit: %w", err)
	}

	fields := map[string]interface{}{
		"webhook_id":  event.ID,
		"event_type":  event.EventType,
		"resource_id": event.Resource.ID,
	}

	h, ok := d.handlers[event.EventType]
	if !ok {
		logger.Debug("Ignoring unregistered webhook event type " + event.EventType)
		metrics.WebhookDispatchTotal.WithLabelValues(event.EventType, resultUnregistered).Inc()
		return nil
	}
	if orderID == "" {
		logger.Warn("Webhook resource does not belong to a known order", fields)
		metrics.WebhookDispatchTotal.WithLabelValues(event.EventType, resultUnknownOrder).Inc()
		return nil
	}

	fields["order_id"] = orderID
	if err := h.Handle(ctx, orderID, event); err != nil {
		logger.ErrorFields("Webhook handler failed", err, fields)
		metrics.WebhookDispatchTotal.WithLabelValues(event.EventType, resultFailed).Inc()
		return err
	}
	logger.Info("Webhook event handled", fields)
	metrics.WebhookDispatchTotal.WithLabelValues(event.EventType, resultHandled).Inc()
	return nil
}

// resolveOrder maps the event resource to an order through the stored
// graph, first by its own id, then by its parent link.
func (d *Dispatcher) resolveOrder(ctx context.Context, res *gateway.Resource) (string, error) {
	candidates := []string{res.ID, res.UpID()}
	if res.SupplementaryData != nil && res.SupplementaryData.RelatedIDs != nil {
		related := res.SupplementaryData.RelatedIDs
		candidates = append(candidates, related.CaptureID, related.AuthorizationID, related.OrderID)
	}
	for _, id := range candidates {
		if id == "" {
			continue
		}
		orderID, err := d.store.OrderIDFor(ctx, id)
		if errors.Is(err, model.ErrTransactionNotFound) {
			continue
		}
		if err != nil {
			return "", err
		}
		return orderID, nil
	}
	return "", nil
}
