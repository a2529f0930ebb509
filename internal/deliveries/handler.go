package deliveries

import (
	"context"
	"encoding/json"
	"fmt"

	pubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"

	"github.com/veracart/veracart-backend/internal/issuer"
	"github.com/veracart/veracart-backend/pkg/logger"
)

// DeliveredEvent is the order-management service's notification that an order
// reached the buyer. One delivery code is issued per line item.
type DeliveredEvent struct {
	OrderID uuid.UUID       `json:"orderId"`
	BuyerID uuid.UUID       `json:"buyerId"`
	Items   []DeliveredItem `json:"items"`
}

type DeliveredItem struct {
	ProductID uuid.UUID `json:"productId"`
	Quantity  int       `json:"quantity"`
}

// Handler consumes order-delivered events and issues delivery codes.
type Handler struct {
	issuer issuer.Service
	logg   *logger.Logger
}

func NewHandler(issuerSvc issuer.Service, logg *logger.Logger) (*Handler, error) {
	if issuerSvc == nil {
		return nil, fmt.Errorf("issuer service is required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger is required")
	}
	return &Handler{issuer: issuerSvc, logg: logg}, nil
}

// Handle processes one event. Issuance is idempotent per purchase, so
// redelivered messages are harmless.
func (h *Handler) Handle(ctx context.Context, data []byte) error {
	var event DeliveredEvent
	if err := json.Unmarshal(data, &event); err != nil {
		// A payload that never parses will never parse; do not redeliver.
		h.logg.Warn(ctx, "dropping undecodable delivered event: "+err.Error())
		return nil
	}
	if event.OrderID == uuid.Nil || event.BuyerID == uuid.Nil || len(event.Items) == 0 {
		h.logg.Warn(ctx, "dropping incomplete delivered event")
		return nil
	}

	ctx = h.logg.WithBuyerID(ctx, event.BuyerID.String())

	batch := make([]issuer.IssueParams, 0, len(event.Items))
	for _, item := range event.Items {
		if item.ProductID == uuid.Nil {
			continue
		}
		batch = append(batch, issuer.IssueParams{
			OrderID:   event.OrderID,
			ProductID: item.ProductID,
			BuyerID:   event.BuyerID,
		})
	}
	if len(batch) == 0 {
		h.logg.Warn(ctx, "delivered event carries no usable items")
		return nil
	}

	results, err := h.issuer.IssueMany(ctx, batch)
	if err != nil {
		return fmt.Errorf("issuing codes for order %s: %w", event.OrderID, err)
	}

	h.logg.Info(ctx, fmt.Sprintf("issued %d delivery codes for order %s", len(results), event.OrderID))
	return nil
}

// Run pulls messages until the context is cancelled. Failed events are nacked
// for redelivery.
func (h *Handler) Run(ctx context.Context, sub *pubsub.Subscriber) error {
	if sub == nil {
		return fmt.Errorf("subscriber is required")
	}

	return sub.Receive(ctx, func(msgCtx context.Context, msg *pubsub.Message) {
		if err := h.Handle(msgCtx, msg.Data); err != nil {
			h.logg.Error(msgCtx, "delivered event failed, nacking", err)
			msg.Nack()
			return
		}
		msg.Ack()
	})
}
