package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/joao-fontenele/rentflow/internal/domain"
)

// NotificationHandler turns order lifecycle events into emails. Delivery
// failures are logged and dropped; the lifecycle change is already committed.
type NotificationHandler struct {
	emailServiceURL string
	httpClient      *http.Client
	logger          *slog.Logger
}

func NewNotificationHandler(emailServiceURL string, client *http.Client, logger *slog.Logger) *NotificationHandler {
	return &NotificationHandler{
		emailServiceURL: emailServiceURL,
		httpClient:      client,
		logger:          logger,
	}
}

type emailMessage struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

func (h *NotificationHandler) Handle(ctx context.Context, eventType domain.EventType, payload []byte) error {
	var event domain.OrderEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return fmt.Errorf("unmarshal order event: %w", err)
	}
	if eventType == "" {
		eventType = event.Type
	}

	msg, ok := compose(eventType, event)
	if !ok {
		h.logger.Info("no notification for event", "type", eventType, "order_id", event.OrderID)
		return nil
	}

	h.logger.Info("processing order event", "type", eventType, "order_id", event.OrderID, "to", msg.To)

	if err := h.sendEmail(ctx, msg); err != nil {
		h.logger.Error("failed to send notification", "error", err, "type", eventType, "order_id", event.OrderID)
		return nil
	}

	h.logger.Info("notification sent", "type", eventType, "order_id", event.OrderID)
	return nil
}

func customerAddress(e domain.OrderEvent) string { return e.CustomerID + "@example.com" }
func vendorAddress(e domain.OrderEvent) string   { return e.VendorID + "@example.com" }

func compose(t domain.EventType, e domain.OrderEvent) (emailMessage, bool) {
	ref := e.Reference
	switch t {
	case domain.EventTypeOrderCreated:
		return emailMessage{
			To:      vendorAddress(e),
			Subject: "New rental request: " + ref,
			Body:    fmt.Sprintf("Customer %s requested a quotation %s totalling %s.", e.CustomerID, ref, e.TotalAmount.StringFixed(2)),
		}, true
	case domain.EventTypeOrderSent:
		return emailMessage{
			To:      customerAddress(e),
			Subject: "Your quotation " + ref,
			Body:    fmt.Sprintf("Your quotation %s totals %s. Approve it to continue.", ref, e.TotalAmount.StringFixed(2)),
		}, true
	case domain.EventTypeOrderApproved:
		return emailMessage{
			To:      vendorAddress(e),
			Subject: "Quotation approved: " + ref,
			Body:    fmt.Sprintf("Quotation %s was approved and is ready to confirm.", ref),
		}, true
	case domain.EventTypeOrderConfirmed, domain.EventTypeOrderSale:
		return emailMessage{
			To:      customerAddress(e),
			Subject: "Rental confirmed: " + ref,
			Body:    fmt.Sprintf("Your rental %s is confirmed.", ref),
		}, true
	case domain.EventTypeOrderInvoiced:
		return emailMessage{
			To:      customerAddress(e),
			Subject: "Invoice for " + ref,
			Body:    fmt.Sprintf("Invoice INV/%s for %s has been issued.", ref, e.TotalAmount.StringFixed(2)),
		}, true
	case domain.EventTypeOrderCancelled:
		body := fmt.Sprintf("Your order %s has been cancelled.", ref)
		if e.Reason != "" {
			body = fmt.Sprintf("Your order %s has been cancelled: %s", ref, e.Reason)
		}
		return emailMessage{
			To:      customerAddress(e),
			Subject: "Order cancelled: " + ref,
			Body:    body,
		}, true
	case domain.EventTypeOrderPickedUp:
		return emailMessage{
			To:      customerAddress(e),
			Subject: "Picked up: " + ref,
			Body:    fmt.Sprintf("The items of %s have been picked up. Enjoy your rental.", ref),
		}, true
	case domain.EventTypeOrderReturned:
		body := fmt.Sprintf("Thanks for returning %s on time.", ref)
		if e.LateFee.IsPositive() {
			body = fmt.Sprintf("%s was returned late. A late fee of %s has been added; new total %s.",
				ref, e.LateFee.StringFixed(2), e.TotalAmount.StringFixed(2))
		}
		return emailMessage{
			To:      customerAddress(e),
			Subject: "Return received: " + ref,
			Body:    body,
		}, true
	default:
		return emailMessage{}, false
	}
}

func (h *NotificationHandler) sendEmail(ctx context.Context, msg emailMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.emailServiceURL+"/send", bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("email service returned status %d", resp.StatusCode)
	}

	return nil
}
