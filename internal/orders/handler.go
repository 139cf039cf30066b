package orders

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/joao-fontenele/rentflow/internal/domain"
	"github.com/joao-fontenele/rentflow/internal/idempotency"
	"github.com/joao-fontenele/rentflow/internal/telemetry"
)

const HeaderIdempotencyKey = "Idempotency-Key"

// IdempotencyStore remembers checkouts by client key. See idempotency.Store.
type IdempotencyStore interface {
	Reserve(ctx context.Context, key string) ([]string, error)
	MarkSuccess(ctx context.Context, key string, orderIDs []string) error
	MarkFailure(ctx context.Context, key string) error
}

type Handler struct {
	repo      Repository
	lifecycle *Lifecycle
	checkout  *Checkout
	idem      IdempotencyStore
	logger    *slog.Logger
}

// NewHandler wires the HTTP surface. idem may be nil, in which case the
// Idempotency-Key header is ignored.
func NewHandler(repo Repository, lifecycle *Lifecycle, checkout *Checkout, idem IdempotencyStore, logger *slog.Logger) (*Handler, error) {
	if repo == nil || lifecycle == nil || checkout == nil {
		return nil, errors.New("orders handler needs a repository, a lifecycle and a checkout")
	}
	return &Handler{
		repo:      repo,
		lifecycle: lifecycle,
		checkout:  checkout,
		idem:      idem,
		logger:    logger,
	}, nil
}

// Register mounts the checkout and order routes on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	routes := map[string]http.HandlerFunc{
		"POST /checkout":                 h.HandleCheckout,
		"GET /orders":                    h.HandleList,
		"GET /orders/{id}":               h.HandleGet,
		"POST /orders/{id}/send":         h.transition(h.lifecycle.Send),
		"POST /orders/{id}/approve":      h.transition(h.lifecycle.Approve),
		"POST /orders/{id}/confirm":      h.transition(h.lifecycle.Confirm),
		"POST /orders/{id}/confirm-sale": h.transition(h.lifecycle.ConfirmSale),
		"POST /orders/{id}/invoice":      h.transition(h.lifecycle.CreateInvoice),
		"POST /orders/{id}/pickup":       h.transition(h.lifecycle.Pickup),
		"POST /orders/{id}/return":       h.transition(h.lifecycle.Return),
		"POST /orders/{id}/cancel":       h.transition(h.lifecycle.Cancel),
		"POST /orders/{id}/reject":       h.HandleReject,
	}
	for pattern, fn := range routes {
		mux.HandleFunc(pattern, telemetry.WithHTTPRoute(fn))
	}
}

func (h *Handler) HandleCheckout(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}

	var in CheckoutInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	key := r.Header.Get(HeaderIdempotencyKey)
	if key != "" && h.idem != nil {
		key = actor.ID + ":" + key
		orderIDs, err := h.idem.Reserve(r.Context(), key)
		if err != nil {
			if errors.Is(err, idempotency.ErrInProgress) {
				h.writeError(w, http.StatusConflict, err.Error())
				return
			}
			h.logger.Error("failed to reserve idempotency key", "error", err)
			h.writeError(w, http.StatusInternalServerError, "internal server error")
			return
		}
		if orderIDs != nil {
			h.replay(w, r, orderIDs)
			return
		}
	} else {
		key = ""
	}

	created, err := h.checkout.Checkout(r.Context(), actor, in)
	if err != nil {
		if key != "" {
			if markErr := h.idem.MarkFailure(r.Context(), key); markErr != nil {
				h.logger.Error("failed to release idempotency key", "error", markErr)
			}
		}
		h.writeDomainError(w, err)
		return
	}

	if key != "" {
		ids := make([]string, len(created))
		for i, o := range created {
			ids[i] = o.ID
		}
		// A key left in processing would answer 409 until it expires, so an
		// unrecorded success releases it instead.
		if err := h.idem.MarkSuccess(r.Context(), key, ids); err != nil {
			h.logger.Error("failed to record idempotency key", "error", err)
			if markErr := h.idem.MarkFailure(r.Context(), key); markErr != nil {
				h.logger.Error("failed to release idempotency key", "error", markErr)
			}
		}
	}

	h.logger.Info("checkout completed", "customer_id", actor.ID, "orders", len(created))
	h.writeJSON(w, http.StatusCreated, created)
}

func (h *Handler) replay(w http.ResponseWriter, r *http.Request, orderIDs []string) {
	replayed := make([]*domain.Order, 0, len(orderIDs))
	for _, id := range orderIDs {
		order, err := h.repo.GetByID(r.Context(), id)
		if err != nil {
			h.logger.Error("failed to load replayed order", "error", err, "order_id", id)
			h.writeError(w, http.StatusInternalServerError, "internal server error")
			return
		}
		if order != nil {
			replayed = append(replayed, order)
		}
	}

	h.logger.Info("checkout replayed", "orders", len(replayed))
	h.writeJSON(w, http.StatusOK, replayed)
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}

	id := r.PathValue("id")
	if id == "" {
		h.writeError(w, http.StatusBadRequest, "missing order id")
		return
	}

	order, err := h.repo.GetByID(r.Context(), id)
	if err != nil {
		h.logger.Error("failed to get order", "error", err, "id", id)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	if order == nil {
		h.writeError(w, http.StatusNotFound, "order not found")
		return
	}

	if !actor.Participates(order) {
		h.writeError(w, http.StatusForbidden, "order belongs to another account")
		return
	}

	h.logger.Info("order retrieved", "order_id", order.ID)
	h.writeJSON(w, http.StatusOK, order)
}

// HandleList narrows the filter to the caller's own orders unless the caller is an admin.
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	filter := ListFilter{
		CustomerID: q.Get("customer_id"),
		VendorID:   q.Get("vendor_id"),
	}
	if raw := q.Get("status"); raw != "" {
		status, err := domain.ParseOrderStatus(raw)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		filter.Status = status
	}

	switch actor.Role {
	case domain.RoleCustomer:
		filter.CustomerID = actor.ID
	case domain.RoleVendor:
		filter.VendorID = actor.ID
	}

	list, err := h.repo.List(r.Context(), filter)
	if err != nil {
		h.logger.Error("failed to list orders", "error", err)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.logger.Info("orders listed", "count", len(list))
	h.writeJSON(w, http.StatusOK, list)
}

type rejectRequest struct {
	Reason string `json:"reason"`
}

func (h *Handler) HandleReject(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}

	// The reason is optional, so an empty body is accepted.
	var req rejectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	order, err := h.lifecycle.Reject(r.Context(), actor, r.PathValue("id"), req.Reason)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, order)
}

type transitionFunc func(ctx context.Context, actor domain.Actor, orderID string) (*domain.Order, error)

func (h *Handler) transition(fn transitionFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := h.actor(w, r)
		if !ok {
			return
		}

		order, err := fn(r.Context(), actor, r.PathValue("id"))
		if err != nil {
			h.writeDomainError(w, err)
			return
		}

		h.writeJSON(w, http.StatusOK, order)
	}
}

func (h *Handler) actor(w http.ResponseWriter, r *http.Request) (domain.Actor, bool) {
	id := r.Header.Get(domain.HeaderActorID)
	if id == "" {
		h.writeError(w, http.StatusUnauthorized, "missing "+domain.HeaderActorID+" header")
		return domain.Actor{}, false
	}
	role, err := domain.ParseRole(r.Header.Get(domain.HeaderActorRole))
	if err != nil {
		h.writeError(w, http.StatusUnauthorized, err.Error())
		return domain.Actor{}, false
	}
	return domain.Actor{ID: id, Role: role}, true
}

type conflictResponse struct {
	Error     string            `json:"error"`
	Conflicts []domain.Conflict `json:"conflicts"`
}

func (h *Handler) writeDomainError(w http.ResponseWriter, err error) {
	var conflict *domain.StockConflictError
	switch {
	case errors.As(err, &conflict):
		h.writeJSON(w, http.StatusConflict, conflictResponse{Error: err.Error(), Conflicts: conflict.Conflicts})
	case errors.Is(err, domain.ErrNotFound):
		h.writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrUnauthorized):
		h.writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, domain.ErrInvalidTransition), errors.Is(err, domain.ErrValidation):
		h.writeError(w, http.StatusBadRequest, err.Error())
	default:
		h.logger.Error("request failed", "error", err)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
