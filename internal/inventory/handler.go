package inventory

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/joao-fontenele/rentflow/internal/availability"
	"github.com/joao-fontenele/rentflow/internal/domain"
	"github.com/joao-fontenele/rentflow/internal/telemetry"
)

// Catalog is the product store behind the inventory endpoints.
type Catalog interface {
	availability.Store
	ListProducts(ctx context.Context) ([]domain.Product, error)
}

type Handler struct {
	catalog Catalog
	engine  *availability.Engine
	logger  *slog.Logger
	now     func() time.Time
}

func NewHandler(catalog Catalog, logger *slog.Logger) *Handler {
	return &Handler{
		catalog: catalog,
		engine:  availability.NewEngine(catalog),
		logger:  logger,
		now:     time.Now,
	}
}

// Register mounts the availability and product routes on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /availability", telemetry.WithHTTPRoute(h.HandleAvailability))
	mux.HandleFunc("GET /products", telemetry.WithHTTPRoute(h.HandleListProducts))
	mux.HandleFunc("GET /products/{id}", telemetry.WithHTTPRoute(h.HandleGetProduct))
}

type availabilityResponse struct {
	ProductID    string    `json:"product_id"`
	Available    bool      `json:"available"`
	AvailableQty int       `json:"available_qty"`
	TotalStock   int       `json:"total_stock"`
	Requested    int       `json:"requested_qty"`
	Start        time.Time `json:"start"`
	End          time.Time `json:"end"`
}

func (h *Handler) HandleAvailability(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	productID := q.Get("product_id")
	if productID == "" {
		h.writeError(w, http.StatusBadRequest, "missing product_id")
		return
	}

	start, err := time.Parse(time.RFC3339, q.Get("start"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "start must be an RFC3339 timestamp")
		return
	}
	end, err := time.Parse(time.RFC3339, q.Get("end"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "end must be an RFC3339 timestamp")
		return
	}
	window, err := domain.NewWindow(start, end)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	quantity := 1
	if raw := q.Get("quantity"); raw != "" {
		quantity, err = strconv.Atoi(raw)
		if err != nil || quantity <= 0 {
			h.writeError(w, http.StatusBadRequest, "quantity must be a positive integer")
			return
		}
	}

	level, err := h.engine.Available(r.Context(), productID, window)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			h.writeError(w, http.StatusNotFound, "product not found")
			return
		}
		h.logger.Error("failed to check availability", "error", err, "product_id", productID)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.logger.Info("availability checked", "product_id", productID, "requested", quantity, "available", level.Available)
	h.writeJSON(w, http.StatusOK, availabilityResponse{
		ProductID:    productID,
		Available:    level.Available >= quantity,
		AvailableQty: level.Available,
		TotalStock:   level.OnHand,
		Requested:    quantity,
		Start:        window.Start,
		End:          window.End,
	})
}

type productView struct {
	domain.Product
	Committed int `json:"committed"`
	Available int `json:"available"`
}

func (h *Handler) HandleListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.catalog.ListProducts(r.Context())
	if err != nil {
		h.logger.Error("failed to list products", "error", err)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	views := make([]productView, 0, len(products))
	for _, p := range products {
		view, err := h.view(r.Context(), p)
		if err != nil {
			h.logger.Error("failed to compute stock", "error", err, "product_id", p.ID)
			h.writeError(w, http.StatusInternalServerError, "internal server error")
			return
		}
		views = append(views, view)
	}

	h.logger.Info("products listed", "count", len(views))
	h.writeJSON(w, http.StatusOK, views)
}

func (h *Handler) HandleGetProduct(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		h.writeError(w, http.StatusBadRequest, "missing product id")
		return
	}

	product, err := h.catalog.GetProduct(r.Context(), id)
	if err != nil {
		h.logger.Error("failed to get product", "error", err, "product_id", id)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	if product == nil {
		h.writeError(w, http.StatusNotFound, "product not found")
		return
	}

	view, err := h.view(r.Context(), *product)
	if err != nil {
		h.logger.Error("failed to compute stock", "error", err, "product_id", id)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.logger.Info("product retrieved", "product_id", id)
	h.writeJSON(w, http.StatusOK, view)
}

// view reports the units committed at this instant.
func (h *Handler) view(ctx context.Context, p domain.Product) (productView, error) {
	now := h.now().UTC()
	committed, err := h.catalog.CommittedQuantity(ctx, availability.CommitmentQuery{
		ProductID: p.ID,
		Window:    domain.Window{Start: now, End: now},
		Statuses:  availability.HardScope.Statuses,
	})
	if err != nil {
		return productView{}, err
	}
	return productView{
		Product:   p,
		Committed: committed,
		Available: max(0, p.QuantityOnHand-committed),
	}, nil
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
