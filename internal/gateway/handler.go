package gateway

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/joao-fontenele/rentflow/internal/telemetry"
)

// Handler is the public edge: it fronts the orders and inventory services.
type Handler struct {
	ordersProxy    *ServiceProxy
	inventoryProxy *ServiceProxy
	logger         *slog.Logger
}

func NewHandler(ordersProxy, inventoryProxy *ServiceProxy, logger *slog.Logger) *Handler {
	return &Handler{
		ordersProxy:    ordersProxy,
		inventoryProxy: inventoryProxy,
		logger:         logger,
	}
}

// Register mounts the public routes. Paths reach the backing service unchanged.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /checkout", telemetry.WithHTTPRoute(h.HandleOrders))
	mux.HandleFunc("GET /orders", telemetry.WithHTTPRoute(h.HandleOrders))
	mux.HandleFunc("GET /orders/{id}", telemetry.WithHTTPRoute(h.HandleOrders))
	mux.HandleFunc("POST /orders/{id}/{action}", telemetry.WithHTTPRoute(h.HandleOrders))
	mux.HandleFunc("GET /availability", telemetry.WithHTTPRoute(h.HandleInventory))
	mux.HandleFunc("GET /products", telemetry.WithHTTPRoute(h.HandleInventory))
	mux.HandleFunc("GET /products/{id}", telemetry.WithHTTPRoute(h.HandleInventory))
}

func (h *Handler) HandleOrders(w http.ResponseWriter, r *http.Request) {
	h.proxyRequest(w, r, "orders", h.ordersProxy, r.URL.Path)
}

func (h *Handler) HandleInventory(w http.ResponseWriter, r *http.Request) {
	h.proxyRequest(w, r, "inventory", h.inventoryProxy, r.URL.Path)
}

func (h *Handler) proxyRequest(w http.ResponseWriter, r *http.Request, service string, proxy *ServiceProxy, path string) {
	resp, err := proxy.ForwardRequest(r.Context(), r, path)
	if err != nil {
		h.logger.Error("failed to forward request", "error", err, "service", service, "path", path)
		h.writeError(w, http.StatusBadGateway, "service unavailable")
		return
	}
	defer func() { _ = resp.Body.Close() }()

	if contentType := resp.Header.Get("Content-Type"); contentType != "" {
		w.Header().Set("Content-Type", contentType)
	}

	w.WriteHeader(resp.StatusCode)

	h.logger.Info("request proxied",
		"service", service,
		"method", r.Method,
		"path", path,
		"status", resp.StatusCode,
		"actor_id", r.Header.Get("X-Actor-ID"),
	)

	if _, err := io.Copy(w, resp.Body); err != nil {
		h.logger.Error("failed to copy response body", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(map[string]string{"error": message}); err != nil {
		h.logger.Error("failed to encode error response", "error", err)
	}
}
