package email

import (
	"encoding/json"
	"log/slog"
	"math/rand"
	"net/http"
	"strings"
	"sync"
	"time"
)

const outboxSize = 100

// Message is one email accepted by the stub sink.
type Message struct {
	To      string    `json:"to"`
	Subject string    `json:"subject"`
	Body    string    `json:"body"`
	SentAt  time.Time `json:"sent_at"`
}

// Handler is a stand-in mail relay. It keeps the most recent messages in an
// outbox that tests and operators can read back.
type Handler struct {
	logger     *slog.Logger
	maxLatency time.Duration

	mu     sync.Mutex
	outbox []Message
}

type Option func(*Handler)

// WithLatency makes every send sleep up to d to imitate a remote relay.
func WithLatency(d time.Duration) Option {
	return func(h *Handler) {
		h.maxLatency = d
	}
}

func NewHandler(logger *slog.Logger, opts ...Option) *Handler {
	h := &Handler{logger: logger}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

type sendResponse struct {
	Status string `json:"status"`
}

func (h *Handler) HandleSend(w http.ResponseWriter, r *http.Request) {
	var msg Message
	if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if !strings.Contains(msg.To, "@") {
		h.writeError(w, http.StatusBadRequest, "invalid recipient")
		return
	}
	if msg.Subject == "" {
		h.writeError(w, http.StatusBadRequest, "missing subject")
		return
	}

	if h.maxLatency > 0 {
		time.Sleep(time.Duration(rand.Int63n(int64(h.maxLatency))))
	}

	msg.SentAt = time.Now().UTC()
	h.mu.Lock()
	h.outbox = append(h.outbox, msg)
	if len(h.outbox) > outboxSize {
		h.outbox = h.outbox[len(h.outbox)-outboxSize:]
	}
	h.mu.Unlock()

	h.logger.Info("email sent", "to", msg.To, "subject", msg.Subject)

	h.writeJSON(w, http.StatusOK, sendResponse{Status: "sent"})
}

// HandleSent lists the outbox, optionally filtered by ?to=.
func (h *Handler) HandleSent(w http.ResponseWriter, r *http.Request) {
	to := r.URL.Query().Get("to")

	h.mu.Lock()
	sent := make([]Message, 0, len(h.outbox))
	for _, m := range h.outbox {
		if to == "" || m.To == to {
			sent = append(sent, m)
		}
	}
	h.mu.Unlock()

	h.writeJSON(w, http.StatusOK, sent)
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
