package orders_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/joao-fontenele/rentflow/internal/domain"
	"github.com/joao-fontenele/rentflow/internal/idempotency"
	"github.com/joao-fontenele/rentflow/internal/orders"
)

type fakeIdempotency struct {
	mu         sync.Mutex
	entries    map[string][]string
	pending    map[string]bool
	successErr error
}

func newFakeIdempotency() *fakeIdempotency {
	return &fakeIdempotency{entries: map[string][]string{}, pending: map[string]bool{}}
}

func (f *fakeIdempotency) Reserve(_ context.Context, key string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if ids, ok := f.entries[key]; ok {
		return ids, nil
	}
	if f.pending[key] {
		return nil, idempotency.ErrInProgress
	}
	f.pending[key] = true
	return nil, nil
}

func (f *fakeIdempotency) MarkSuccess(_ context.Context, key string, ids []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.successErr != nil {
		return f.successErr
	}
	delete(f.pending, key)
	f.entries[key] = ids
	return nil
}

func (f *fakeIdempotency) MarkFailure(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.pending, key)
	return nil
}

func newServer(t *testing.T, f *fixture, idem orders.IdempotencyStore) *httptest.Server {
	t.Helper()

	h, err := orders.NewHandler(f.store, f.lifecycle, f.checkout, idem, discardLogger())
	if err != nil {
		t.Fatalf("failed to create handler: %v", err)
	}
	mux := http.NewServeMux()
	h.Register(mux)

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func do(t *testing.T, srv *httptest.Server, method, path string, who *domain.Actor, body string, headers map[string]string) *http.Response {
	t.Helper()

	req, err := http.NewRequest(method, srv.URL+path, strings.NewReader(body))
	if err != nil {
		t.Fatalf("failed to build request: %v", err)
	}
	if who != nil {
		req.Header.Set(domain.HeaderActorID, who.ID)
		req.Header.Set(domain.HeaderActorRole, string(who.Role))
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func checkoutBody(qty int) string {
	return `{"items":[{"product_id":"PROD-CAMERA","quantity":` + strconv.Itoa(qty) + `}],` +
		`"pickup_date":"2026-06-01T10:00:00Z","return_date":"2026-06-03T10:00:00Z"}`
}

func TestHandler_Checkout(t *testing.T) {
	f := newFixture(t, camera(2))
	srv := newServer(t, f, nil)

	t.Run("missing actor", func(t *testing.T) {
		resp := do(t, srv, http.MethodPost, "/checkout", nil, checkoutBody(1), nil)
		if resp.StatusCode != http.StatusUnauthorized {
			t.Errorf("expected status 401, got %d", resp.StatusCode)
		}
	})

	t.Run("unknown role", func(t *testing.T) {
		resp := do(t, srv, http.MethodPost, "/checkout", &domain.Actor{ID: "x", Role: "GUEST"}, checkoutBody(1), nil)
		if resp.StatusCode != http.StatusUnauthorized {
			t.Errorf("expected status 401, got %d", resp.StatusCode)
		}
	})

	t.Run("invalid body", func(t *testing.T) {
		resp := do(t, srv, http.MethodPost, "/checkout", &customer, "{", nil)
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", resp.StatusCode)
		}
	})

	t.Run("created", func(t *testing.T) {
		resp := do(t, srv, http.MethodPost, "/checkout", &customer, checkoutBody(1), nil)
		if resp.StatusCode != http.StatusCreated {
			t.Fatalf("expected status 201, got %d", resp.StatusCode)
		}

		var created []domain.Order
		if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		if len(created) != 1 || created[0].Status != domain.OrderStatusQuotation {
			t.Errorf("expected one quotation, got %+v", created)
		}
	})

	t.Run("vendor forbidden", func(t *testing.T) {
		resp := do(t, srv, http.MethodPost, "/checkout", &vendor, checkoutBody(1), nil)
		if resp.StatusCode != http.StatusForbidden {
			t.Errorf("expected status 403, got %d", resp.StatusCode)
		}
	})

	t.Run("over stock", func(t *testing.T) {
		resp := do(t, srv, http.MethodPost, "/checkout", &customer, checkoutBody(3), nil)
		if resp.StatusCode != http.StatusConflict {
			t.Fatalf("expected status 409, got %d", resp.StatusCode)
		}

		var body struct {
			Error     string            `json:"error"`
			Conflicts []domain.Conflict `json:"conflicts"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		if len(body.Conflicts) != 1 || body.Conflicts[0].ProductID != "PROD-CAMERA" {
			t.Errorf("expected camera conflict, got %+v", body.Conflicts)
		}
		if body.Conflicts[0].TotalStock != 2 {
			t.Errorf("expected total stock 2, got %d", body.Conflicts[0].TotalStock)
		}
	})
}

func TestHandler_CheckoutIdempotency(t *testing.T) {
	f := newFixture(t, camera(5))
	idem := newFakeIdempotency()
	srv := newServer(t, f, idem)
	headers := map[string]string{orders.HeaderIdempotencyKey: "cart-1"}

	first := do(t, srv, http.MethodPost, "/checkout", &customer, checkoutBody(1), headers)
	if first.StatusCode != http.StatusCreated {
		t.Fatalf("expected status 201, got %d", first.StatusCode)
	}
	var created []domain.Order
	if err := json.NewDecoder(first.Body).Decode(&created); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}

	second := do(t, srv, http.MethodPost, "/checkout", &customer, checkoutBody(1), headers)
	if second.StatusCode != http.StatusOK {
		t.Fatalf("expected replay status 200, got %d", second.StatusCode)
	}
	var replayed []domain.Order
	if err := json.NewDecoder(second.Body).Decode(&replayed); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(replayed) != 1 || replayed[0].ID != created[0].ID {
		t.Errorf("expected replay of %s, got %+v", created[0].ID, replayed)
	}

	list, _ := f.store.List(context.Background(), orders.ListFilter{})
	if len(list) != 1 {
		t.Errorf("expected 1 stored order, got %d", len(list))
	}

	// The same key from another customer is a different checkout.
	other := do(t, srv, http.MethodPost, "/checkout", &stranger, checkoutBody(1), headers)
	if other.StatusCode != http.StatusCreated {
		t.Errorf("expected status 201 for another customer, got %d", other.StatusCode)
	}

	idem.pending[stranger.ID+":busy"] = true
	busy := do(t, srv, http.MethodPost, "/checkout", &stranger, checkoutBody(1),
		map[string]string{orders.HeaderIdempotencyKey: "busy"})
	if busy.StatusCode != http.StatusConflict {
		t.Errorf("expected status 409 while in progress, got %d", busy.StatusCode)
	}

	failed := do(t, srv, http.MethodPost, "/checkout", &customer, checkoutBody(9),
		map[string]string{orders.HeaderIdempotencyKey: "too-many"})
	if failed.StatusCode != http.StatusConflict {
		t.Fatalf("expected status 409, got %d", failed.StatusCode)
	}
	if idem.pending[customer.ID+":too-many"] {
		t.Error("expected failed checkout to release its key")
	}
}

func TestHandler_UnrecordedCheckoutReleasesKey(t *testing.T) {
	f := newFixture(t, camera(5))
	idem := newFakeIdempotency()
	idem.successErr = errors.New("redis unavailable")
	srv := newServer(t, f, idem)
	headers := map[string]string{orders.HeaderIdempotencyKey: "cart-1"}

	first := do(t, srv, http.MethodPost, "/checkout", &customer, checkoutBody(1), headers)
	if first.StatusCode != http.StatusCreated {
		t.Fatalf("expected status 201, got %d", first.StatusCode)
	}
	if idem.pending[customer.ID+":cart-1"] {
		t.Fatal("expected the key to be released")
	}

	retry := do(t, srv, http.MethodPost, "/checkout", &customer, checkoutBody(1), headers)
	if retry.StatusCode != http.StatusCreated {
		t.Errorf("expected retry status 201, got %d", retry.StatusCode)
	}
}

func TestHandler_RejectWithoutBody(t *testing.T) {
	f := newFixture(t, camera(2))

	h, err := orders.NewHandler(f.store, f.lifecycle, f.checkout, nil, discardLogger())
	if err != nil {
		t.Fatalf("failed to create handler: %v", err)
	}
	mux := http.NewServeMux()
	h.Register(mux)

	tests := []struct {
		name          string
		contentLength int64
	}{
		{"empty", 0},
		{"empty chunked", -1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := f.quote(t, customer, "PROD-CAMERA", 1, day(time.June, 1), day(time.June, 2))

			req := httptest.NewRequest(http.MethodPost, "/orders/"+o.ID+"/reject", strings.NewReader(""))
			req.ContentLength = tt.contentLength
			req.Header.Set(domain.HeaderActorID, vendor.ID)
			req.Header.Set(domain.HeaderActorRole, string(vendor.Role))
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, req)

			if rec.Code != http.StatusOK {
				t.Fatalf("expected status 200, got %d: %s", rec.Code, rec.Body.String())
			}
			mustStatus(t, f, o.ID, domain.OrderStatusCancelled)
		})
	}
}

func TestHandler_Transitions(t *testing.T) {
	f := newFixture(t, camera(1))
	srv := newServer(t, f, nil)

	a := f.quote(t, customer, "PROD-CAMERA", 1, day(time.June, 1), day(time.June, 4))
	b := f.quote(t, stranger, "PROD-CAMERA", 1, day(time.June, 3), day(time.June, 6))

	tests := []struct {
		name       string
		path       string
		actor      *domain.Actor
		body       string
		wantStatus int
	}{
		{"no actor", "/orders/" + a.ID + "/confirm", nil, "", http.StatusUnauthorized},
		{"unknown order", "/orders/missing/confirm", &vendor, "", http.StatusNotFound},
		{"foreign vendor", "/orders/" + a.ID + "/confirm", &otherVendor, "", http.StatusForbidden},
		{"customer cannot confirm", "/orders/" + a.ID + "/confirm", &customer, "", http.StatusForbidden},
		{"illegal transition", "/orders/" + a.ID + "/pickup", &vendor, "", http.StatusBadRequest},
		{"confirm", "/orders/" + a.ID + "/confirm", &vendor, "", http.StatusOK},
		{"overlapping confirm", "/orders/" + b.ID + "/confirm", &vendor, "", http.StatusConflict},
		{"invoice", "/orders/" + a.ID + "/invoice", &vendor, "", http.StatusOK},
		{"reject with reason", "/orders/" + b.ID + "/reject", &vendor, `{"reason":"booked"}`, http.StatusOK},
		{"reject twice", "/orders/" + b.ID + "/reject", &vendor, "", http.StatusBadRequest},
		{"pickup", "/orders/" + a.ID + "/pickup", &admin, "", http.StatusOK},
		{"return", "/orders/" + a.ID + "/return", &vendor, "", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := do(t, srv, http.MethodPost, tt.path, tt.actor, tt.body, nil)
			if resp.StatusCode != tt.wantStatus {
				t.Errorf("expected status %d, got %d", tt.wantStatus, resp.StatusCode)
			}
		})
	}

	rejected, _ := f.store.GetByID(context.Background(), b.ID)
	if rejected.CancelReason != "booked" {
		t.Errorf("expected reject reason to be stored, got %q", rejected.CancelReason)
	}
}

func TestHandler_GetAndList(t *testing.T) {
	f := newFixture(t, camera(3), drill(3))
	srv := newServer(t, f, nil)

	mine := f.quote(t, customer, "PROD-CAMERA", 1, day(time.June, 1), day(time.June, 2))
	f.quote(t, stranger, "PROD-DRILL", 1, day(time.June, 1), day(time.June, 2))

	t.Run("get own order", func(t *testing.T) {
		resp := do(t, srv, http.MethodGet, "/orders/"+mine.ID, &customer, "", nil)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("expected status 200, got %d", resp.StatusCode)
		}
		var got domain.Order
		if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		if got.Reference != mine.Reference {
			t.Errorf("expected reference %s, got %s", mine.Reference, got.Reference)
		}
	})

	t.Run("get someone else's order", func(t *testing.T) {
		resp := do(t, srv, http.MethodGet, "/orders/"+mine.ID, &stranger, "", nil)
		if resp.StatusCode != http.StatusForbidden {
			t.Errorf("expected status 403, got %d", resp.StatusCode)
		}
	})

	t.Run("get missing order", func(t *testing.T) {
		resp := do(t, srv, http.MethodGet, "/orders/missing", &admin, "", nil)
		if resp.StatusCode != http.StatusNotFound {
			t.Errorf("expected status 404, got %d", resp.StatusCode)
		}
	})

	listCases := []struct {
		name  string
		actor domain.Actor
		query string
		want  int
	}{
		{"admin sees all", admin, "", 2},
		{"customer sees own", customer, "", 1},
		{"customer cannot widen filter", customer, "?customer_id=" + stranger.ID, 1},
		{"vendor sees own", otherVendor, "", 1},
		{"status filter", admin, "?status=CONFIRMED", 0},
	}
	for _, tc := range listCases {
		t.Run(tc.name, func(t *testing.T) {
			resp := do(t, srv, http.MethodGet, "/orders"+tc.query, &tc.actor, "", nil)
			if resp.StatusCode != http.StatusOK {
				t.Fatalf("expected status 200, got %d", resp.StatusCode)
			}
			var list []domain.Order
			if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
				t.Fatalf("failed to decode response: %v", err)
			}
			if len(list) != tc.want {
				t.Errorf("expected %d orders, got %d", tc.want, len(list))
			}
		})
	}

	t.Run("bad status filter", func(t *testing.T) {
		resp := do(t, srv, http.MethodGet, "/orders?status=LOST", &admin, "", nil)
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", resp.StatusCode)
		}
	})
}
