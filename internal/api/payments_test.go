package api

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/schoolkey/access-key-manager/internal/paystack"
	"github.com/schoolkey/access-key-manager/internal/storage"
)

// paystackStub serves canned verify responses keyed by reference.
func paystackStub(t *testing.T, amounts map[string]int64, email string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ref := r.URL.Path[len("/transaction/verify/"):]
		amount, ok := amounts[ref]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			fmt.Fprint(w, `{"status": false, "message": "Transaction reference not found"}`)
			return
		}
		fmt.Fprintf(w, `{
			"status": true,
			"message": "Verification successful",
			"data": {
				"status": "success",
				"reference": %q,
				"amount": %d,
				"customer": {"email": %q}
			}
		}`, ref, amount, email)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestHandlePaymentCallback(t *testing.T) {
	f := newFixture(t)
	srv := paystackStub(t, map[string]int64{
		"ref_ok":    10000,
		"ref_cheap": 2500,
	}, "bursar@hillcrest.example")

	f.handler.payments = paystack.NewClient("sk_test_x", paystack.WithBaseURL(srv.URL))
	public := f.router(nil)

	w := do(t, public, "GET", "/payments/callback?reference=ref_ok", nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", w.Code, w.Body.String())
	}
	resp := decode[PaymentCallbackResponse](t, w)
	if resp.Reference != "ref_ok" {
		t.Errorf("expected reference ref_ok, got %s", resp.Reference)
	}
	if resp.Key.SchoolID != f.school.ID {
		t.Errorf("expected key for school %s, got %s", f.school.ID, resp.Key.SchoolID)
	}
	if resp.Key.Status != string(storage.StatusActive) {
		t.Errorf("expected active key, got %s", resp.Key.Status)
	}
	// The key is priced at the amount actually paid.
	if resp.Key.PriceCents != 10000 {
		t.Errorf("expected price 10000, got %d", resp.Key.PriceCents)
	}
}

func TestHandlePaymentCallbackErrors(t *testing.T) {
	f := newFixture(t)
	srv := paystackStub(t, map[string]int64{
		"ref_ok":       10000,
		"ref_cheap":    2500,
		"ref_stranger": 10000,
	}, "bursar@hillcrest.example")

	f.handler.payments = paystack.NewClient("sk_test_x", paystack.WithBaseURL(srv.URL))
	public := f.router(nil)

	t.Run("missing reference", func(t *testing.T) {
		w := do(t, public, "GET", "/payments/callback", nil)
		if w.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", w.Code)
		}
	})

	t.Run("unknown reference", func(t *testing.T) {
		w := do(t, public, "GET", "/payments/callback?reference=ref_missing", nil)
		if w.Code != http.StatusNotFound {
			t.Errorf("expected status 404, got %d", w.Code)
		}
	})

	t.Run("underpaid", func(t *testing.T) {
		w := do(t, public, "GET", "/payments/callback?reference=ref_cheap", nil)
		if w.Code != http.StatusPaymentRequired {
			t.Errorf("expected status 402, got %d", w.Code)
		}
	})

	t.Run("second purchase while active", func(t *testing.T) {
		w := do(t, public, "GET", "/payments/callback?reference=ref_ok", nil)
		if w.Code != http.StatusCreated {
			t.Fatalf("expected status 201, got %d: %s", w.Code, w.Body.String())
		}
		w = do(t, public, "GET", "/payments/callback?reference=ref_ok", nil)
		if w.Code != http.StatusConflict {
			t.Errorf("expected status 409 while a key is active, got %d", w.Code)
		}
	})
}

func TestHandlePaymentCallbackUnknownCustomer(t *testing.T) {
	f := newFixture(t)
	srv := paystackStub(t, map[string]int64{"ref_ok": 10000}, "nobody@example.com")

	f.handler.payments = paystack.NewClient("sk_test_x", paystack.WithBaseURL(srv.URL))

	w := do(t, f.router(nil), "GET", "/payments/callback?reference=ref_ok", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("expected status 404 for unregistered customer, got %d", w.Code)
	}
}

func TestHandlePaymentCallbackNotConfigured(t *testing.T) {
	f := newFixture(t)

	w := do(t, f.router(nil), "GET", "/payments/callback?reference=ref_ok", nil)
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("expected status 503 without a payment gateway, got %d", w.Code)
	}
}
