package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestWebhookTokenDisabledWhenEmpty(t *testing.T) {
	called := false
	mw := WebhookToken("")
	req := httptest.NewRequest(http.MethodPost, "/retell/tools", nil)
	rec := httptest.NewRecorder()

	mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true })).ServeHTTP(rec, req)

	if !called {
		t.Fatalf("expected handler to be called")
	}
}

func TestWebhookTokenRejectsMismatch(t *testing.T) {
	for _, token := range []string{"", "wrong"} {
		mw := WebhookToken("secret")
		req := httptest.NewRequest(http.MethodPost, "/retell/tools", nil)
		if token != "" {
			req.Header.Set(WebhookTokenHeader, token)
		}
		rec := httptest.NewRecorder()

		mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			t.Fatalf("handler should not be called")
		})).ServeHTTP(rec, req)

		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("expected status %d, got %d", http.StatusUnauthorized, rec.Code)
		}
		if got := rec.Header().Get("Content-Type"); got != "application/json" {
			t.Fatalf("expected json error, got %q", got)
		}
	}
}

func TestWebhookTokenAcceptsMatch(t *testing.T) {
	mw := WebhookToken("secret")
	req := httptest.NewRequest(http.MethodPost, "/retell/tools", nil)
	req.Header.Set("x-retell-webhook-token", "secret")
	rec := httptest.NewRecorder()

	mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rec.Code)
	}
}
