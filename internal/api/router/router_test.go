package router

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wolfman30/receptionist-scheduler/internal/booking"
	"github.com/wolfman30/receptionist-scheduler/internal/crm"
	"github.com/wolfman30/receptionist-scheduler/internal/observability/metrics"
	"github.com/wolfman30/receptionist-scheduler/internal/tools"
	"github.com/wolfman30/receptionist-scheduler/pkg/logging"
)

type fakeScheduler struct{}

func (fakeScheduler) Manage(_ context.Context, req booking.ManageRequest) (*booking.ManageResponse, error) {
	if req.ActionType == "cancel" {
		return &booking.ManageResponse{Status: booking.StatusCanceled, AppointmentID: req.AppointmentID}, nil
	}
	return &booking.ManageResponse{Status: booking.StatusNoAvailability, Options: []booking.AppointmentOption{}}, nil
}

func (fakeScheduler) Confirm(_ context.Context, req booking.ConfirmRequest) (*booking.ConfirmResponse, error) {
	return &booking.ConfirmResponse{AppointmentID: "evt_" + req.HoldID, Status: booking.StatusConfirmed}, nil
}

func newTestRouter(t *testing.T, token string) http.Handler {
	t.Helper()

	logger := logging.Discard()
	reg := prometheus.NewRegistry()
	handler := tools.NewHandler(fakeScheduler{}, crm.NewMemoryStore(), metrics.NewBookingMetrics(reg), logger)

	return New(&Config{
		Logger:         logger,
		Tools:          handler,
		MetricsHandler: promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		WebhookToken:   token,
	})
}

func TestRouterHealthEndpoint(t *testing.T) {
	router := newTestRouter(t, "secret")

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rr := httptest.NewRecorder()

	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rr.Code)
	}

	var resp map[string]string
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode health response: %v", err)
	}
	if resp["status"] != "ok" {
		t.Errorf("expected status 'ok', got %q", resp["status"])
	}
}

func TestRouterToolsRequireToken(t *testing.T) {
	router := newTestRouter(t, "secret")
	body := `{"tool_name":"route_live","arguments":{}}`

	req := httptest.NewRequest(http.MethodPost, "/retell/tools", strings.NewReader(body))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected status %d, got %d", http.StatusUnauthorized, rr.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/retell/tools", strings.NewReader(body))
	req.Header.Set("x-retell-webhook-token", "secret")
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d: %s", http.StatusOK, rr.Code, rr.Body.String())
	}
	if !strings.Contains(rr.Body.String(), "transferring") {
		t.Fatalf("expected transferring status, got %s", rr.Body.String())
	}
}

func TestRouterAppointmentEndpoints(t *testing.T) {
	router := newTestRouter(t, "")

	req := httptest.NewRequest(http.MethodPost, "/appointments/manage", strings.NewReader(`{"action_type":"cancel","appointment_id":"evt_7"}`))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rr.Code)
	}
	var manage map[string]any
	if err := json.NewDecoder(rr.Body).Decode(&manage); err != nil {
		t.Fatalf("decode manage response: %v", err)
	}
	if manage["status"] != booking.StatusCanceled || manage["options"] != nil {
		t.Fatalf("unexpected cancel response %v", manage)
	}

	req = httptest.NewRequest(http.MethodPost, "/appointments/confirm", strings.NewReader(`{"hold_id":"h1","slot_id":"s1"}`))
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rr.Code)
	}
	if !strings.Contains(rr.Body.String(), `"appointment_id":"evt_h1"`) {
		t.Fatalf("unexpected confirm response %s", rr.Body.String())
	}
}

func TestRouterMetricsEndpoint(t *testing.T) {
	router := newTestRouter(t, "")

	req := httptest.NewRequest(http.MethodPost, "/retell/tools", strings.NewReader(`{"tool_name":"route_live","arguments":{}}`))
	router.ServeHTTP(httptest.NewRecorder(), req)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "receptionist_tools_calls_total") {
		t.Fatalf("expected tool call counter in metrics output")
	}
}
