package calendar

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"

	"github.com/wolfman30/receptionist-scheduler/internal/availability"
	"github.com/wolfman30/receptionist-scheduler/pkg/logging"
)

type fakeCalendarAPI struct {
	mu           sync.Mutex
	requests     []string
	bodies       map[string]map[string]any
	busy         [][2]string
	listed       []map[string]any
	deleteStatus int
}

func (f *fakeCalendarAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := r.Method + " " + r.URL.Path
	f.requests = append(f.requests, key+"?"+r.URL.RawQuery)

	var body map[string]any
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&body)
	}
	if f.bodies == nil {
		f.bodies = map[string]map[string]any{}
	}
	f.bodies[key] = body

	w.Header().Set("Content-Type", "application/json")
	switch {
	case r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, "/freeBusy"):
		busy := make([]map[string]string, 0, len(f.busy))
		for _, b := range f.busy {
			busy = append(busy, map[string]string{"start": b[0], "end": b[1]})
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"calendars": map[string]any{"primary": map[string]any{"busy": busy}},
		})
	case r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, "/events"):
		body["id"] = "evt_google_1"
		_ = json.NewEncoder(w).Encode(body)
	case r.Method == http.MethodGet && strings.HasSuffix(r.URL.Path, "/events"):
		_ = json.NewEncoder(w).Encode(map[string]any{"items": f.listed})
	case r.Method == http.MethodPut:
		_ = json.NewEncoder(w).Encode(body)
	case r.Method == http.MethodDelete:
		status := f.deleteStatus
		if status == 0 {
			status = http.StatusNoContent
		}
		if status >= 400 {
			w.WriteHeader(status)
			_, _ = fmt.Fprintf(w, `{"error":{"code":%d,"message":%q}}`, status, http.StatusText(status))
			return
		}
		w.WriteHeader(status)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func newTestGoogleGateway(t *testing.T, api *fakeCalendarAPI, loc *time.Location) *GoogleGateway {
	t.Helper()
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)
	gw, err := NewGoogleGateway(context.Background(), srv.Client(), "primary", loc, logging.Discard(),
		option.WithEndpoint(srv.URL+"/"))
	require.NoError(t, err)
	return gw
}

func TestGoogleFindSlotsUsesBusyWindows(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	api := &fakeCalendarAPI{busy: [][2]string{{"2026-03-02T14:00:00Z", "2026-03-02T15:00:00Z"}}}
	gw := newTestGoogleGateway(t, api, ny)

	start := time.Date(2026, 3, 2, 8, 0, 0, 0, ny)
	slots, err := gw.FindSlots(context.Background(), start, start.Add(24*time.Hour), availability.Options{})
	require.NoError(t, err)
	require.Len(t, slots, 3)
	assert.Equal(t, "Mon Mar 02, 10:00 AM", slots[0].Display)
	assert.Equal(t, "slot_2026-03-02T10:00:00-05:00", slots[0].ID)
	assert.Equal(t, "Mon Mar 02, 11:00 AM", slots[2].Display)
}

func TestGoogleCreateHoldEventStoresHoldID(t *testing.T) {
	api := &fakeCalendarAPI{}
	gw := newTestGoogleGateway(t, api, time.UTC)
	start := time.Date(2026, 3, 2, 15, 0, 0, 0, time.UTC)

	ev, err := gw.CreateHoldEvent(context.Background(), HoldEventInput{
		HoldID:  "hold12345678",
		Start:   start,
		End:     start.Add(30 * time.Minute),
		Summary: "Hold: Ana - Cleaning",
	})
	require.NoError(t, err)
	assert.Equal(t, "hold12345678", ev.HoldID)
	assert.Equal(t, "evt_google_1", ev.EventID)

	api.mu.Lock()
	defer api.mu.Unlock()
	var body map[string]any
	for key, b := range api.bodies {
		if strings.HasPrefix(key, "POST") && strings.HasSuffix(key, "/events") {
			body = b
		}
	}
	require.NotNil(t, body)
	assert.Equal(t, "tentative", body["status"])
	props := body["extendedProperties"].(map[string]any)["private"].(map[string]any)
	assert.Equal(t, "hold12345678", props["hold_id"])
	assert.Contains(t, api.requests[len(api.requests)-1], "sendUpdates=none")
}

func TestGoogleConfirmEvent(t *testing.T) {
	t.Run("promotes the event", func(t *testing.T) {
		api := &fakeCalendarAPI{listed: []map[string]any{{"id": "evt_9", "status": "tentative"}}}
		gw := newTestGoogleGateway(t, api, time.UTC)

		ev, err := gw.ConfirmEvent(context.Background(), "h1", nil)
		require.NoError(t, err)
		assert.Equal(t, "evt_9", ev.ID)
		assert.Equal(t, "confirmed", ev.Status)

		api.mu.Lock()
		defer api.mu.Unlock()
		require.Len(t, api.requests, 2)
		assert.Contains(t, api.requests[0], "privateExtendedProperty=hold_id%3Dh1")
		assert.Contains(t, api.requests[1], "sendUpdates=all")
	})

	t.Run("missing hold", func(t *testing.T) {
		gw := newTestGoogleGateway(t, &fakeCalendarAPI{}, time.UTC)
		_, err := gw.ConfirmEvent(context.Background(), "nope", nil)
		assert.ErrorIs(t, err, ErrEventNotFound)
	})
}

func TestGoogleCancelEventIsIdempotent(t *testing.T) {
	for _, status := range []int{http.StatusNoContent, http.StatusNotFound, http.StatusGone} {
		api := &fakeCalendarAPI{deleteStatus: status}
		gw := newTestGoogleGateway(t, api, time.UTC)
		assert.NoError(t, gw.CancelEvent(context.Background(), "evt_1"), "status %d", status)
	}

	api := &fakeCalendarAPI{deleteStatus: http.StatusForbidden}
	gw := newTestGoogleGateway(t, api, time.UTC)
	err := gw.CancelEvent(context.Background(), "evt_1")
	require.Error(t, err)
	assert.True(t, IsClientError(err))
}

func TestNewHTTPClientRejectsUnknownMethod(t *testing.T) {
	_, err := NewHTTPClient(context.Background(), AuthConfig{Method: "kerberos"})
	assert.ErrorContains(t, err, "unsupported")

	_, err = NewHTTPClient(context.Background(), AuthConfig{Method: AuthServiceAccount})
	assert.ErrorContains(t, err, "GOOGLE_SERVICE_ACCOUNT_PATH")

	_, err = NewHTTPClient(context.Background(), AuthConfig{Method: AuthOAuth})
	assert.ErrorContains(t, err, "GOOGLE_OAUTH_CLIENT_SECRETS_PATH")
}
