package calendar

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	gcal "google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/wolfman30/receptionist-scheduler/internal/availability"
	"github.com/wolfman30/receptionist-scheduler/pkg/logging"
)

// Auth methods accepted by NewHTTPClient.
const (
	AuthServiceAccount = "service_account"
	AuthOAuth          = "oauth"
)

// AuthConfig selects how the service authenticates against Google.
type AuthConfig struct {
	Method             string
	ServiceAccountPath string
	DelegatedUser      string
	ClientSecretsPath  string
	TokenPath          string
}

// NewHTTPClient builds an authorised HTTP client for the Calendar API.
// Service accounts may impersonate DelegatedUser. OAuth reads a previously
// saved token from TokenPath; the interactive consent flow is not supported.
func NewHTTPClient(ctx context.Context, cfg AuthConfig) (*http.Client, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Method)) {
	case AuthServiceAccount:
		if cfg.ServiceAccountPath == "" {
			return nil, errors.New("calendar: GOOGLE_SERVICE_ACCOUNT_PATH is required for service account auth")
		}
		data, err := os.ReadFile(cfg.ServiceAccountPath)
		if err != nil {
			return nil, fmt.Errorf("calendar: read service account: %w", err)
		}
		conf, err := google.JWTConfigFromJSON(data, gcal.CalendarScope)
		if err != nil {
			return nil, fmt.Errorf("calendar: parse service account: %w", err)
		}
		conf.Subject = cfg.DelegatedUser
		return conf.Client(ctx), nil

	case AuthOAuth:
		if cfg.ClientSecretsPath == "" {
			return nil, errors.New("calendar: GOOGLE_OAUTH_CLIENT_SECRETS_PATH is required for oauth auth")
		}
		secrets, err := os.ReadFile(cfg.ClientSecretsPath)
		if err != nil {
			return nil, fmt.Errorf("calendar: read client secrets: %w", err)
		}
		conf, err := google.ConfigFromJSON(secrets, gcal.CalendarScope)
		if err != nil {
			return nil, fmt.Errorf("calendar: parse client secrets: %w", err)
		}
		tokenPath := cfg.TokenPath
		if tokenPath == "" {
			tokenPath = "token.json"
		}
		raw, err := os.ReadFile(tokenPath)
		if err != nil {
			return nil, fmt.Errorf("calendar: read oauth token: %w", err)
		}
		var token oauth2.Token
		if err := json.Unmarshal(raw, &token); err != nil {
			return nil, fmt.Errorf("calendar: parse oauth token: %w", err)
		}
		return conf.Client(ctx, &token), nil

	default:
		return nil, fmt.Errorf("calendar: unsupported GOOGLE_AUTH_METHOD %q", cfg.Method)
	}
}

// GoogleGateway implements Gateway on the Google Calendar v3 API.
type GoogleGateway struct {
	svc        *gcal.Service
	calendarID string
	loc        *time.Location
	logger     *logging.Logger
}

// NewGoogleGateway creates a gateway from an authorised HTTP client. Extra
// client options (endpoint overrides in tests) are appended.
func NewGoogleGateway(ctx context.Context, client *http.Client, calendarID string, loc *time.Location, logger *logging.Logger, opts ...option.ClientOption) (*GoogleGateway, error) {
	svc, err := gcal.NewService(ctx, append([]option.ClientOption{option.WithHTTPClient(client)}, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("calendar: create service: %w", err)
	}
	if calendarID == "" {
		calendarID = "primary"
	}
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &GoogleGateway{svc: svc, calendarID: calendarID, loc: loc, logger: logger}, nil
}

// FreeBusy queries the free/busy endpoint for the configured calendar.
func (g *GoogleGateway) FreeBusy(ctx context.Context, start, end time.Time) ([]availability.Interval, error) {
	req := &gcal.FreeBusyRequest{
		TimeMin:  start.Format(time.RFC3339),
		TimeMax:  end.Format(time.RFC3339),
		TimeZone: g.loc.String(),
		Items:    []*gcal.FreeBusyRequestItem{{Id: g.calendarID}},
	}
	resp, err := g.svc.Freebusy.Query(req).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("calendar: freebusy: %w", err)
	}
	cal, ok := resp.Calendars[g.calendarID]
	if !ok {
		return nil, nil
	}
	if len(cal.Errors) > 0 {
		return nil, fmt.Errorf("calendar: freebusy: %s", cal.Errors[0].Reason)
	}
	busy := make([]availability.Interval, 0, len(cal.Busy))
	for _, period := range cal.Busy {
		bs, err := time.Parse(time.RFC3339, period.Start)
		if err != nil {
			return nil, fmt.Errorf("calendar: parse busy start: %w", err)
		}
		be, err := time.Parse(time.RFC3339, period.End)
		if err != nil {
			return nil, fmt.Errorf("calendar: parse busy end: %w", err)
		}
		busy = append(busy, availability.Interval{Start: bs.In(g.loc), End: be.In(g.loc)})
	}
	return busy, nil
}

// FindSlots returns free slots in the gateway's timezone unless opts names another.
func (g *GoogleGateway) FindSlots(ctx context.Context, start, end time.Time, opts availability.Options) ([]availability.Slot, error) {
	if opts.Location == nil {
		opts.Location = g.loc
	}
	start, end = start.In(opts.Location), end.In(opts.Location)
	busy, err := g.FreeBusy(ctx, start, end)
	if err != nil {
		return nil, err
	}
	return slotsFrom(start, end, busy, opts), nil
}

// CreateHoldEvent inserts a tentative event without notifying attendees.
func (g *GoogleGateway) CreateHoldEvent(ctx context.Context, in HoldEventInput) (*HoldEvent, error) {
	holdID := in.HoldID
	if holdID == "" {
		holdID = NewHoldID()
	}
	event := &gcal.Event{
		Summary:     in.Summary,
		Description: in.Description,
		Status:      "tentative",
		Start:       &gcal.EventDateTime{DateTime: in.Start.In(g.loc).Format(time.RFC3339), TimeZone: g.loc.String()},
		End:         &gcal.EventDateTime{DateTime: in.End.In(g.loc).Format(time.RFC3339), TimeZone: g.loc.String()},
		Attendees:   attendeeList(in.Attendees),
		ExtendedProperties: &gcal.EventExtendedProperties{
			Private: map[string]string{HoldProperty: holdID},
		},
	}
	created, err := g.svc.Events.Insert(g.calendarID, event).SendUpdates("none").Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("calendar: insert hold event: %w", err)
	}
	g.logger.Info("calendar: created hold event", "event_id", created.Id, "hold_id", holdID)
	return &HoldEvent{HoldID: holdID, EventID: created.Id}, nil
}

// ConfirmEvent finds the event by its hold property and marks it confirmed,
// notifying attendees.
func (g *GoogleGateway) ConfirmEvent(ctx context.Context, holdID string, attendees []string) (*Event, error) {
	list, err := g.svc.Events.List(g.calendarID).
		PrivateExtendedProperty(HoldProperty + "=" + holdID).
		ShowDeleted(false).
		SingleEvents(true).
		MaxResults(1).
		OrderBy("startTime").
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("calendar: find hold event: %w", err)
	}
	if len(list.Items) == 0 {
		g.logger.Error("calendar: hold event not found", "hold_id", holdID)
		return nil, fmt.Errorf("%w: hold %s", ErrEventNotFound, holdID)
	}

	event := list.Items[0]
	event.Status = "confirmed"
	if len(attendees) > 0 {
		event.Attendees = attendeeList(attendees)
	}
	updated, err := g.svc.Events.Update(g.calendarID, event.Id, event).SendUpdates("all").Context(ctx).Do()
	if err != nil {
		if isGone(err) {
			return nil, fmt.Errorf("%w: event %s", ErrEventNotFound, event.Id)
		}
		return nil, fmt.Errorf("calendar: update event: %w", err)
	}
	g.logger.Info("calendar: confirmed event", "event_id", updated.Id, "hold_id", holdID)
	return g.toEvent(updated), nil
}

// CancelEvent deletes the event and notifies attendees.
func (g *GoogleGateway) CancelEvent(ctx context.Context, eventID string) error {
	err := g.svc.Events.Delete(g.calendarID, eventID).SendUpdates("all").Context(ctx).Do()
	if err != nil {
		if isGone(err) {
			g.logger.Info("calendar: event already gone", "event_id", eventID)
			return nil
		}
		return fmt.Errorf("calendar: delete event: %w", err)
	}
	g.logger.Info("calendar: canceled event", "event_id", eventID)
	return nil
}

func (g *GoogleGateway) toEvent(e *gcal.Event) *Event {
	out := &Event{ID: e.Id, Status: e.Status}
	if e.Start != nil {
		if t, err := time.Parse(time.RFC3339, e.Start.DateTime); err == nil {
			out.Start = t.In(g.loc)
		}
	}
	if e.End != nil {
		if t, err := time.Parse(time.RFC3339, e.End.DateTime); err == nil {
			out.End = t.In(g.loc)
		}
	}
	return out
}

func attendeeList(emails []string) []*gcal.EventAttendee {
	if len(emails) == 0 {
		return nil
	}
	out := make([]*gcal.EventAttendee, 0, len(emails))
	for _, email := range emails {
		out = append(out, &gcal.EventAttendee{Email: email})
	}
	return out
}

// isGone reports a 404 or 410 from the API.
func isGone(err error) bool {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return apiErr.Code == http.StatusNotFound || apiErr.Code == http.StatusGone
	}
	return false
}

// IsClientError reports a 4xx API error other than 429, which retrying will not fix.
func IsClientError(err error) bool {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return apiErr.Code >= 400 && apiErr.Code < 500 && apiErr.Code != http.StatusTooManyRequests
	}
	return false
}
