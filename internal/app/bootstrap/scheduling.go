package bootstrap

import (
	"context"
	"fmt"
	"strings"

	"github.com/wolfman30/receptionist-scheduler/internal/availability"
	"github.com/wolfman30/receptionist-scheduler/internal/booking"
	"github.com/wolfman30/receptionist-scheduler/internal/calendar"
	appconfig "github.com/wolfman30/receptionist-scheduler/internal/config"
	"github.com/wolfman30/receptionist-scheduler/internal/events"
	"github.com/wolfman30/receptionist-scheduler/internal/retry"
	"github.com/wolfman30/receptionist-scheduler/pkg/logging"
)

// AuthFake selects the in-memory calendar.
const AuthFake = "fake"

// BuildBookingOptions turns the slot and hold settings into orchestrator options.
func BuildBookingOptions(cfg *appconfig.Config) (booking.Options, error) {
	if cfg == nil {
		return booking.Options{}, fmt.Errorf("bootstrap: config is required")
	}
	hours, err := availability.ParseWorkHours(cfg.WorkHoursStart, cfg.WorkHoursEnd)
	if err != nil {
		return booking.Options{}, fmt.Errorf("bootstrap: work hours: %w", err)
	}
	loc := cfg.Location()
	return booking.Options{
		Location: loc,
		Slots: availability.Options{
			SlotLength: cfg.SlotLength,
			WorkHours:  hours,
			Limit:      cfg.SlotLimit,
			Location:   loc,
		},
		SearchSpan: cfg.SearchSpan,
		HoldTTL:    cfg.HoldTTL,
	}, nil
}

// RetryPolicy returns the calendar retry policy.
func RetryPolicy(cfg *appconfig.Config) retry.Policy {
	return retry.Policy{
		Attempts:  cfg.CalendarRetryAttempts,
		BaseDelay: cfg.CalendarRetryBaseDelay,
		MaxDelay:  cfg.CalendarRetryMaxDelay,
	}
}

// BuildCalendar returns the Google Calendar gateway wrapped with retries, or
// the in-memory calendar when GOOGLE_AUTH_METHOD=fake.
func BuildCalendar(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) (calendar.Gateway, error) {
	if cfg == nil {
		return nil, fmt.Errorf("bootstrap: config is required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	loc := cfg.Location()
	if cfg.GoogleAuthMethod == AuthFake {
		logger.Warn("using in-memory calendar; bookings are not persisted to Google")
		return calendar.NewMemoryGateway(loc), nil
	}

	client, err := calendar.NewHTTPClient(ctx, calendar.AuthConfig{
		Method:             cfg.GoogleAuthMethod,
		ServiceAccountPath: cfg.GoogleServiceAccountPath,
		DelegatedUser:      cfg.GoogleDelegatedUser,
		ClientSecretsPath:  cfg.GoogleOAuthClientSecretsPath,
		TokenPath:          cfg.GoogleOAuthTokenPath,
	})
	if err != nil {
		return nil, fmt.Errorf("bootstrap: google credentials: %w", err)
	}
	gw, err := calendar.NewGoogleGateway(ctx, client, cfg.GoogleCalendarID, loc, logger)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: google calendar: %w", err)
	}
	logger.Info("google calendar configured", "calendar_id", cfg.GoogleCalendarID, "auth", cfg.GoogleAuthMethod)
	return calendar.WithRetry(gw, RetryPolicy(cfg), logger), nil
}

// BuildPublisher returns an SQS publisher when a queue is configured.
func BuildPublisher(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) (events.Publisher, error) {
	if cfg == nil || strings.TrimSpace(cfg.AppointmentEventsQueueURL) == "" {
		return events.NopPublisher{}, nil
	}
	client, err := events.NewSQSClient(ctx, events.AWSConfig{
		Region:           cfg.AWSRegion,
		AccessKeyID:      cfg.AWSAccessKeyID,
		SecretAccessKey:  cfg.AWSSecretAccessKey,
		EndpointOverride: cfg.AWSEndpointOverride,
	})
	if err != nil {
		return nil, err
	}
	return events.NewSQSPublisher(client, cfg.AppointmentEventsQueueURL, logger), nil
}
