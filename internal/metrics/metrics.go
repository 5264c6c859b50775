package metrics

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel/attribute"

	"github.com/packportal/rsvp-service/pkg/telemetry"
)

var (
	// Reservation counters
	RSVPsCreated  *telemetry.Counter
	RSVPsUpdated  *telemetry.Counter
	RSVPsDeleted  *telemetry.Counter
	RSVPsRejected *telemetry.Counter
	EventsClosed  *telemetry.Counter

	// Notification counters
	NotificationsPublished *telemetry.Counter
	NotificationsFailed    *telemetry.Counter

	// Error tracking
	ErrorsTotal *telemetry.Counter

	// Histograms
	LedgerTxDuration *telemetry.Histogram
	RequestDuration  *telemetry.Histogram

	// Gauges
	OutboxBacklog *telemetry.Gauge

	initOnce sync.Once
	initErr  error
)

// Init initializes all service metrics
func Init() error {
	initOnce.Do(func() {
		initErr = initMetrics()
	})
	return initErr
}

func initMetrics() error {
	var err error

	RSVPsCreated, err = telemetry.NewCounter(telemetry.MetricOpts{
		Name:        "rsvp_reservations_created_total",
		Description: "Total number of reservations created",
		Unit:        "1",
	})
	if err != nil {
		return err
	}

	RSVPsUpdated, err = telemetry.NewCounter(telemetry.MetricOpts{
		Name:        "rsvp_reservations_updated_total",
		Description: "Total number of reservations updated",
		Unit:        "1",
	})
	if err != nil {
		return err
	}

	RSVPsDeleted, err = telemetry.NewCounter(telemetry.MetricOpts{
		Name:        "rsvp_reservations_deleted_total",
		Description: "Total number of reservations deleted",
		Unit:        "1",
	})
	if err != nil {
		return err
	}

	RSVPsRejected, err = telemetry.NewCounter(telemetry.MetricOpts{
		Name:        "rsvp_reservations_rejected_total",
		Description: "Total number of reservations rejected by capacity or state",
		Unit:        "1",
	})
	if err != nil {
		return err
	}

	EventsClosed, err = telemetry.NewCounter(telemetry.MetricOpts{
		Name:        "rsvp_events_closed_total",
		Description: "Total number of events auto-closed at capacity",
		Unit:        "1",
	})
	if err != nil {
		return err
	}

	NotificationsPublished, err = telemetry.NewCounter(telemetry.MetricOpts{
		Name:        "rsvp_notifications_published_total",
		Description: "Total number of outbox notifications published",
		Unit:        "1",
	})
	if err != nil {
		return err
	}

	NotificationsFailed, err = telemetry.NewCounter(telemetry.MetricOpts{
		Name:        "rsvp_notifications_failed_total",
		Description: "Total number of outbox publish failures",
		Unit:        "1",
	})
	if err != nil {
		return err
	}

	ErrorsTotal, err = telemetry.NewCounter(telemetry.MetricOpts{
		Name:        "rsvp_errors_total",
		Description: "Total number of errors by type",
		Unit:        "1",
	})
	if err != nil {
		return err
	}

	LedgerTxDuration, err = telemetry.NewHistogramWithBuckets(telemetry.MetricOpts{
		Name:        "rsvp_ledger_tx_duration_seconds",
		Description: "Duration of ledger transactions",
		Unit:        "s",
	}, []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5})
	if err != nil {
		return err
	}

	RequestDuration, err = telemetry.NewHistogramWithBuckets(telemetry.MetricOpts{
		Name:        "rsvp_request_duration_seconds",
		Description: "HTTP request duration in seconds",
		Unit:        "s",
	}, []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10})
	if err != nil {
		return err
	}

	OutboxBacklog, err = telemetry.NewGauge(telemetry.MetricOpts{
		Name:        "rsvp_outbox_backlog",
		Description: "Pending outbox messages observed by the last poll",
		Unit:        "1",
	})
	if err != nil {
		return err
	}

	return nil
}

// RecordCreate records a successful reservation create
func RecordCreate(ctx context.Context, eventID string, attendees int, closed bool) {
	if RSVPsCreated != nil {
		RSVPsCreated.Inc(ctx,
			attribute.String("event_id", eventID),
			attribute.Int("attendees", attendees),
		)
	}
	if closed && EventsClosed != nil {
		EventsClosed.Inc(ctx, attribute.String("event_id", eventID))
	}
}

// RecordUpdate records a successful reservation update
func RecordUpdate(ctx context.Context, eventID string, closed bool) {
	if RSVPsUpdated != nil {
		RSVPsUpdated.Inc(ctx, attribute.String("event_id", eventID))
	}
	if closed && EventsClosed != nil {
		EventsClosed.Inc(ctx, attribute.String("event_id", eventID))
	}
}

// RecordDelete records a reservation deletion
func RecordDelete(ctx context.Context, eventID string) {
	if RSVPsDeleted != nil {
		RSVPsDeleted.Inc(ctx, attribute.String("event_id", eventID))
	}
}

// RecordRejection records a capacity or state rejection
func RecordRejection(ctx context.Context, eventID, reason string) {
	if RSVPsRejected != nil {
		RSVPsRejected.Inc(ctx,
			attribute.String("event_id", eventID),
			attribute.String("reason", reason),
		)
	}
}

// RecordNotification records an outbox publish outcome
func RecordNotification(ctx context.Context, eventType string, ok bool) {
	if ok {
		if NotificationsPublished != nil {
			NotificationsPublished.Inc(ctx, attribute.String("event_type", eventType))
		}
		return
	}
	if NotificationsFailed != nil {
		NotificationsFailed.Inc(ctx, attribute.String("event_type", eventType))
	}
}

// RecordOutboxBacklog records the pending backlog seen by an outbox poll
func RecordOutboxBacklog(ctx context.Context, pending int) {
	if OutboxBacklog != nil {
		OutboxBacklog.Record(ctx, int64(pending))
	}
}

// RecordError records an error by type and operation
func RecordError(ctx context.Context, errorType, operation string) {
	if ErrorsTotal != nil {
		ErrorsTotal.Inc(ctx,
			attribute.String("error_type", errorType),
			attribute.String("operation", operation),
		)
	}
}

// RecordLedgerTx records the duration of a ledger transaction
func RecordLedgerTx(ctx context.Context, operation string, durationSeconds float64) {
	if LedgerTxDuration != nil {
		LedgerTxDuration.Record(ctx, durationSeconds,
			attribute.String("operation", operation),
		)
	}
}

// RecordRequestDuration records HTTP request duration
func RecordRequestDuration(ctx context.Context, operation string, durationSeconds float64) {
	if RequestDuration != nil {
		RequestDuration.Record(ctx, durationSeconds,
			attribute.String("operation", operation),
		)
	}
}
