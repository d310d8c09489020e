// Package notify delivers best-effort filing events to downstream systems.
// Services hand events to an Outbox after their transaction commits; a Worker
// drains the channel into a Publisher. Publisher failures are logged and
// never propagate back into request handling.
package notify

import (
	"context"
	"log/slog"
	"time"

	id "taxfiling/pkg/domain"
)

// EventType names a filing milestone worth announcing.
type EventType string

const (
	EventDraftCreated    EventType = "filing.draft_created"
	EventComputationDone EventType = "filing.computation_done"
	EventExported        EventType = "filing.exported"
)

// Event is one outbound notification.
type Event struct {
	Type     EventType   `json:"type"`
	FilingID id.FilingID `json:"filing_id"`
	OwnerID  id.UserID   `json:"owner_id"`
	FormType id.FormType `json:"form_type"`
	At       time.Time   `json:"at"`
}

// Publisher delivers one event to a sink.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// Outbox is the post-commit hand-off point. Enqueue never blocks: when the
// buffer is full the event is dropped and counted, because notification is
// best-effort and a slow sink must not back-pressure request handling.
type Outbox struct {
	ch     chan Event
	logger *slog.Logger
}

// NewOutbox constructs an outbox with the given buffer size.
func NewOutbox(buffer int, logger *slog.Logger) *Outbox {
	return &Outbox{ch: make(chan Event, buffer), logger: logger}
}

// Enqueue hands an event to the worker without blocking.
func (o *Outbox) Enqueue(event Event) {
	select {
	case o.ch <- event:
	default:
		if o.logger != nil {
			o.logger.Warn("notification dropped: outbox full",
				"event", string(event.Type),
				"filing_id", event.FilingID.String(),
			)
		}
	}
}

// Events exposes the drain side for the worker.
func (o *Outbox) Events() <-chan Event { return o.ch }

// Worker consumes outbox events and hands them to the publisher. A publish
// failure is logged and the event discarded; delivery is at-most-once.
type Worker struct {
	outbox    *Outbox
	publisher Publisher
	logger    *slog.Logger
}

// NewWorker constructs a worker draining outbox into publisher.
func NewWorker(outbox *Outbox, publisher Publisher, logger *slog.Logger) *Worker {
	return &Worker{outbox: outbox, publisher: publisher, logger: logger}
}

// Run drains the outbox until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event := <-w.outbox.Events():
			if err := w.publisher.Publish(ctx, event); err != nil && w.logger != nil {
				w.logger.WarnContext(ctx, "notification publish failed",
					"event", string(event.Type),
					"filing_id", event.FilingID.String(),
					"error", err.Error(),
				)
			}
		}
	}
}

// LogPublisher writes events to the log. Default sink when no broker is
// configured.
type LogPublisher struct {
	logger *slog.Logger
}

// NewLogPublisher constructs a log-backed publisher.
func NewLogPublisher(logger *slog.Logger) *LogPublisher {
	return &LogPublisher{logger: logger}
}

func (p *LogPublisher) Publish(ctx context.Context, event Event) error {
	p.logger.InfoContext(ctx, "filing notification",
		"event", string(event.Type),
		"filing_id", event.FilingID.String(),
		"owner_id", event.OwnerID.String(),
		"form_type", event.FormType.String(),
	)
	return nil
}
