// Package notify delivers operator-facing events: cooldown transitions,
// drain progress and the fatal stop. Delivery is fire-and-forget; failures
// are logged and never propagated to the caller.
package notify

import (
	"context"
	"log/slog"
)

// Event names an operator-facing occurrence.
type Event string

const (
	EventSessionStarted   Event = "session_started"
	EventSessionStopped   Event = "session_stopped"
	EventCooldownEntered  Event = "cooldown_entered"
	EventCooldownExtended Event = "cooldown_extended"
	EventCooldownResumed  Event = "cooldown_resumed"
	EventFatalStop        Event = "fatal_stop"
	EventDrainStarted     Event = "drain_started"
	EventDrainCompleted   Event = "drain_completed"
)

// Notifier is the operator notification sink.
type Notifier interface {
	Notify(ctx context.Context, event Event, details map[string]any)
}

// LogNotifier writes events to the structured log. It is the default sink
// when no webhook is configured.
type LogNotifier struct {
	logger *slog.Logger
}

var _ Notifier = (*LogNotifier)(nil)

func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{logger: logger.With("component", "notify")}
}

func (n *LogNotifier) Notify(_ context.Context, event Event, details map[string]any) {
	attrs := make([]any, 0, 2*len(details)+2)
	attrs = append(attrs, "event", string(event))
	for k, v := range details {
		attrs = append(attrs, k, v)
	}
	if event == EventFatalStop {
		n.logger.Error("operator alert", attrs...)
		return
	}
	n.logger.Info("operator event", attrs...)
}

// Noop discards all events.
type Noop struct{}

var _ Notifier = Noop{}

func (Noop) Notify(context.Context, Event, map[string]any) {}

// Multi fans an event out to every sink.
type Multi []Notifier

var _ Notifier = Multi(nil)

func (m Multi) Notify(ctx context.Context, event Event, details map[string]any) {
	for _, n := range m {
		n.Notify(ctx, event, details)
	}
}
