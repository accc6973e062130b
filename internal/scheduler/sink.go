package scheduler

import (
	"context"
	"fmt"
	"log/slog"
)

// Notifier is the subset of the notification dispatcher the failure sink
// uses.
type Notifier interface {
	Notify(ctx context.Context, event, title, message string) error
}

// NotifierSink forwards execution failures to the notification dispatcher so
// operators hear about positions that keep failing their sweeps.
type NotifierSink struct {
	notifier Notifier
	logger   *slog.Logger
}

// NewNotifierSink creates a NotifierSink.
func NewNotifierSink(notifier Notifier, logger *slog.Logger) *NotifierSink {
	return &NotifierSink{notifier: notifier, logger: logger}
}

// ReportFailure sends a failure notification. Delivery errors are logged,
// never propagated: the sweep must not stall on a notification channel.
func (s *NotifierSink) ReportFailure(ctx context.Context, positionID string, err error) {
	msg := fmt.Sprintf("position %s failed its execution sweep: %v", positionID, err)
	if nerr := s.notifier.Notify(ctx, "execution_failed", "DCA execution failed", msg); nerr != nil {
		s.logger.Warn("failure notification not delivered",
			slog.String("position_id", positionID),
			slog.String("error", nerr.Error()),
		)
	}
}

var _ FailureSink = (*NotifierSink)(nil)
