// Package notify defines the outbound notification contract. Delivery is
// best-effort everywhere it is used: a failed send is logged and never unwinds
// the state change that triggered it.
package notify

import (
	"context"

	"go.uber.org/zap"
)

// Dispatcher delivers a user-facing notification over whatever transport the
// deployment wires in.
type Dispatcher interface {
	Send(ctx context.Context, userID int64, title, message, category string) error
}

// LogDispatcher writes notifications to the structured log. It stands in for
// a real transport in development and keeps the audit trail in production
// deployments that route delivery elsewhere.
type LogDispatcher struct {
	logger *zap.Logger
}

var _ Dispatcher = (*LogDispatcher)(nil)

// NewLogDispatcher constructs a log-backed dispatcher.
func NewLogDispatcher(logger *zap.Logger) *LogDispatcher {
	if logger == nil {
		logger = zap.L()
	}
	return &LogDispatcher{logger: logger}
}

// Send records the notification.
func (d *LogDispatcher) Send(_ context.Context, userID int64, title, message, category string) error {
	d.logger.Info("notification",
		zap.Int64("user_id", userID),
		zap.String("title", title),
		zap.String("message", message),
		zap.String("category", category),
	)
	return nil
}
