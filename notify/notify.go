// Package notify is the fire-and-forget notification collaborator.
// Delivery failures are logged and never block the operation that
// triggered them.
package notify

import (
	"context"

	"go.uber.org/zap"
)

// Notifier delivers a message to a user. Implementations must not
// return delivery failures to domain code; log and move on.
type Notifier interface {
	Notify(ctx context.Context, userID, message string)
}

// Nop discards all notifications. Useful in tests.
type Nop struct{}

func (Nop) Notify(context.Context, string, string) {}

// LogNotifier writes notifications to the structured log. Production
// wiring replaces this with the real email/push collaborator.
type LogNotifier struct {
	Logger *zap.Logger
}

func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogNotifier{Logger: logger}
}

func (n *LogNotifier) Notify(_ context.Context, userID, message string) {
	n.Logger.Info("notification",
		zap.String("user_id", userID),
		zap.String("message", message),
	)
}
