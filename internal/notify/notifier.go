package notify

import "go.uber.org/zap"

// Notifier is the fire-and-forget transient-message collaborator. It is
// never awaited and is not part of the cart's correctness.
type Notifier interface {
	Success(message string)
	Error(message string)
}

// LogNotifier emits notifications on the application log. The storefront
// front end swaps in its own toast implementation.
type LogNotifier struct {
	logger *zap.SugaredLogger
}

func NewLogNotifier(logger *zap.SugaredLogger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Success(message string) {
	n.logger.Infow("notification", "kind", "success", "message", message)
}

func (n *LogNotifier) Error(message string) {
	n.logger.Warnw("notification", "kind", "error", "message", message)
}

// Noop discards every notification.
type Noop struct{}

func (Noop) Success(string) {}
func (Noop) Error(string)   {}
