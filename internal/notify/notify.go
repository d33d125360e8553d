// Package notify implements cross-context signaling for sync coordination.
//
// A Notifier is one logical interface with pluggable transport bindings
// (SSE broadcast, same-process delivery, signal-file fallback). Delivery is
// fire-and-forget, unordered, and at most once; the redundancy across
// transports is a reliability strategy, never a correctness requirement —
// the coordinator's fixed-interval poll is the authoritative backstop.
package notify

import (
	"log/slog"
)

// Type identifies a cross-context signal.
type Type string

// Signal types.
const (
	TypePull  Type = "pull"
	TypePush  Type = "push"
	TypeReset Type = "reset"
)

// Signal asks sibling contexts to run the corresponding sync operation.
// Purpose, when non-empty, names the cursor namespace the signal concerns.
type Signal struct {
	Type    Type   `json:"type"`
	Purpose string `json:"purpose,omitempty"`
}

// Handler consumes an incoming signal.
type Handler func(Signal)

// Transport is one binding of the notifier.
type Transport interface {
	// Publish broadcasts a signal to sibling contexts. Best effort.
	Publish(Signal) error
	Close() error
}

// Notifier fans every published signal out to all bound transports.
type Notifier struct {
	transports []Transport
	logger     *slog.Logger
}

// New creates a notifier over the given transports.
func New(logger *slog.Logger, transports ...Transport) *Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{transports: transports, logger: logger}
}

// Publish broadcasts sig on every transport. Failures are logged, never
// returned: no caller may depend on delivery.
func (n *Notifier) Publish(sig Signal) {
	for _, t := range n.transports {
		if err := t.Publish(sig); err != nil {
			n.logger.Warn("notify: publish failed",
				slog.String("type", string(sig.Type)),
				slog.String("error", err.Error()))
		}
	}
}

// Close closes every transport.
func (n *Notifier) Close() {
	for _, t := range n.transports {
		if err := t.Close(); err != nil {
			n.logger.Warn("notify: close failed", slog.String("error", err.Error()))
		}
	}
}
