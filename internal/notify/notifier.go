// Package notify forwards selected arena events to operator chat channels.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/DIGIX666/Arena/internal/amount"
	"github.com/DIGIX666/Arena/internal/domain"
)

// Sender is one notification channel.
type Sender interface {
	Send(ctx context.Context, title, message string) error
	Name() string
}

// Notifier dispatches to every Sender. Notify and NotifyEvent only forward
// event kinds in the allowed set; an empty set allows everything.
type Notifier struct {
	senders []Sender
	events  map[string]bool
	logger  *slog.Logger
}

// NewNotifier creates a Notifier delivering to senders.
func NewNotifier(senders []Sender, events []string, logger *slog.Logger) *Notifier {
	allowed := make(map[string]bool, len(events))
	for _, e := range events {
		if e = strings.TrimSpace(e); e != "" {
			allowed[e] = true
		}
	}
	return &Notifier{
		senders: senders,
		events:  allowed,
		logger:  logger.With(slog.String("component", "notifier")),
	}
}

// Enabled reports whether any sender is configured.
func (n *Notifier) Enabled() bool { return n != nil && len(n.senders) > 0 }

// Notify sends title and message if event is allowed.
func (n *Notifier) Notify(ctx context.Context, event, title, message string) error {
	if !n.allows(event) {
		n.logger.DebugContext(ctx, "event filtered out", slog.String("event", event))
		return nil
	}
	return n.dispatch(ctx, title, message)
}

// NotifyEvent renders an engine event and sends it if its kind is allowed.
func (n *Notifier) NotifyEvent(ctx context.Context, ev domain.Event) error {
	title, message := Render(ev)
	return n.Notify(ctx, string(ev.Kind), title, message)
}

// NotifyAll sends regardless of event filtering.
func (n *Notifier) NotifyAll(ctx context.Context, title, message string) error {
	return n.dispatch(ctx, title, message)
}

func (n *Notifier) allows(event string) bool {
	return len(n.events) == 0 || n.events[event]
}

// dispatch delivers to every sender; one failure does not stop the rest.
func (n *Notifier) dispatch(ctx context.Context, title, message string) error {
	var errs []error
	for _, s := range n.senders {
		if err := s.Send(ctx, title, message); err != nil {
			n.logger.ErrorContext(ctx, "sender failed",
				slog.String("sender", s.Name()),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
			continue
		}
		n.logger.DebugContext(ctx, "notification sent",
			slog.String("sender", s.Name()),
			slog.String("title", title),
		)
	}
	if len(errs) > 0 {
		return fmt.Errorf("notify: %d sender(s) failed: %w", len(errs), errors.Join(errs...))
	}
	return nil
}

// Render formats an event as a title and a plain-text body.
func Render(ev domain.Event) (title, message string) {
	title = fmt.Sprintf("%s %s #%d", strings.ReplaceAll(string(ev.Kind), "_", " "), ev.Scope, ev.ID)

	var b strings.Builder
	if ev.Actor != (common.Address{}) {
		fmt.Fprintf(&b, "actor: %s\n", ev.Actor.Hex())
	}
	if ev.Outcome >= 0 && (ev.Scope == domain.ScopeMarket || ev.Scope == domain.ScopeSeasonal) {
		fmt.Fprintf(&b, "outcome: %d\n", ev.Outcome)
	}
	if !ev.Amount.IsZero() {
		fmt.Fprintf(&b, "amount: %s\n", ev.Amount.Format(amount.BaseDecimals))
	}
	if !ev.Secondary.IsZero() {
		fmt.Fprintf(&b, "secondary: %s\n", ev.Secondary.Format(amount.SecondaryDecimals))
	}
	if ev.Detail != "" {
		fmt.Fprintf(&b, "%s\n", ev.Detail)
	}
	fmt.Fprintf(&b, "at: %s", ev.At.UTC().Format("2006-01-02 15:04:05 MST"))
	return title, b.String()
}
