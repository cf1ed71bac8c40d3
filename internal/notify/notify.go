// Package notify delivers user-facing alerts for realtime events: platform
// notifications for unread messages and toasts for notification items.
package notify

import (
	"context"
	"errors"

	"github.com/bhandras/bazaar/pkg/logger"
)

// Notifier surfaces a platform notification. Delivery is best effort.
type Notifier interface {
	Notify(ctx context.Context, title, body string) error
}

// Kind classifies a toast.
type Kind string

const (
	KindInfo    Kind = "info"
	KindSuccess Kind = "success"
	KindError   Kind = "error"
)

// Toaster shows a transient in-app toast.
type Toaster interface {
	Toast(kind Kind, title, description string)
}

// LogNotifier writes notifications to the process log.
type LogNotifier struct{}

// Notify implements Notifier.
func (LogNotifier) Notify(_ context.Context, title, body string) error {
	logger.Infof("notification: %s: %s", title, body)
	return nil
}

// Multi fans a notification out to every notifier and joins their errors.
type Multi []Notifier

// Notify implements Notifier.
func (m Multi) Notify(ctx context.Context, title, body string) error {
	var errs []error
	for _, n := range m {
		if n == nil {
			continue
		}
		if err := n.Notify(ctx, title, body); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Nop discards notifications and toasts.
type Nop struct{}

// Notify implements Notifier.
func (Nop) Notify(context.Context, string, string) error { return nil }

// Toast implements Toaster.
func (Nop) Toast(Kind, string, string) {}
