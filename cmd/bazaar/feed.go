package main

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/bhandras/bazaar/internal/actor"
	"github.com/bhandras/bazaar/internal/inbox"
	"github.com/bhandras/bazaar/internal/realtime"
	"github.com/bhandras/bazaar/internal/wire"
)

// feed prints inbox changes as they are committed by the supervisor loop.
type feed struct {
	mu sync.Mutex
	w  io.Writer
}

func newFeed(w io.Writer) *feed {
	return &feed{w: w}
}

// transition is installed as the supervisor's OnTransition hook.
func (f *feed) transition(prev, next realtime.State, _ actor.Input) {
	f.print(prev.Inbox, next.Inbox, next.UserID)
}

func (f *feed) print(prev, next inbox.State, self string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	// A release clears the inbox; nothing to show.
	if len(next.Messages) < len(prev.Messages) {
		return
	}

	seen := make(map[string]wire.Message, len(prev.Messages))
	for _, m := range prev.Messages {
		seen[m.ID] = m
	}
	for _, m := range next.Messages {
		old, ok := seen[m.ID]
		switch {
		case !ok:
			f.message(m, self)
		case !old.IsDelivered && m.IsDelivered:
			fmt.Fprintf(f.w, "  ✓ delivered %s\n", m.ID)
		case !old.IsRead && m.IsRead:
			fmt.Fprintf(f.w, "  ✓✓ read %s\n", m.ID)
		}
	}

	if next.Unread != prev.Unread && next.Unread > 0 {
		fmt.Fprintf(f.w, "  (%d unread)\n", next.Unread)
	}
}

func (f *feed) message(m wire.Message, self string) {
	from := m.SenderID
	if self != "" && from == self {
		from = "you"
	}
	stamp := m.CreatedAt
	if stamp.IsZero() {
		stamp = time.Now()
	}
	fmt.Fprintf(f.w, "[%s] %s → %s: %s\n", stamp.Local().Format("15:04:05"), from, m.ReceiverID, m.Text)
}
