// Package chat implements the server-side message flow: persisting messages,
// tracking delivery and read state, creating notifications, and emitting the
// matching realtime events to the users involved.
package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/bhandras/bazaar/internal/wire"
	"github.com/bhandras/bazaar/pkg/logger"
)

const (
	// MaxTextLength bounds a message body in runes.
	MaxTextLength = 4000

	previewLength = 80
)

var (
	// ErrInvalidInput is returned for malformed requests.
	ErrInvalidInput = errors.New("invalid input")
	// ErrNotFound is returned when the addressed item does not exist.
	ErrNotFound = errors.New("not found")
)

// Store is the persistence the service needs.
type Store interface {
	InsertMessage(ctx context.Context, m wire.Message) error
	MarkDelivered(ctx context.Context, id string, at time.Time) (bool, error)
	ListUndelivered(ctx context.Context, receiver string) ([]wire.Message, error)
	MarkConversationRead(ctx context.Context, reader, sender string) (int64, error)
	ListConversation(ctx context.Context, a, b string, limit int) ([]wire.Message, error)
	InsertNotification(ctx context.Context, n wire.Notification) error
	ListNotifications(ctx context.Context, user string, limit int) ([]wire.Notification, error)
	MarkNotificationRead(ctx context.Context, user, id string) error
}

// Emitter delivers realtime events to users.
type Emitter interface {
	EmitToUser(ctx context.Context, userID, event string, payload any)
	Online(userID string) bool
}

// Config wires a Service.
type Config struct {
	Store   Store
	Emitter Emitter
	// NotFound maps a store-specific not-found error onto ErrNotFound.
	NotFound error
	Now      func() time.Time
	NewID    func() string
}

// Service coordinates the chat flow.
type Service struct {
	store    Store
	emitter  Emitter
	notFound error
	now      func() time.Time
	newID    func() string
}

// New validates cfg and returns a Service.
func New(cfg Config) (*Service, error) {
	if cfg.Store == nil || cfg.Emitter == nil {
		return nil, errors.New("chat: store and emitter are required")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.NewID == nil {
		cfg.NewID = uuid.NewString
	}
	return &Service{
		store:    cfg.Store,
		emitter:  cfg.Emitter,
		notFound: cfg.NotFound,
		now:      cfg.Now,
		newID:    cfg.NewID,
	}, nil
}

// SendRequest is one outgoing message.
type SendRequest struct {
	From      string
	To        string
	ListingID string
	Text      string
}

func (r SendRequest) validate() error {
	switch {
	case r.From == "" || r.To == "":
		return fmt.Errorf("%w: sender and receiver are required", ErrInvalidInput)
	case r.From == r.To:
		return fmt.Errorf("%w: cannot message yourself", ErrInvalidInput)
	case strings.TrimSpace(r.Text) == "":
		return fmt.Errorf("%w: text is required", ErrInvalidInput)
	case utf8.RuneCountInString(r.Text) > MaxTextLength:
		return fmt.Errorf("%w: text exceeds %d characters", ErrInvalidInput, MaxTextLength)
	}
	return nil
}

// Send stores a message and fans it out. The receiver and the sender both get
// receive_message. When the receiver is online the message is marked
// delivered at once and the sender gets message_delivered. The receiver also
// gets a notification.
func (s *Service) Send(ctx context.Context, req SendRequest) (wire.Message, error) {
	if err := req.validate(); err != nil {
		return wire.Message{}, err
	}

	m := wire.Message{
		ID:         s.newID(),
		Text:       req.Text,
		SenderID:   req.From,
		ReceiverID: req.To,
		ListingID:  req.ListingID,
		CreatedAt:  s.now().UTC(),
	}
	if err := s.store.InsertMessage(ctx, m); err != nil {
		return wire.Message{}, err
	}

	payload := wire.MessagePayloadOf(m)
	s.emitter.EmitToUser(ctx, m.ReceiverID, wire.EventReceiveMessage, payload)
	s.emitter.EmitToUser(ctx, m.SenderID, wire.EventReceiveMessage, payload)

	if s.emitter.Online(m.ReceiverID) {
		at := s.now().UTC()
		ok, err := s.store.MarkDelivered(ctx, m.ID, at)
		switch {
		case err != nil:
			logger.Warnf("chat: mark delivered %s: %v", m.ID, err)
		case ok:
			m.IsDelivered = true
			m.DeliveredAt = &at
			s.emitter.EmitToUser(ctx, m.SenderID, wire.EventMessageDelivered,
				wire.DeliveredPayloadOf(m.ID, at))
		}
	}

	s.notify(ctx, m)
	return m, nil
}

// notify records and emits a notification for the receiver of m. Failures
// are logged; the message itself has already been sent.
func (s *Service) notify(ctx context.Context, m wire.Message) {
	n := wire.Notification{
		ID:        s.newID(),
		UserID:    m.ReceiverID,
		SenderID:  m.SenderID,
		ListingID: m.ListingID,
		MessageID: m.ID,
		Text:      fmt.Sprintf("%s: %s", m.SenderID, preview(m.Text)),
		CreatedAt: m.CreatedAt,
	}
	if err := s.store.InsertNotification(ctx, n); err != nil {
		logger.Warnf("chat: store notification for %s: %v", n.UserID, err)
		return
	}
	s.emitter.EmitToUser(ctx, n.UserID, wire.EventNewNotification, wire.NotificationPayloadOf(n))
}

func preview(text string) string {
	text = strings.Join(strings.Fields(text), " ")
	if utf8.RuneCountInString(text) <= previewLength {
		return text
	}
	r := []rune(text)
	return string(r[:previewLength-1]) + "…"
}

// Read marks every message from peer to reader as read. When anything
// changed, both sides get messages_read naming peer as the sender of the read
// messages: peer sees its receipts and the reader's other sessions catch up.
func (s *Service) Read(ctx context.Context, reader, peer string) (int64, error) {
	if reader == "" || peer == "" {
		return 0, fmt.Errorf("%w: reader and peer are required", ErrInvalidInput)
	}
	n, err := s.store.MarkConversationRead(ctx, reader, peer)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		receipt := wire.MessagesReadPayload{ReadBy: peer, Reader: reader}
		s.emitter.EmitToUser(ctx, peer, wire.EventMessagesRead, receipt)
		s.emitter.EmitToUser(ctx, reader, wire.EventMessagesRead, receipt)
	}
	return n, nil
}

// Connected delivers everything that queued up for user while offline and
// tells each sender. It returns how many messages were delivered.
func (s *Service) Connected(ctx context.Context, user string) (int, error) {
	pending, err := s.store.ListUndelivered(ctx, user)
	if err != nil {
		return 0, err
	}

	delivered := 0
	for _, m := range pending {
		at := s.now().UTC()
		ok, err := s.store.MarkDelivered(ctx, m.ID, at)
		if err != nil {
			return delivered, err
		}
		if !ok {
			continue
		}
		delivered++
		s.emitter.EmitToUser(ctx, m.SenderID, wire.EventMessageDelivered, wire.DeliveredPayloadOf(m.ID, at))
	}
	if delivered > 0 {
		logger.Debugf("chat: delivered %d pending message(s) to %s", delivered, user)
	}
	return delivered, nil
}

// History returns the latest messages between user and peer, oldest first.
func (s *Service) History(ctx context.Context, user, peer string, limit int) ([]wire.Message, error) {
	if user == "" || peer == "" {
		return nil, fmt.Errorf("%w: peer is required", ErrInvalidInput)
	}
	return s.store.ListConversation(ctx, user, peer, limit)
}

// Notifications returns user's notifications, newest first.
func (s *Service) Notifications(ctx context.Context, user string, limit int) ([]wire.Notification, error) {
	return s.store.ListNotifications(ctx, user, limit)
}

// MarkNotificationRead flags one of user's notifications as read.
func (s *Service) MarkNotificationRead(ctx context.Context, user, id string) error {
	err := s.store.MarkNotificationRead(ctx, user, id)
	if err != nil && s.notFound != nil && errors.Is(err, s.notFound) {
		return fmt.Errorf("%w: notification %s", ErrNotFound, id)
	}
	return err
}
