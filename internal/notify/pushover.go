package notify

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

const (
	// DefaultPushoverEndpoint is the Pushover message API.
	DefaultPushoverEndpoint = "https://api.pushover.net/1/messages.json"

	pushoverContentType    = "application/x-www-form-urlencoded"
	defaultPushoverTimeout = 10 * time.Second
)

// PushoverConfig describes the credentials and defaults for Pushover delivery.
type PushoverConfig struct {
	// Token is the application API token.
	Token string
	// UserKey is the destination user key.
	UserKey string
	// Priority is the Pushover priority value for messages.
	Priority int
	// Cooldown is the minimum interval between notifications sharing a title.
	Cooldown time.Duration
	// Endpoint overrides DefaultPushoverEndpoint.
	Endpoint string
}

// Enabled reports whether both credentials are set.
func (c PushoverConfig) Enabled() bool {
	return strings.TrimSpace(c.Token) != "" && strings.TrimSpace(c.UserKey) != ""
}

// PushoverNotifier forwards unread-message alerts to a phone through Pushover.
type PushoverNotifier struct {
	cfg    PushoverConfig
	client *http.Client

	mu        sync.Mutex
	lastSent  map[string]time.Time
	lastError error
}

var _ Notifier = (*PushoverNotifier)(nil)

// NewPushoverNotifier validates cfg and returns a notifier.
func NewPushoverNotifier(cfg PushoverConfig) (*PushoverNotifier, error) {
	if !cfg.Enabled() {
		return nil, fmt.Errorf("pushover token and user key are required")
	}
	if cfg.Cooldown < 0 {
		return nil, fmt.Errorf("pushover cooldown must be non-negative")
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultPushoverEndpoint
	}
	return &PushoverNotifier{
		cfg:      cfg,
		client:   &http.Client{Timeout: defaultPushoverTimeout},
		lastSent: make(map[string]time.Time),
	}, nil
}

// Notify implements Notifier. Notifications with the same title inside the
// cooldown window are suppressed.
func (n *PushoverNotifier) Notify(ctx context.Context, title, body string) error {
	body = strings.TrimSpace(body)
	if body == "" {
		return fmt.Errorf("pushover message is required")
	}

	key := strings.TrimSpace(title)
	now := time.Now()
	if !n.shouldSend(key, now) {
		return nil
	}
	if err := n.send(ctx, title, body); err != nil {
		n.mu.Lock()
		n.lastError = err
		n.mu.Unlock()
		return err
	}

	n.mu.Lock()
	n.lastSent[key] = now
	n.lastError = nil
	n.mu.Unlock()
	return nil
}

// LastError returns the most recent send error, if any.
func (n *PushoverNotifier) LastError() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.lastError
}

func (n *PushoverNotifier) shouldSend(key string, now time.Time) bool {
	if n.cfg.Cooldown == 0 {
		return true
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	last, ok := n.lastSent[key]
	return !ok || now.Sub(last) >= n.cfg.Cooldown
}

func (n *PushoverNotifier) send(ctx context.Context, title, body string) error {
	form := url.Values{}
	form.Set("token", n.cfg.Token)
	form.Set("user", n.cfg.UserKey)
	form.Set("message", body)
	if t := strings.TrimSpace(title); t != "" {
		form.Set("title", t)
	}
	if n.cfg.Priority != 0 {
		form.Set("priority", fmt.Sprintf("%d", n.cfg.Priority))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.cfg.Endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("pushover request build failed: %w", err)
	}
	req.Header.Set("Content-Type", pushoverContentType)

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("pushover request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("pushover response read failed: %w", err)
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("pushover response %s: %s", resp.Status, strings.TrimSpace(string(raw)))
	}
	return nil
}
