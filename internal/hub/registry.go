package hub

import (
	"sync"

	"github.com/bhandras/bazaar/pkg/logger"
)

// conn is one authenticated socket.
type conn struct {
	id     string
	userID string
	send   func(event string, payload any)
}

// registry maps socket ids to connections.
type registry struct {
	conns sync.Map // socket id -> *conn
}

func newRegistry() *registry {
	return &registry{}
}

func (r *registry) add(c *conn) {
	r.conns.Store(c.id, c)
}

func (r *registry) remove(id string) {
	r.conns.Delete(id)
}

func (r *registry) emit(userID, event string, payload any) int {
	n := 0
	r.conns.Range(func(_, value any) bool {
		c, ok := value.(*conn)
		if !ok || c.userID != userID || c.send == nil {
			return true
		}
		logger.Tracef("hub: emit %s to socket %s", event, c.id)
		c.send(event, payload)
		n++
		return true
	})
	return n
}

func (r *registry) online(userID string) bool {
	found := false
	r.conns.Range(func(_, value any) bool {
		if c, ok := value.(*conn); ok && c.userID == userID {
			found = true
			return false
		}
		return true
	})
	return found
}

func (r *registry) len() int {
	n := 0
	r.conns.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}
