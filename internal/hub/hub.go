// Package hub is the server side of the realtime channel: a socket.io server
// that authenticates sockets with a bearer token and delivers per-user events
// to every socket the user has open.
package hub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	socket "github.com/zishang520/socket.io/servers/socket/v3"
	sockettypes "github.com/zishang520/socket.io/v3/pkg/types"

	"github.com/bhandras/bazaar/internal/auth"
	"github.com/bhandras/bazaar/internal/broker"
	"github.com/bhandras/bazaar/internal/wire"
	"github.com/bhandras/bazaar/pkg/logger"
)

const (
	// PingInterval is how often the server pings clients to detect dead
	// sockets.
	PingInterval = 5 * time.Second
	// PingTimeout is how long the server waits for a pong.
	PingTimeout = 15 * time.Second
)

// Verifier checks a bearer token.
type Verifier interface {
	VerifyToken(token string) (*auth.TokenClaims, error)
}

// Fanout carries events between server nodes.
type Fanout interface {
	Publish(ctx context.Context, env broker.Envelope) error
	Consume(ctx context.Context) (<-chan broker.Envelope, error)
}

// Options configures a Hub.
type Options struct {
	Verifier       Verifier
	AllowedOrigins []string
	// Fanout, when set, routes every emit through the broker so that sockets
	// on other nodes receive it too.
	Fanout Fanout
	NodeID string
}

// Hub tracks authenticated sockets and emits events to users.
type Hub struct {
	opts   Options
	server *socket.Server
	conns  *registry

	mu        sync.RWMutex
	onConnect []func(userID string)
}

// New builds a hub and its socket.io server.
func New(opts Options) (*Hub, error) {
	if opts.Verifier == nil {
		return nil, errors.New("hub: verifier is required")
	}

	sopts := socket.DefaultServerOptions()
	sopts.SetCors(&sockettypes.Cors{
		Origin:      corsOrigin(opts.AllowedOrigins),
		Credentials: false,
	})
	sopts.SetPingInterval(PingInterval)
	sopts.SetPingTimeout(PingTimeout)
	sopts.SetPath(wire.SocketPath)

	h := &Hub{
		opts:   opts,
		server: socket.NewServer(nil, sopts),
		conns:  newRegistry(),
	}
	// Rejecting in middleware answers the handshake with connect_error, so
	// a client with a bad token never reaches the connected state.
	h.server.Use(h.admit)
	h.server.On("connection", func(clients ...any) {
		client, ok := clients[0].(*socket.Socket)
		if !ok {
			return
		}
		h.handleConnection(client)
	})
	return h, nil
}

// corsOrigin converts the configured list to the forms engine.io accepts: a
// single string or a []any.
func corsOrigin(origins []string) any {
	if len(origins) == 0 || (len(origins) == 1 && origins[0] == "*") {
		return "*"
	}
	out := make([]any, len(origins))
	for i, o := range origins {
		out[i] = o
	}
	return out
}

// OnConnect registers fn to run after a socket authenticates. Hooks run on
// their own goroutine.
func (h *Hub) OnConnect(fn func(userID string)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onConnect = append(h.onConnect, fn)
}

// admit is the namespace middleware that authenticates the handshake and
// records the user id on the socket.
func (h *Hub) admit(client *socket.Socket, next func(*socket.ExtendedError)) {
	userID, err := h.authenticate(client.Handshake().Auth)
	if err != nil {
		logger.Warnf("hub: handshake rejected (socket %s): %v", client.Id(), err)
		next(socket.NewExtendedError(err.Error(), nil))
		return
	}
	client.SetData(userID)
	next(nil)
}

func (h *Hub) handleConnection(client *socket.Socket) {
	socketID := string(client.Id())

	userID, ok := client.Data().(string)
	if !ok || userID == "" {
		// Only reachable if the middleware chain was bypassed.
		client.Disconnect(true)
		return
	}

	h.conns.add(&conn{
		id:     socketID,
		userID: userID,
		send: func(event string, payload any) {
			client.Emit(event, payload)
		},
	})
	logger.Infof("hub: socket ready (user: %s, socket: %s)", userID, socketID)

	client.On("disconnect", func(args ...any) {
		h.conns.remove(socketID)
		logger.Infof("hub: socket closed (user: %s, socket: %s): %v", userID, socketID, args)
	})

	h.mu.RLock()
	hooks := append([]func(string){}, h.onConnect...)
	h.mu.RUnlock()
	for _, fn := range hooks {
		go fn(userID)
	}
}

// Handshake errors.
var (
	ErrMissingAuth  = errors.New("missing authentication data")
	ErrInvalidToken = errors.New("invalid authentication token")
)

// authenticate validates the handshake auth object and returns the user id.
func (h *Hub) authenticate(raw any) (string, error) {
	if raw == nil {
		return "", ErrMissingAuth
	}
	var payload wire.HandshakeAuth
	if err := decodeAny(raw, &payload); err != nil {
		return "", fmt.Errorf("%w: %v", ErrMissingAuth, err)
	}
	token := strings.TrimSpace(payload.Token)
	if token == "" {
		return "", ErrMissingAuth
	}
	claims, err := h.opts.Verifier.VerifyToken(token)
	if err != nil {
		logger.Debugf("hub: token rejected: %v", err)
		return "", ErrInvalidToken
	}
	if claims.UserID() == "" {
		return "", ErrInvalidToken
	}
	return claims.UserID(), nil
}

func decodeAny(input any, out any) error {
	raw, err := json.Marshal(input)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}

// EmitToUser sends event to every socket userID has open. With a Fanout the
// event goes through the broker and reaches sockets on all nodes.
func (h *Hub) EmitToUser(ctx context.Context, userID, event string, payload any) {
	if h.opts.Fanout != nil {
		env, err := broker.NewEnvelope(h.opts.NodeID, userID, event, payload)
		if err == nil {
			err = h.opts.Fanout.Publish(ctx, env)
		}
		if err == nil {
			return
		}
		logger.Warnf("hub: broker publish failed, delivering locally: %v", err)
	}
	h.conns.emit(userID, event, payload)
}

// Online reports whether userID has at least one socket on this node.
func (h *Hub) Online(userID string) bool {
	return h.conns.online(userID)
}

// Connections returns the number of sockets on this node.
func (h *Hub) Connections() int {
	return h.conns.len()
}

// Run consumes broker envelopes and delivers them to local sockets until ctx
// is done. Without a Fanout it returns immediately.
func (h *Hub) Run(ctx context.Context) error {
	if h.opts.Fanout == nil {
		return nil
	}
	envs, err := h.opts.Fanout.Consume(ctx)
	if err != nil {
		return err
	}
	for env := range envs {
		h.conns.emit(env.UserID, env.Event, env.Payload)
	}
	return ctx.Err()
}

// Handler mounts the socket.io endpoint in gin.
func (h *Hub) Handler() gin.HandlerFunc {
	httpHandler := h.server.ServeHandler(nil)

	return func(c *gin.Context) {
		if c.Request.Method == http.MethodOptions {
			c.Status(http.StatusOK)
			return
		}
		logger.Tracef("hub: %s %s", c.Request.Method, c.Request.URL.Path)
		httpHandler.ServeHTTP(c.Writer, c.Request)
	}
}

// Close shuts down the socket.io server.
func (h *Hub) Close() error {
	h.server.Close(nil)
	return nil
}
