package realtime

import (
	"fmt"
	"strings"
	"time"

	socket "github.com/zishang520/socket.io/clients/socket/v3"
	"github.com/zishang520/socket.io/v3/pkg/types"

	"github.com/bhandras/bazaar/internal/wire"
)

// SocketIODialer dials the bazaar server over socket.io.
//
// Each dial creates a fresh manager with the library's own reconnection
// disabled, so the supervisor is the only component that retries.
type SocketIODialer struct {
	// URL is the server base URL, e.g. https://bazaar.example.com.
	URL string
	// Path overrides wire.SocketPath.
	Path string
	// Timeout bounds the handshake. Zero uses the library default.
	Timeout time.Duration
}

var _ Dialer = SocketIODialer{}

// Dial implements Dialer. The returned socket is not yet connecting.
func (d SocketIODialer) Dial(token string) (Socket, error) {
	if strings.TrimSpace(d.URL) == "" {
		return nil, fmt.Errorf("server url is required")
	}
	path := d.Path
	if path == "" {
		path = wire.SocketPath
	}

	opts := socket.DefaultOptions()
	opts.SetPath(path)
	// The transport set is unordered. A polling start still upgrades to
	// websocket, and TryAllTransports falls back to polling when websocket
	// is blocked, so the socket settles on websocket wherever it can.
	opts.SetTransports(types.NewSet(socket.WebSocket, socket.Polling))
	opts.SetUpgrade(true)
	opts.SetTryAllTransports(true)
	opts.SetAuth(map[string]any{"token": token})
	opts.SetForceNew(true)
	opts.SetReconnection(false)
	opts.SetAutoConnect(false)
	if d.Timeout > 0 {
		opts.SetTimeout(d.Timeout)
	}

	sock, err := socket.Connect(d.URL, opts)
	if err != nil {
		return nil, fmt.Errorf("socket.io dial %s: %w", d.URL, err)
	}
	return &socketIO{sock: sock}, nil
}

// socketIO adapts *socket.Socket to Socket.
type socketIO struct {
	sock *socket.Socket
}

func (s *socketIO) Connect() { s.sock.Connect() }

func (s *socketIO) Disconnect() { s.sock.Disconnect() }

func (s *socketIO) On(event string, fn func(args ...any)) {
	s.sock.On(types.EventName(event), fn)
}

func (s *socketIO) Off(event string) {
	s.sock.RemoveAllListeners(types.EventName(event))
}

func (s *socketIO) Connected() bool { return s.sock.Connected() }
