package hub

import (
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/fanstage/live-service/internal/config"
	"github.com/fanstage/live-service/pkg/log"
)

// ErrDeadConnection signals that a connection's transport has failed or its
// outbound queue overflowed. Internal to the hub/router layer; callers treat
// it as an implicit close, never as a user-facing error.
var ErrDeadConnection = errors.New("dead connection")

// Registry owns every open client connection. It is the only component that
// can push bytes to a client, and the only one that remembers which
// connections belong to which user.
type Registry struct {
	mu        sync.RWMutex
	clients   map[string]*Client            // connection id -> client
	userConns map[string]map[string]*Client // user id -> connection id -> client

	hooksMu    sync.RWMutex
	closeHooks []func(*Client)

	cfg config.WebSocketConfig
}

// NewRegistry creates an empty connection registry.
func NewRegistry(cfg config.WebSocketConfig) *Registry {
	return &Registry{
		clients:   make(map[string]*Client),
		userConns: make(map[string]map[string]*Client),
		cfg:       cfg,
	}
}

// OnClose registers a hook invoked after a connection is removed. Hooks run
// outside the registry lock; the subscription index and viewer teardown
// attach here so close always implies symmetric cleanup.
func (r *Registry) OnClose(hook func(*Client)) {
	r.hooksMu.Lock()
	defer r.hooksMu.Unlock()
	r.closeHooks = append(r.closeHooks, hook)
}

// Open registers a new connection for userID and returns its client. The
// connection id embeds the user id so ownership is recoverable from the id
// alone, plus a random suffix so simultaneous connections stay distinct.
func (r *Registry) Open(userID, username string, conn *websocket.Conn) *Client {
	id := fmt.Sprintf("%s:%s", userID, uuid.New().String())
	client := newClient(id, userID, username, conn, r.cfg)

	r.mu.Lock()
	r.clients[id] = client
	conns, ok := r.userConns[userID]
	if !ok {
		conns = make(map[string]*Client)
		r.userConns[userID] = conns
	}
	conns[id] = client
	r.mu.Unlock()

	l := log.L()
	l.Debug().Str(log.FieldConnectionID, id).Str(log.FieldUserID, userID).Msg("connection opened")
	return client
}

// Get returns the client for a connection id.
func (r *Registry) Get(connID string) (*Client, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.clients[connID]
	return c, ok
}

// Send pushes a pre-encoded message to one connection. Returns
// ErrDeadConnection when the connection is gone, closed, or its queue is
// full; the caller is expected to follow up with Close.
func (r *Registry) Send(connID string, message []byte) error {
	r.mu.RLock()
	client, ok := r.clients[connID]
	r.mu.RUnlock()
	if !ok {
		return ErrDeadConnection
	}
	return client.enqueue(message)
}

// Close tears down a connection. Idempotent: closing an unknown or
// already-closed id is a no-op. Close hooks fire exactly once per
// connection, after the registry maps are updated and outside any lock.
func (r *Registry) Close(connID string) {
	r.mu.Lock()
	client, ok := r.clients[connID]
	if !ok {
		r.mu.Unlock()
		return
	}
	delete(r.clients, connID)
	if conns, ok := r.userConns[client.UserID]; ok {
		delete(conns, connID)
		if len(conns) == 0 {
			delete(r.userConns, client.UserID)
		}
	}
	r.mu.Unlock()

	client.markClosed()

	r.hooksMu.RLock()
	hooks := r.closeHooks
	r.hooksMu.RUnlock()
	for _, hook := range hooks {
		hook(client)
	}

	l := log.L()
	l.Debug().Str(log.FieldConnectionID, connID).Str(log.FieldUserID, client.UserID).Msg("connection closed")
}

// ConnectionsOf returns the ids of every open connection owned by userID.
// A user may have zero, one, or many simultaneous connections.
func (r *Registry) ConnectionsOf(userID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conns, ok := r.userConns[userID]
	if !ok {
		return nil
	}
	ids := make([]string, 0, len(conns))
	for id := range conns {
		ids = append(ids, id)
	}
	return ids
}

// Count returns the number of open connections.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients)
}
