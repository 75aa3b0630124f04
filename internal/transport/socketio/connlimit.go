package socketio

import (
	"net"
	"strings"
	"sync"
)

// ClientLimiter caps concurrent remote preview clients. Loopback clients (the
// host integration itself) are never counted. When a remote client exceeds the
// cap, the oldest remote client is evicted.
type ClientLimiter struct {
	mu        sync.Mutex
	maxRemote int
	remote    []string        // oldest first
	clients   map[string]bool // clientID -> loopback
}

// NewClientLimiter creates a limiter for up to maxRemote remote clients.
// maxRemote <= 0 disables the cap.
func NewClientLimiter(maxRemote int) *ClientLimiter {
	return &ClientLimiter{
		maxRemote: maxRemote,
		clients:   make(map[string]bool),
	}
}

// Admit registers a client connecting from addr and returns the ID of the
// client that must be disconnected to make room, if any.
func (l *ClientLimiter) Admit(clientID, addr string) (evictedID string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.clients[clientID]; ok {
		return ""
	}

	loopback := isLoopback(addr)
	l.clients[clientID] = loopback
	if loopback {
		return ""
	}

	l.remote = append(l.remote, clientID)
	if l.maxRemote <= 0 || len(l.remote) <= l.maxRemote {
		return ""
	}

	evictedID = l.remote[0]
	l.remote = l.remote[1:]
	delete(l.clients, evictedID)
	return evictedID
}

// Remove unregisters a disconnected client.
func (l *ClientLimiter) Remove(clientID string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	loopback, ok := l.clients[clientID]
	if !ok {
		return
	}
	delete(l.clients, clientID)
	if loopback {
		return
	}
	for i, id := range l.remote {
		if id == clientID {
			l.remote = append(l.remote[:i], l.remote[i+1:]...)
			break
		}
	}
}

// Remote returns the number of tracked remote clients.
func (l *ClientLimiter) Remote() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.remote)
}

// isLoopback reports whether addr (ip, ip:port or [ip]:port) is a loopback address.
func isLoopback(addr string) bool {
	host := addr
	if h, _, err := net.SplitHostPort(addr); err == nil {
		host = h
	}
	ip := net.ParseIP(strings.Trim(host, "[]"))
	return ip != nil && ip.IsLoopback()
}
