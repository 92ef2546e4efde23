// Copyright (C) 2025 efchat.net <tj@efchat.net>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/samber/lo"

	"github.com/Ammar777782439/chat-api-Rell/backend/models"
)

var (
	// ErrConnClosed is returned by Conn.Deliver once the transport is gone.
	ErrConnClosed = errors.New("connection closed")
	// ErrSlowConsumer is returned by Conn.Deliver when the outbound buffer is full.
	ErrSlowConsumer = errors.New("connection outbound buffer full")
)

// Conn is one live transport session as seen by the registry.
// Deliver must not block: it queues the payload or fails.
type Conn interface {
	ID() string
	Deliver(payload []byte) error
}

// Router joins connections to channel keys and fans frames out to them.
type Router interface {
	Join(key string, conn Conn) bool
	Leave(key string, conn Conn)
	Broadcast(ctx context.Context, key string, frame models.OutboundFrame) (int, error)
}

var _ Router = (*Registry)(nil)

// Registry is the in-process membership table. Each channel key owns its own
// lock, so broadcasts on different conversations never contend; the outer
// lock only guards the key -> group map.
type Registry struct {
	mu     sync.RWMutex
	groups map[string]*group
	log    *slog.Logger
}

type group struct {
	mu      sync.Mutex
	members map[string]Conn
}

func NewRegistry(log *slog.Logger) *Registry {
	return &Registry{
		groups: make(map[string]*group),
		log:    log,
	}
}

// Join registers conn under key. Joining twice is a no-op and reports false.
func (r *Registry) Join(key string, conn Conn) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	g, ok := r.groups[key]
	if !ok {
		g = &group{members: make(map[string]Conn)}
		r.groups[key] = g
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if _, exists := g.members[conn.ID()]; exists {
		return false
	}
	g.members[conn.ID()] = conn
	return true
}

// Leave removes conn from key. Removing a non-member does nothing.
// Empty groups are dropped so the map does not grow with dead conversations.
func (r *Registry) Leave(key string, conn Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()

	g, ok := r.groups[key]
	if !ok {
		return
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.members, conn.ID())
	if len(g.members) == 0 {
		delete(r.groups, key)
	}
}

// Broadcast delivers frame to every member of key, the originating
// connection included. A member whose delivery fails is removed; the others
// still receive the frame. It returns the number of successful deliveries.
func (r *Registry) Broadcast(_ context.Context, key string, frame models.OutboundFrame) (int, error) {
	payload, err := json.Marshal(frame)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal frame: %w", err)
	}
	return r.BroadcastRaw(key, payload), nil
}

// BroadcastRaw is Broadcast for an already encoded frame.
func (r *Registry) BroadcastRaw(key string, payload []byte) int {
	r.mu.RLock()
	g, ok := r.groups[key]
	r.mu.RUnlock()
	if !ok {
		return 0
	}

	var failed []Conn
	delivered := 0

	g.mu.Lock()
	for _, conn := range g.members {
		if err := conn.Deliver(payload); err != nil {
			r.log.Warn("Dropping connection after failed delivery",
				"channel", key,
				"conn_id", conn.ID(),
				"error", err)
			failed = append(failed, conn)
			continue
		}
		delivered++
	}
	g.mu.Unlock()

	for _, conn := range failed {
		r.Leave(key, conn)
	}
	return delivered
}

// Members lists the connection ids registered under key.
func (r *Registry) Members(key string) []string {
	r.mu.RLock()
	g, ok := r.groups[key]
	r.mu.RUnlock()
	if !ok {
		return nil
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	return lo.Keys(g.members)
}

// Channels returns the number of channel keys with at least one member.
func (r *Registry) Channels() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.groups)
}
