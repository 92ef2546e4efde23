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

package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/Ammar777782439/chat-api-Rell/backend/models"
	"github.com/Ammar777782439/chat-api-Rell/backend/realtime"
)

const (
	// Redis channel prefix, chat:group:{channelKey}
	groupChannelPrefix = "chat:group:"
)

// envelope is what travels between nodes on the group channel.
type envelope struct {
	Node    string          `json:"node"`
	Key     string          `json:"key"`
	Payload json.RawMessage `json:"payload"`
}

// Relay extends a local registry across processes. Broadcasts are delivered
// locally first, then published so other nodes can deliver them to their own
// members of the same channel key.
type Relay struct {
	rdb      *redis.Client
	registry *realtime.Registry
	node     string
	log      *slog.Logger
}

var _ realtime.Router = (*Relay)(nil)

func NewRelay(rdb *redis.Client, registry *realtime.Registry, log *slog.Logger) *Relay {
	node := uuid.NewString()
	return &Relay{
		rdb:      rdb,
		registry: registry,
		node:     node,
		log:      log.With("node", node),
	}
}

// Node identifies this process on the relay.
func (r *Relay) Node() string {
	return r.node
}

func (r *Relay) Join(key string, conn realtime.Conn) bool {
	return r.registry.Join(key, conn)
}

func (r *Relay) Leave(key string, conn realtime.Conn) {
	r.registry.Leave(key, conn)
}

// Broadcast delivers frame to local members and publishes it for the other
// nodes. A publish failure is reported after local delivery has happened.
func (r *Relay) Broadcast(ctx context.Context, key string, frame models.OutboundFrame) (int, error) {
	payload, err := json.Marshal(frame)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal frame: %w", err)
	}
	delivered := r.registry.BroadcastRaw(key, payload)

	data, err := json.Marshal(envelope{Node: r.node, Key: key, Payload: payload})
	if err != nil {
		return delivered, fmt.Errorf("failed to marshal envelope: %w", err)
	}
	if err := r.rdb.Publish(ctx, groupChannelPrefix+key, data).Err(); err != nil {
		return delivered, fmt.Errorf("failed to publish to %s: %w", key, err)
	}
	return delivered, nil
}

// Run subscribes to every group channel and feeds remote frames into the
// local registry until ctx is done. ready, if not nil, is closed once the
// subscription is confirmed.
func (r *Relay) Run(ctx context.Context, ready chan<- struct{}) error {
	sub := r.rdb.PSubscribe(ctx, groupChannelPrefix+"*")
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("failed to subscribe: %w", err)
	}
	if ready != nil {
		close(ready)
	}
	r.log.Info("Relay subscribed", "pattern", groupChannelPrefix+"*")

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			r.deliver(msg)
		}
	}
}

func (r *Relay) deliver(msg *redis.Message) {
	var env envelope
	if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
		r.log.Warn("Skipping malformed relay message", "channel", msg.Channel, "error", err)
		return
	}
	if env.Node == r.node {
		return
	}
	key := env.Key
	if key == "" {
		key = strings.TrimPrefix(msg.Channel, groupChannelPrefix)
	}
	delivered := r.registry.BroadcastRaw(key, env.Payload)
	r.log.Debug("Relayed remote frame", "channel", key, "from", env.Node, "connections", delivered)
}
