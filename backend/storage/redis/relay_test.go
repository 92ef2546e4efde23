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
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/mama165/sdk-go/logs"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/Ammar777782439/chat-api-Rell/backend/models"
	"github.com/Ammar777782439/chat-api-Rell/backend/realtime"
)

type recordingConn struct {
	id     string
	mu     sync.Mutex
	frames []string
}

func newRecordingConn() *recordingConn {
	return &recordingConn{id: uuid.NewString()}
}

func (c *recordingConn) ID() string { return c.id }

func (c *recordingConn) Deliver(payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frames = append(c.frames, string(payload))
	return nil
}

func (c *recordingConn) Frames() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.frames...)
}

func startRelay(t *testing.T, ctx context.Context, addr string) *Relay {
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = rdb.Close() })

	relay := NewRelay(rdb, realtime.NewRegistry(log), log)
	ready := make(chan struct{})
	go func() { _ = relay.Run(ctx, ready) }()
	select {
	case <-ready:
	case <-time.After(2 * time.Second):
		t.Fatal("relay did not subscribe")
	}
	return relay
}

func TestRelay_Delivers_Across_Nodes_Once(t *testing.T) {
	req := require.New(t)
	server := miniredis.RunT(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Given alice on node A and bob on node B share a channel
	nodeA := startRelay(t, ctx, server.Addr())
	nodeB := startRelay(t, ctx, server.Addr())
	req.NotEqual(nodeA.Node(), nodeB.Node())
	alice, bob, carol := newRecordingConn(), newRecordingConn(), newRecordingConn()
	req.True(nodeA.Join("chat_alicebob", alice))
	req.True(nodeB.Join("chat_alicebob", bob))
	nodeB.Join("chat_alicecarol", carol)

	// When alice's node broadcasts
	delivered, err := nodeA.Broadcast(ctx, "chat_alicebob",
		models.CreatedFrame(models.Message{ID: 1, Sender: "alice", Receiver: "bob", Content: "hello"}))

	// Then alice gets it locally
	req.NoError(err)
	req.Equal(1, delivered)
	// And bob gets it through the relay
	req.Eventually(func() bool { return len(bob.Frames()) == 1 }, 2*time.Second, 10*time.Millisecond)
	req.JSONEq(`{"sender":"alice","receiver":"bob","message":"hello","id":1}`, bob.Frames()[0])
	// And nobody gets a duplicate
	time.Sleep(50 * time.Millisecond)
	req.Len(alice.Frames(), 1)
	req.Len(bob.Frames(), 1)
	req.Empty(carol.Frames())
}

func TestRelay_Leave(t *testing.T) {
	req := require.New(t)
	server := miniredis.RunT(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	relay := startRelay(t, ctx, server.Addr())
	conn := newRecordingConn()
	relay.Join("chat_alicebob", conn)

	relay.Leave("chat_alicebob", conn)

	delivered, err := relay.Broadcast(ctx, "chat_alicebob", models.DeletedFrame("alice", "bob", 1))
	req.NoError(err)
	req.Zero(delivered)
}

func TestRelay_Publish_Failure_Keeps_Local_Delivery(t *testing.T) {
	req := require.New(t)
	server := miniredis.RunT(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	rdb := redis.NewClient(&redis.Options{Addr: server.Addr(), MaxRetries: -1})
	defer rdb.Close()
	relay := NewRelay(rdb, realtime.NewRegistry(log), log)
	conn := newRecordingConn()
	relay.Join("chat_alicebob", conn)

	// Given redis is gone
	server.Close()

	delivered, err := relay.Broadcast(context.Background(), "chat_alicebob", models.DeletedFrame("alice", "bob", 2))

	req.Error(err)
	req.Equal(1, delivered)
	req.Len(conn.Frames(), 1)
}
