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


package integration

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/mama165/sdk-go/logs"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/Ammar777782439/chat-api-Rell/backend/middleware"
	"github.com/Ammar777782439/chat-api-Rell/backend/storage/memory"
)

var testJWT = &middleware.JWTConfig{Secret: "test-secret", Issuer: "efchat"}

func newNode(t *testing.T, ctx context.Context, store *memory.Store, rdb *redis.Client) (*ChatIntegration, *httptest.Server) {
	chat, err := NewChatIntegration(&Config{
		Store:            store,
		Redis:            rdb,
		JWTSecret:        testJWT.Secret,
		JWTIssuer:        testJWT.Issuer,
		WorkerPoolSize:   4,
		StreamPoolSize:   2,
		OutboundBuffer:   8,
		MaxMessageLength: 4096,
		Log:              logs.GetLoggerFromLevel(slog.LevelDebug),
	})
	require.NoError(t, err)
	go func() { _ = chat.Run(ctx) }()
	select {
	case <-chat.Ready():
	case <-time.After(2 * time.Second):
		t.Fatal("chat integration not ready")
	}

	router := mux.NewRouter()
	chat.RegisterRoutes(router, nil)
	server := httptest.NewServer(router)
	t.Cleanup(server.Close)
	return chat, server
}

func dial(t *testing.T, server *httptest.Server, user, room string) *websocket.Conn {
	token, err := middleware.GenerateToken(user, testJWT, time.Hour)
	require.NoError(t, err)
	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws/chat/" + room + "/?token=" + token
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ws.Close() })
	return ws
}

func TestChatIntegration_Health_And_Auth(t *testing.T) {
	req := require.New(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	_, server := newNode(t, ctx, memory.NewStore(), nil)

	resp, err := http.Get(server.URL + "/health")
	req.NoError(err)
	resp.Body.Close()
	req.Equal(http.StatusOK, resp.StatusCode)

	resp, err = http.Get(server.URL + "/api/messages")
	req.NoError(err)
	resp.Body.Close()
	req.Equal(http.StatusUnauthorized, resp.StatusCode)
}

func TestChatIntegration_Requires_Secret(t *testing.T) {
	req := require.New(t)

	_, err := NewChatIntegration(&Config{Store: memory.NewStore()})

	var validationErr *ValidationError
	req.ErrorAs(err, &validationErr)
}

func TestChatIntegration_Two_Nodes_Share_A_Conversation(t *testing.T) {
	req := require.New(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	redisServer := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: redisServer.Addr()})
	defer rdb.Close()
	store := memory.NewStore("alice", "bob")

	// Given alice and bob are connected to different processes
	nodeA, serverA := newNode(t, ctx, store, rdb)
	nodeB, serverB := newNode(t, ctx, store, rdb)
	alice := dial(t, serverA, "alice", "bob")
	bob := dial(t, serverB, "bob", "alice")
	req.Eventually(func() bool {
		return len(nodeA.Registry().Members("chat_alicebob")) == 1 &&
			len(nodeB.Registry().Members("chat_alicebob")) == 1
	}, 2*time.Second, 10*time.Millisecond)

	// When alice sends
	req.NoError(alice.WriteMessage(websocket.TextMessage, []byte(`{"message":"across"}`)))

	// Then bob receives it through the relay
	req.NoError(bob.SetReadDeadline(time.Now().Add(2 * time.Second)))
	_, data, err := bob.ReadMessage()
	req.NoError(err)
	req.JSONEq(`{"sender":"alice","receiver":"bob","message":"across","id":1}`, string(data))
}
