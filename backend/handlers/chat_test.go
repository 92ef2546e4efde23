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


package handlers

import (
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"

	"github.com/Ammar777782439/chat-api-Rell/backend/middleware"
	"github.com/Ammar777782439/chat-api-Rell/backend/realtime"
	"github.com/Ammar777782439/chat-api-Rell/backend/storage/memory"
	"github.com/Ammar777782439/chat-api-Rell/backend/stream"
)

var testJWT = &middleware.JWTConfig{Secret: "test-secret", Issuer: "efchat"}

type chatServer struct {
	*httptest.Server
	store    *memory.Store
	registry *realtime.Registry
}

func newChatServer(t *testing.T) chatServer {
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	store := memory.NewStore("alice", "bob")
	registry := realtime.NewRegistry(log)
	handler := NewChatHandler(realtime.Deps{
		Store:            store,
		Identities:       store,
		Router:           registry,
		Publisher:        stream.NewKafkaPublisher(log, stream.DefaultConfig(nil)),
		Pool:             realtime.NewPool(4),
		Topic:            stream.DefaultTopic,
		MaxContentLength: 4096,
		Log:              log,
	}, 8, nil)

	router := mux.NewRouter()
	router.Handle("/ws/chat/{room_name}/",
		middleware.NewAuthMiddleware(testJWT.Secret, testJWT.Issuer)(http.HandlerFunc(handler.ServeWS)))
	server := httptest.NewServer(router)
	t.Cleanup(server.Close)
	return chatServer{Server: server, store: store, registry: registry}
}

func (s chatServer) dial(t *testing.T, user, room string) (*websocket.Conn, *http.Response, error) {
	token, err := middleware.GenerateToken(user, testJWT, time.Hour)
	require.NoError(t, err)
	url := "ws" + strings.TrimPrefix(s.URL, "http") + "/ws/chat/" + room + "/?token=" + token
	ws, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if ws != nil {
		t.Cleanup(func() { _ = ws.Close() })
	}
	return ws, resp, err
}

func readFrame(t *testing.T, ws *websocket.Conn) string {
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := ws.ReadMessage()
	require.NoError(t, err)
	return string(data)
}

func TestChatHandler_Alice_And_Bob(t *testing.T) {
	req := require.New(t)
	server := newChatServer(t)

	// Given alice and bob are connected to each other
	alice, _, err := server.dial(t, "alice", "bob")
	req.NoError(err)
	bob, _, err := server.dial(t, "bob", "alice")
	req.NoError(err)
	req.Eventually(func() bool {
		return len(server.registry.Members("chat_alicebob")) == 2
	}, 2*time.Second, 10*time.Millisecond)

	// When alice sends a message
	req.NoError(alice.WriteMessage(websocket.TextMessage, []byte(`{"message":"hello"}`)))

	// Then both sockets receive it
	expected := `{"sender":"alice","receiver":"bob","message":"hello","id":1}`
	req.JSONEq(expected, readFrame(t, alice))
	req.JSONEq(expected, readFrame(t, bob))

	// When bob tries to delete it
	req.NoError(bob.WriteMessage(websocket.TextMessage, []byte(`{"delete_message_id":1}`)))

	// Then only bob is told it does not exist
	req.Contains(readFrame(t, bob), `"NOT_FOUND"`)

	// When alice deletes it
	req.NoError(alice.WriteMessage(websocket.TextMessage, []byte(`{"delete_message_id":1}`)))

	// Then bob sees the deletion
	req.JSONEq(`{"sender":"alice","receiver":"bob","deleted_message_id":1}`, readFrame(t, bob))
}

func TestChatHandler_Disconnect_Leaves_Channel(t *testing.T) {
	req := require.New(t)
	server := newChatServer(t)
	alice, _, err := server.dial(t, "alice", "bob")
	req.NoError(err)
	req.Eventually(func() bool {
		return len(server.registry.Members("chat_alicebob")) == 1
	}, 2*time.Second, 10*time.Millisecond)

	req.NoError(alice.Close())

	req.Eventually(func() bool {
		return server.registry.Channels() == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestChatHandler_Requires_Token(t *testing.T) {
	req := require.New(t)
	server := newChatServer(t)
	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws/chat/bob/"

	_, resp, err := websocket.DefaultDialer.Dial(url, nil)

	req.Error(err)
	req.NotNil(resp)
	req.Equal(http.StatusUnauthorized, resp.StatusCode)
}

func TestChatHandler_Rejects_Degenerate_Room(t *testing.T) {
	req := require.New(t)
	server := newChatServer(t)

	ws, _, err := server.dial(t, "alice", "!!!")
	req.NoError(err)

	req.Contains(readFrame(t, ws), "Connection error")
	req.NoError(ws.SetReadDeadline(time.Now().Add(2 * time.Second)))
	_, _, err = ws.ReadMessage()
	req.Error(err)
	req.Zero(server.registry.Channels())
}
