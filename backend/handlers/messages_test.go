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
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/Ammar777782439/chat-api-Rell/backend/middleware"
	"github.com/Ammar777782439/chat-api-Rell/backend/mocks"
	"github.com/Ammar777782439/chat-api-Rell/backend/storage/memory"
)

func listAs(h *MessageHandler, user, rawQuery string) *httptest.ResponseRecorder {
	r := httptest.NewRequest(http.MethodGet, "/api/messages?"+rawQuery, nil)
	if user != "" {
		r = r.WithContext(middleware.WithUserID(r.Context(), user))
	}
	w := httptest.NewRecorder()
	h.ListMessages(w, r)
	return w
}

func decodePage(t *testing.T, w *httptest.ResponseRecorder) messagePage {
	var page messagePage
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &page))
	return page
}

func TestListMessages_Newest_First_Without_Deleted(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	store := memory.NewStore("alice", "bob", "carol")
	for _, m := range []struct{ from, to, text string }{
		{"alice", "bob", "one"},
		{"bob", "alice", "two"},
		{"alice", "carol", "three"},
		{"alice", "bob", "four"},
	} {
		_, err := store.CreateMessage(ctx, m.from, m.to, m.text)
		req.NoError(err)
	}
	req.NoError(store.SoftDeleteMessage(ctx, 4, "alice"))
	handler := NewMessageHandler(store, logs.GetLoggerFromLevel(slog.LevelDebug))

	w := listAs(handler, "alice", "user=bob")

	req.Equal(http.StatusOK, w.Code)
	page := decodePage(t, w)
	req.Equal(2, page.Count)
	req.Equal("two", page.Results[0].Content)
	req.Equal("one", page.Results[1].Content)
}

func TestListMessages_Paging(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	store := memory.NewStore("alice", "bob")
	for i := 0; i < 15; i++ {
		_, err := store.CreateMessage(ctx, "alice", "bob", "hi")
		req.NoError(err)
	}
	handler := NewMessageHandler(store, logs.GetLoggerFromLevel(slog.LevelDebug))

	first := decodePage(t, listAs(handler, "bob", ""))
	second := decodePage(t, listAs(handler, "bob", "page=2"))
	capped := decodePage(t, listAs(handler, "bob", "page_size=1000"))

	// Then count is the total while results hold one page
	req.Equal(15, first.Count)
	req.Len(first.Results, 10)
	req.Equal(int64(15), first.Results[0].ID)
	req.Equal(15, second.Count)
	req.Len(second.Results, 5)
	req.Equal(int64(5), second.Results[0].ID)
	req.Equal(100, capped.PageSize)
	req.Len(capped.Results, 15)
}

func TestListMessages_Bad_Requests(t *testing.T) {
	req := require.New(t)
	handler := NewMessageHandler(memory.NewStore(), logs.GetLoggerFromLevel(slog.LevelDebug))

	req.Equal(http.StatusUnauthorized, listAs(handler, "", "").Code)
	req.Equal(http.StatusBadRequest, listAs(handler, "alice", "page=0").Code)
	req.Equal(http.StatusBadRequest, listAs(handler, "alice", "page_size=abc").Code)
	req.Equal(http.StatusBadRequest, listAs(handler, "alice", "page=1000001").Code)
	req.Equal(http.StatusBadRequest, listAs(handler, "alice", "page=4611686018427387904").Code)
}

func TestListMessages_Store_Failure(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	store := mocks.NewMockMessageStore(ctrl)
	gomock.InOrder(
		store.EXPECT().CountActiveMessages(gomock.Any(), "alice", "").
			Return(0, errors.New("connection refused")),
		store.EXPECT().CountActiveMessages(gomock.Any(), "alice", "").
			Return(3, nil),
		store.EXPECT().ListActiveMessages(gomock.Any(), "alice", "", 10, 0).
			Return(nil, errors.New("connection refused")),
	)
	handler := NewMessageHandler(store, logs.GetLoggerFromLevel(slog.LevelDebug))

	req.Equal(http.StatusInternalServerError, listAs(handler, "alice", "").Code)
	req.Equal(http.StatusInternalServerError, listAs(handler, "alice", "").Code)
}
