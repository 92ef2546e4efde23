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
	"encoding/json"
	"log/slog"
	"math"
	"net/http"
	"strconv"

	"github.com/Ammar777782439/chat-api-Rell/backend/middleware"
	"github.com/Ammar777782439/chat-api-Rell/backend/models"
	"github.com/Ammar777782439/chat-api-Rell/backend/storage"
)

const (
	defaultPageSize = 10
	maxPageSize     = 100
	maxPage         = 1_000_000
)

type MessageHandler struct {
	store storage.MessageStore
	log   *slog.Logger
}

func NewMessageHandler(store storage.MessageStore, log *slog.Logger) *MessageHandler {
	return &MessageHandler{store: store, log: log}
}

// messagePage carries one page of results; Count is the total across pages.
type messagePage struct {
	Count    int              `json:"count"`
	Page     int              `json:"page"`
	PageSize int              `json:"page_size"`
	Results  []models.Message `json:"results"`
}

// ListMessages returns the caller's active messages, newest first. The
// optional "user" parameter narrows the list to one conversation.
func (h *MessageHandler) ListMessages(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	query := r.URL.Query()
	page, err := positiveParam(query.Get("page"), 1, maxPage)
	if err != nil {
		http.Error(w, "Invalid page", http.StatusBadRequest)
		return
	}
	pageSize, err := positiveParam(query.Get("page_size"), defaultPageSize, math.MaxInt)
	if err != nil {
		http.Error(w, "Invalid page_size", http.StatusBadRequest)
		return
	}
	pageSize = min(pageSize, maxPageSize)

	other := query.Get("user")
	total, err := h.store.CountActiveMessages(r.Context(), userID, other)
	if err != nil {
		h.log.Error("Failed to count messages", "user", userID, "error", err)
		http.Error(w, "Failed to retrieve messages", http.StatusInternalServerError)
		return
	}
	messages, err := h.store.ListActiveMessages(r.Context(), userID, other, pageSize, (page-1)*pageSize)
	if err != nil {
		h.log.Error("Failed to list messages", "user", userID, "error", err)
		http.Error(w, "Failed to retrieve messages", http.StatusInternalServerError)
		return
	}
	if messages == nil {
		messages = []models.Message{}
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(messagePage{
		Count:    total,
		Page:     page,
		PageSize: pageSize,
		Results:  messages,
	})
}

// positiveParam parses raw as an integer in [1, upper].
func positiveParam(raw string, fallback, upper int) (int, error) {
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, err
	}
	if n < 1 || n > upper {
		return 0, strconv.ErrRange
	}
	return n, nil
}
