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

// Package memory is a process-local storage.Store for development and tests.
// Ids start at 1 and grow by one, like a fresh BIGSERIAL column.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/samber/lo"

	"github.com/Ammar777782439/chat-api-Rell/backend/models"
	"github.com/Ammar777782439/chat-api-Rell/backend/storage"
)

var _ storage.Store = (*Store)(nil)

type Store struct {
	mu       sync.Mutex
	nextID   int64
	messages map[int64]models.Message
	users    map[string]struct{}
	now      func() time.Time
}

func NewStore(users ...string) *Store {
	s := &Store{
		messages: make(map[int64]models.Message),
		users:    make(map[string]struct{}),
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, u := range users {
		s.users[u] = struct{}{}
	}
	return s
}

func (s *Store) AddUser(username string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[username] = struct{}{}
}

func (s *Store) EnsureUser(_ context.Context, username string) error {
	s.AddUser(username)
	return nil
}

func (s *Store) Ping(context.Context) error { return nil }

func (s *Store) CreateMessage(_ context.Context, sender, receiver, content string) (models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	msg := models.Message{
		ID:        s.nextID,
		Sender:    sender,
		Receiver:  receiver,
		Content:   content,
		CreatedAt: s.now(),
	}
	s.messages[msg.ID] = msg
	return msg, nil
}

func (s *Store) UpdateMessage(_ context.Context, messageID int64, sender, content string) (models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	msg, ok := s.messages[messageID]
	if !ok || !msg.OwnedBy(sender) || !msg.Active() {
		return models.Message{}, storage.ErrNotFound
	}
	msg.Content = content
	s.messages[messageID] = msg
	return msg, nil
}

func (s *Store) SoftDeleteMessage(_ context.Context, messageID int64, sender string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	msg, ok := s.messages[messageID]
	if !ok || !msg.OwnedBy(sender) || !msg.Active() {
		return storage.ErrNotFound
	}
	msg.DeletedAt = lo.ToPtr(s.now())
	s.messages[messageID] = msg
	return nil
}

func (s *Store) GetMessage(_ context.Context, messageID int64) (models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	msg, ok := s.messages[messageID]
	if !ok {
		return models.Message{}, storage.ErrNotFound
	}
	return msg, nil
}

func (s *Store) ListActiveMessages(_ context.Context, username, other string, limit, offset int) ([]models.Message, error) {
	matching := s.activeFor(username, other)
	sort.Slice(matching, func(i, j int) bool {
		return matching[i].ID > matching[j].ID
	})

	if offset >= len(matching) {
		return nil, nil
	}
	matching = matching[offset:]
	if limit > 0 && len(matching) > limit {
		matching = matching[:limit]
	}
	return matching, nil
}

func (s *Store) CountActiveMessages(_ context.Context, username, other string) (int, error) {
	return len(s.activeFor(username, other)), nil
}

func (s *Store) activeFor(username, other string) []models.Message {
	s.mu.Lock()
	all := lo.Values(s.messages)
	s.mu.Unlock()

	return lo.Filter(all, func(m models.Message, _ int) bool {
		if !m.Active() || (m.Sender != username && m.Receiver != username) {
			return false
		}
		return other == "" || m.Sender == other || m.Receiver == other
	})
}

func (s *Store) ResolveParticipant(_ context.Context, roomToken string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[roomToken]; !ok {
		return "", storage.ErrNotFound
	}
	return roomToken, nil
}
