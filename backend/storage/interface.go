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

//go:generate go run go.uber.org/mock/mockgen -source=interface.go -destination=../mocks/mock_storage.go -package=mocks
package storage

import (
	"context"
	"errors"

	"github.com/Ammar777782439/chat-api-Rell/backend/models"
)

// ErrNotFound covers missing rows, rows owned by someone else and rows that
// were already soft-deleted. Callers cannot tell these apart.
var ErrNotFound = errors.New("not found")

// MessageStore persists direct messages. Mutations are scoped by the owning
// sender: the ownership check is part of the write, not a separate read.
type MessageStore interface {
	CreateMessage(ctx context.Context, sender, receiver, content string) (models.Message, error)
	UpdateMessage(ctx context.Context, messageID int64, sender, content string) (models.Message, error)
	SoftDeleteMessage(ctx context.Context, messageID int64, sender string) error
	GetMessage(ctx context.Context, messageID int64) (models.Message, error)
	ListActiveMessages(ctx context.Context, username, other string, limit, offset int) ([]models.Message, error)
	CountActiveMessages(ctx context.Context, username, other string) (int, error)
}

// IdentityResolver maps a room token (the target username in the socket
// path) to a known participant.
type IdentityResolver interface {
	ResolveParticipant(ctx context.Context, roomToken string) (string, error)
}

type Store interface {
	MessageStore
	IdentityResolver
	Ping(ctx context.Context) error
	// EnsureUser makes username resolvable by peers. Existing users are kept.
	EnsureUser(ctx context.Context, username string) error
}
