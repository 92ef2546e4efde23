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

package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Ammar777782439/chat-api-Rell/backend/models"
	"github.com/Ammar777782439/chat-api-Rell/backend/storage"
)

var _ storage.Store = (*Store)(nil)

type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// CreateMessage inserts a message; id and timestamp are assigned by the database.
func (s *Store) CreateMessage(ctx context.Context, sender, receiver, content string) (models.Message, error) {
	msg := models.Message{Sender: sender, Receiver: receiver, Content: content}
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO messages (sender, receiver, content)
		VALUES ($1, $2, $3)
		RETURNING id, created_at`,
		sender, receiver, content).Scan(&msg.ID, &msg.CreatedAt)
	if err != nil {
		return models.Message{}, fmt.Errorf("failed to insert message: %w", err)
	}
	return msg, nil
}

// UpdateMessage replaces the content of an active message owned by sender.
// The creation timestamp is left untouched.
func (s *Store) UpdateMessage(ctx context.Context, messageID int64, sender, content string) (models.Message, error) {
	msg := models.Message{ID: messageID, Sender: sender, Content: content}
	err := s.db.QueryRowContext(ctx, `
		UPDATE messages SET content = $1
		WHERE id = $2 AND sender = $3 AND deleted_at IS NULL
		RETURNING receiver, created_at`,
		content, messageID, sender).Scan(&msg.Receiver, &msg.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Message{}, storage.ErrNotFound
	}
	if err != nil {
		return models.Message{}, fmt.Errorf("failed to update message %d: %w", messageID, err)
	}
	return msg, nil
}

// SoftDeleteMessage stamps deleted_at once. A second call on the same
// message matches no row and reports storage.ErrNotFound.
func (s *Store) SoftDeleteMessage(ctx context.Context, messageID int64, sender string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE messages SET deleted_at = $1
		WHERE id = $2 AND sender = $3 AND deleted_at IS NULL`,
		time.Now().UTC(), messageID, sender)
	if err != nil {
		return fmt.Errorf("failed to delete message %d: %w", messageID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete message %d: %w", messageID, err)
	}
	if n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// GetMessage returns a message by id, soft-deleted or not.
func (s *Store) GetMessage(ctx context.Context, messageID int64) (models.Message, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, sender, receiver, content, created_at, deleted_at
		FROM messages WHERE id = $1`, messageID)
	msg, err := scanMessage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Message{}, storage.ErrNotFound
	}
	if err != nil {
		return models.Message{}, fmt.Errorf("failed to get message %d: %w", messageID, err)
	}
	return msg, nil
}

// ListActiveMessages returns non-deleted messages where username is sender or
// receiver, newest first. A non-empty other narrows it to that conversation.
func (s *Store) ListActiveMessages(ctx context.Context, username, other string, limit, offset int) ([]models.Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, sender, receiver, content, created_at, deleted_at
		FROM messages
		WHERE (sender = $1 OR receiver = $1)
		  AND deleted_at IS NULL
		  AND ($2 = '' OR sender = $2 OR receiver = $2)
		ORDER BY created_at DESC, id DESC
		LIMIT $3 OFFSET $4`,
		username, other, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	defer rows.Close()

	var messages []models.Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

// CountActiveMessages counts what ListActiveMessages pages through.
func (s *Store) CountActiveMessages(ctx context.Context, username, other string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM messages
		WHERE (sender = $1 OR receiver = $1)
		  AND deleted_at IS NULL
		  AND ($2 = '' OR sender = $2 OR receiver = $2)`,
		username, other).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count messages: %w", err)
	}
	return count, nil
}

func (s *Store) ResolveParticipant(ctx context.Context, roomToken string) (string, error) {
	var username string
	err := s.db.QueryRowContext(ctx,
		`SELECT username FROM users WHERE username = $1`, roomToken).Scan(&username)
	if errors.Is(err, sql.ErrNoRows) {
		return "", storage.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to resolve %q: %w", roomToken, err)
	}
	return username, nil
}

// EnsureUser registers a username so peers can resolve it. Existing rows are kept.
func (s *Store) EnsureUser(ctx context.Context, username string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (username) VALUES ($1)
		ON CONFLICT (username) DO NOTHING`, username)
	if err != nil {
		return fmt.Errorf("failed to register user %q: %w", username, err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanMessage(row scanner) (models.Message, error) {
	var (
		msg       models.Message
		deletedAt sql.NullTime
	)
	if err := row.Scan(&msg.ID, &msg.Sender, &msg.Receiver, &msg.Content, &msg.CreatedAt, &deletedAt); err != nil {
		return models.Message{}, err
	}
	if deletedAt.Valid {
		t := deletedAt.Time
		msg.DeletedAt = &t
	}
	return msg, nil
}
