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

package models

import "time"

// Message is a persisted direct message between two participants.
// A soft-deleted message keeps its row and gets DeletedAt set once.
type Message struct {
	ID        int64      `json:"id" db:"id"`
	Sender    string     `json:"sender" db:"sender"`
	Receiver  string     `json:"receiver" db:"receiver"`
	Content   string     `json:"content" db:"content"`
	CreatedAt time.Time  `json:"timestamp" db:"created_at"`
	DeletedAt *time.Time `json:"deleted_at,omitempty" db:"deleted_at"`
}

// Active reports whether the message shows up in listings.
func (m Message) Active() bool {
	return m.DeletedAt == nil
}

// OwnedBy reports whether username may edit or delete the message.
func (m Message) OwnedBy(username string) bool {
	return m.Sender == username
}
