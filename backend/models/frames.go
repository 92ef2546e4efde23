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

// Intake is the classification of one inbound frame.
type Intake int

const (
	IntakeCreate Intake = iota
	IntakeUpdate
	IntakeDelete
)

func (i Intake) String() string {
	switch i {
	case IntakeCreate:
		return "create"
	case IntakeUpdate:
		return "update"
	case IntakeDelete:
		return "delete"
	}
	return "unknown"
}

// InboundFrame is what a client sends over the chat socket.
// A zero identifier counts as absent.
type InboundFrame struct {
	Message         *string `json:"message"`
	MessageID       *int64  `json:"message_id"`
	DeleteMessageID *int64  `json:"delete_message_id"`
}

// Kind classifies the frame: delete wins over update, update over create.
func (f InboundFrame) Kind() Intake {
	if present(f.DeleteMessageID) {
		return IntakeDelete
	}
	if present(f.MessageID) {
		return IntakeUpdate
	}
	return IntakeCreate
}

// Content returns the message text, empty when missing.
func (f InboundFrame) Content() string {
	if f.Message == nil {
		return ""
	}
	return *f.Message
}

func present(id *int64) bool {
	return id != nil && *id != 0
}

// OutboundFrame is broadcast to every connection of a channel.
// Exactly one of {Message, ID}, {Message, MessageID} or {DeletedMessageID}
// accompanies sender and receiver.
type OutboundFrame struct {
	Sender           string  `json:"sender"`
	Receiver         string  `json:"receiver"`
	Message          *string `json:"message,omitempty"`
	ID               *int64  `json:"id,omitempty"`
	MessageID        *int64  `json:"message_id,omitempty"`
	DeletedMessageID *int64  `json:"deleted_message_id,omitempty"`
}

// CreatedFrame echoes a freshly stored message with its assigned id.
func CreatedFrame(m Message) OutboundFrame {
	content, id := m.Content, m.ID
	return OutboundFrame{Sender: m.Sender, Receiver: m.Receiver, Message: &content, ID: &id}
}

// UpdatedFrame announces new content for an existing message.
func UpdatedFrame(sender, receiver string, id int64, content string) OutboundFrame {
	return OutboundFrame{Sender: sender, Receiver: receiver, Message: &content, MessageID: &id}
}

// DeletedFrame announces a soft delete.
func DeletedFrame(sender, receiver string, id int64) OutboundFrame {
	return OutboundFrame{Sender: sender, Receiver: receiver, DeletedMessageID: &id}
}

// ErrorFrame is sent only to the connection whose intake failed.
type ErrorFrame struct {
	Error     string `json:"error"`
	Code      string `json:"code,omitempty"`
	MessageID *int64 `json:"message_id,omitempty"`
}
