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

// StreamAction tags a stream event.
type StreamAction string

const (
	ActionCreate StreamAction = "create"
	ActionUpdate StreamAction = "update"
	ActionDelete StreamAction = "delete"
)

// StreamEvent mirrors one accepted message mutation onto the event stream.
// ChannelKey is used as the record key and is not part of the payload.
type StreamEvent struct {
	Action     StreamAction `json:"action"`
	Sender     string       `json:"sender"`
	Receiver   string       `json:"receiver"`
	MessageID  *int64       `json:"message_id,omitempty"`
	Content    *string      `json:"content,omitempty"`
	ChannelKey string       `json:"-"`
}

func NewStreamEvent(action StreamAction, channelKey, sender, receiver string, messageID int64, content *string) StreamEvent {
	return StreamEvent{
		Action:     action,
		Sender:     sender,
		Receiver:   receiver,
		MessageID:  &messageID,
		Content:    content,
		ChannelKey: channelKey,
	}
}
