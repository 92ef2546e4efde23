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

package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"

	"github.com/go-playground/validator/v10"

	"github.com/Ammar777782439/chat-api-Rell/backend/chat"
	"github.com/Ammar777782439/chat-api-Rell/backend/errs"
	"github.com/Ammar777782439/chat-api-Rell/backend/models"
	"github.com/Ammar777782439/chat-api-Rell/backend/storage"
	"github.com/Ammar777782439/chat-api-Rell/backend/stream"
)

type State int32

const (
	StateConnecting State = iota
	StateActive
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateActive:
		return "active"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

var ErrSessionNotActive = errors.New("session is not active")

var validate = validator.New()

// Deps are the process-wide collaborators shared by every session.
type Deps struct {
	Store            storage.MessageStore
	Identities       storage.IdentityResolver
	Router           Router
	Publisher        stream.Publisher
	Pool             *Pool
	// StreamPool runs stream publishes, apart from store and identity calls.
	// Nil shares Pool.
	StreamPool       *Pool
	Topic            string
	MaxContentLength int
	Log              *slog.Logger
}

// Session drives one connection: Connecting -> Active -> Closed.
// Handle must be called from a single goroutine so frames of one connection
// are processed strictly in arrival order.
type Session struct {
	deps        Deps
	conn        Conn
	participant string
	roomToken   string
	key         string
	state       atomic.Int32
	log         *slog.Logger
}

func NewSession(deps Deps, conn Conn, participant, roomToken string) *Session {
	if deps.Topic == "" {
		deps.Topic = stream.DefaultTopic
	}
	if deps.StreamPool == nil {
		deps.StreamPool = deps.Pool
	}
	s := &Session{
		deps:        deps,
		conn:        conn,
		participant: participant,
		roomToken:   roomToken,
		log: deps.Log.With(
			"conn_id", conn.ID(),
			"participant", participant,
			"room", roomToken),
	}
	s.state.Store(int32(StateConnecting))
	return s
}

func (s *Session) State() State {
	return State(s.state.Load())
}

// Key is the channel key, empty until Open succeeds.
func (s *Session) Key() string {
	return s.key
}

// Open derives the channel key and joins the registry. On failure the client
// gets an error frame and the session is closed.
func (s *Session) Open(ctx context.Context) error {
	key, err := chat.DeriveKey(s.participant, s.roomToken)
	if err != nil {
		s.log.Warn("Handshake rejected", "error", err)
		s.sendError(errs.InvalidArg("Connection error: "+err.Error(), err), nil)
		s.state.Store(int32(StateClosed))
		return fmt.Errorf("derive channel key: %w", err)
	}
	s.key = key

	if !s.deps.Router.Join(key, s.conn) {
		s.log.Debug("Connection already registered", "channel", key)
	}
	if !s.state.CompareAndSwap(int32(StateConnecting), int32(StateActive)) {
		s.deps.Router.Leave(key, s.conn)
		return ErrSessionNotActive
	}
	s.log = s.log.With("channel", key)
	s.log.Info("Session active")
	return nil
}

// Close leaves the registry. It is safe to call more than once.
func (s *Session) Close() {
	previous := State(s.state.Swap(int32(StateClosed)))
	if previous == StateClosed {
		return
	}
	if s.key != "" {
		s.deps.Router.Leave(s.key, s.conn)
	}
	s.log.Info("Session closed", "previous_state", previous.String())
}

// Handle processes one inbound frame. The returned error has already been
// reported to the client; it never means the connection must close.
func (s *Session) Handle(ctx context.Context, raw []byte) error {
	if s.State() != StateActive {
		return ErrSessionNotActive
	}

	var frame models.InboundFrame
	if err := json.Unmarshal(raw, &frame); err != nil {
		appErr := errs.InvalidArg("malformed frame", err)
		s.sendError(appErr, nil)
		return appErr
	}

	receiver := s.resolveReceiver(ctx)

	var err error
	switch frame.Kind() {
	case models.IntakeDelete:
		err = s.handleDelete(ctx, *frame.DeleteMessageID, receiver)
	case models.IntakeUpdate:
		err = s.handleUpdate(ctx, *frame.MessageID, frame.Content(), receiver)
	default:
		err = s.handleCreate(ctx, frame.Content(), receiver)
	}
	if err != nil {
		s.log.Warn("Intake rejected",
			"action", frame.Kind().String(),
			"code", errs.CodeOf(err),
			"error", err)
	}
	return err
}

// resolveReceiver looks up the other participant. An unknown room token
// falls back to the session's own participant.
func (s *Session) resolveReceiver(ctx context.Context) string {
	receiver, err := Submit(ctx, s.deps.Pool, func() (string, error) {
		return s.deps.Identities.ResolveParticipant(context.WithoutCancel(ctx), s.roomToken)
	})
	if err != nil {
		s.log.Warn("Receiver not resolved, falling back to self", "error", err)
		return s.participant
	}
	return receiver
}

func (s *Session) handleCreate(ctx context.Context, content, receiver string) error {
	if err := s.validateContent(content); err != nil {
		s.sendError(err, nil)
		return err
	}

	msg, err := Submit(ctx, s.deps.Pool, func() (models.Message, error) {
		return s.deps.Store.CreateMessage(context.WithoutCancel(ctx), s.participant, receiver, content)
	})
	if err != nil {
		appErr := storeError(err, 0)
		s.sendError(appErr, nil)
		return appErr
	}

	s.broadcast(ctx, models.CreatedFrame(msg))
	s.mirror(ctx, models.NewStreamEvent(models.ActionCreate, s.key, s.participant, receiver, msg.ID, &content))
	return nil
}

func (s *Session) handleUpdate(ctx context.Context, messageID int64, content, receiver string) error {
	if err := s.validateContent(content); err != nil {
		s.sendError(err, &messageID)
		return err
	}

	_, err := Submit(ctx, s.deps.Pool, func() (models.Message, error) {
		return s.deps.Store.UpdateMessage(context.WithoutCancel(ctx), messageID, s.participant, content)
	})
	if err != nil {
		appErr := storeError(err, messageID)
		s.sendError(appErr, &messageID)
		return appErr
	}

	s.broadcast(ctx, models.UpdatedFrame(s.participant, receiver, messageID, content))
	s.mirror(ctx, models.NewStreamEvent(models.ActionUpdate, s.key, s.participant, receiver, messageID, &content))
	return nil
}

func (s *Session) handleDelete(ctx context.Context, messageID int64, receiver string) error {
	_, err := Submit(ctx, s.deps.Pool, func() (struct{}, error) {
		return struct{}{}, s.deps.Store.SoftDeleteMessage(context.WithoutCancel(ctx), messageID, s.participant)
	})
	if err != nil {
		appErr := storeError(err, messageID)
		s.sendError(appErr, &messageID)
		return appErr
	}

	s.broadcast(ctx, models.DeletedFrame(s.participant, receiver, messageID))
	s.mirror(ctx, models.NewStreamEvent(models.ActionDelete, s.key, s.participant, receiver, messageID, nil))
	return nil
}

func (s *Session) validateContent(content string) error {
	rule := "required"
	if s.deps.MaxContentLength > 0 {
		rule = fmt.Sprintf("required,max=%d", s.deps.MaxContentLength)
	}
	if err := validate.Var(strings.TrimSpace(content), rule); err != nil {
		return errs.InvalidArg("message content is empty or too long", err)
	}
	return nil
}

func (s *Session) broadcast(ctx context.Context, frame models.OutboundFrame) {
	delivered, err := s.deps.Router.Broadcast(ctx, s.key, frame)
	if err != nil {
		s.log.Error("Broadcast failed", "error", err)
		return
	}
	s.log.Debug("Broadcast delivered", "connections", delivered)
}

// mirror publishes evt on the stream pool. Failure is logged and swallowed:
// the mutation and the broadcast already happened.
func (s *Session) mirror(ctx context.Context, evt models.StreamEvent) {
	_, err := Submit(ctx, s.deps.StreamPool, func() (struct{}, error) {
		return struct{}{}, s.deps.Publisher.Publish(context.WithoutCancel(ctx), s.deps.Topic, evt)
	})
	if err != nil {
		s.log.Warn("Stream mirror failed",
			"action", evt.Action,
			"sender", evt.Sender,
			"receiver", evt.Receiver,
			"message_id", *evt.MessageID,
			"error", err)
	}
}

func (s *Session) sendError(err error, messageID *int64) {
	payload, marshalErr := json.Marshal(models.ErrorFrame{
		Error:     errs.MessageOf(err),
		Code:      string(errs.CodeOf(err)),
		MessageID: messageID,
	})
	if marshalErr != nil {
		s.log.Error("Failed to encode error frame", "error", marshalErr)
		return
	}
	if deliverErr := s.conn.Deliver(payload); deliverErr != nil {
		s.log.Debug("Error frame not delivered", "error", deliverErr)
	}
}

func storeError(err error, messageID int64) error {
	if errors.Is(err, storage.ErrNotFound) {
		return errs.NotFound(fmt.Sprintf("message %d not found", messageID), err)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return errs.Unavailable("request abandoned", err)
	}
	return errs.Unavailable("message store unavailable", err)
}
