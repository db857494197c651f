package hub

import (
	"context"
	"errors"
	"time"

	"chat-platform/internal/auth"

	"github.com/gorilla/websocket"
	"github.com/valyala/fastjson"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait
	pingPeriod = (pongWait * 9) / 10

	// Maximum envelope size allowed from peer
	maxMessageSize = 64 * 1024

	sendBufferSize = 256

	// Upper bound on the durable append and the lookups around it. Deliberately
	// detached from the connection lifetime: a sender disconnect never cancels
	// an in-flight write.
	appendTimeout = 10 * time.Second
)

// Session is the server-side state of one live authenticated connection.
// Created by Hub.Register, destroyed on disconnect, never persisted.
type Session struct {
	id     string
	user   auth.Identity
	conn   *websocket.Conn
	send   chan []byte
	topics []string
	hub    *Hub

	// guarded by hub.mu
	unregistered bool

	// used only by the read pump goroutine
	parser fastjson.Parser
}

// Run starts the write pump and drives the read loop until the connection
// drops, then unregisters the session.
func (s *Session) Run() {
	go s.writePump()
	s.readPump()
}

func (s *Session) readPump() {
	defer func() {
		s.hub.Unregister(s)
		s.conn.Close()
	}()

	s.conn.SetReadLimit(maxMessageSize)
	s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		s.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				s.hub.logger.Warnf("Read error on connection %s: %v", s.id, err)
			}
			break
		}

		// Envelopes are dispatched inline so one sender's messages are
		// processed in receipt order.
		s.dispatch(raw)
	}
}

// dispatch switches on the inbound event kind. Every failure is acknowledged
// to this sender only and never terminates the connection.
func (s *Session) dispatch(raw []byte) {
	v, err := s.parser.ParseBytes(raw)
	if err != nil {
		s.ack(codeInvalidPayload, "Malformed JSON")
		return
	}

	switch kind := string(v.GetStringBytes("type")); kind {
	case "send_message":
		s.handleSend(v.Get("data"))
	default:
		s.ack(codeInvalidPayload, "Unknown event type")
	}
}

// handleSend classifies the envelope, durably appends the message, and only
// then fans it out to the resolved topics.
func (s *Session) handleSend(data *fastjson.Value) {
	env, err := parseEnvelope(data)
	if err != nil {
		var vErr *ValidationError
		if errors.As(err, &vErr) {
			s.ack(codeInvalidPayload, vErr.Error())
			return
		}
		s.ack(codeInvalidPayload, "Malformed payload")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), appendTimeout)
	defer cancel()

	target, err := Classify(ctx, env, s.user.UserID, s.hub.store)
	switch {
	case errors.Is(err, ErrForbidden):
		s.ack(codeForbidden, "Sender is not a member of the target group")
		return
	case errors.Is(err, ErrInvalidTarget):
		s.ack(codeInvalidTarget, "Invalid or ambiguous message target")
		return
	case err != nil:
		s.hub.logger.Errorf("Classifying message from user %d: %v", s.user.UserID, err)
		s.ack(codeInternal, "Could not route message, try again")
		return
	}

	m, err := s.hub.store.AppendMessage(ctx, s.user.UserID, env.ReceiverID, env.GroupID, env.ContentType, env.Content)
	if err != nil {
		s.hub.logger.Errorf("Appending message from user %d: %v", s.user.UserID, err)
		s.ack(codeStoreFailure, "Message was not persisted, try again")
		return
	}

	payload, err := messageEvent(m)
	if err != nil {
		s.hub.logger.Errorf("Marshaling message %d: %v", m.ID, err)
		return
	}

	for _, topic := range target.Topics(s.user.UserID) {
		s.hub.Broadcast(topic, payload)
	}
}

// ack sends an error acknowledgment to this session only
func (s *Session) ack(code, message string) {
	payload, err := errorEvent(code, message)
	if err != nil {
		s.hub.logger.Errorf("Marshaling error ack: %v", err)
		return
	}

	if !s.hub.enqueue(s, payload) {
		s.hub.logger.Warnf("Dropping error ack for connection %s: send queue full or closed", s.id)
	}
}

func (s *Session) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.conn.Close()
	}()

	for {
		select {
		case payload, ok := <-s.send:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				s.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := s.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}

		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
