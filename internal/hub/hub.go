// Package hub owns the realtime side of the chat platform: the topic registry,
// per-user presence, message classification, and fan-out of persisted messages
// to subscribed connections.
package hub

import (
	"context"
	"sync"

	"chat-platform/internal/auth"
	"chat-platform/internal/storage"

	"github.com/gorilla/websocket"
	"github.com/rs/xid"
	"go.uber.org/zap"
)

// Store is the durable side the hub depends on. Satisfied by *storage.Store.
type Store interface {
	Directory
	AppendMessage(ctx context.Context, senderID int64, receiverID, groupID *int64, contentType, content string) (storage.Message, error)
	GroupIDsByUserID(ctx context.Context, userID int64) ([]int64, error)
}

// Hub maps topic names to the sessions currently subscribed to them and fans
// persisted messages out to those sessions. One Hub exists per server process;
// presence and topic membership are local to it.
type Hub struct {
	logger   *zap.SugaredLogger
	store    Store
	presence *Presence

	mu     sync.RWMutex
	topics map[string]map[*Session]struct{}
}

func New(logger *zap.SugaredLogger, store Store) *Hub {
	return &Hub{
		logger:   logger,
		store:    store,
		presence: NewPresence(logger),
		topics:   make(map[string]map[*Session]struct{}),
	}
}

// Register creates a Session for an authenticated connection and subscribes it
// to the public topic, the user's own topic, and the topics of all groups the
// user currently belongs to. If this is the user's first active connection an
// online_users broadcast goes out.
func (h *Hub) Register(ctx context.Context, conn *websocket.Conn, ident auth.Identity) (*Session, error) {
	groupIDs, err := h.store.GroupIDsByUserID(ctx, ident.UserID)
	if err != nil {
		return nil, err
	}

	topics := make([]string, 0, len(groupIDs)+2)
	topics = append(topics, PublicTopic, UserTopic(ident.UserID))
	for _, id := range groupIDs {
		topics = append(topics, GroupTopic(id))
	}

	s := &Session{
		id:     xid.New().String(),
		user:   ident,
		conn:   conn,
		send:   make(chan []byte, sendBufferSize),
		topics: topics,
		hub:    h,
	}

	h.mu.Lock()
	for _, topic := range topics {
		set, ok := h.topics[topic]
		if !ok {
			set = make(map[*Session]struct{})
			h.topics[topic] = set
		}
		set[s] = struct{}{}
	}
	h.mu.Unlock()

	h.logger.Infof("User %s (id: %d) connected, connection %s", ident.Username, ident.UserID, s.id)

	if h.presence.Join(ident.UserID) {
		h.broadcastPresence()
	}

	return s, nil
}

// Unregister removes the session from every topic it joined, closes its send
// queue, and broadcasts a presence update if the user's last connection is
// gone. Safe to call more than once per session.
func (h *Hub) Unregister(s *Session) {
	h.mu.Lock()
	if s.unregistered {
		h.mu.Unlock()
		return
	}
	s.unregistered = true
	for _, topic := range s.topics {
		if set, ok := h.topics[topic]; ok {
			delete(set, s)
			if len(set) == 0 {
				delete(h.topics, topic)
			}
		}
	}
	h.mu.Unlock()

	close(s.send)

	h.logger.Infof("User %s (id: %d) disconnected, connection %s", s.user.Username, s.user.UserID, s.id)

	if h.presence.Leave(s.user.UserID) {
		h.broadcastPresence()
	}
}

// Broadcast emits the payload to every session subscribed to the topic at call
// time. The membership snapshot is taken under the read lock so concurrent
// joins and leaves neither double-deliver nor panic. A session whose queue is
// full is skipped and logged; delivery to the rest proceeds.
func (h *Hub) Broadcast(topic string, payload []byte) {
	for _, s := range h.snapshot(topic) {
		if !h.enqueue(s, payload) {
			h.logger.Warnf("Dropping message for connection %s on topic %s: send queue full or closed", s.id, topic)
		}
	}
}

func (h *Hub) snapshot(topic string) []*Session {
	h.mu.RLock()
	defer h.mu.RUnlock()

	set := h.topics[topic]
	sessions := make([]*Session, 0, len(set))
	for s := range set {
		sessions = append(sessions, s)
	}

	return sessions
}

// enqueue hands the payload to the session's write pump without blocking.
// The read lock orders the check against Unregister closing the channel.
func (h *Hub) enqueue(s *Session, payload []byte) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if s.unregistered {
		return false
	}

	select {
	case s.send <- payload:
		return true
	default:
		return false
	}
}

// OnlineUsers returns ids of users with at least one active connection
func (h *Hub) OnlineUsers() []int64 {
	return h.presence.Online()
}

func (h *Hub) broadcastPresence() {
	payload, err := onlineUsersEvent(h.presence.Online())
	if err != nil {
		h.logger.Errorf("Marshaling online users event: %v", err)
		return
	}

	h.Broadcast(PublicTopic, payload)
}

// Close tears down every live connection. Pump goroutines unwind through their
// normal disconnect path.
func (h *Hub) Close() {
	h.mu.RLock()
	seen := make(map[*Session]struct{})
	for _, set := range h.topics {
		for s := range set {
			seen[s] = struct{}{}
		}
	}
	h.mu.RUnlock()

	for s := range seen {
		if s.conn != nil {
			_ = s.conn.Close()
		}
	}

	h.logger.Infof("Closed %d client connections", len(seen))
}
