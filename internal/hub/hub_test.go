package hub

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"chat-platform/internal/auth"
	"chat-platform/internal/storage"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeStore struct {
	fakeDirectory

	mu        sync.Mutex
	nextID    int64
	messages  []storage.Message
	appendErr error
}

func (f *fakeStore) AppendMessage(_ context.Context, senderID int64, receiverID, groupID *int64, contentType, content string) (storage.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.appendErr != nil {
		return storage.Message{}, f.appendErr
	}

	f.nextID++
	m := storage.Message{
		ID:          f.nextID,
		SenderID:    senderID,
		ReceiverID:  receiverID,
		GroupID:     groupID,
		ContentType: contentType,
		Content:     content,
		Timestamp:   time.Now(),
	}
	f.messages = append(f.messages, m)

	return m, nil
}

func (f *fakeStore) GroupIDsByUserID(_ context.Context, userID int64) ([]int64, error) {
	var ids []int64
	for groupID, members := range f.members {
		for _, id := range members {
			if id == userID {
				ids = append(ids, groupID)
			}
		}
	}
	return ids, nil
}

func (f *fakeStore) appended() []storage.Message {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]storage.Message, len(f.messages))
	copy(out, f.messages)
	return out
}

func bootstrapHub(t *testing.T, store *fakeStore) *Hub {
	logger, err := zap.NewDevelopment()
	require.NoError(t, err)

	return New(logger.Sugar(), store)
}

func register(t *testing.T, h *Hub, userID int64) *Session {
	s, err := h.Register(context.Background(), nil, auth.Identity{
		UserID:   userID,
		Username: "user" + strconv.FormatInt(userID, 10),
		Role:     "user",
	})
	require.NoError(t, err)

	return s
}

// recvEvent pops the next queued outbound event of a session. All hub sends
// complete synchronously, so an empty queue means nothing was delivered.
func recvEvent(t *testing.T, s *Session) (string, json.RawMessage) {
	t.Helper()

	select {
	case payload := <-s.send:
		var e struct {
			Type string          `json:"type"`
			Data json.RawMessage `json:"data"`
		}
		require.NoError(t, json.Unmarshal(payload, &e))
		return e.Type, e.Data
	default:
		t.Fatal("no event queued")
		return "", nil
	}
}

func requireNoEvent(t *testing.T, s *Session) {
	t.Helper()

	select {
	case payload := <-s.send:
		t.Fatalf("unexpected event queued: %s", payload)
	default:
	}
}

func drainEvents(s *Session) {
	for {
		select {
		case <-s.send:
		default:
			return
		}
	}
}

func TestRegisterBroadcastsPresence(t *testing.T) {
	t.Parallel()

	h := bootstrapHub(t, &fakeStore{})

	s1 := register(t, h, 1)

	kind, data := recvEvent(t, s1)
	require.Equal(t, eventOnlineUsers, kind)
	require.JSONEq(t, `[1]`, string(data))

	// second device of the same user: no presence transition
	s1b := register(t, h, 1)
	requireNoEvent(t, s1)
	requireNoEvent(t, s1b)

	s2 := register(t, h, 2)
	for _, s := range []*Session{s1, s1b, s2} {
		kind, data = recvEvent(t, s)
		require.Equal(t, eventOnlineUsers, kind)
		require.JSONEq(t, `[1,2]`, string(data))
	}
}

func TestRegisterJoinsGroupTopics(t *testing.T) {
	t.Parallel()

	store := &fakeStore{fakeDirectory: fakeDirectory{members: map[int64][]int64{5: {1}}}}
	h := bootstrapHub(t, store)

	s := register(t, h, 1)
	drainEvents(s)

	h.Broadcast(GroupTopic(5), []byte(`{"type":"receive_message","data":null}`))
	kind, _ := recvEvent(t, s)
	require.Equal(t, eventReceiveMessage, kind)

	h.Broadcast(UserTopic(1), []byte(`{"type":"receive_message","data":null}`))
	kind, _ = recvEvent(t, s)
	require.Equal(t, eventReceiveMessage, kind)
}

func TestUnregisterTransitionsOffline(t *testing.T) {
	t.Parallel()

	h := bootstrapHub(t, &fakeStore{})

	s1 := register(t, h, 1)
	s1b := register(t, h, 1)
	s2 := register(t, h, 2)
	drainEvents(s2)

	h.Unregister(s1b)
	// one connection remains: user 1 is still online
	requireNoEvent(t, s2)
	require.Equal(t, []int64{1, 2}, h.OnlineUsers())

	h.Unregister(s1)
	kind, data := recvEvent(t, s2)
	require.Equal(t, eventOnlineUsers, kind)
	require.JSONEq(t, `[2]`, string(data))

	// repeated unregister is a no-op
	h.Unregister(s1)
	requireNoEvent(t, s2)
}

func TestBroadcastIsolatesBackpressuredConnection(t *testing.T) {
	t.Parallel()

	h := bootstrapHub(t, &fakeStore{})

	slow := register(t, h, 1)
	fast := register(t, h, 2)
	drainEvents(fast)

	// saturate the slow connection's queue
	for {
		select {
		case slow.send <- []byte(`{}`):
			continue
		default:
		}
		break
	}

	h.Broadcast(PublicTopic, []byte(`{"type":"receive_message","data":null}`))

	kind, _ := recvEvent(t, fast)
	require.Equal(t, eventReceiveMessage, kind)
}

func TestHandleSendPublic(t *testing.T) {
	t.Parallel()

	store := &fakeStore{}
	h := bootstrapHub(t, store)

	s1 := register(t, h, 1)
	s2 := register(t, h, 2)
	drainEvents(s1)
	drainEvents(s2)

	s1.dispatch([]byte(`{"type":"send_message","data":{"receiver_id":null,"group_id":null,"content_type":"text","content":"hello"}}`))

	appended := store.appended()
	require.Len(t, appended, 1)
	require.Equal(t, int64(1), appended[0].SenderID)
	require.Nil(t, appended[0].ReceiverID)
	require.Nil(t, appended[0].GroupID)
	require.Equal(t, "hello", appended[0].Content)

	// every public subscriber receives the persisted message, sender included
	for _, s := range []*Session{s1, s2} {
		kind, data := recvEvent(t, s)
		require.Equal(t, eventReceiveMessage, kind)

		var m storage.Message
		require.NoError(t, json.Unmarshal(data, &m))
		require.Equal(t, appended[0].ID, m.ID)
		require.Equal(t, "hello", m.Content)
	}
}

func TestHandleSendDirect(t *testing.T) {
	t.Parallel()

	store := &fakeStore{fakeDirectory: fakeDirectory{users: map[int64]struct{}{2: {}}}}
	h := bootstrapHub(t, store)

	s1 := register(t, h, 1)
	s2 := register(t, h, 2)
	s3 := register(t, h, 3)
	drainEvents(s1)
	drainEvents(s2)
	drainEvents(s3)

	s1.dispatch([]byte(`{"type":"send_message","data":{"receiver_id":2,"content_type":"text","content":"psst"}}`))

	// receiver and sender (multi-device echo) get the message, bystander does not
	kind, _ := recvEvent(t, s2)
	require.Equal(t, eventReceiveMessage, kind)
	kind, _ = recvEvent(t, s1)
	require.Equal(t, eventReceiveMessage, kind)
	requireNoEvent(t, s3)
}

func TestHandleSendGroupForbidden(t *testing.T) {
	t.Parallel()

	store := &fakeStore{fakeDirectory: fakeDirectory{members: map[int64][]int64{5: {1}}}}
	h := bootstrapHub(t, store)

	member := register(t, h, 1)
	outsider := register(t, h, 2)
	drainEvents(member)
	drainEvents(outsider)

	outsider.dispatch([]byte(`{"type":"send_message","data":{"group_id":5,"content_type":"text","content":"hi"}}`))

	// nothing persisted, nothing broadcast, sender gets the rejection
	require.Empty(t, store.appended())
	requireNoEvent(t, member)

	kind, data := recvEvent(t, outsider)
	require.Equal(t, eventError, kind)

	var ack errorAck
	require.NoError(t, json.Unmarshal(data, &ack))
	require.Equal(t, codeForbidden, ack.Code)
}

func TestHandleSendAmbiguousTarget(t *testing.T) {
	t.Parallel()

	store := &fakeStore{fakeDirectory: fakeDirectory{
		members: map[int64][]int64{5: {1}},
		users:   map[int64]struct{}{2: {}},
	}}
	h := bootstrapHub(t, store)

	s := register(t, h, 1)
	drainEvents(s)

	s.dispatch([]byte(`{"type":"send_message","data":{"receiver_id":2,"group_id":5,"content_type":"text","content":"hi"}}`))

	require.Empty(t, store.appended())

	kind, data := recvEvent(t, s)
	require.Equal(t, eventError, kind)

	var ack errorAck
	require.NoError(t, json.Unmarshal(data, &ack))
	require.Equal(t, codeInvalidTarget, ack.Code)
}

func TestHandleSendStoreFailure(t *testing.T) {
	t.Parallel()

	store := &fakeStore{appendErr: errors.New("connection refused")}
	h := bootstrapHub(t, store)

	s1 := register(t, h, 1)
	s2 := register(t, h, 2)
	drainEvents(s1)
	drainEvents(s2)

	s1.dispatch([]byte(`{"type":"send_message","data":{"content_type":"text","content":"hi"}}`))

	requireNoEvent(t, s2)

	kind, data := recvEvent(t, s1)
	require.Equal(t, eventError, kind)

	var ack errorAck
	require.NoError(t, json.Unmarshal(data, &ack))
	require.Equal(t, codeStoreFailure, ack.Code)
}

func TestDispatchMalformedJSON(t *testing.T) {
	t.Parallel()

	h := bootstrapHub(t, &fakeStore{})

	s := register(t, h, 1)
	drainEvents(s)

	s.dispatch([]byte(`{"type":`))

	kind, data := recvEvent(t, s)
	require.Equal(t, eventError, kind)

	var ack errorAck
	require.NoError(t, json.Unmarshal(data, &ack))
	require.Equal(t, codeInvalidPayload, ack.Code)
}

func TestDispatchUnknownEventType(t *testing.T) {
	t.Parallel()

	h := bootstrapHub(t, &fakeStore{})

	s := register(t, h, 1)
	drainEvents(s)

	s.dispatch([]byte(`{"type":"subscribe","data":{}}`))

	kind, data := recvEvent(t, s)
	require.Equal(t, eventError, kind)

	var ack errorAck
	require.NoError(t, json.Unmarshal(data, &ack))
	require.Equal(t, codeInvalidPayload, ack.Code)
}

func TestDispatchInvalidPayloadKeepsSessionUsable(t *testing.T) {
	t.Parallel()

	store := &fakeStore{}
	h := bootstrapHub(t, store)

	s := register(t, h, 1)
	drainEvents(s)

	s.dispatch([]byte(`{"type":"send_message","data":{"content_type":"sticker","content":"x"}}`))
	kind, _ := recvEvent(t, s)
	require.Equal(t, eventError, kind)

	s.dispatch([]byte(`{"type":"send_message","data":{"content_type":"text","content":"still here"}}`))
	kind, _ = recvEvent(t, s)
	require.Equal(t, eventReceiveMessage, kind)
	require.Len(t, store.appended(), 1)
}
