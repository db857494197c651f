package hub

import (
	"encoding/json"

	"chat-platform/internal/storage"
)

// Event kinds emitted to connected clients.
const (
	eventReceiveMessage = "receive_message"
	eventOnlineUsers    = "online_users"
	eventError          = "error"
)

// Error acknowledgment codes, one per rejection cause. Acks go to the sender
// only; the connection stays open.
const (
	codeInvalidPayload = "invalid_payload"
	codeInvalidTarget  = "invalid_target"
	codeForbidden      = "forbidden"
	codeStoreFailure   = "store_failure"
	codeInternal       = "internal"
)

type event struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

type errorAck struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func marshalEvent(kind string, data interface{}) ([]byte, error) {
	return json.Marshal(event{Type: kind, Data: data})
}

func messageEvent(m storage.Message) ([]byte, error) {
	return marshalEvent(eventReceiveMessage, m)
}

func onlineUsersEvent(userIDs []int64) ([]byte, error) {
	return marshalEvent(eventOnlineUsers, userIDs)
}

func errorEvent(code, message string) ([]byte, error) {
	return marshalEvent(eventError, errorAck{Code: code, Message: message})
}
