package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"chat-platform/internal/auth"
	"chat-platform/internal/hub"
	"chat-platform/internal/storage"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// messageReader is the history/search slice of the message store used by the
// read-path handlers
type messageReader interface {
	History(ctx context.Context, f storage.HistoryFilter) ([]storage.Message, error)
	Search(ctx context.Context, requesterID int64, term string) ([]storage.Message, error)
}

// presenceLister exposes the set of currently online users
type presenceLister interface {
	OnlineUsers() []int64
}

type handler struct {
	logger   *zap.SugaredLogger
	store    messageReader
	presence presenceLister
	hub      *hub.Hub
	verifier auth.Verifier
	upgrader websocket.Upgrader
}

// connect handles the websocket handshake on "/ws". The credential comes from
// the "token" query parameter (falling back to the Authorization header) and
// is verified before the upgrade, so rejected connections never allocate a
// session or join a topic.
func (h *handler) connect(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		token = bearerToken(r)
	}

	ident, err := h.verifier.Verify(token)
	if err != nil {
		http.Error(w, authErrorText(err), http.StatusUnauthorized)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warnf("Upgrading connection for user %d: %v", ident.UserID, err)
		return
	}

	s, err := h.hub.Register(r.Context(), conn, ident)
	if err != nil {
		h.logger.Errorf("Registering connection for user %d: %v", ident.UserID, err)
		conn.Close()
		return
	}

	s.Run()
}

// history handles HTTP requests on the "/messages/history" endpoint
func (h *handler) history(w http.ResponseWriter, r *http.Request) {
	ident, ok := auth.FromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	filter := storage.HistoryFilter{
		RequesterID: ident.UserID,
		Page:        1,
		Limit:       storage.DefaultHistoryLimit,
	}

	query := r.URL.Query()

	if raw := query.Get("page"); raw != "" {
		page, err := strconv.Atoi(raw)
		if err != nil || page < 1 {
			http.Error(w, "Query parameter \"page\" must be a positive integer", http.StatusBadRequest)
			return
		}
		filter.Page = page
	}

	if raw := query.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 {
			http.Error(w, "Query parameter \"limit\" must be a positive integer", http.StatusBadRequest)
			return
		}
		filter.Limit = limit
	}

	if raw := query.Get("participant_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id < 1 {
			http.Error(w, "Query parameter \"participant_id\" must be a valid user id greater than zero", http.StatusBadRequest)
			return
		}
		filter.ParticipantID = &id
	}

	if raw := query.Get("group_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id < 1 {
			http.Error(w, "Query parameter \"group_id\" must be a valid group id greater than zero", http.StatusBadRequest)
			return
		}
		filter.GroupID = &id
	}

	messages, err := h.store.History(r.Context(), filter)
	if err != nil {
		switch {
		case errors.Is(err, storage.ErrNotGroupMember):
			http.Error(w, "Requester is not a group member", http.StatusForbidden)
		case errors.Is(err, storage.ErrUserNotExist):
			http.Error(w, "Participant does not exist", http.StatusBadRequest)
		default:
			h.logger.Error(err)
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		}
		return
	}

	h.writeMessages(w, messages)
}

// search handles HTTP requests on the "/messages/search" endpoint
func (h *handler) search(w http.ResponseWriter, r *http.Request) {
	ident, ok := auth.FromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	term := r.URL.Query().Get("term")
	if term == "" {
		http.Error(w, "Query parameter \"term\" must have non-zero length", http.StatusBadRequest)
		return
	}

	messages, err := h.store.Search(r.Context(), ident.UserID, term)
	if err != nil {
		h.logger.Error(err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	h.writeMessages(w, messages)
}

// onlineUsers handles HTTP requests on the "/users/online" endpoint
func (h *handler) onlineUsers(w http.ResponseWriter, r *http.Request) {
	ids := h.presence.OnlineUsers()
	if ids == nil {
		ids = []int64{}
	}

	h.writeJSON(w, ids)
}

func (h *handler) writeMessages(w http.ResponseWriter, messages []storage.Message) {
	if messages == nil {
		messages = []storage.Message{}
	}

	h.writeJSON(w, messages)
}

func (h *handler) writeJSON(w http.ResponseWriter, data interface{}) {
	payload, err := json.Marshal(data)
	if err != nil {
		h.logger.Error(err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, err = w.Write(payload)
	if err != nil {
		h.logger.Errorf("writing marshaled data to ResponseWriter: %v", err)
	}
}
