package storage

import "time"

// Message is a single persisted chat message. ReceiverID and GroupID are
// mutually exclusive; both nil means the message belongs to the public room.
type Message struct {
	ID          int64     `json:"id"`
	SenderID    int64     `json:"sender_id"`
	ReceiverID  *int64    `json:"receiver_id"`
	GroupID     *int64    `json:"group_id"`
	ContentType string    `json:"content_type"`
	Content     string    `json:"content"`
	Timestamp   time.Time `json:"timestamp"`
}

// HistoryFilter selects one page of history for a requesting user.
// Exactly one read branch applies: GroupID if set, else ParticipantID
// (the direct thread between requester and participant), else the public room.
type HistoryFilter struct {
	RequesterID   int64
	ParticipantID *int64
	GroupID       *int64
	Page          int
	Limit         int
}

// DefaultHistoryLimit is applied when HistoryFilter.Limit is not positive.
const DefaultHistoryLimit = 30
