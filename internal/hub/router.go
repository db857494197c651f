package hub

import (
	"context"
	"errors"
	"strconv"
)

var (
	ErrForbidden     = errors.New("sender is not a member of the target group")
	ErrInvalidTarget = errors.New("invalid message target")
)

// PublicTopic is the room every authenticated connection joins.
const PublicTopic = "public"

// GroupTopic names the delivery topic for a group
func GroupTopic(groupID int64) string {
	return "group_" + strconv.FormatInt(groupID, 10)
}

// UserTopic names the per-user delivery topic used for direct messages and
// multi-device echo
func UserTopic(userID int64) string {
	return "user_" + strconv.FormatInt(userID, 10)
}

type TargetKind int

const (
	TargetPublic TargetKind = iota
	TargetGroup
	TargetDirect
)

// Target is the single resolved destination of a classified envelope
type Target struct {
	Kind    TargetKind
	GroupID int64
	UserID  int64
}

// Topics resolves the delivery topics for the target. Direct targets include
// the sender's own topic so the sender's other devices see the message too.
func (t Target) Topics(senderID int64) []string {
	switch t.Kind {
	case TargetGroup:
		return []string{GroupTopic(t.GroupID)}
	case TargetDirect:
		if t.UserID == senderID {
			return []string{UserTopic(senderID)}
		}
		return []string{UserTopic(t.UserID), UserTopic(senderID)}
	default:
		return []string{PublicTopic}
	}
}

// Directory is the membership/existence lookup side of classification,
// satisfied by the message store.
type Directory interface {
	IsGroupMember(ctx context.Context, groupID, userID int64) (bool, error)
	UserExists(ctx context.Context, userID int64) (bool, error)
}

// Classify resolves an envelope into exactly one delivery target. A group id
// wins over a receiver id being absent; supplying both is ambiguous and
// rejected. Group targets require sender membership, direct targets require
// the receiver to exist. No side effects beyond the lookups.
func Classify(ctx context.Context, env Envelope, senderID int64, dir Directory) (Target, error) {
	switch {
	case env.GroupID != nil && env.ReceiverID != nil:
		return Target{}, ErrInvalidTarget

	case env.GroupID != nil:
		member, err := dir.IsGroupMember(ctx, *env.GroupID, senderID)
		if err != nil {
			return Target{}, err
		}
		if !member {
			return Target{}, ErrForbidden
		}
		return Target{Kind: TargetGroup, GroupID: *env.GroupID}, nil

	case env.ReceiverID != nil:
		exists, err := dir.UserExists(ctx, *env.ReceiverID)
		if err != nil {
			return Target{}, err
		}
		if !exists {
			return Target{}, ErrInvalidTarget
		}
		return Target{Kind: TargetDirect, UserID: *env.ReceiverID}, nil

	default:
		return Target{Kind: TargetPublic}, nil
	}
}
