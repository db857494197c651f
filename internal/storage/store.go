package storage

import (
	"context"
	"errors"
	"strings"

	"chat-platform/internal/storage/zapadapter"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
	"go.uber.org/zap"
)

var (
	ErrBadSender      = errors.New("sender does not exist")
	ErrUserNotExist   = errors.New("user does not exist")
	ErrNotGroupMember = errors.New("user is not a group member")
)

// Store defines fields used in db interaction processes
type Store struct {
	logger *zap.SugaredLogger
	db     *pgxpool.Pool
}

// NewStore sets provided zap logger via zapadapter to pgxpool.Pool and returns instance of Store struct
func NewStore(ctx context.Context, logger *zap.SugaredLogger, cfg Config, opts ...Option) (*Store, error) {
	config, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, err
	}
	config.ConnConfig.Logger = zapadapter.NewLogger(logger.Desugar())

	for _, opt := range opts {
		opt.apply(config)
	}

	pool, err := pgxpool.ConnectConfig(ctx, config)
	if err != nil {
		return nil, err
	}

	return &Store{
		logger: logger,
		db:     pool,
	}, nil
}

// EnsureSchema creates tables required by the message store if they are missing.
// The users and groups tables are owned by the user-management service; they are
// created here only so foreign keys resolve on a fresh database.
func (s *Store) EnsureSchema(ctx context.Context) error {
	_, err := s.db.Exec(ctx, `
		create table if not exists users (
			id serial primary key,
			username varchar(50) unique not null,
			role varchar(20) default 'user',
			status varchar(20) default 'active',
			created_at timestamptz default current_timestamp
		);

		create table if not exists groups (
			id serial primary key,
			name varchar(100) not null,
			admin_id integer references users (id),
			invite_code varchar(50),
			created_at timestamptz default current_timestamp
		);

		create table if not exists group_members (
			group_id integer not null references groups (id),
			user_id integer not null references users (id),
			primary key (group_id, user_id)
		);

		create table if not exists messages (
			id bigserial primary key,
			sender_id integer not null references users (id),
			receiver_id integer,
			group_id integer,
			content_type varchar(20) not null,
			content text not null,
			"timestamp" timestamptz not null default clock_timestamp(),
			check (receiver_id is null or group_id is null)
		);

		create index if not exists messages_group_id_idx on messages (group_id);
		create index if not exists messages_receiver_id_idx on messages (receiver_id);`)
	if err != nil {
		return err
	}

	s.logger.Info("Database schema is up to date")

	return nil
}

// AppendMessage durably persists a message and returns it with the store-assigned
// id and commit timestamp. The serial id sequence is the single serialization
// point, so concurrent appends never collide or go non-monotonic. Callers must
// not broadcast until AppendMessage has returned.
func (s *Store) AppendMessage(ctx context.Context, senderID int64, receiverID, groupID *int64, contentType, content string) (Message, error) {
	s.logger.Debugf("Appending message from user (id: %d)", senderID)

	m := Message{
		SenderID:    senderID,
		ReceiverID:  receiverID,
		GroupID:     groupID,
		ContentType: contentType,
		Content:     content,
	}

	sql := `insert into messages (sender_id, receiver_id, group_id, content_type, content)
			values ($1, $2, $3, $4, $5)
			returning id, "timestamp"`
	err := s.db.QueryRow(ctx, sql, senderID, receiverID, groupID, contentType, content).Scan(&m.ID, &m.Timestamp)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			if pgErr.Code == pgerrcode.ForeignKeyViolation && pgErr.ConstraintName == "messages_sender_id_fkey" {
				return Message{}, ErrBadSender
			}
		}
		return Message{}, err
	}

	s.logger.Debugf("Appended message %d from user %d", m.ID, senderID)

	return m, nil
}

// History returns one page of messages visible through the given filter, ordered
// by commit timestamp ascending with ties broken by id ascending. Concatenating
// pages 1..k with limit L equals a single page of limit k*L for a read window
// without concurrent writes.
func (s *Store) History(ctx context.Context, f HistoryFilter) ([]Message, error) {
	s.logger.Debugf("Retrieving history for user (id: %d)", f.RequesterID)

	if f.Limit < 1 {
		f.Limit = DefaultHistoryLimit
	}
	if f.Page < 1 {
		f.Page = 1
	}
	offset := (f.Page - 1) * f.Limit

	var (
		sql  string
		args []interface{}
	)

	switch {
	case f.GroupID != nil:
		member, err := s.IsGroupMember(ctx, *f.GroupID, f.RequesterID)
		if err != nil {
			return nil, err
		}
		if !member {
			return nil, ErrNotGroupMember
		}

		sql = selectMessages + ` where group_id = $1 order by "timestamp" asc, id asc limit $2 offset $3`
		args = []interface{}{*f.GroupID, f.Limit, offset}

	case f.ParticipantID != nil:
		exists, err := s.UserExists(ctx, *f.ParticipantID)
		if err != nil {
			return nil, err
		}
		if !exists {
			return nil, ErrUserNotExist
		}

		sql = selectMessages + ` where (sender_id = $1 and receiver_id = $2)
				 or (sender_id = $2 and receiver_id = $1)
			order by "timestamp" asc, id asc limit $3 offset $4`
		args = []interface{}{f.RequesterID, *f.ParticipantID, f.Limit, offset}

	default:
		sql = selectMessages + ` where receiver_id is null and group_id is null
			order by "timestamp" asc, id asc limit $1 offset $2`
		args = []interface{}{f.Limit, offset}
	}

	return s.queryMessages(ctx, sql, args...)
}

// Search performs a case-insensitive substring match on message content,
// restricted to what the requester may see: the public room, their own direct
// messages, and groups they belong to.
func (s *Store) Search(ctx context.Context, requesterID int64, term string) ([]Message, error) {
	s.logger.Debugf("Searching messages for user (id: %d)", requesterID)

	sql := selectMessages + `
		   where content ilike '%' || $2 || '%'
			 and ((receiver_id is null and group_id is null)
			   or sender_id = $1
			   or receiver_id = $1
			   or group_id in (select group_id from group_members where user_id = $1))
		   order by "timestamp" asc, id asc`

	return s.queryMessages(ctx, sql, requesterID, escapeLikeTerm(term))
}

const selectMessages = `select id, sender_id, receiver_id, group_id, content_type, content, "timestamp" from messages`

func (s *Store) queryMessages(ctx context.Context, sql string, args ...interface{}) ([]Message, error) {
	rows, err := s.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []Message
	for rows.Next() {
		var m Message
		err = rows.Scan(&m.ID, &m.SenderID, &m.ReceiverID, &m.GroupID, &m.ContentType, &m.Content, &m.Timestamp)
		if err != nil {
			return nil, err
		}
		messages = append(messages, m)
	}

	if rows.Err() != nil {
		return nil, rows.Err()
	}

	s.logger.Debugf("Retrieved %d messages", len(messages))

	return messages, nil
}

// IsGroupMember reports whether the user belongs to the group
func (s *Store) IsGroupMember(ctx context.Context, groupID, userID int64) (bool, error) {
	var i int8
	sql := "select 1 from group_members where group_id = $1 and user_id = $2"
	err := s.db.QueryRow(ctx, sql, groupID, userID).Scan(&i)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, err
	}

	return true, nil
}

// UserExists reports whether a user with the given id exists
func (s *Store) UserExists(ctx context.Context, userID int64) (bool, error) {
	var i int8
	sql := "select 1 from users where id = $1"
	err := s.db.QueryRow(ctx, sql, userID).Scan(&i)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, err
	}

	return true, nil
}

// GroupIDsByUserID returns ids of all groups the user belongs to
func (s *Store) GroupIDsByUserID(ctx context.Context, userID int64) ([]int64, error) {
	rows, err := s.db.Query(ctx, "select group_id from group_members where user_id = $1 order by group_id", userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}

	if rows.Err() != nil {
		return nil, rows.Err()
	}

	return ids, nil
}

// Close closes the underlying connection pool
func (s *Store) Close() {
	s.db.Close()
}

// escapeLikeTerm escapes LIKE metacharacters so the term matches literally
func escapeLikeTerm(term string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(term)
}
