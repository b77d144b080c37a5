package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	sq "github.com/Masterminds/squirrel"
	"github.com/practice-sem-2/chatlist-service/internal/models"
	"time"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrEntryNotFound      = fmt.Errorf("%w: chat list entry does not exist", ErrNotFound)
	ErrUserNotFound       = fmt.Errorf("%w: user does not exist", ErrNotFound)
	ErrGroupNotFound      = fmt.Errorf("%w: group does not exist", ErrNotFound)
	ErrEntryAlreadyExists = errors.New("chat list entry for this owner and target already exists")
	ErrEntryIDTaken       = errors.New("chat list entry with provided id already exists")
	ErrNegativeUnread     = errors.New("unread count can't be negative")
)

const (
	ChatListTable      = "chat_list"
	ChatListPrimaryKey = "chat_list_pkey"
)

var chatListColumns = []string{
	"id", "owner_id", "target_id", "type", "target_info",
	"last_message", "unread_count", "created_at", "updated_at",
}

type ChatListStorage struct {
	db Scope
}

func NewChatListStorage(db Scope) *ChatListStorage {
	return &ChatListStorage{
		db: db,
	}
}

func (s *ChatListStorage) FindByOwnerAndTarget(ctx context.Context, ownerId, targetId string, t models.ChatListType) (*models.ChatListEntry, error) {
	query, args, err := sq.Select(chatListColumns...).
		From(ChatListTable).
		Where(sq.Eq{
			"owner_id":  ownerId,
			"target_id": targetId,
			"type":      string(t),
		}).
		PlaceholderFormat(sq.Dollar).
		ToSql()

	if err != nil {
		return nil, err
	}

	entry := models.ChatListEntry{}
	err = s.db.GetContext(ctx, &entry, query, args...)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrEntryNotFound
	} else if err != nil {
		return nil, err
	} else {
		return &entry, nil
	}
}

func (s *ChatListStorage) FindByOwner(ctx context.Context, ownerId string, t models.ChatListType) ([]models.ChatListEntry, error) {
	query, args, err := sq.Select(chatListColumns...).
		From(ChatListTable).
		Where(sq.Eq{
			"owner_id": ownerId,
			"type":     string(t),
		}).
		OrderBy("created_at", "id").
		PlaceholderFormat(sq.Dollar).
		ToSql()

	if err != nil {
		return nil, err
	}

	entries := make([]models.ChatListEntry, 0)
	err = s.db.SelectContext(ctx, &entries, query, args...)
	if err != nil {
		return nil, err
	}

	return entries, nil
}

// Insert never fails on a duplicate (owner_id, target_id, type): the conflict is
// skipped so the surrounding transaction stays usable and ErrEntryAlreadyExists
// is returned instead.
func (s *ChatListStorage) Insert(ctx context.Context, entry *models.ChatListEntry) error {
	if entry.UnreadCount < 0 {
		return ErrNegativeUnread
	}

	query, args, err := sq.Insert(ChatListTable).
		Columns(chatListColumns...).
		Values(
			entry.ID,
			entry.OwnerID,
			entry.TargetID,
			string(entry.Type),
			entry.TargetInfo,
			entry.LastMessage,
			entry.UnreadCount,
			entry.CreatedAt,
			entry.UpdatedAt,
		).
		Suffix("ON CONFLICT (owner_id, target_id, type) DO NOTHING").
		PlaceholderFormat(sq.Dollar).
		ToSql()

	if err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx, query, args...)

	if GetPgxConstraintName(err) == ChatListPrimaryKey {
		return ErrEntryIDTaken
	} else if IsUniqueViolation(err) {
		return ErrEntryAlreadyExists
	} else if err != nil {
		return err
	}

	count, err := res.RowsAffected()
	if err != nil {
		return err
	}

	if count == 0 {
		return ErrEntryAlreadyExists
	}

	return nil
}

func (s *ChatListStorage) UpdateFields(ctx context.Context, id string, patch models.ChatListPatch) error {
	if patch.IsEmpty() {
		return nil
	}

	builder := sq.Update(ChatListTable).
		Set("updated_at", time.Now().UTC()).
		Where(sq.Eq{"id": id}).
		PlaceholderFormat(sq.Dollar)

	if patch.TargetInfo != nil {
		builder = builder.Set("target_info", *patch.TargetInfo)
	}
	if patch.LastMessage != nil {
		builder = builder.Set("last_message", *patch.LastMessage)
	}
	if patch.UnreadCount != nil {
		if *patch.UnreadCount < 0 {
			return ErrNegativeUnread
		}
		builder = builder.Set("unread_count", *patch.UnreadCount)
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return err
	}

	return s.execExpectingRow(ctx, query, args)
}

// IncrementUnread bumps unread_count in a single statement, so concurrent
// deliveries to the same row never lose an increment.
func (s *ChatListStorage) IncrementUnread(ctx context.Context, ownerId, targetId string, t models.ChatListType, msg *models.Message) error {
	builder := sq.Update(ChatListTable).
		Set("unread_count", sq.Expr("unread_count + 1")).
		Set("updated_at", time.Now().UTC()).
		Where(sq.Eq{
			"owner_id":  ownerId,
			"target_id": targetId,
			"type":      string(t),
		}).
		PlaceholderFormat(sq.Dollar)

	if msg != nil {
		builder = builder.Set("last_message", *msg)
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return err
	}

	return s.execExpectingRow(ctx, query, args)
}

func (s *ChatListStorage) BulkUpdateLastMessageByType(ctx context.Context, t models.ChatListType, msg *models.Message, opts BulkUpdateOptions) (int64, error) {
	builder := sq.Update(ChatListTable).
		Set("last_message", msg).
		Set("updated_at", time.Now().UTC()).
		Where(sq.Eq{"type": string(t)}).
		PlaceholderFormat(sq.Dollar)

	if opts.IncrementUnread {
		builder = builder.Set("unread_count", sq.Expr(
			"CASE WHEN owner_id = ? THEN unread_count ELSE unread_count + 1 END",
			opts.ExceptOwner,
		))
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return 0, err
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}

	return res.RowsAffected()
}

func (s *ChatListStorage) LockConversation(ctx context.Context, firstId, secondId string, t models.ChatListType) error {
	query, args, err := sq.Select("id").
		From(ChatListTable).
		Where(sq.And{
			sq.Eq{"type": string(t)},
			sq.Or{
				sq.Eq{"owner_id": firstId, "target_id": secondId},
				sq.Eq{"owner_id": secondId, "target_id": firstId},
			},
		}).
		OrderBy("owner_id").
		Suffix("FOR UPDATE").
		PlaceholderFormat(sq.Dollar).
		ToSql()

	if err != nil {
		return err
	}

	ids := make([]string, 0, 2)
	return s.db.SelectContext(ctx, &ids, query, args...)
}

func (s *ChatListStorage) execExpectingRow(ctx context.Context, query string, args []interface{}) error {
	res, err := s.db.ExecContext(ctx, query, args...)

	if IsCheckViolation(err) {
		return ErrNegativeUnread
	} else if err != nil {
		return err
	}

	count, err := res.RowsAffected()
	if err != nil {
		return err
	}

	if count == 0 {
		return ErrEntryNotFound
	}

	return nil
}
