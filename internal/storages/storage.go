package storage

import (
	"context"
	"database/sql"
	"fmt"
	"github.com/jmoiron/sqlx"
	"github.com/practice-sem-2/chatlist-service/internal/models"
)

type AtomicFunc func(Registry) error

type Registry interface {
	Atomic(ctx context.Context, fn AtomicFunc) error
	GetChatListStore() ChatListStore
	GetDirectoryStore() DirectoryStore
	GetUpdatesStore() UpdatesStore
}

// ChatListStore keeps per-owner chat list entries. Rows are unique on
// (owner_id, target_id, type).
type ChatListStore interface {
	FindByOwnerAndTarget(ctx context.Context, ownerId, targetId string, t models.ChatListType) (*models.ChatListEntry, error)
	FindByOwner(ctx context.Context, ownerId string, t models.ChatListType) ([]models.ChatListEntry, error)
	Insert(ctx context.Context, entry *models.ChatListEntry) error
	UpdateFields(ctx context.Context, id string, patch models.ChatListPatch) error
	IncrementUnread(ctx context.Context, ownerId, targetId string, t models.ChatListType, msg *models.Message) error
	BulkUpdateLastMessageByType(ctx context.Context, t models.ChatListType, msg *models.Message, opts BulkUpdateOptions) (int64, error)
	// LockConversation locks the existing rows of both directions of a
	// conversation until the surrounding transaction ends. Rows are locked in
	// owner order whatever the argument order is.
	LockConversation(ctx context.Context, firstId, secondId string, t models.ChatListType) error
}

type BulkUpdateOptions struct {
	// IncrementUnread bumps unread_count on every matched row except ExceptOwner's.
	IncrementUnread bool
	ExceptOwner     string
}

type DirectoryStore interface {
	GetUserByID(ctx context.Context, id string) (*models.TargetInfo, error)
	GetGroupByID(ctx context.Context, id string) (*models.TargetInfo, error)
}

type UpdatesStore interface {
	ChatListUpdated(upd *models.ChatListUpdated) error
	PresenceChanged(upd *models.PresenceChanged) error
}

type DefaultRegistry struct {
	db      *sqlx.DB
	scope   Scope
	updates UpdatesStore
}

type Scope interface {
	sqlx.QueryerContext
	sqlx.ExecerContext
	sqlx.Execer
	sqlx.Queryer
	Get(dest interface{}, query string, args ...interface{}) error
	GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	Select(dest interface{}, query string, args ...interface{}) error
	SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	NamedExec(query string, arg interface{}) (sql.Result, error)
	NamedExecContext(ctx context.Context, query string, arg interface{}) (sql.Result, error)
	NamedQuery(query string, arg interface{}) (*sqlx.Rows, error)
}

func NewRegistry(db *sqlx.DB, updates UpdatesStore) *DefaultRegistry {
	if updates == nil {
		updates = NopUpdatesStore{}
	}
	return &DefaultRegistry{
		db:      db,
		scope:   db,
		updates: updates,
	}
}

func (r *DefaultRegistry) Atomic(ctx context.Context, fn AtomicFunc) (err error) {
	tx, err := r.db.BeginTxx(ctx, &sql.TxOptions{})
	if err != nil {
		return err
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				err = fmt.Errorf("rollback caused by error: \"%v\" failed: %v", err, rbErr)
			}
		} else {
			err = tx.Commit()
		}
	}()

	storage := DefaultRegistry{
		db:      r.db,
		scope:   tx,
		updates: r.updates,
	}
	err = fn(&storage)
	return err
}

func (r *DefaultRegistry) GetChatListStore() ChatListStore {
	return NewChatListStorage(r.scope)
}

func (r *DefaultRegistry) GetDirectoryStore() DirectoryStore {
	return NewDirectoryStorage(r.scope)
}

func (r *DefaultRegistry) GetUpdatesStore() UpdatesStore {
	return r.updates
}
