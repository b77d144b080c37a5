package storage

import (
	"context"
	"database/sql"
	"errors"
	sq "github.com/Masterminds/squirrel"
	"github.com/practice-sem-2/chatlist-service/internal/models"
)

const (
	UsersTable  = "users"
	GroupsTable = "groups"
)

// DirectoryStorage reads user and group display info. The tables are owned by
// registration and group management; this service never writes them.
type DirectoryStorage struct {
	db Scope
}

func NewDirectoryStorage(db Scope) *DirectoryStorage {
	return &DirectoryStorage{
		db: db,
	}
}

func (s *DirectoryStorage) GetUserByID(ctx context.Context, id string) (*models.TargetInfo, error) {
	info, err := s.getInfo(ctx, UsersTable, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	return info, err
}

func (s *DirectoryStorage) GetGroupByID(ctx context.Context, id string) (*models.TargetInfo, error) {
	info, err := s.getInfo(ctx, GroupsTable, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrGroupNotFound
	}
	return info, err
}

func (s *DirectoryStorage) getInfo(ctx context.Context, table, id string) (*models.TargetInfo, error) {
	query, args, err := sq.Select("id", "name", "COALESCE(avatar, '') AS avatar").
		From(table).
		Where(sq.Eq{"id": id}).
		PlaceholderFormat(sq.Dollar).
		ToSql()

	if err != nil {
		return nil, err
	}

	info := models.TargetInfo{}
	if err = s.db.GetContext(ctx, &info, query, args...); err != nil {
		return nil, err
	}

	return &info, nil
}
