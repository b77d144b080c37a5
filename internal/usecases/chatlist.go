package usecases

import (
	"context"
	"errors"
	"fmt"
	"github.com/google/uuid"
	"github.com/practice-sem-2/chatlist-service/internal/models"
	storage "github.com/practice-sem-2/chatlist-service/internal/storages"
	"time"
)

var (
	ErrInvalidArgument  = errors.New("invalid argument")
	ErrSelfConversation = fmt.Errorf("%w: conversation with yourself is not allowed", ErrInvalidArgument)
	ErrMalformedID      = fmt.Errorf("%w: malformed identifier", ErrInvalidArgument)
	ErrMalformedMessage = fmt.Errorf("%w: malformed message", ErrInvalidArgument)
	ErrNotFound         = storage.ErrNotFound
)

const DefaultGroupID = "1"

type ChatListConfig struct {
	// GroupID is the target id every group entry points at.
	GroupID string
	// GroupUnread makes group messages increment unread counters of everyone but the sender.
	GroupUnread bool
	// ReuseReverseEntry lets CreateOrGetPrivate hand out the target's row for the
	// owner when the owner has none of its own.
	ReuseReverseEntry bool
}

type ChatListUsecase struct {
	registry storage.Registry
	cfg      ChatListConfig
	now      func() time.Time
}

func NewChatListUsecase(r storage.Registry, cfg ChatListConfig) *ChatListUsecase {
	if cfg.GroupID == "" {
		cfg.GroupID = DefaultGroupID
	}
	return &ChatListUsecase{
		registry: r,
		cfg:      cfg,
		now: func() time.Time {
			return time.Now().UTC()
		},
	}
}

func (u *ChatListUsecase) CreateOrGetPrivate(ctx context.Context, ownerId, targetId string) (*models.ChatListEntry, error) {
	if err := validateIDs(ownerId, targetId); err != nil {
		return nil, err
	}
	if ownerId == targetId {
		return nil, ErrSelfConversation
	}

	var entry *models.ChatListEntry
	err := u.registry.Atomic(ctx, func(r storage.Registry) error {
		store := r.GetChatListStore()

		found, err := u.findConversation(ctx, store, ownerId, targetId)
		if err == nil {
			entry = found
			return nil
		} else if !errors.Is(err, storage.ErrEntryNotFound) {
			return err
		}

		info, err := r.GetDirectoryStore().GetUserByID(ctx, targetId)
		if err != nil {
			return err
		}

		entry, err = insertOrGet(ctx, store, u.newEntry(ownerId, targetId, models.ChatListPrivate, *info))
		return err
	})

	if err != nil {
		return nil, err
	}
	return entry, nil
}

func (u *ChatListUsecase) findConversation(ctx context.Context, store storage.ChatListStore, ownerId, targetId string) (*models.ChatListEntry, error) {
	entry, err := store.FindByOwnerAndTarget(ctx, ownerId, targetId, models.ChatListPrivate)
	if err == nil || !errors.Is(err, storage.ErrEntryNotFound) || !u.cfg.ReuseReverseEntry {
		return entry, err
	}
	return store.FindByOwnerAndTarget(ctx, targetId, ownerId, models.ChatListPrivate)
}

func (u *ChatListUsecase) GetOrCreateGroup(ctx context.Context, ownerId string) (*models.ChatListEntry, error) {
	if err := validateIDs(ownerId); err != nil {
		return nil, err
	}

	var entry *models.ChatListEntry
	err := u.registry.Atomic(ctx, func(r storage.Registry) error {
		store := r.GetChatListStore()

		found, err := store.FindByOwnerAndTarget(ctx, ownerId, u.cfg.GroupID, models.ChatListGroup)
		if err == nil {
			entry = found
			return nil
		} else if !errors.Is(err, storage.ErrEntryNotFound) {
			return err
		}

		info, err := r.GetDirectoryStore().GetGroupByID(ctx, u.cfg.GroupID)
		if err != nil {
			return err
		}

		entry, err = insertOrGet(ctx, store, u.newEntry(ownerId, u.cfg.GroupID, models.ChatListGroup, *info))
		return err
	})

	if err != nil {
		return nil, err
	}
	return entry, nil
}

func (u *ChatListUsecase) ListPrivate(ctx context.Context, ownerId string) ([]models.ChatListEntry, error) {
	if err := validateIDs(ownerId); err != nil {
		return nil, err
	}
	return u.registry.GetChatListStore().FindByOwner(ctx, ownerId, models.ChatListPrivate)
}

// OnPrivateMessage updates both sides of a private conversation. The recipient's
// row is created on first delivery; the sender's row is only refreshed if it
// already exists.
func (u *ChatListUsecase) OnPrivateMessage(ctx context.Context, senderId, recipientId string, msg models.Message) error {
	if err := validateIDs(senderId, recipientId); err != nil {
		return err
	}
	if senderId == recipientId {
		return ErrSelfConversation
	}

	if msg.FromID == "" {
		msg.FromID = senderId
	}
	if msg.ToID == "" {
		msg.ToID = recipientId
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = u.now()
	}
	msg.Type = models.MessagePrivate
	if err := validateMessage(&msg); err != nil {
		return err
	}
	if msg.FromID != senderId || msg.ToID != recipientId {
		return fmt.Errorf("%w: message addressed to another conversation", ErrMalformedMessage)
	}

	return u.registry.Atomic(ctx, func(r storage.Registry) error {
		store := r.GetChatListStore()
		updates := r.GetUpdatesStore()

		// Messages in opposite directions touch the same two rows.
		err := store.LockConversation(ctx, senderId, recipientId, models.ChatListPrivate)
		if err != nil {
			return err
		}

		err = store.IncrementUnread(ctx, recipientId, senderId, models.ChatListPrivate, &msg)
		if errors.Is(err, storage.ErrEntryNotFound) {
			err = u.createRecipientEntry(ctx, r, recipientId, senderId, &msg)
		}
		if err != nil {
			return err
		}

		err = updates.ChatListUpdated(u.privateUpdate(recipientId, senderId, &msg))
		if err != nil {
			return err
		}

		mirror, err := store.FindByOwnerAndTarget(ctx, senderId, recipientId, models.ChatListPrivate)
		if errors.Is(err, storage.ErrEntryNotFound) {
			return nil
		} else if err != nil {
			return err
		}

		err = store.UpdateFields(ctx, mirror.ID, models.ChatListPatch{LastMessage: &msg})
		if err != nil {
			return err
		}

		return updates.ChatListUpdated(u.privateUpdate(senderId, recipientId, &msg))
	})
}

func (u *ChatListUsecase) createRecipientEntry(ctx context.Context, r storage.Registry, recipientId, senderId string, msg *models.Message) error {
	info, err := r.GetDirectoryStore().GetUserByID(ctx, senderId)
	if err != nil {
		return err
	}

	entry := u.newEntry(recipientId, senderId, models.ChatListPrivate, *info)
	entry.UnreadCount = 1
	entry.LastMessage = msg

	store := r.GetChatListStore()
	err = store.Insert(ctx, entry)
	if errors.Is(err, storage.ErrEntryAlreadyExists) {
		// Someone created the row in between, count this message on it.
		return store.IncrementUnread(ctx, recipientId, senderId, models.ChatListPrivate, msg)
	}
	return err
}

func (u *ChatListUsecase) OnGroupMessage(ctx context.Context, msg models.Message) error {
	if msg.ToID == "" {
		msg.ToID = u.cfg.GroupID
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = u.now()
	}
	msg.Type = models.MessageGroup
	if err := validateMessage(&msg); err != nil {
		return err
	}

	return u.registry.Atomic(ctx, func(r storage.Registry) error {
		_, err := r.GetChatListStore().BulkUpdateLastMessageByType(ctx, models.ChatListGroup, &msg, storage.BulkUpdateOptions{
			IncrementUnread: u.cfg.GroupUnread,
			ExceptOwner:     msg.FromID,
		})
		if err != nil {
			return err
		}

		return r.GetUpdatesStore().ChatListUpdated(&models.ChatListUpdated{
			UpdateMeta: models.UpdateMeta{
				Timestamp: msg.CreatedAt,
			},
			TargetID: u.cfg.GroupID,
			Type:     models.ChatListGroup,
			Message:  &msg,
		})
	})
}

func (u *ChatListUsecase) newEntry(ownerId, targetId string, t models.ChatListType, info models.TargetInfo) *models.ChatListEntry {
	now := u.now()
	return &models.ChatListEntry{
		ID:         uuid.NewString(),
		OwnerID:    ownerId,
		TargetID:   targetId,
		Type:       t,
		TargetInfo: info,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

func (u *ChatListUsecase) privateUpdate(ownerId, targetId string, msg *models.Message) *models.ChatListUpdated {
	return &models.ChatListUpdated{
		UpdateMeta: models.UpdateMeta{
			Timestamp: msg.CreatedAt,
			Audience:  []string{ownerId},
		},
		OwnerID:  ownerId,
		TargetID: targetId,
		Type:     models.ChatListPrivate,
		Message:  msg,
	}
}

// insertOrGet treats a duplicate (owner, target, type) as success and returns the
// row that won.
func insertOrGet(ctx context.Context, store storage.ChatListStore, entry *models.ChatListEntry) (*models.ChatListEntry, error) {
	err := store.Insert(ctx, entry)
	if errors.Is(err, storage.ErrEntryAlreadyExists) {
		return store.FindByOwnerAndTarget(ctx, entry.OwnerID, entry.TargetID, entry.Type)
	} else if err != nil {
		return nil, err
	}
	return entry.Clone(), nil
}
