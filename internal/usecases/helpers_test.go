package usecases

import (
	"github.com/practice-sem-2/chatlist-service/internal/models"
	storage "github.com/practice-sem-2/chatlist-service/internal/storages"
	"sync"
)

type recordedUpdates struct {
	mu       sync.Mutex
	chats    []models.ChatListUpdated
	presence []models.PresenceChanged
}

func (r *recordedUpdates) ChatListUpdated(upd *models.ChatListUpdated) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.chats = append(r.chats, *upd)
	return nil
}

func (r *recordedUpdates) PresenceChanged(upd *models.PresenceChanged) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.presence = append(r.presence, *upd)
	return nil
}

func (r *recordedUpdates) chatOwners() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	owners := make([]string, len(r.chats))
	for i, upd := range r.chats {
		owners[i] = upd.OwnerID
	}
	return owners
}

func (r *recordedUpdates) presenceTypes() []models.NotificationType {
	r.mu.Lock()
	defer r.mu.Unlock()
	types := make([]models.NotificationType, len(r.presence))
	for i, upd := range r.presence {
		types[i] = upd.Type
	}
	return types
}

func newTestRegistry(users ...string) (*storage.MemoryRegistry, *recordedUpdates) {
	directory := storage.NewMemoryDirectory()
	directory.PutGroup(models.TargetInfo{ID: DefaultGroupID, Name: "General"})
	for _, id := range users {
		directory.PutUser(models.TargetInfo{ID: id, Name: "name of " + id})
	}
	updates := &recordedUpdates{}
	return storage.NewMemoryRegistry(directory, updates), updates
}
