package storage

import (
	"context"
	"github.com/practice-sem-2/chatlist-service/internal/models"
	"sync"
	"time"
)

// MemoryRegistry keeps everything in process. Atomic calls are serialized and
// roll the chat list back when fn fails; writes made outside Atomic are not
// isolated from a concurrent rollback.
type MemoryRegistry struct {
	txMu      sync.Mutex
	store     *MemoryChatListStore
	directory *MemoryDirectory
	updates   UpdatesStore
}

func NewMemoryRegistry(directory *MemoryDirectory, updates UpdatesStore) *MemoryRegistry {
	if directory == nil {
		directory = NewMemoryDirectory()
	}
	if updates == nil {
		updates = NopUpdatesStore{}
	}
	return &MemoryRegistry{
		store:     NewMemoryChatListStore(),
		directory: directory,
		updates:   updates,
	}
}

func (r *MemoryRegistry) Atomic(ctx context.Context, fn AtomicFunc) (err error) {
	if err = ctx.Err(); err != nil {
		return err
	}

	r.txMu.Lock()
	defer r.txMu.Unlock()

	snapshot := r.store.snapshot()
	defer func() {
		if p := recover(); p != nil {
			r.store.restore(snapshot)
			panic(p)
		}
		if err != nil {
			r.store.restore(snapshot)
		}
	}()

	err = fn(r)
	return err
}

func (r *MemoryRegistry) GetChatListStore() ChatListStore {
	return r.store
}

func (r *MemoryRegistry) GetDirectoryStore() DirectoryStore {
	return r.directory
}

func (r *MemoryRegistry) GetUpdatesStore() UpdatesStore {
	return r.updates
}

type entryKey struct {
	owner  string
	target string
	typ    models.ChatListType
}

type memoryState struct {
	rows  []*models.ChatListEntry
	byID  map[string]*models.ChatListEntry
	byKey map[entryKey]*models.ChatListEntry
}

type MemoryChatListStore struct {
	mu    sync.RWMutex
	state memoryState
}

func NewMemoryChatListStore() *MemoryChatListStore {
	return &MemoryChatListStore{
		state: memoryState{
			byID:  make(map[string]*models.ChatListEntry),
			byKey: make(map[entryKey]*models.ChatListEntry),
		},
	}
}

func (s *MemoryChatListStore) FindByOwnerAndTarget(ctx context.Context, ownerId, targetId string, t models.ChatListType) (*models.ChatListEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.state.byKey[entryKey{ownerId, targetId, t}]
	if !ok {
		return nil, ErrEntryNotFound
	}
	return entry.Clone(), nil
}

func (s *MemoryChatListStore) FindByOwner(ctx context.Context, ownerId string, t models.ChatListType) ([]models.ChatListEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := make([]models.ChatListEntry, 0)
	for _, entry := range s.state.rows {
		if entry.OwnerID == ownerId && entry.Type == t {
			entries = append(entries, *entry.Clone())
		}
	}
	return entries, nil
}

func (s *MemoryChatListStore) Insert(ctx context.Context, entry *models.ChatListEntry) error {
	if entry.UnreadCount < 0 {
		return ErrNegativeUnread
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := entryKey{entry.OwnerID, entry.TargetID, entry.Type}
	if _, ok := s.state.byKey[key]; ok {
		return ErrEntryAlreadyExists
	}
	if _, ok := s.state.byID[entry.ID]; ok {
		return ErrEntryIDTaken
	}

	stored := entry.Clone()
	s.state.rows = append(s.state.rows, stored)
	s.state.byID[stored.ID] = stored
	s.state.byKey[key] = stored
	return nil
}

func (s *MemoryChatListStore) UpdateFields(ctx context.Context, id string, patch models.ChatListPatch) error {
	if patch.IsEmpty() {
		return nil
	}
	if patch.UnreadCount != nil && *patch.UnreadCount < 0 {
		return ErrNegativeUnread
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.state.byID[id]
	if !ok {
		return ErrEntryNotFound
	}

	if patch.TargetInfo != nil {
		entry.TargetInfo = *patch.TargetInfo
	}
	if patch.LastMessage != nil {
		msg := *patch.LastMessage
		entry.LastMessage = &msg
	}
	if patch.UnreadCount != nil {
		entry.UnreadCount = *patch.UnreadCount
	}
	entry.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *MemoryChatListStore) IncrementUnread(ctx context.Context, ownerId, targetId string, t models.ChatListType, msg *models.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.state.byKey[entryKey{ownerId, targetId, t}]
	if !ok {
		return ErrEntryNotFound
	}

	entry.UnreadCount++
	if msg != nil {
		m := *msg
		entry.LastMessage = &m
	}
	entry.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *MemoryChatListStore) BulkUpdateLastMessageByType(ctx context.Context, t models.ChatListType, msg *models.Message, opts BulkUpdateOptions) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	var count int64
	for _, entry := range s.state.rows {
		if entry.Type != t {
			continue
		}
		if msg != nil {
			m := *msg
			entry.LastMessage = &m
		} else {
			entry.LastMessage = nil
		}
		if opts.IncrementUnread && entry.OwnerID != opts.ExceptOwner {
			entry.UnreadCount++
		}
		entry.UpdatedAt = now
		count++
	}
	return count, nil
}

// LockConversation is a no-op: MemoryRegistry.Atomic already runs one scope at a time.
func (s *MemoryChatListStore) LockConversation(ctx context.Context, firstId, secondId string, t models.ChatListType) error {
	return nil
}

func (s *MemoryChatListStore) snapshot() memoryState {
	s.mu.RLock()
	defer s.mu.RUnlock()

	copied := memoryState{
		rows:  make([]*models.ChatListEntry, 0, len(s.state.rows)),
		byID:  make(map[string]*models.ChatListEntry, len(s.state.byID)),
		byKey: make(map[entryKey]*models.ChatListEntry, len(s.state.byKey)),
	}
	for _, entry := range s.state.rows {
		c := entry.Clone()
		copied.rows = append(copied.rows, c)
		copied.byID[c.ID] = c
		copied.byKey[entryKey{c.OwnerID, c.TargetID, c.Type}] = c
	}
	return copied
}

func (s *MemoryChatListStore) restore(state memoryState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state
}

// MemoryDirectory is a DirectoryStore backed by maps.
type MemoryDirectory struct {
	mu     sync.RWMutex
	users  map[string]models.TargetInfo
	groups map[string]models.TargetInfo
}

func NewMemoryDirectory() *MemoryDirectory {
	return &MemoryDirectory{
		users:  make(map[string]models.TargetInfo),
		groups: make(map[string]models.TargetInfo),
	}
}

func (d *MemoryDirectory) PutUser(info models.TargetInfo) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.users[info.ID] = info
}

func (d *MemoryDirectory) PutGroup(info models.TargetInfo) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.groups[info.ID] = info
}

func (d *MemoryDirectory) GetUserByID(ctx context.Context, id string) (*models.TargetInfo, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	info, ok := d.users[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	return &info, nil
}

func (d *MemoryDirectory) GetGroupByID(ctx context.Context, id string) (*models.TargetInfo, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	info, ok := d.groups[id]
	if !ok {
		return nil, ErrGroupNotFound
	}
	return &info, nil
}
