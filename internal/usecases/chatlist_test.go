package usecases

import (
	"context"
	"fmt"
	"github.com/practice-sem-2/chatlist-service/internal/models"
	storage "github.com/practice-sem-2/chatlist-service/internal/storages"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"sync"
	"testing"
)

type ChatListUsecaseTestSuite struct {
	suite.Suite
	registry *storage.MemoryRegistry
	updates  *recordedUpdates
	usecase  *ChatListUsecase
}

func (s *ChatListUsecaseTestSuite) SetupTest() {
	s.registry, s.updates = newTestRegistry("u1", "u2", "u3")
	s.usecase = NewChatListUsecase(s.registry, ChatListConfig{})
}

func TestChatListUsecaseTestSuite(t *testing.T) {
	suite.Run(t, &ChatListUsecaseTestSuite{})
}

func (s *ChatListUsecaseTestSuite) entry(owner, target string, t models.ChatListType) *models.ChatListEntry {
	entry, err := s.registry.GetChatListStore().FindByOwnerAndTarget(context.Background(), owner, target, t)
	require.NoError(s.T(), err, "entry %s -> %s should exist", owner, target)
	return entry
}

func (s *ChatListUsecaseTestSuite) assertNoEntry(owner, target string, t models.ChatListType) {
	_, err := s.registry.GetChatListStore().FindByOwnerAndTarget(context.Background(), owner, target, t)
	assert.ErrorIs(s.T(), err, storage.ErrEntryNotFound, "entry %s -> %s should not exist", owner, target)
}

func message(id, text string) models.Message {
	return models.Message{ID: id, Text: text}
}

func (s *ChatListUsecaseTestSuite) Test_CreateOrGetPrivate_Idempotent() {
	ctx := context.Background()

	first, err := s.usecase.CreateOrGetPrivate(ctx, "u1", "u2")
	require.NoError(s.T(), err)
	assert.Equal(s.T(), "u1", first.OwnerID)
	assert.Equal(s.T(), "u2", first.TargetID)
	assert.Equal(s.T(), models.ChatListPrivate, first.Type)
	assert.Equal(s.T(), "name of u2", first.TargetInfo.Name)
	assert.Equal(s.T(), 0, first.UnreadCount)
	assert.Nil(s.T(), first.LastMessage)

	second, err := s.usecase.CreateOrGetPrivate(ctx, "u1", "u2")
	require.NoError(s.T(), err)
	assert.Equal(s.T(), first.ID, second.ID, "second call should return the same entry")

	entries, err := s.usecase.ListPrivate(ctx, "u1")
	require.NoError(s.T(), err)
	assert.Len(s.T(), entries, 1)
	s.assertNoEntry("u2", "u1", models.ChatListPrivate)
}

func (s *ChatListUsecaseTestSuite) Test_CreateOrGetPrivate_Concurrent() {
	ctx := context.Background()

	const n = 20
	ids := make([]string, n)
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func(i int) {
			defer wg.Done()
			entry, err := s.usecase.CreateOrGetPrivate(ctx, "u1", "u2")
			if assert.NoError(s.T(), err) {
				ids[i] = entry.ID
			}
		}(i)
	}
	wg.Wait()

	for _, id := range ids {
		assert.Equal(s.T(), ids[0], id)
	}
	entries, err := s.usecase.ListPrivate(ctx, "u1")
	require.NoError(s.T(), err)
	assert.Len(s.T(), entries, 1)
}

func (s *ChatListUsecaseTestSuite) Test_CreateOrGetPrivate_RejectsSelf() {
	_, err := s.usecase.CreateOrGetPrivate(context.Background(), "u1", "u1")
	assert.ErrorIs(s.T(), err, ErrSelfConversation)
	assert.ErrorIs(s.T(), err, ErrInvalidArgument)
	s.assertNoEntry("u1", "u1", models.ChatListPrivate)
}

func (s *ChatListUsecaseTestSuite) Test_CreateOrGetPrivate_MalformedIDs() {
	ctx := context.Background()

	_, err := s.usecase.CreateOrGetPrivate(ctx, "", "u2")
	assert.ErrorIs(s.T(), err, ErrInvalidArgument)

	_, err = s.usecase.CreateOrGetPrivate(ctx, "u1", "bad\nid")
	assert.ErrorIs(s.T(), err, ErrMalformedID)
}

func (s *ChatListUsecaseTestSuite) Test_CreateOrGetPrivate_UnknownTarget() {
	_, err := s.usecase.CreateOrGetPrivate(context.Background(), "u1", "nobody")
	assert.ErrorIs(s.T(), err, ErrNotFound)

	entries, err := s.usecase.ListPrivate(context.Background(), "u1")
	require.NoError(s.T(), err)
	assert.Empty(s.T(), entries, "nothing should be written")
}

func (s *ChatListUsecaseTestSuite) Test_CreateOrGetPrivate_ReverseEntry() {
	ctx := context.Background()
	reverse, err := s.usecase.CreateOrGetPrivate(ctx, "u2", "u1")
	require.NoError(s.T(), err)

	own, err := s.usecase.CreateOrGetPrivate(ctx, "u1", "u2")
	require.NoError(s.T(), err)
	assert.NotEqual(s.T(), reverse.ID, own.ID, "owner gets a row of its own by default")
	assert.Equal(s.T(), "u1", own.OwnerID)
}

func (s *ChatListUsecaseTestSuite) Test_CreateOrGetPrivate_ReuseReverseEntry() {
	ctx := context.Background()
	u := NewChatListUsecase(s.registry, ChatListConfig{ReuseReverseEntry: true})

	reverse, err := u.CreateOrGetPrivate(ctx, "u2", "u1")
	require.NoError(s.T(), err)

	found, err := u.CreateOrGetPrivate(ctx, "u1", "u2")
	require.NoError(s.T(), err)
	assert.Equal(s.T(), reverse.ID, found.ID)
	s.assertNoEntry("u1", "u2", models.ChatListPrivate)
}

func (s *ChatListUsecaseTestSuite) Test_GetOrCreateGroup_Singleton() {
	ctx := context.Background()

	const n = 20
	ids := make([]string, n)
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func(i int) {
			defer wg.Done()
			entry, err := s.usecase.GetOrCreateGroup(ctx, "u1")
			if assert.NoError(s.T(), err) {
				ids[i] = entry.ID
			}
		}(i)
	}
	wg.Wait()

	for _, id := range ids {
		assert.Equal(s.T(), ids[0], id, "every caller should see the same group entry")
	}

	entries, err := s.registry.GetChatListStore().FindByOwner(ctx, "u1", models.ChatListGroup)
	require.NoError(s.T(), err)
	require.Len(s.T(), entries, 1)
	assert.Equal(s.T(), DefaultGroupID, entries[0].TargetID)
	assert.Equal(s.T(), "General", entries[0].TargetInfo.Name)
}

func (s *ChatListUsecaseTestSuite) Test_GetOrCreateGroup_UnknownGroup() {
	u := NewChatListUsecase(s.registry, ChatListConfig{GroupID: "missing"})
	_, err := u.GetOrCreateGroup(context.Background(), "u1")
	assert.ErrorIs(s.T(), err, ErrNotFound)
}

func (s *ChatListUsecaseTestSuite) Test_ListPrivate_Empty() {
	entries, err := s.usecase.ListPrivate(context.Background(), "u3")
	require.NoError(s.T(), err)
	assert.NotNil(s.T(), entries)
	assert.Empty(s.T(), entries)
}

func (s *ChatListUsecaseTestSuite) Test_OnPrivateMessage_FirstMessage() {
	ctx := context.Background()

	err := s.usecase.OnPrivateMessage(ctx, "u1", "u2", message("m1", "hi"))
	require.NoError(s.T(), err)

	entry := s.entry("u2", "u1", models.ChatListPrivate)
	assert.Equal(s.T(), 1, entry.UnreadCount)
	require.NotNil(s.T(), entry.LastMessage)
	assert.Equal(s.T(), "hi", entry.LastMessage.Text)
	assert.Equal(s.T(), "u1", entry.LastMessage.FromID)
	assert.Equal(s.T(), "u2", entry.LastMessage.ToID)
	assert.Equal(s.T(), "name of u1", entry.TargetInfo.Name)

	s.assertNoEntry("u1", "u2", models.ChatListPrivate)
	assert.Equal(s.T(), []string{"u2"}, s.updates.chatOwners())
}

func (s *ChatListUsecaseTestSuite) Test_OnPrivateMessage_CountsUnread() {
	ctx := context.Background()

	const k = 5
	for i := 0; i < k; i++ {
		err := s.usecase.OnPrivateMessage(ctx, "u1", "u2", message(fmt.Sprintf("m%d", i), fmt.Sprintf("text %d", i)))
		require.NoError(s.T(), err)
	}

	entry := s.entry("u2", "u1", models.ChatListPrivate)
	assert.Equal(s.T(), k, entry.UnreadCount)
	assert.Equal(s.T(), fmt.Sprintf("text %d", k-1), entry.LastMessage.Text)
}

func (s *ChatListUsecaseTestSuite) Test_OnPrivateMessage_ConcurrentUnread() {
	ctx := context.Background()

	const n = 100
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func(i int) {
			defer wg.Done()
			err := s.usecase.OnPrivateMessage(ctx, "u1", "u2", message(fmt.Sprintf("m%d", i), "ping"))
			assert.NoError(s.T(), err)
		}(i)
	}
	wg.Wait()

	assert.Equal(s.T(), n, s.entry("u2", "u1", models.ChatListPrivate).UnreadCount, "no increment should be lost")
}

func (s *ChatListUsecaseTestSuite) Test_OnPrivateMessage_UpdatesSenderMirror() {
	ctx := context.Background()

	mirror, err := s.usecase.CreateOrGetPrivate(ctx, "u1", "u2")
	require.NoError(s.T(), err)

	err = s.usecase.OnPrivateMessage(ctx, "u1", "u2", message("m1", "hello"))
	require.NoError(s.T(), err)

	updated := s.entry("u1", "u2", models.ChatListPrivate)
	assert.Equal(s.T(), mirror.ID, updated.ID)
	require.NotNil(s.T(), updated.LastMessage)
	assert.Equal(s.T(), "hello", updated.LastMessage.Text)
	assert.Equal(s.T(), 0, updated.UnreadCount, "sender's own messages are not unread")

	assert.Equal(s.T(), 1, s.entry("u2", "u1", models.ChatListPrivate).UnreadCount)
	assert.Equal(s.T(), []string{"u2", "u1"}, s.updates.chatOwners())
}

func (s *ChatListUsecaseTestSuite) Test_OnPrivateMessage_ExistingRecipientEntry() {
	ctx := context.Background()

	existing, err := s.usecase.CreateOrGetPrivate(ctx, "u2", "u1")
	require.NoError(s.T(), err)

	require.NoError(s.T(), s.usecase.OnPrivateMessage(ctx, "u1", "u2", message("m1", "hi")))

	entry := s.entry("u2", "u1", models.ChatListPrivate)
	assert.Equal(s.T(), existing.ID, entry.ID)
	assert.Equal(s.T(), 1, entry.UnreadCount)
}

func (s *ChatListUsecaseTestSuite) Test_OnPrivateMessage_UnknownSender() {
	err := s.usecase.OnPrivateMessage(context.Background(), "nobody", "u2", message("m1", "hi"))
	assert.ErrorIs(s.T(), err, ErrNotFound)

	s.assertNoEntry("u2", "nobody", models.ChatListPrivate)
	assert.Empty(s.T(), s.updates.chatOwners(), "failed delivery should not be published")
}

func (s *ChatListUsecaseTestSuite) Test_OnPrivateMessage_InvalidArguments() {
	ctx := context.Background()

	err := s.usecase.OnPrivateMessage(ctx, "u1", "u1", message("m1", "hi"))
	assert.ErrorIs(s.T(), err, ErrSelfConversation)

	err = s.usecase.OnPrivateMessage(ctx, "u1", "u2", message("", "no id"))
	assert.ErrorIs(s.T(), err, ErrMalformedMessage)

	msg := message("m1", "hi")
	msg.ToID = "u3"
	err = s.usecase.OnPrivateMessage(ctx, "u1", "u2", msg)
	assert.ErrorIs(s.T(), err, ErrInvalidArgument)

	s.assertNoEntry("u2", "u1", models.ChatListPrivate)
}

func (s *ChatListUsecaseTestSuite) Test_OnGroupMessage() {
	ctx := context.Background()

	for _, user := range []string{"u1", "u2", "u3"} {
		_, err := s.usecase.GetOrCreateGroup(ctx, user)
		require.NoError(s.T(), err)
	}
	_, err := s.usecase.CreateOrGetPrivate(ctx, "u1", "u2")
	require.NoError(s.T(), err)

	msg := message("g1", "hello all")
	msg.FromID = "u1"
	require.NoError(s.T(), s.usecase.OnGroupMessage(ctx, msg))

	for _, user := range []string{"u1", "u2", "u3"} {
		entry := s.entry(user, DefaultGroupID, models.ChatListGroup)
		require.NotNil(s.T(), entry.LastMessage)
		assert.Equal(s.T(), "hello all", entry.LastMessage.Text)
		assert.Equal(s.T(), models.MessageGroup, entry.LastMessage.Type)
		assert.Equal(s.T(), 0, entry.UnreadCount, "group unread is off by default")
	}
	assert.Nil(s.T(), s.entry("u1", "u2", models.ChatListPrivate).LastMessage)

	s.updates.mu.Lock()
	defer s.updates.mu.Unlock()
	require.Len(s.T(), s.updates.chats, 1)
	assert.Equal(s.T(), models.ChatListGroup, s.updates.chats[0].Type)
	assert.Equal(s.T(), DefaultGroupID, s.updates.chats[0].TargetID)
}

func (s *ChatListUsecaseTestSuite) Test_OnGroupMessage_GroupUnread() {
	ctx := context.Background()
	u := NewChatListUsecase(s.registry, ChatListConfig{GroupUnread: true})

	for _, user := range []string{"u1", "u2", "u3"} {
		_, err := u.GetOrCreateGroup(ctx, user)
		require.NoError(s.T(), err)
	}

	msg := message("g1", "hello all")
	msg.FromID = "u1"
	require.NoError(s.T(), u.OnGroupMessage(ctx, msg))
	require.NoError(s.T(), u.OnGroupMessage(ctx, msg))

	assert.Equal(s.T(), 0, s.entry("u1", DefaultGroupID, models.ChatListGroup).UnreadCount)
	assert.Equal(s.T(), 2, s.entry("u2", DefaultGroupID, models.ChatListGroup).UnreadCount)
	assert.Equal(s.T(), 2, s.entry("u3", DefaultGroupID, models.ChatListGroup).UnreadCount)
}

func (s *ChatListUsecaseTestSuite) Test_OnGroupMessage_NoEntries() {
	msg := message("g1", "anyone?")
	msg.FromID = "u1"
	assert.NoError(s.T(), s.usecase.OnGroupMessage(context.Background(), msg))
}
