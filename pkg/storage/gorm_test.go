package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/ykurenkov/chatsync/pkg/core"
)

func newTestStore(t *testing.T) *GormStore {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	s := NewGormStore(db)
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

const account = int64(1)

func TestMessages_InsertFindDelete(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	missing, err := s.MissingMessages(ctx, account, []int{1, 2})
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, missing)

	require.NoError(t, s.Insert(ctx, account, []*core.MessageDTO{
		{ID: 1, PeerID: 100, FromID: 100, CMID: 11, Text: "hello", Date: 1700000000},
		{ID: 2, PeerID: 100, FromID: 100, CMID: 12, Text: "world", Date: 1700000001, Out: true},
	}))

	missing, err = s.MissingMessages(ctx, account, []int{1, 2, 3})
	require.NoError(t, err)
	assert.Equal(t, []int{3}, missing)

	messages, err := s.FindCached(ctx, account, []int{1, 2, 3})
	require.NoError(t, err)
	require.Len(t, messages, 2)
	byID := make(map[int]*core.Message, len(messages))
	for _, m := range messages {
		byID[m.ID] = m
	}
	require.Contains(t, byID, 1)
	require.Contains(t, byID, 2)
	assert.Equal(t, "hello", byID[1].Text)
	assert.Equal(t, int64(1700000000), byID[1].SentAt.Unix())
	assert.True(t, byID[2].Out)

	require.NoError(t, s.Delete(ctx, account, []int{1}))
	missing, err = s.MissingMessages(ctx, account, []int{1, 2})
	require.NoError(t, err)
	assert.Equal(t, []int{1}, missing)
}

func TestMessages_InsertIsUpsert(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, s.Insert(ctx, account, []*core.MessageDTO{{ID: 1, PeerID: 100, Text: "draft"}}))
	require.NoError(t, s.Insert(ctx, account, []*core.MessageDTO{{ID: 1, PeerID: 100, Text: "edited"}}))

	messages, err := s.FindCached(ctx, account, []int{1})
	require.NoError(t, err)
	require.Len(t, messages, 1)
	assert.Equal(t, "edited", messages[0].Text)
}

func TestMessages_ScopedByAccount(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, s.Insert(ctx, account, []*core.MessageDTO{{ID: 1, PeerID: 100, Text: "mine"}}))

	missing, err := s.MissingMessages(ctx, account+1, []int{1})
	require.NoError(t, err)
	assert.Equal(t, []int{1}, missing, "another account's cache is independent")

	messages, err := s.FindCached(ctx, account+1, []int{1})
	require.NoError(t, err)
	assert.Empty(t, messages)
}

func TestOwners_UsersAndCommunities(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	missing, err := s.MissingUsers(ctx, account, []int64{10, 20})
	require.NoError(t, err)
	assert.Equal(t, []int64{10, 20}, missing)

	require.NoError(t, s.InsertUsers(ctx, account, []UserRecord{{UserID: 10, Name: "alice"}}))
	missing, err = s.MissingUsers(ctx, account, []int64{10, 20})
	require.NoError(t, err)
	assert.Equal(t, []int64{20}, missing)

	require.NoError(t, s.InsertCommunities(ctx, account, []CommunityRecord{{CommunityID: 30, Name: "news"}}))
	missing, err = s.MissingCommunities(ctx, account, []int64{30, 40})
	require.NoError(t, err)
	assert.Equal(t, []int64{40}, missing)
}

func TestOwners_Chats(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	missing, err := s.MissingChats(ctx, account, []int64{123})
	require.NoError(t, err)
	assert.Equal(t, []int64{123}, missing)

	require.NoError(t, s.InsertChats(ctx, account, []*core.ChatDTO{{ID: 123, Title: "friends", AdminID: 10}}))
	missing, err = s.MissingChats(ctx, account, []int64{123})
	require.NoError(t, err)
	assert.Empty(t, missing)

	// Upsert replaces the title.
	require.NoError(t, s.InsertChats(ctx, account, []*core.ChatDTO{{ID: 123, Title: "renamed", AdminID: 10}}))
	var rec ChatRecord
	require.NoError(t, s.DB().Where("account_id = ? AND chat_id = ?", account, 123).First(&rec).Error)
	assert.Equal(t, "renamed", rec.Title)
}

func TestMissing_EmptyInput(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	missing, err := s.MissingMessages(ctx, account, nil)
	require.NoError(t, err)
	assert.Nil(t, missing)

	messages, err := s.FindCached(ctx, account, nil)
	require.NoError(t, err)
	assert.Nil(t, messages)

	require.NoError(t, s.Insert(ctx, account, nil))
	require.NoError(t, s.Delete(ctx, account, nil))
}
