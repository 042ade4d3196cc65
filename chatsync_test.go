package chatsync_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	chatsync "github.com/ykurenkov/chatsync"
)

// setupTestStore creates an in-memory SQLite cache for use in tests.
func setupTestStore(t *testing.T) *chatsync.GormStore {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	store := chatsync.NewGormStore(db)
	require.NoError(t, store.Migrate(context.Background()))
	return store
}

type staticAPI struct{}

func (staticAPI) GetByID(_ context.Context, _ int64, ids []int) ([]*chatsync.MessageDTO, error) {
	dtos := make([]*chatsync.MessageDTO, 0, len(ids))
	for _, id := range ids {
		dtos = append(dtos, &chatsync.MessageDTO{ID: id, PeerID: 100, FromID: 100, Text: "fetched", Date: 1700000000})
	}
	return dtos, nil
}

func (staticAPI) GetChats(_ context.Context, _ int64, ids []int64) ([]*chatsync.ChatDTO, error) {
	chats := make([]*chatsync.ChatDTO, 0, len(ids))
	for _, id := range ids {
		chats = append(chats, &chatsync.ChatDTO{ID: id, Title: "chat"})
	}
	return chats, nil
}

func TestFacade_HydrationRoundTrip(t *testing.T) {
	store := setupTestStore(t)
	pipeline := chatsync.NewHydrationPipeline(chatsync.HydrationDeps{
		Messages: store,
		Owners:   store,
		API:      staticAPI{},
	})
	defer pipeline.Close()

	results := pipeline.Results()
	defer pipeline.Unsubscribe(results)

	_, err := pipeline.ProcessSingle(1, 1001, 100, 1, false)
	require.NoError(t, err)

	select {
	case r := <-results:
		require.Len(t, r.Entries, 1)
		require.NotNil(t, r.Entries[0].Message)
		assert.Equal(t, "fetched", r.Entries[0].Message.Text)
	case <-time.After(2 * time.Second):
		t.Fatal("no batch result")
	}

	// The message is in the cache now, so a duplicate push with
	// ignoreIfExists only acknowledges it.
	_, err = pipeline.ProcessSingle(1, 1001, 100, 1, true)
	require.NoError(t, err)
	select {
	case r := <-results:
		require.Len(t, r.Entries, 1)
		assert.True(t, r.Entries[0].AlreadyExists)
	case <-time.After(2 * time.Second):
		t.Fatal("no batch result")
	}
}

type nopUploader struct{}

func (nopUploader) Upload(_ context.Context, job *chatsync.UploadJob, _ string, progress func(pct int)) (*chatsync.UploadResult, error) {
	progress(100)
	return &chatsync.UploadResult{Object: job.File().Name}, nil
}

func TestFacade_UploadRoundTrip(t *testing.T) {
	manager := chatsync.NewUploadManager(chatsync.StrategyTable{
		{Method: chatsync.ToAlbum}: nopUploader{},
	})
	defer manager.Close()

	results := manager.ObserveResults()
	defer manager.Unsubscribe(results)

	dest := chatsync.Destination{Method: chatsync.ToAlbum, OwnerID: 10, ID: 77}
	jobs, err := manager.Enqueue([]chatsync.UploadIntent{{
		AccountID:   1,
		Destination: dest,
		File:        chatsync.FileRef{Path: "/tmp/a.jpg", Name: "a.jpg"},
	}})
	require.NoError(t, err)
	require.Len(t, jobs, 1)

	select {
	case r := <-results:
		assert.Equal(t, jobs[0].ID(), r.JobID)
		assert.Equal(t, "a.jpg", r.Object)
	case <-time.After(2 * time.Second):
		t.Fatal("no upload result")
	}
}

func TestFacade_InterceptorRegistry(t *testing.T) {
	reg := chatsync.NewInterceptorRegistry()
	reg.Register(1, 5, 100)
	assert.True(t, reg.Intercepted(5, 100))
	assert.False(t, reg.Intercepted(5, 200))
}

func TestFacade_Helpers(t *testing.T) {
	assert.False(t, chatsync.IsQueueContains(nil))
	assert.True(t, chatsync.IsQueueContains(&chatsync.QueueContainsError{MessageID: 1}))

	sanitized := chatsync.SanitizeErrorMessage("bad\x00input")
	assert.Equal(t, "badinput", sanitized)

	cache := chatsync.NewMemorySessionCache()
	require.NoError(t, cache.Put(context.Background(), "k", "v"))
	s, err := cache.Get(context.Background(), "k")
	require.NoError(t, err)
	assert.Equal(t, "v", s)
}
