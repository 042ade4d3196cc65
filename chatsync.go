// Package chatsync provides a realtime message ingestion pipeline and an
// upload pipeline for chat clients, built on a shared single-worker job
// queue.
//
// This is the main package users should import. It re-exports the public
// types from the pkg/ packages for a clean API surface.
//
// Basic usage:
//
//	// Create storage and the hydration pipeline
//	db, _ := gorm.Open(sqlite.Open("cache.db"), &gorm.Config{})
//	store := chatsync.NewGormStore(db)
//	store.Migrate(context.Background())
//
//	pipeline := chatsync.NewHydrationPipeline(chatsync.HydrationDeps{
//	    Messages: store,
//	    Owners:   store,
//	    API:      api,
//	})
//
//	// Feed it long-poll fragments
//	pipeline.ProcessSingle(accountID, messageID, peerID, cmid, true)
//
//	// React to hydrated batches
//	results := pipeline.Results()
//	for r := range results {
//	    render(r)
//	}
package chatsync

import (
	"gorm.io/gorm"

	"github.com/ykurenkov/chatsync/pkg/core"
	"github.com/ykurenkov/chatsync/pkg/hydrate"
	"github.com/ykurenkov/chatsync/pkg/notify"
	"github.com/ykurenkov/chatsync/pkg/schedule"
	"github.com/ykurenkov/chatsync/pkg/security"
	"github.com/ykurenkov/chatsync/pkg/storage"
	"github.com/ykurenkov/chatsync/pkg/upload"
)

// Type aliases for the public API surface
type (
	// Status represents the current state of a queued job.
	Status = core.Status

	// UpdateFragment is one raw record from the push/long-poll feed.
	UpdateFragment = core.UpdateFragment

	// MessageDTO is a message as returned by the remote API.
	MessageDTO = core.MessageDTO

	// BackupFragment is the partial message shape known before a full fetch.
	BackupFragment = core.BackupFragment

	// Message is a fully hydrated, locally persisted message.
	Message = core.Message

	// ChatDTO is a multi-user chat as returned by the remote API.
	ChatDTO = core.ChatDTO

	// ResultEntry is the per-message outcome inside a BatchResult.
	ResultEntry = core.ResultEntry

	// BatchResult is the consolidated outcome of one hydration job.
	BatchResult = core.BatchResult

	// Method identifies where an uploaded asset is attached.
	Method = core.Method

	// MediaKind is the sub-kind for composite destinations.
	MediaKind = core.MediaKind

	// Destination identifies where an upload target resides.
	Destination = core.Destination

	// FileRef points at a local file selected for upload.
	FileRef = core.FileRef

	// UploadIntent is a request to transfer one file to a destination.
	UploadIntent = core.UploadIntent

	// UploadResult is the outcome of one successful upload.
	UploadResult = core.UploadResult

	// QueueContainsError is the duplicate-submission rejection.
	QueueContainsError = core.QueueContainsError

	// UnsupportedDestinationError is the strategy dispatch failure.
	UnsupportedDestinationError = core.UnsupportedDestinationError

	// MessageStore is the local message cache contract.
	MessageStore = core.MessageStore

	// OwnerStore is the local owner cache contract.
	OwnerStore = core.OwnerStore

	// MessageAPI is the remote message endpoint contract.
	MessageAPI = core.MessageAPI

	// OwnerRefresher fetches and caches up-to-date owner data.
	OwnerRefresher = core.OwnerRefresher

	// KeyExchangeInterceptor recognizes secure-messaging handshakes.
	KeyExchangeInterceptor = core.KeyExchangeInterceptor

	// NotificationPresenter surfaces local push notifications.
	NotificationPresenter = core.NotificationPresenter

	// HydrationPipeline is the realtime message hydration pipeline.
	HydrationPipeline = hydrate.Pipeline

	// HydrationDeps are the hydration pipeline's collaborators.
	HydrationDeps = hydrate.Deps

	// InterceptorRegistry maps interceptor ids to (account, peer) pairs.
	InterceptorRegistry = notify.Registry

	// UploadManager is the upload pipeline.
	UploadManager = upload.Manager

	// UploadJob is one admitted upload.
	UploadJob = upload.Job

	// Uploader is the per-destination upload strategy contract.
	Uploader = upload.Uploader

	// StrategyKey identifies one entry of the upload dispatch table.
	StrategyKey = upload.StrategyKey

	// StrategyTable maps destinations to uploaders.
	StrategyTable = upload.StrategyTable

	// SessionCache stores server upload-session tokens.
	SessionCache = upload.SessionCache

	// FailureReporter surfaces user-facing upload failures.
	FailureReporter = upload.FailureReporter

	// Progress is a sampled snapshot of the active upload's percentage.
	Progress = upload.Progress

	// Schedule defines when a recurring maintenance task runs next.
	Schedule = schedule.Schedule

	// GormStore implements MessageStore and OwnerStore using GORM.
	GormStore = storage.GormStore
)

// Status constants
const (
	StatusQueued = core.StatusQueued
	StatusActive = core.StatusActive
	StatusError  = core.StatusError
)

// Destination methods
const (
	ToWall          = core.ToWall
	ToMessage       = core.ToMessage
	ToAlbum         = core.ToAlbum
	ToProfilePhoto  = core.ToProfilePhoto
	ToChatPhoto     = core.ToChatPhoto
	ToDocument      = core.ToDocument
	ToVideo         = core.ToVideo
	ToAudio         = core.ToAudio
	ToStory         = core.ToStory
	RemotePlayAudio = core.RemotePlayAudio
)

// Media kinds
const (
	MediaNone     = core.MediaNone
	MediaPhoto    = core.MediaPhoto
	MediaDocument = core.MediaDocument
	MediaAudio    = core.MediaAudio
	MediaVideo    = core.MediaVideo
)

// Limits
const (
	MaxBatchFragments     = security.MaxBatchFragments
	MaxErrorMessageLength = security.MaxErrorMessageLength
	MaxFilePathLength     = security.MaxFilePathLength
)

// Error variables
var (
	ErrEmptyBatch      = core.ErrEmptyBatch
	ErrBatchTooLarge   = core.ErrBatchTooLarge
	ErrBlankFragment   = core.ErrBlankFragment
	ErrInvalidFileRef  = core.ErrInvalidFileRef
	ErrFilePathTooLong = core.ErrFilePathTooLong
)

// NewHydrationPipeline creates the realtime message hydration pipeline.
func NewHydrationPipeline(deps HydrationDeps, opts ...hydrate.Option) *HydrationPipeline {
	return hydrate.New(deps, opts...)
}

// NewUploadManager creates the upload pipeline over a fixed strategy table.
func NewUploadManager(strategies StrategyTable, opts ...upload.Option) *UploadManager {
	return upload.NewManager(strategies, opts...)
}

// NewInterceptorRegistry creates an empty notification interceptor registry.
func NewInterceptorRegistry() *InterceptorRegistry {
	return notify.NewRegistry()
}

// NewGormStore creates a new GORM-backed message and owner cache.
func NewGormStore(db *gorm.DB) *GormStore {
	return storage.NewGormStore(db)
}

// NewMemorySessionCache creates the default in-process session cache.
func NewMemorySessionCache() *upload.MemorySessionCache {
	return upload.NewMemorySessionCache()
}

// IsQueueContains reports whether err is a duplicate-submission rejection.
func IsQueueContains(err error) bool {
	return core.IsQueueContains(err)
}

// SanitizeErrorMessage truncates and sanitizes error messages for display.
func SanitizeErrorMessage(msg string) string {
	return security.SanitizeErrorMessage(msg)
}
