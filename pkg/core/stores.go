package core

import "context"

// MessageStore is the local message cache the hydration pipeline reads
// from and writes to. Implementations must be safe for concurrent use.
type MessageStore interface {
	// MissingMessages returns the subset of ids not present in the cache.
	MissingMessages(ctx context.Context, accountID int64, ids []int) ([]int, error)

	// FindCached returns fully hydrated messages for the given ids.
	// Ids absent from the cache are silently omitted.
	FindCached(ctx context.Context, accountID int64, ids []int) ([]*Message, error)

	// Insert upserts raw DTOs into the cache.
	Insert(ctx context.Context, accountID int64, dtos []*MessageDTO) error

	// Delete removes messages from the cache.
	Delete(ctx context.Context, accountID int64, ids []int) error
}

// OwnerStore is the local cache of users, communities, and chats referenced
// by messages.
type OwnerStore interface {
	MissingUsers(ctx context.Context, accountID int64, ids []int64) ([]int64, error)
	MissingCommunities(ctx context.Context, accountID int64, ids []int64) ([]int64, error)
	MissingChats(ctx context.Context, accountID int64, ids []int64) ([]int64, error)
	InsertChats(ctx context.Context, accountID int64, chats []*ChatDTO) error
}

// MessageAPI is the remote message endpoint.
type MessageAPI interface {
	GetByID(ctx context.Context, accountID int64, ids []int) ([]*MessageDTO, error)
	GetChats(ctx context.Context, accountID int64, ids []int64) ([]*ChatDTO, error)
}

// OwnerRefresher fetches and caches up-to-date user/community data.
// Fire-and-forget from the pipeline's perspective.
type OwnerRefresher interface {
	CacheActualOwners(ctx context.Context, accountID int64, userIDs, communityIDs []int64) error
}

// KeyExchangeInterceptor recognizes secure-messaging handshake messages.
// A true return means the message is protocol-internal and must be dropped
// from the visible set.
type KeyExchangeInterceptor interface {
	Intercept(ctx context.Context, accountID int64, dto *MessageDTO) (bool, error)
}

// NotificationPresenter surfaces a local push notification for a newly
// hydrated message.
type NotificationPresenter interface {
	NotifyAboutNewMessage(ctx context.Context, accountID int64, msg *Message)
}
