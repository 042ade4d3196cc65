// Package storage provides the bundled GORM-backed implementations of the
// local message and owner caches.
package storage

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/ykurenkov/chatsync/pkg/core"
)

// MessageRecord is the persisted shape of a cached message.
type MessageRecord struct {
	AccountID int64  `gorm:"primaryKey;autoIncrement:false"`
	MessageID int    `gorm:"primaryKey;autoIncrement:false"`
	PeerID    int64  `gorm:"index"`
	SenderID  int64  `gorm:"index"`
	CMID      int    `gorm:"column:cmid"`
	Text      string `gorm:"type:text"`
	Date      int64
	Out       bool
	RandomID  int64
}

// UserRecord is a cached user profile.
type UserRecord struct {
	AccountID int64 `gorm:"primaryKey;autoIncrement:false"`
	UserID    int64 `gorm:"primaryKey;autoIncrement:false"`
	Name      string
}

// CommunityRecord is a cached community profile.
type CommunityRecord struct {
	AccountID   int64 `gorm:"primaryKey;autoIncrement:false"`
	CommunityID int64 `gorm:"primaryKey;autoIncrement:false"`
	Name        string
}

// ChatRecord is a cached multi-user chat.
type ChatRecord struct {
	AccountID int64 `gorm:"primaryKey;autoIncrement:false"`
	ChatID    int64 `gorm:"primaryKey;autoIncrement:false"`
	Title     string
	AdminID   int64
}

// GormStore implements core.MessageStore and core.OwnerStore using GORM.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore creates a new GORM-backed store.
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

// DB returns the underlying database handle.
func (s *GormStore) DB() *gorm.DB {
	return s.db
}

// Migrate creates the necessary tables.
func (s *GormStore) Migrate(ctx context.Context) error {
	return s.db.WithContext(ctx).AutoMigrate(
		&MessageRecord{},
		&UserRecord{},
		&CommunityRecord{},
		&ChatRecord{},
	)
}

// MissingMessages returns the subset of ids not present in the cache.
func (s *GormStore) MissingMessages(ctx context.Context, accountID int64, ids []int) ([]int, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var found []int
	err := s.db.WithContext(ctx).
		Model(&MessageRecord{}).
		Where("account_id = ?", accountID).
		Where("message_id IN ?", ids).
		Pluck("message_id", &found).Error
	if err != nil {
		return nil, err
	}
	return missingInt(ids, found), nil
}

// FindCached returns hydrated messages for the given ids; absent ids are
// omitted.
func (s *GormStore) FindCached(ctx context.Context, accountID int64, ids []int) ([]*core.Message, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var records []MessageRecord
	err := s.db.WithContext(ctx).
		Where("account_id = ?", accountID).
		Where("message_id IN ?", ids).
		Find(&records).Error
	if err != nil {
		return nil, err
	}
	messages := make([]*core.Message, 0, len(records))
	for _, r := range records {
		messages = append(messages, &core.Message{
			ID:       r.MessageID,
			PeerID:   r.PeerID,
			SenderID: r.SenderID,
			CMID:     r.CMID,
			Text:     r.Text,
			SentAt:   time.Unix(r.Date, 0),
			Out:      r.Out,
		})
	}
	return messages, nil
}

// Insert upserts raw DTOs into the cache.
func (s *GormStore) Insert(ctx context.Context, accountID int64, dtos []*core.MessageDTO) error {
	if len(dtos) == 0 {
		return nil
	}
	records := make([]MessageRecord, 0, len(dtos))
	for _, d := range dtos {
		records = append(records, MessageRecord{
			AccountID: accountID,
			MessageID: d.ID,
			PeerID:    d.PeerID,
			SenderID:  d.FromID,
			CMID:      d.CMID,
			Text:      d.Text,
			Date:      d.Date,
			Out:       d.Out,
			RandomID:  d.RandomID,
		})
	}
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(&records).Error
}

// Delete removes messages from the cache.
func (s *GormStore) Delete(ctx context.Context, accountID int64, ids []int) error {
	if len(ids) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).
		Where("account_id = ?", accountID).
		Where("message_id IN ?", ids).
		Delete(&MessageRecord{}).Error
}

// MissingUsers returns the subset of user ids absent from the cache.
func (s *GormStore) MissingUsers(ctx context.Context, accountID int64, ids []int64) ([]int64, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var found []int64
	err := s.db.WithContext(ctx).
		Model(&UserRecord{}).
		Where("account_id = ?", accountID).
		Where("user_id IN ?", ids).
		Pluck("user_id", &found).Error
	if err != nil {
		return nil, err
	}
	return missingInt64(ids, found), nil
}

// MissingCommunities returns the subset of community ids absent from the cache.
func (s *GormStore) MissingCommunities(ctx context.Context, accountID int64, ids []int64) ([]int64, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var found []int64
	err := s.db.WithContext(ctx).
		Model(&CommunityRecord{}).
		Where("account_id = ?", accountID).
		Where("community_id IN ?", ids).
		Pluck("community_id", &found).Error
	if err != nil {
		return nil, err
	}
	return missingInt64(ids, found), nil
}

// MissingChats returns the subset of chat ids absent from the cache.
func (s *GormStore) MissingChats(ctx context.Context, accountID int64, ids []int64) ([]int64, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var found []int64
	err := s.db.WithContext(ctx).
		Model(&ChatRecord{}).
		Where("account_id = ?", accountID).
		Where("chat_id IN ?", ids).
		Pluck("chat_id", &found).Error
	if err != nil {
		return nil, err
	}
	return missingInt64(ids, found), nil
}

// InsertChats upserts chats into the cache.
func (s *GormStore) InsertChats(ctx context.Context, accountID int64, chats []*core.ChatDTO) error {
	if len(chats) == 0 {
		return nil
	}
	records := make([]ChatRecord, 0, len(chats))
	for _, c := range chats {
		records = append(records, ChatRecord{
			AccountID: accountID,
			ChatID:    c.ID,
			Title:     c.Title,
			AdminID:   c.AdminID,
		})
	}
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(&records).Error
}

// InsertUsers upserts users, the write half of an owner refresh.
func (s *GormStore) InsertUsers(ctx context.Context, accountID int64, users []UserRecord) error {
	if len(users) == 0 {
		return nil
	}
	for i := range users {
		users[i].AccountID = accountID
	}
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(&users).Error
}

// InsertCommunities upserts communities, the write half of an owner refresh.
func (s *GormStore) InsertCommunities(ctx context.Context, accountID int64, communities []CommunityRecord) error {
	if len(communities) == 0 {
		return nil
	}
	for i := range communities {
		communities[i].AccountID = accountID
	}
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(&communities).Error
}

func missingInt(want, have []int) []int {
	haveSet := make(map[int]struct{}, len(have))
	for _, id := range have {
		haveSet[id] = struct{}{}
	}
	var missing []int
	for _, id := range want {
		if _, ok := haveSet[id]; !ok {
			missing = append(missing, id)
		}
	}
	return missing
}

func missingInt64(want, have []int64) []int64 {
	haveSet := make(map[int64]struct{}, len(have))
	for _, id := range have {
		haveSet[id] = struct{}{}
	}
	var missing []int64
	for _, id := range want {
		if _, ok := haveSet[id]; !ok {
			missing = append(missing, id)
		}
	}
	return missing
}
