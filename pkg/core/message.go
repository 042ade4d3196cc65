package core

import "time"

// chatPeerBase is the offset added to peer ids of multi-user chats.
const chatPeerBase = 2_000_000_000

// MessageDTO is a message as returned by the remote API.
type MessageDTO struct {
	ID       int
	PeerID   int64
	FromID   int64
	CMID     int // conversation-scoped message id
	Date     int64
	Text     string
	Out      bool
	RandomID int64
	Payload  string // service payload, inspected by the key-exchange interceptor
}

// ChatID returns the chat id referenced by the message's peer,
// or false if the peer is a user or community dialog.
func (d *MessageDTO) ChatID() (int64, bool) {
	if d.PeerID >= chatPeerBase {
		return d.PeerID - chatPeerBase, true
	}
	return 0, false
}

// BackupFragment is the partial shape of a message known from a push
// notification or long-poll event before the full DTO has been fetched.
type BackupFragment struct {
	MessageID int
	PeerID    int64
	CMID      int
	Text      string
}

// UpdateFragment is one raw record from the push/long-poll feed describing
// a single message. Exactly one of Full or Backup is set.
type UpdateFragment struct {
	Full   *MessageDTO
	Backup *BackupFragment
}

// MessageID returns the message id regardless of fragment shape.
func (f UpdateFragment) MessageID() int {
	if f.Full != nil {
		return f.Full.ID
	}
	if f.Backup != nil {
		return f.Backup.MessageID
	}
	return 0
}

// PeerID returns the peer id regardless of fragment shape.
func (f UpdateFragment) PeerID() int64 {
	if f.Full != nil {
		return f.Full.PeerID
	}
	if f.Backup != nil {
		return f.Backup.PeerID
	}
	return 0
}

// ChatDTO is a multi-user chat as returned by the remote API.
type ChatDTO struct {
	ID      int64
	Title   string
	AdminID int64
}

// Message is a fully hydrated, locally persisted message.
type Message struct {
	ID       int
	PeerID   int64
	SenderID int64
	CMID     int
	Text     string
	SentAt   time.Time
	Out      bool
}

// ResultEntry is the per-message outcome inside a BatchResult.
type ResultEntry struct {
	MessageID     int
	AlreadyExists bool
	Dropped       bool // removed from the visible set by the key-exchange interceptor
	DTO           *MessageDTO
	Backup        *BackupFragment
	Message       *Message
}

// BatchResult is the consolidated outcome of one hydration job,
// handed to result subscribers. It is not persisted.
type BatchResult struct {
	AccountID  int64
	JobID      int64
	Entries    []*ResultEntry
	DeletedIDs []int // set only for deletion-notice jobs
}

// Entry returns the entry for a message id, or nil.
func (r *BatchResult) Entry(messageID int) *ResultEntry {
	for _, e := range r.Entries {
		if e.MessageID == messageID {
			return e
		}
	}
	return nil
}
