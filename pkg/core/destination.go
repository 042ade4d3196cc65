package core

import "fmt"

// Method identifies where an uploaded asset is ultimately attached.
type Method int

const (
	ToWall Method = iota + 1
	ToMessage
	ToAlbum
	ToProfilePhoto
	ToChatPhoto
	ToDocument
	ToVideo
	ToAudio
	ToStory
	RemotePlayAudio
)

func (m Method) String() string {
	switch m {
	case ToWall:
		return "wall"
	case ToMessage:
		return "message"
	case ToAlbum:
		return "album"
	case ToProfilePhoto:
		return "profile_photo"
	case ToChatPhoto:
		return "chat_photo"
	case ToDocument:
		return "document"
	case ToVideo:
		return "video"
	case ToAudio:
		return "audio"
	case ToStory:
		return "story"
	case RemotePlayAudio:
		return "remote_play_audio"
	default:
		return fmt.Sprintf("method(%d)", int(m))
	}
}

// Reusable reports whether server upload sessions for this method may be
// cached and reused. Per-item destinations get a fresh session every time.
func (m Method) Reusable() bool {
	switch m {
	case ToVideo, ToAudio, ToStory, RemotePlayAudio:
		return false
	default:
		return true
	}
}

// MediaKind is the sub-kind for composite destinations (message and wall
// attachments carry the media type alongside the method).
type MediaKind int

const (
	MediaNone MediaKind = iota
	MediaPhoto
	MediaDocument
	MediaAudio
	MediaVideo
)

func (k MediaKind) String() string {
	switch k {
	case MediaNone:
		return "none"
	case MediaPhoto:
		return "photo"
	case MediaDocument:
		return "document"
	case MediaAudio:
		return "audio"
	case MediaVideo:
		return "video"
	default:
		return fmt.Sprintf("media(%d)", int(k))
	}
}

// Destination identifies where an upload target resides.
//
// Which id fields are meaningful depends on Method: OwnerID is the owning
// user/community, ID is the album id for ToAlbum/ToChatPhoto and the peer id
// for ToMessage. Equality only considers the fields relevant to the method.
type Destination struct {
	Method  Method
	Media   MediaKind
	OwnerID int64
	ID      int64
}

// Equal reports destination equality, the basis for queue filtering and
// bulk cancellation.
func (d Destination) Equal(o Destination) bool {
	if d.Method != o.Method {
		return false
	}
	switch d.Method {
	case ToMessage, ToWall:
		return d.Media == o.Media && d.OwnerID == o.OwnerID && d.ID == o.ID
	case ToAlbum, ToChatPhoto:
		return d.OwnerID == o.OwnerID && d.ID == o.ID
	default:
		return d.OwnerID == o.OwnerID
	}
}

// SessionKey builds the composite key under which a server upload-session
// token is cached. Returns false for single-use methods.
func (d Destination) SessionKey(accountID int64) (string, bool) {
	if !d.Method.Reusable() {
		return "", false
	}
	return fmt.Sprintf("%d|%s|%d|%d", accountID, d.Method, d.OwnerID, d.ID), true
}

func (d Destination) String() string {
	if d.Media != MediaNone {
		return fmt.Sprintf("%s/%s owner=%d id=%d", d.Method, d.Media, d.OwnerID, d.ID)
	}
	return fmt.Sprintf("%s owner=%d id=%d", d.Method, d.OwnerID, d.ID)
}
