package domain

import "time"

type MessageID string

// Message is immutable once persisted except for the edit and soft-delete
// transitions. Deleted messages keep their id but drop out of history.
type Message struct {
	ID         MessageID
	ServerID   ServerID
	ChannelID  ChannelID
	Author     IdentityID
	AuthorName string
	Content    string
	Action     bool // emote ("/me") rendering
	ReplyTo    MessageID
	CreatedAt  time.Time
	EditedAt   *time.Time
	Deleted    bool
}
