package models

import "time"

const (
	MessageTypeText  = "text"
	MessageTypeImage = "image"
)

// Message is a direct message between two users.
type Message struct {
	ID          int       `db:"id" json:"id"`
	FromUserID  string    `db:"from_user_id" json:"from_user_id"`
	ToUserID    string    `db:"to_user_id" json:"to_user_id"`
	Text        string    `db:"text" json:"text"`
	MessageType string    `db:"message_type" json:"message_type"`
	MediaURL    string    `db:"media_url" json:"media_url"`
	Seen        bool      `db:"seen" json:"seen"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// HasMedia reports whether the message carries a media reference.
func (m Message) HasMedia() bool {
	return m.MediaURL != ""
}

// NewMessage is the input of a message insert.
type NewMessage struct {
	FromUserID  string
	ToUserID    string
	Text        string
	MessageType string
	MediaURL    string
}

// RecentMessage is a message with both participants populated.
type RecentMessage struct {
	Message
	FromUser UserProfile `json:"from_user"`
	ToUser   UserProfile `json:"to_user"`
}

// UnseenDigest counts unseen messages for one recipient.
type UnseenDigest struct {
	UserID   string `db:"to_user_id" json:"user_id"`
	FullName string `db:"full_name" json:"full_name"`
	Email    string `db:"email" json:"email"`
	Unseen   int    `db:"unseen" json:"unseen"`
}
