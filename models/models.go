package models

import "time"

// Avatar kinds. Emoji avatars carry the emoji itself in Avatar,
// image avatars carry an upload reference.
const (
	AvatarEmoji = "emoji"
	AvatarImage = "image"
)

// Message types.
const (
	MessageText  = "text"
	MessageImage = "image"
)

type User struct {
	ID         string    `json:"id"`
	Username   string    `json:"username"`
	Email      string    `json:"email"`
	Password   string    `json:"-"` // bcrypt hash
	Avatar     string    `json:"avatar,omitempty"`
	AvatarType string    `json:"avatarType,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
}

// Message is immutable once stored, except IsRead which only ever
// flips false -> true.
type Message struct {
	ID          string    `json:"id"`
	SenderID    string    `json:"senderId"`
	ReceiverID  string    `json:"receiverId"`
	Content     string    `json:"content,omitempty"`
	FileURL     string    `json:"fileUrl,omitempty"`
	MessageType string    `json:"messageType"`
	CreatedAt   time.Time `json:"createdAt"`
	IsRead      bool      `json:"isRead"`
}

// Type selects the message type; a file reference wins over text content.
func (m Message) Type() string {
	if m.FileURL != "" {
		return MessageImage
	}
	return MessageText
}

// RecentContact is a counterpart user annotated with the latest message
// exchanged with them.
type RecentContact struct {
	User
	LastMessage     string    `json:"lastMessage"`
	MessageType     string    `json:"messageType"`
	LastMessageTime time.Time `json:"lastMessageTime"`
	IsOnline        bool      `json:"isOnline"`
}
