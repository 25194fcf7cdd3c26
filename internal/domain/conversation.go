package domain

import "time"

// MessageType distinguishes plain text from file messages.
type MessageType string

const (
	MessageTypeText MessageType = "text"
	MessageTypeFile MessageType = "file"
)

// Conversation is a two-party chat thread, optionally scoped to a job.
type Conversation struct {
	ID                  string    `gorm:"type:text;primaryKey" json:"id"`
	Participant1Address string    `gorm:"column:participant1_address;type:text;not null;index:idx_conversations_p1" json:"participant1_address"`
	Participant2Address string    `gorm:"column:participant2_address;type:text;not null;index:idx_conversations_p2" json:"participant2_address"`
	JobID               *string   `gorm:"type:text" json:"job_id"`
	LastMessageAt       time.Time `gorm:"index:idx_conversations_last" json:"last_message_at"`
	CreatedAt           time.Time `json:"created_at"`
}

// TableName returns the database table name for Conversation.
func (Conversation) TableName() string {
	return "conversations"
}

// Includes reports whether addr is one of the participants.
func (c *Conversation) Includes(addr string) bool {
	return SameAddress(c.Participant1Address, addr) || SameAddress(c.Participant2Address, addr)
}

// Other returns the participant that is not addr.
func (c *Conversation) Other(addr string) string {
	if SameAddress(c.Participant1Address, addr) {
		return c.Participant2Address
	}
	return c.Participant1Address
}

// Message is a single chat entry.
type Message struct {
	ID             string      `gorm:"type:text;primaryKey" json:"id"`
	ConversationID string      `gorm:"type:text;not null;index:idx_messages_conversation" json:"conversation_id"`
	SenderAddress  string      `gorm:"type:text;not null" json:"sender_address"`
	Content        string      `gorm:"type:text" json:"content,omitempty"`
	MessageType    MessageType `gorm:"type:text;default:text" json:"message_type"`
	AttachmentKey  string      `gorm:"type:text" json:"attachment_key,omitempty"`
	AttachmentName string      `gorm:"type:text" json:"attachment_name,omitempty"`
	AttachmentURL  string      `gorm:"-" json:"attachment_url,omitempty"`
	IsRead         bool        `gorm:"default:false" json:"is_read"`
	CreatedAt      time.Time   `json:"created_at"`
}

// TableName returns the database table name for Message.
func (Message) TableName() string {
	return "messages"
}

// ConversationSummary is a conversation as seen by one participant.
type ConversationSummary struct {
	Conversation
	OtherAddress       string `json:"other_address"`
	OtherUsername      string `json:"other_username,omitempty"`
	JobTitle           string `json:"job_title,omitempty"`
	LastMessagePreview string `json:"last_message_preview,omitempty"`
	UnreadCount        int64  `json:"unread_count"`
}
