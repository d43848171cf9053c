package model

import "time"

// MessageNewEvent is pushed when a message is appended to a conversation.
type MessageNewEvent struct {
	ConversationID string  `json:"conversationId"`
	UserID         string  `json:"userId"`
	Message        Message `json:"message"`
}

// ChatUpdateEvent refreshes conversation list previews.
type ChatUpdateEvent struct {
	ConversationID string     `json:"conversationId"`
	UserID         string     `json:"userId"`
	LastMessage    *Message   `json:"lastMessage,omitempty"`
	Status         string     `json:"status,omitempty"`
	UpdatedAt      time.Time  `json:"updatedAt"`
	LastMessageAt  *time.Time `json:"lastMessageAt,omitempty"`
}

// TypingIndicator - for typing status
type TypingIndicator struct {
	ConversationID string `json:"conversationId"`
	UserID         string `json:"userId"`
	TargetUserID   string `json:"targetUserId,omitempty"` // set by admins, names the user room
	IsTyping       bool   `json:"isTyping"`
}
