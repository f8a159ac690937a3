package models

import (
	"time"

	"github.com/google/uuid"
)

// MessageType is the kind of content a participant forwarded.
type MessageType string

const (
	MessageText      MessageType = "text"
	MessagePhoto     MessageType = "photo"
	MessageVideo     MessageType = "video"
	MessageSticker   MessageType = "sticker"
	MessageVoice     MessageType = "voice"
	MessageDocument  MessageType = "document"
	MessageAudio     MessageType = "audio"
	MessageAnimation MessageType = "animation"
	MessageVideoNote MessageType = "video_note"
)

// MessageRecord is the audit-log metadata for one forwarded message.
// Records are append-only within a session entry.
type MessageRecord struct {
	ID               uuid.UUID   `json:"id"`
	Timestamp        time.Time   `json:"timestamp"`
	SenderID         int64       `json:"sender_id"`
	SenderUsername   string      `json:"sender_username,omitempty"`
	ReceiverID       int64       `json:"receiver_id"`
	ReceiverUsername string      `json:"receiver_username,omitempty"`
	Type             MessageType `json:"message_type"`
	Content          string      `json:"content"`
	MediaURL         string      `json:"media_url,omitempty"`
	Caption          string      `json:"caption,omitempty"`
}
