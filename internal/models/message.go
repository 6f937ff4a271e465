package models

import "time"

// MessageType tags the kind of payload carried by a message.
// Validated at the boundary; anything else is rejected.
type MessageType string

const (
	MessageText  MessageType = "text"
	MessageImage MessageType = "image"
	MessageAudio MessageType = "audio"
)

// BroadcastTarget is the reserved value of Message.To for room-wide messages.
const BroadcastTarget = "all"

// ValidMessageType reports whether t is one of the known message kinds.
func ValidMessageType(t MessageType) bool {
	switch t {
	case MessageText, MessageImage, MessageAudio:
		return true
	}
	return false
}

// Message is a single chat entry, broadcast or private. Stored in the
// messages collection; the broadcast scope is capped to the most recent 200.
type Message struct {
	ID      string      `bson:"id" json:"id"`
	Type    MessageType `bson:"type" json:"type"`
	From    string      `bson:"from" json:"from"`
	To      string      `bson:"to" json:"to"`
	Content string      `bson:"content" json:"content"`
	Date    time.Time   `bson:"date" json:"date"`
}

func (m Message) IsBroadcast() bool { return m.To == BroadcastTarget }
