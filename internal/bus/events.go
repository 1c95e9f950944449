package bus

import "time"

type InboundMessage struct {
	Channel    string
	SenderID   string
	SenderName string
	ChatID     string
	Content    string
	// Direct is set for one-to-one chats with the bot.
	Direct bool
	// Mentioned is set when the bot was addressed by name in a group chat.
	Mentioned bool
	Timestamp time.Time
	Metadata  map[string]any
}

func (m *InboundMessage) SessionKey() string {
	return m.Channel + ":" + m.ChatID
}

type OutboundMessage struct {
	Channel  string
	ChatID   string
	Content  string
	ReplyTo  string
	Metadata map[string]any
}
