// Package bus carries messages between chat channels and the gateway.
package bus

import "time"

// InboundMessage is a user message arriving from a chat channel.
type InboundMessage struct {
	Channel   string
	SenderID  string
	ChatID    string
	Content   string
	Timestamp time.Time
	Metadata  map[string]any
}

// SessionKey identifies the conversation a message belongs to. One
// engine session exists per key.
func (m *InboundMessage) SessionKey() string {
	return m.Channel + ":" + m.ChatID
}

// OutboundMessage is a reply headed back to a chat channel.
type OutboundMessage struct {
	Channel string
	ChatID  string
	Content string
}

// MessageBus connects channels to the gateway with buffered queues in
// both directions.
type MessageBus struct {
	Inbound  chan InboundMessage
	Outbound chan OutboundMessage
}

// NewMessageBus creates a bus with the given buffer size per
// direction.
func NewMessageBus(size int) *MessageBus {
	return &MessageBus{
		Inbound:  make(chan InboundMessage, size),
		Outbound: make(chan OutboundMessage, size),
	}
}
