// Package msgqueue implements the outbound message queue: per-channel
// priority queues, provider dispatch, retry scheduling, and delivery
// tracking.
package msgqueue

import (
	"time"

	"github.com/google/uuid"
)

// Channel identifies a messaging service.
type Channel string

const (
	ChannelSMS      Channel = "sms"
	ChannelMMS      Channel = "mms"
	ChannelEmail    Channel = "email"
	ChannelWhatsApp Channel = "whatsapp"
	ChannelTelegram Channel = "telegram"
	ChannelTwitter  Channel = "twitter"
	ChannelSignal   Channel = "signal"
	ChannelFacebook Channel = "facebook"
)

// Channels lists every supported channel.
func Channels() []Channel {
	return []Channel{
		ChannelSMS, ChannelMMS, ChannelEmail, ChannelWhatsApp,
		ChannelTelegram, ChannelTwitter, ChannelSignal, ChannelFacebook,
	}
}

// Status of a message.
type Status string

const (
	StatusPending   Status = "pending"
	StatusSent      Status = "sent"
	StatusDelivered Status = "delivered"
	StatusRead      Status = "read"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Priority of a message. Urgent messages jump the queue.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// Message is one outbound message.
type Message struct {
	ID          string           `json:"id"`
	Channel     Channel          `json:"channel"`
	From        string           `json:"from_address"`
	To          string           `json:"to_address"`
	Subject     string           `json:"subject,omitempty"`
	Body        string           `json:"body"`
	Attachments []map[string]any `json:"attachments,omitempty"`
	Status      Status           `json:"status"`
	Priority    Priority         `json:"priority"`
	CreatedAt   time.Time        `json:"created_at"`
	SentAt      *time.Time       `json:"sent_at,omitempty"`
	Error       string           `json:"error_message,omitempty"`
	Metadata    map[string]any   `json:"metadata,omitempty"`
}

// NewMessage builds a pending normal-priority message.
func NewMessage(channel Channel, from, to, body string) *Message {
	return &Message{
		ID:        uuid.NewString(),
		Channel:   channel,
		From:      from,
		To:        to,
		Body:      body,
		Status:    StatusPending,
		Priority:  PriorityNormal,
		CreatedAt: time.Now(),
	}
}

// DeliveryAttempt records one provider dispatch.
type DeliveryAttempt struct {
	AttemptID    string        `json:"attempt_id"`
	MessageID    string        `json:"message_id"`
	Timestamp    time.Time     `json:"timestamp"`
	Success      bool          `json:"success"`
	Error        string        `json:"error_message,omitempty"`
	ResponseTime time.Duration `json:"response_time"`
}

// queued wraps a message with its retry state while it waits in a
// channel queue.
type queued struct {
	message       *Message
	retryCount    int
	maxRetries    int
	strategy      Strategy
	nextRetryAt   time.Time
	createdAt     time.Time
	lastAttemptAt time.Time
}
