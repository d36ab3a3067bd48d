package slack

import (
	"context"
	"time"
)

// Service provides the Slack API operations used to turn chat into observations
type Service interface {
	// ListJoinedChannels retrieves the list of channels the bot has joined
	ListJoinedChannels(ctx context.Context) ([]Channel, error)

	// GetUserInfo retrieves user information for the given user ID (with caching)
	GetUserInfo(ctx context.Context, userID string) (*User, error)

	// ListChannelHistory returns human messages of a channel posted after
	// oldest, oldest first
	ListChannelHistory(ctx context.Context, channelID string, oldest time.Time) ([]Message, error)
}

// Channel represents a Slack channel
type Channel struct {
	ID   string
	Name string
}

// User represents a Slack user
type User struct {
	ID       string
	Name     string
	RealName string
	Email    string
}

// DisplayName returns the real name if set, otherwise the handle
func (u *User) DisplayName() string {
	if u.RealName != "" {
		return u.RealName
	}
	return u.Name
}

// Message is one channel message
type Message struct {
	ChannelID string
	Timestamp string
	ThreadTS  string
	UserID    string
	Text      string
}

// RootTS returns the timestamp of the thread the message belongs to
func (m *Message) RootTS() string {
	if m.ThreadTS != "" {
		return m.ThreadTS
	}
	return m.Timestamp
}
