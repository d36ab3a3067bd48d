package slack

import (
	"context"
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/slack-go/slack"
)

const (
	// DefaultCacheTTL is the default TTL for the user cache
	DefaultCacheTTL = 10 * time.Minute

	historyPageSize = 200
)

// cacheEntry holds a cached user with expiration
type cacheEntry struct {
	user      *User
	expiresAt time.Time
}

// client implements Service interface
type client struct {
	api      *slack.Client
	apiURL   string
	cacheTTL time.Duration

	mu    sync.RWMutex
	cache map[string]cacheEntry
}

// Option is a functional option for client configuration
type Option func(*client)

// WithCacheTTL sets the TTL for the user cache
func WithCacheTTL(ttl time.Duration) Option {
	return func(c *client) {
		c.cacheTTL = ttl
	}
}

// WithAPIURL points the client at another Slack API endpoint. url must end with "/".
func WithAPIURL(url string) Option {
	return func(c *client) {
		c.apiURL = url
	}
}

// New creates a new Slack service with the provided bot token
func New(token string, opts ...Option) (Service, error) {
	if token == "" {
		return nil, goerr.New("Slack bot token is required")
	}

	c := &client{
		cacheTTL: DefaultCacheTTL,
		cache:    make(map[string]cacheEntry),
	}

	for _, opt := range opts {
		opt(c)
	}

	var apiOpts []slack.Option
	if c.apiURL != "" {
		apiOpts = append(apiOpts, slack.OptionAPIURL(c.apiURL))
	}
	c.api = slack.New(token, apiOpts...)

	return c, nil
}

// ListJoinedChannels retrieves the list of channels the bot has joined
func (c *client) ListJoinedChannels(ctx context.Context) ([]Channel, error) {
	var channels []Channel
	var cursor string

	for {
		params := &slack.GetConversationsParameters{
			Types:           []string{"public_channel"},
			ExcludeArchived: true,
			Limit:           100,
			Cursor:          cursor,
		}

		convs, nextCursor, err := c.api.GetConversationsContext(ctx, params)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to get conversations")
		}

		for _, conv := range convs {
			if conv.IsMember {
				channels = append(channels, Channel{
					ID:   conv.ID,
					Name: conv.Name,
				})
			}
		}

		if nextCursor == "" {
			break
		}
		cursor = nextCursor
	}

	return channels, nil
}

// GetUserInfo retrieves user information for the given user ID
func (c *client) GetUserInfo(ctx context.Context, userID string) (*User, error) {
	now := time.Now()

	c.mu.RLock()
	entry, ok := c.cache[userID]
	c.mu.RUnlock()
	if ok && entry.expiresAt.After(now) {
		return entry.user, nil
	}

	user, err := c.api.GetUserInfoContext(ctx, userID)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to get user info", goerr.V("user_id", userID))
	}

	u := &User{
		ID:       user.ID,
		Name:     user.Name,
		RealName: user.RealName,
		Email:    user.Profile.Email,
	}

	c.mu.Lock()
	c.cache[userID] = cacheEntry{user: u, expiresAt: now.Add(c.cacheTTL)}
	c.mu.Unlock()

	return u, nil
}

// ListChannelHistory pages through conversations.history. Bot messages and
// channel notifications (joins, topic changes) are skipped.
func (c *client) ListChannelHistory(ctx context.Context, channelID string, oldest time.Time) ([]Message, error) {
	var messages []Message
	var cursor string

	params := &slack.GetConversationHistoryParameters{
		ChannelID: channelID,
		Limit:     historyPageSize,
	}
	if !oldest.IsZero() {
		params.Oldest = formatTS(oldest)
	}

	for {
		params.Cursor = cursor
		resp, err := c.api.GetConversationHistoryContext(ctx, params)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to get conversation history", goerr.V("channel_id", channelID))
		}

		for _, msg := range resp.Messages {
			if msg.SubType != "" || msg.BotID != "" || msg.User == "" {
				continue
			}
			messages = append(messages, Message{
				ChannelID: channelID,
				Timestamp: msg.Timestamp,
				ThreadTS:  msg.ThreadTimestamp,
				UserID:    msg.User,
				Text:      msg.Text,
			})
		}

		if !resp.HasMore || resp.ResponseMetaData.NextCursor == "" {
			break
		}
		cursor = resp.ResponseMetaData.NextCursor
	}

	// the API returns newest first
	slices.SortStableFunc(messages, func(a, b Message) int {
		return compareTS(a.Timestamp, b.Timestamp)
	})
	return messages, nil
}

func formatTS(t time.Time) string {
	return strconv.FormatInt(t.Unix(), 10) + ".000000"
}

// ParseTS converts a Slack message timestamp ("1700000000.123456") to time.
func ParseTS(ts string) (time.Time, error) {
	f, err := strconv.ParseFloat(ts, 64)
	if err != nil {
		return time.Time{}, goerr.Wrap(err, "invalid slack timestamp", goerr.V("ts", ts))
	}
	sec := int64(f)
	nsec := int64((f - float64(sec)) * 1e9)
	return time.Unix(sec, nsec), nil
}

func compareTS(a, b string) int {
	fa, errA := strconv.ParseFloat(a, 64)
	fb, errB := strconv.ParseFloat(b, 64)
	switch {
	case errA != nil || errB != nil:
		if a < b {
			return -1
		} else if a > b {
			return 1
		}
		return 0
	case fa < fb:
		return -1
	case fa > fb:
		return 1
	}
	return 0
}
