package social

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MockClient serves scripted mentions and records replies in memory, for
// tests and for running the service without a real network account.
type MockClient struct {
	mu       sync.Mutex
	mentions []Mention
	replies  []ReplyRequest
	nextID   int
}

func NewMockClient(mentions ...Mention) *MockClient {
	return &MockClient{mentions: mentions}
}

func (c *MockClient) AddMention(m Mention) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	c.mentions = append(c.mentions, m)
}

func (c *MockClient) Mentions(ctx context.Context, sinceID string, limit int) ([]Mention, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	start := 0
	if sinceID != "" {
		for i, m := range c.mentions {
			if m.ID == sinceID {
				start = i + 1
				break
			}
		}
	}
	out := make([]Mention, 0, len(c.mentions)-start)
	for _, m := range c.mentions[start:] {
		out = append(out, m)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (c *MockClient) Reply(ctx context.Context, reply ReplyRequest) (Post, error) {
	select {
	case <-ctx.Done():
		return Post{}, ctx.Err()
	default:
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextID++
	c.replies = append(c.replies, reply)
	return Post{
		ID:  fmt.Sprintf("mock-%d", c.nextID),
		URL: fmt.Sprintf("https://mock.invalid/statuses/mock-%d", c.nextID),
	}, nil
}

// Replies returns a copy of every recorded reply.
func (c *MockClient) Replies() []ReplyRequest {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]ReplyRequest, len(c.replies))
	copy(out, c.replies)
	return out
}
