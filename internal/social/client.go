package social

import (
	"context"
	"time"
)

// Account is the author of a mention.
type Account struct {
	ID          string `json:"id"`
	Acct        string `json:"acct"`
	DisplayName string `json:"display_name,omitempty"`
	Bot         bool   `json:"bot,omitempty"`
}

// Mention is one notification that the bot's account was mentioned. Text is
// plain text with markup already stripped. ID orders mentions and drives
// incremental polling.
type Mention struct {
	ID         string    `json:"id"`
	StatusID   string    `json:"status_id"`
	Account    Account   `json:"account"`
	Text       string    `json:"text"`
	Visibility string    `json:"visibility,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// ReplyRequest publishes one reply under an existing status.
type ReplyRequest struct {
	InReplyTo      string `json:"in_reply_to"`
	Text           string `json:"text"`
	Visibility     string `json:"visibility,omitempty"`
	IdempotencyKey string `json:"-"`
}

// Post identifies a published reply.
type Post struct {
	ID  string `json:"id"`
	URL string `json:"url,omitempty"`
}

// Client is the boundary to the social network.
type Client interface {
	Mentions(ctx context.Context, sinceID string, limit int) ([]Mention, error)
	Reply(ctx context.Context, req ReplyRequest) (Post, error)
}
