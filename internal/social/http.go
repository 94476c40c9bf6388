package social

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"html"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/roby2358/oblique/internal/reliability"
)

// HTTPClient speaks the Mastodon-compatible REST API: mentions arrive as
// notifications, replies are posted as statuses.
type HTTPClient struct {
	base   string
	token  string
	client *http.Client
}

func NewHTTPClient(baseURL, accessToken string) *HTTPClient {
	return &HTTPClient{
		base:  strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		token: strings.TrimSpace(accessToken),
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

type apiAccount struct {
	ID          string `json:"id"`
	Acct        string `json:"acct"`
	DisplayName string `json:"display_name"`
	Bot         bool   `json:"bot"`
}

type apiStatus struct {
	ID         string `json:"id"`
	URL        string `json:"url"`
	Content    string `json:"content"`
	Visibility string `json:"visibility"`
}

type apiNotification struct {
	ID        string     `json:"id"`
	Type      string     `json:"type"`
	CreatedAt time.Time  `json:"created_at"`
	Account   apiAccount `json:"account"`
	Status    *apiStatus `json:"status"`
}

func (c *HTTPClient) Mentions(ctx context.Context, sinceID string, limit int) ([]Mention, error) {
	q := url.Values{}
	q.Add("types[]", "mention")
	if sinceID = strings.TrimSpace(sinceID); sinceID != "" {
		q.Set("since_id", sinceID)
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+"/api/v1/notifications?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	c.authorize(req)

	res, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch notifications: %w", err)
	}
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 4<<10))
		return nil, &reliability.StatusError{Upstream: "social", Code: res.StatusCode, Body: string(body)}
	}

	var notifications []apiNotification
	if err := json.NewDecoder(res.Body).Decode(&notifications); err != nil {
		return nil, fmt.Errorf("decode notifications: %w", err)
	}

	out := make([]Mention, 0, len(notifications))
	for _, n := range notifications {
		if n.Type != "mention" || n.Status == nil {
			continue
		}
		out = append(out, Mention{
			ID:       n.ID,
			StatusID: n.Status.ID,
			Account: Account{
				ID:          n.Account.ID,
				Acct:        n.Account.Acct,
				DisplayName: n.Account.DisplayName,
				Bot:         n.Account.Bot,
			},
			Text:       stripHTML(n.Status.Content),
			Visibility: n.Status.Visibility,
			CreatedAt:  n.CreatedAt,
		})
	}
	return out, nil
}

func (c *HTTPClient) Reply(ctx context.Context, reply ReplyRequest) (Post, error) {
	payload, err := json.Marshal(struct {
		Status      string `json:"status"`
		InReplyToID string `json:"in_reply_to_id"`
		Visibility  string `json:"visibility,omitempty"`
	}{
		Status:      reply.Text,
		InReplyToID: reply.InReplyTo,
		Visibility:  reply.Visibility,
	})
	if err != nil {
		return Post{}, fmt.Errorf("marshal status: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/api/v1/statuses", bytes.NewReader(payload))
	if err != nil {
		return Post{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if key := strings.TrimSpace(reply.IdempotencyKey); key != "" {
		req.Header.Set("Idempotency-Key", key)
	}
	c.authorize(req)

	res, err := c.client.Do(req)
	if err != nil {
		return Post{}, fmt.Errorf("post status: %w", err)
	}
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 4<<10))
		return Post{}, &reliability.StatusError{Upstream: "social", Code: res.StatusCode, Body: string(body)}
	}

	var status apiStatus
	if err := json.NewDecoder(res.Body).Decode(&status); err != nil {
		return Post{}, fmt.Errorf("decode status: %w", err)
	}
	return Post{ID: status.ID, URL: status.URL}, nil
}

func (c *HTTPClient) authorize(req *http.Request) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}

// stripHTML flattens status markup to plain text. Break and paragraph tags
// become newlines, every other tag is dropped, entities are unescaped.
func stripHTML(s string) string {
	if s == "" {
		return ""
	}
	var out strings.Builder
	var tag strings.Builder
	inTag := false
	for _, r := range s {
		if inTag {
			if r == '>' {
				inTag = false
				t := strings.ToLower(strings.TrimSpace(tag.String()))
				if strings.HasPrefix(t, "br") || t == "/p" {
					out.WriteRune('\n')
				}
				tag.Reset()
			} else {
				tag.WriteRune(r)
			}
			continue
		}
		if r == '<' {
			inTag = true
			continue
		}
		out.WriteRune(r)
	}
	return strings.TrimSpace(html.UnescapeString(out.String()))
}
