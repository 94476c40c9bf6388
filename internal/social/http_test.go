package social

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/roby2358/oblique/internal/reliability"
)

func TestHTTPClientMentions(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/notifications" {
			t.Errorf("path = %q, want /api/v1/notifications", r.URL.Path)
		}
		if got := r.URL.Query().Get("since_id"); got != "100" {
			t.Errorf("since_id = %q, want 100", got)
		}
		if got := r.URL.Query().Get("types[]"); got != "mention" {
			t.Errorf("types[] = %q, want mention", got)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer token-1" {
			t.Errorf("Authorization = %q, want bearer token", got)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[
			{"id":"101","type":"mention","created_at":"2026-08-01T10:00:00Z",
			 "account":{"id":"a1","acct":"june","display_name":"June","bot":false},
			 "status":{"id":"s1","content":"<p>hey @oblique<br>what now&#39;s next?</p>","visibility":"public"}},
			{"id":"102","type":"favourite","account":{"id":"a2","acct":"spam"}},
			{"id":"103","type":"mention","account":{"id":"a3","acct":"ghost"}}
		]`))
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL+"/", "token-1")
	mentions, err := c.Mentions(context.Background(), "100", 20)
	if err != nil {
		t.Fatalf("Mentions() error = %v", err)
	}
	if len(mentions) != 1 {
		t.Fatalf("len(mentions) = %d, want 1 (non-mentions and statusless dropped)", len(mentions))
	}
	m := mentions[0]
	if m.ID != "101" || m.StatusID != "s1" || m.Account.Acct != "june" {
		t.Fatalf("mention = %+v, want id 101 status s1 from june", m)
	}
	if m.Text != "hey @oblique\nwhat now's next?" {
		t.Fatalf("Text = %q, want stripped plain text", m.Text)
	}
	if m.Visibility != "public" {
		t.Fatalf("Visibility = %q, want public", m.Visibility)
	}
}

func TestHTTPClientReply(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/v1/statuses" {
			t.Errorf("%s %s, want POST /api/v1/statuses", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("Idempotency-Key"); got != "chain-1" {
			t.Errorf("Idempotency-Key = %q, want chain-1", got)
		}
		var body struct {
			Status      string `json:"status"`
			InReplyToID string `json:"in_reply_to_id"`
			Visibility  string `json:"visibility"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode body: %v", err)
		}
		if body.Status != "a reply" || body.InReplyToID != "s1" || body.Visibility != "unlisted" {
			t.Errorf("body = %+v, want reply fields", body)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"s2","url":"https://social.example/@bot/s2"}`))
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, "token-1")
	post, err := c.Reply(context.Background(), ReplyRequest{
		InReplyTo:      "s1",
		Text:           "a reply",
		Visibility:     "unlisted",
		IdempotencyKey: "chain-1",
	})
	if err != nil {
		t.Fatalf("Reply() error = %v", err)
	}
	if post.ID != "s2" || post.URL == "" {
		t.Fatalf("post = %+v, want id s2 with url", post)
	}
}

func TestHTTPClientReplyNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"rate limited"}`, http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, "token-1")
	_, err := c.Reply(context.Background(), ReplyRequest{InReplyTo: "s1", Text: "x"})
	if err == nil {
		t.Fatalf("Reply() error = nil, want status error")
	}
	var se *reliability.StatusError
	if !errors.As(err, &se) {
		t.Fatalf("Reply() error = %v, want *reliability.StatusError", err)
	}
	if se.Upstream != "social" || se.Code != http.StatusTooManyRequests {
		t.Fatalf("StatusError = %+v, want social/429", se)
	}
}

func TestStripHTML(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"", ""},
		{"plain", "plain"},
		{"<p>one</p><p>two</p>", "one\ntwo"},
		{"line<br />break", "line\nbreak"},
		{"<span class=\"h-card\">@<a href=\"x\">june</a></span> hi", "@june hi"},
		{"fish &amp; chips", "fish & chips"},
	}
	for _, tc := range cases {
		if got := stripHTML(tc.in); got != tc.want {
			t.Fatalf("stripHTML(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestMockClientPaging(t *testing.T) {
	c := NewMockClient(
		Mention{ID: "1", StatusID: "s1", Text: "first"},
		Mention{ID: "2", StatusID: "s2", Text: "second"},
	)
	c.AddMention(Mention{ID: "3", StatusID: "s3", Text: "third"})

	all, err := c.Mentions(context.Background(), "", 0)
	if err != nil {
		t.Fatalf("Mentions() error = %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("len(all) = %d, want 3", len(all))
	}

	tail, err := c.Mentions(context.Background(), "1", 1)
	if err != nil {
		t.Fatalf("Mentions(since 1) error = %v", err)
	}
	if len(tail) != 1 || tail[0].ID != "2" {
		t.Fatalf("tail = %+v, want just mention 2", tail)
	}
}

func TestMockClientRecordsReplies(t *testing.T) {
	c := NewMockClient()
	post, err := c.Reply(context.Background(), ReplyRequest{InReplyTo: "s1", Text: "hello"})
	if err != nil {
		t.Fatalf("Reply() error = %v", err)
	}
	if post.ID == "" {
		t.Fatalf("post.ID empty")
	}
	replies := c.Replies()
	if len(replies) != 1 || replies[0].Text != "hello" {
		t.Fatalf("Replies() = %+v, want the recorded reply", replies)
	}
}
