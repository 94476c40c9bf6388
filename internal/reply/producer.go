package reply

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/roby2358/oblique/internal/observability"
	"github.com/roby2358/oblique/internal/policy"
	"github.com/roby2358/oblique/internal/reliability"
	"github.com/roby2358/oblique/internal/social"
	"github.com/roby2358/oblique/internal/task"
)

const seenTTL = 24 * time.Hour

// Producer polls the social network for fresh mentions and feeds the screened
// ones to the service. Polling is incremental via the since marker; the seen
// set covers the window where the marker has not caught up yet, for instance
// right after a poll error.
type Producer struct {
	log     *slog.Logger
	svc     *Service
	client  social.Client
	metrics *observability.Metrics

	selfAcct string
	pageSize int

	mu     sync.Mutex
	lastID string
	seen   map[string]time.Time
}

func NewProducer(log *slog.Logger, svc *Service, client social.Client, metrics *observability.Metrics, selfAcct string, pageSize int) *Producer {
	if log == nil {
		log = slog.Default()
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	return &Producer{
		log:      log,
		svc:      svc,
		client:   client,
		metrics:  metrics,
		selfAcct: selfAcct,
		pageSize: pageSize,
		seen:     make(map[string]time.Time),
	}
}

// Start polls once immediately and then on every tick until ctx is done.
func (p *Producer) Start(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		p.Poll(ctx)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				p.Poll(ctx)
			}
		}
	}()
}

// Poll fetches one page of mentions and submits a reply chain per fresh one.
// It reports how many chains were submitted.
func (p *Producer) Poll(ctx context.Context) (int, error) {
	p.mu.Lock()
	since := p.lastID
	p.mu.Unlock()

	mentions, err := p.client.Mentions(ctx, since, p.pageSize)
	if err != nil {
		p.log.Warn("mention poll failed", "since_id", since, "error", err)
		if p.metrics != nil {
			p.metrics.UpstreamErrors.WithLabelValues("social", reliability.ErrorCode(err)).Inc()
		}
		return 0, err
	}

	submitted := 0
	for _, m := range mentions {
		p.advance(m.ID)
		if !p.markSeen(m.ID) {
			p.observe("duplicate")
			continue
		}
		if _, reason := p.Ingest(m); reason == "" {
			submitted++
		}
	}
	p.pruneSeen()
	return submitted, nil
}

// Ingest screens and scrubs one mention and submits its reply chain. The
// returned reason is empty when a chain was submitted and names the skip
// otherwise. Manual ingestion through the API takes the same path as the
// poller, minus the duplicate tracking.
func (p *Producer) Ingest(m social.Mention) (task.Snapshot, string) {
	if dec := policy.ScreenMention(p.selfAcct, m.Account.Acct, m.Account.Bot, m.Text); dec.Skip {
		p.observe("filtered")
		p.log.Info("mention skipped",
			"mention_id", m.ID,
			"author", m.Account.Acct,
			"reason", dec.Reason)
		return task.Snapshot{}, dec.Reason
	}
	scrubbed, kinds := policy.ScrubMention(m.Text)
	if len(kinds) > 0 {
		p.log.Info("mention scrubbed",
			"mention_id", m.ID,
			"kinds", strings.Join(kinds, ","))
	}
	m.Text = scrubbed
	snap := p.svc.SubmitMention(m)
	p.observe("new")
	p.log.Info("mention accepted",
		"mention_id", m.ID,
		"author", m.Account.Acct,
		"task_id", snap.TaskID)
	return snap, ""
}

// advance moves the since marker forward. Mention ids are decimal strings of
// varying length, so length decides before the lexical comparison.
func (p *Producer) advance(id string) {
	if id == "" {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if moreRecent(id, p.lastID) {
		p.lastID = id
	}
}

func moreRecent(a, b string) bool {
	if len(a) != len(b) {
		return len(a) > len(b)
	}
	return a > b
}

// markSeen records id and reports whether it was new.
func (p *Producer) markSeen(id string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.seen[id]; ok {
		return false
	}
	p.seen[id] = time.Now()
	return true
}

func (p *Producer) pruneSeen() {
	cutoff := time.Now().Add(-seenTTL)
	p.mu.Lock()
	defer p.mu.Unlock()
	for id, at := range p.seen {
		if at.Before(cutoff) {
			delete(p.seen, id)
		}
	}
}

func (p *Producer) observe(outcome string) {
	if p.metrics != nil {
		p.metrics.MentionsPolled.WithLabelValues(outcome).Inc()
	}
}
