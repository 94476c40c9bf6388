package reply

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/roby2358/oblique/internal/brain"
	"github.com/roby2358/oblique/internal/deck"
	"github.com/roby2358/oblique/internal/observability"
	"github.com/roby2358/oblique/internal/policy"
	"github.com/roby2358/oblique/internal/reliability"
	"github.com/roby2358/oblique/internal/social"
	"github.com/roby2358/oblique/internal/task"
)

// Engine is the slice of the orchestrator the reply pipeline drives.
type Engine interface {
	Submit(snap task.Snapshot)
	TransitionTo(oldTaskID string, next task.Snapshot)
	Resume(key string, next task.Snapshot) bool
	Fail(key string, next task.Snapshot) bool
}

const (
	publishTimeout = 30 * time.Second
	maxBackoff     = time.Minute
)

type Config struct {
	Model        string
	MaxChars     int
	Visibility   string
	BrainTimeout time.Duration
	Concurrency  int
	RetryLimit   int
	RetryBackoff time.Duration
}

// Service turns mentions into reply chains and acts as the responder for both
// waiting steps: it calls the brain to draft a reply and the social network to
// publish it, each from its own goroutine, then reports the outcome back to
// the engine under the chain's correlation key. The engine's worker stays free
// while the slow calls run. One weighted semaphore caps how many upstream
// calls run at once, across both steps.
type Service struct {
	log     *slog.Logger
	eng     Engine
	adapter brain.Adapter
	social  social.Client
	deck    *deck.Deck
	metrics *observability.Metrics

	calls *semaphore.Weighted
	base  context.Context
	stop  context.CancelFunc

	model        string
	maxChars     int
	visibility   string
	brainTimeout time.Duration
	retryLimit   int
	retryBackoff time.Duration
}

func NewService(cfg Config, log *slog.Logger, eng Engine, adapter brain.Adapter, client social.Client, d *deck.Deck, metrics *observability.Metrics) *Service {
	if log == nil {
		log = slog.Default()
	}
	if d == nil {
		d = deck.Default()
	}
	if cfg.BrainTimeout <= 0 {
		cfg.BrainTimeout = 30 * time.Second
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if cfg.MaxChars <= 0 {
		cfg.MaxChars = 480
	}
	if cfg.Visibility == "" {
		cfg.Visibility = "unlisted"
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = 2 * time.Second
	}
	if cfg.RetryLimit < 0 {
		cfg.RetryLimit = 0
	}
	base, stop := context.WithCancel(context.Background())
	return &Service{
		log:          log,
		eng:          eng,
		adapter:      adapter,
		social:       client,
		deck:         d,
		metrics:      metrics,
		calls:        semaphore.NewWeighted(int64(cfg.Concurrency)),
		base:         base,
		stop:         stop,
		model:        cfg.Model,
		maxChars:     cfg.MaxChars,
		visibility:   cfg.Visibility,
		brainTimeout: cfg.BrainTimeout,
		retryLimit:   cfg.RetryLimit,
		retryBackoff: cfg.RetryBackoff,
	}
}

// Close stops the responders: in-flight upstream calls are canceled and
// pending retry backoffs are dropped. Chains caught mid-call go dead with the
// cancellation on record; chains parked for retry stay parked.
func (s *Service) Close() {
	s.stop()
}

// NewTask builds the first snapshot of a reply chain for m. The text must
// already be screened and scrubbed. The card is drawn deterministically from
// the mention id so retries keep working against the same prompt.
func (s *Service) NewTask(m social.Mention) task.Snapshot {
	card := s.deck.DrawFor(m.ID)
	snap := task.NewReady("reply to @" + m.Account.Acct)
	snap.Work = "mention: " + m.Text
	snap.Work = appendWork(snap.Work, "card: "+card.String())
	snap.Transition = &Compose{Mention: m, Card: card, svc: s}
	return snap
}

// SubmitMention builds the reply chain and hands it to the engine.
func (s *Service) SubmitMention(m social.Mention) task.Snapshot {
	snap := s.NewTask(m)
	s.eng.Submit(snap)
	return snap
}

func (s *Service) composeAsync(key string, parked task.Snapshot, step *Compose) {
	go func() {
		ctx, cancel := context.WithTimeout(s.base, s.brainTimeout)
		defer cancel()

		if err := s.calls.Acquire(ctx, 1); err != nil {
			s.finishFailed("brain", key, parked, err)
			return
		}
		started := time.Now()
		resp, err := s.adapter.Complete(ctx, brain.Request{
			RequestID: key,
			Model:     s.model,
			Prompt:    composePrompt(step.Mention, step.Card),
			Strategy:  step.Card.String(),
			Context:   []string{"author: @" + step.Mention.Account.Acct},
			MaxChars:  s.maxChars,
		})
		s.calls.Release(1)
		if err != nil {
			s.finishFailed("brain", key, parked, err)
			return
		}
		if s.metrics != nil {
			s.metrics.ObserveStage("compose", time.Since(started))
		}

		text := strings.TrimSpace(resp.Text)
		if text == "" {
			s.finishFailed("brain", key, parked, errors.New("brain returned an empty draft"))
			return
		}

		next := task.Next(parked)
		next.Work = appendWork(parked.Work, "draft: "+text)
		next.Transition = &Publish{Mention: step.Mention, Text: text, svc: s}
		s.eng.Resume(key, next)
	}()
}

func (s *Service) publishAsync(key string, parked task.Snapshot, step *Publish) {
	go func() {
		ctx, cancel := context.WithTimeout(s.base, publishTimeout)
		defer cancel()

		if err := s.calls.Acquire(ctx, 1); err != nil {
			s.finishFailed("social", key, parked, err)
			return
		}
		started := time.Now()
		post, err := s.social.Reply(ctx, social.ReplyRequest{
			InReplyTo:  step.Mention.StatusID,
			Text:       step.Text,
			Visibility: s.visibilityFor(step.Mention),
			// Stable across retries of the same chain so the server can
			// deduplicate a reply whose confirmation we lost.
			IdempotencyKey: parked.TaskID + "-publish",
		})
		s.calls.Release(1)
		if err != nil {
			s.finishFailed("social", key, parked, err)
			return
		}
		if s.metrics != nil {
			s.metrics.ObserveStage("publish", time.Since(started))
		}

		ref := post.URL
		if ref == "" {
			ref = post.ID
		}
		done := task.Succeeded(parked)
		done.Work = appendWork(parked.Work, "posted: "+ref)
		s.eng.Resume(key, done)
	}()
}

// finishFailed is the single failure path for both steps. Retryable errors
// park the chain in retry status and requeue it after a backoff; everything
// else, and chains out of attempts, goes dead with the error on record.
func (s *Service) finishFailed(upstream, key string, parked task.Snapshot, err error) {
	if s.metrics != nil {
		s.metrics.UpstreamErrors.WithLabelValues(upstream, reliability.ErrorCode(err)).Inc()
	}

	attempt := parked.RetryCount
	if !reliability.Retryable(err) || attempt >= s.retryLimit {
		s.log.Error("reply step failed for good",
			"task_id", parked.TaskID,
			"upstream", upstream,
			"attempt", attempt+1,
			"error", err)
		if s.metrics != nil {
			s.metrics.ObserveStageIndicator("dead")
		}
		dead := task.Dead(parked)
		dead.Work = appendWork(parked.Work, "error: "+err.Error())
		s.eng.Fail(key, dead)
		return
	}

	wait := reliability.ExponentialBackoff(attempt, s.retryBackoff, maxBackoff)
	s.log.Warn("reply step failed, will retry",
		"task_id", parked.TaskID,
		"upstream", upstream,
		"attempt", attempt+1,
		"backoff", wait,
		"error", err)
	if s.metrics != nil {
		s.metrics.ObserveStageIndicator("retry")
	}
	retry := task.Next(parked)
	retry.Status = task.StatusRetry
	retry.RetryCount = attempt + 1
	retry.Work = appendWork(parked.Work, fmt.Sprintf("attempt %d failed, retrying in %s: %v", attempt+1, wait, err))
	if !s.eng.Fail(key, retry) {
		return
	}
	go s.requeue(retry, wait)
}

// requeue moves a chain parked in retry back onto the ready queue once the
// backoff elapses. Close drops pending backoffs; if an operator canceled the
// chain in the meantime the engine drops the successor.
func (s *Service) requeue(snap task.Snapshot, wait time.Duration) {
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-s.base.Done():
		return
	case <-timer.C:
	}
	s.eng.TransitionTo(snap.TaskID, task.Next(snap))
}

func (s *Service) visibilityFor(m social.Mention) string {
	// A reply to a direct mention must stay direct.
	if m.Visibility == "direct" {
		return "direct"
	}
	return s.visibility
}

func composePrompt(m social.Mention, card deck.Card) string {
	var b strings.Builder
	fmt.Fprintf(&b, "@%s wrote:\n%s\n\n", m.Account.Acct, policy.StripHandles(m.Text))
	fmt.Fprintf(&b, "Answer them in one short post. Let the strategy %q steer your angle without naming it.", card.String())
	return b.String()
}

func appendWork(work, line string) string {
	if strings.TrimSpace(work) == "" {
		return line
	}
	return work + "\n" + line
}
