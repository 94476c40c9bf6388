package reply

import (
	"context"

	"github.com/google/uuid"

	"github.com/roby2358/oblique/internal/deck"
	"github.com/roby2358/oblique/internal/social"
	"github.com/roby2358/oblique/internal/task"
)

// Compose is the first step of a reply chain: ask the brain for a draft.
// Next never blocks; it parks the chain under a fresh request id and hands
// the call to the service, which resumes the chain with a Publish step once
// the draft arrives.
type Compose struct {
	Mention social.Mention
	Card    deck.Card

	svc *Service
}

func (c *Compose) Kind() string { return "compose" }

func (c *Compose) Next(ctx context.Context, prev task.Snapshot) (task.Snapshot, error) {
	requestID := uuid.NewString()
	parked := task.Next(prev)
	parked.Status = task.StatusWaiting
	parked.WaitKey = requestID
	c.svc.composeAsync(requestID, parked, c)
	return parked, nil
}

// Publish is the second step: post the drafted text under the mention. Same
// shape as Compose with the social network as the external side.
type Publish struct {
	Mention social.Mention
	Text    string

	svc *Service
}

func (p *Publish) Kind() string { return "publish" }

func (p *Publish) Next(ctx context.Context, prev task.Snapshot) (task.Snapshot, error) {
	requestID := uuid.NewString()
	parked := task.Next(prev)
	parked.Status = task.StatusWaiting
	parked.WaitKey = requestID
	p.svc.publishAsync(requestID, parked, p)
	return parked, nil
}
