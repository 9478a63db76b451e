// Package events carries dashboard domain events from the services to the
// audit log and live dashboards.
package events

import (
	"context"
	"encoding/json"
	"time"
)

type Kind string

const (
	KindPromptUpdated   Kind = "prompt.updated"
	KindFeedbackCreated Kind = "feedback.created"
	KindFeedbackApplied Kind = "feedback.applied"
	KindGroupUpdated    Kind = "group.updated"
	KindGroupDeleted    Kind = "group.deleted"
	KindMemberJoined    Kind = "member.joined"
	KindMemberLeft      Kind = "member.left"
	KindSessionIngested Kind = "session.ingested"
)

type Event struct {
	ID         int64           `json:"id,string"`
	Kind       Kind            `json:"kind"`
	GroupID    uint            `json:"group_id"`
	ActorID    uint            `json:"actor_id"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	OccurredAt time.Time       `json:"occurred_at"`
}

// Publisher hands an event to the transport.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// Handler is the receiving end: it records and fans out one event.
type Handler interface {
	Handle(ctx context.Context, ev Event) error
}

// Direct delivers events in-process. It is used when no broker is configured.
type Direct struct {
	handler Handler
}

func NewDirect(handler Handler) *Direct {
	return &Direct{handler: handler}
}

func (d *Direct) Publish(ctx context.Context, ev Event) error {
	return d.handler.Handle(ctx, ev)
}
