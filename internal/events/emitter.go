package events

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	logger "github.com/Gopher0727/ProfDash/middleware/log"
	"github.com/Gopher0727/ProfDash/utils/snowflake"
)

// Emitter stamps events with an id and timestamp and publishes them.
// Publishing is best effort: failures are logged and never reach the caller.
type Emitter struct {
	ids *snowflake.Node
	pub Publisher
	log *logger.Logger
	now func() time.Time
}

func NewEmitter(ids *snowflake.Node, pub Publisher, log *logger.Logger) *Emitter {
	return &Emitter{ids: ids, pub: pub, log: log, now: time.Now}
}

func (e *Emitter) Emit(ctx context.Context, kind Kind, groupID, actorID uint, payload any) {
	if e == nil || e.pub == nil {
		return
	}

	id, err := e.ids.Generate()
	if err != nil {
		e.log.ErrorContext(ctx, "failed to generate event id", zap.String("kind", string(kind)), zap.Error(err))
		return
	}

	ev := Event{
		ID:         id,
		Kind:       kind,
		GroupID:    groupID,
		ActorID:    actorID,
		OccurredAt: e.now().UTC(),
	}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			e.log.ErrorContext(ctx, "failed to encode event payload", zap.String("kind", string(kind)), zap.Error(err))
			return
		}
		ev.Payload = raw
	}

	// the request context may be cancelled right after the response is written
	if err := e.pub.Publish(context.WithoutCancel(ctx), ev); err != nil {
		e.log.WarnContext(ctx, "failed to publish event",
			zap.Int64("event_id", ev.ID),
			zap.String("kind", string(kind)),
			zap.Uint("group_id", groupID),
			zap.Error(err),
		)
	}
}
