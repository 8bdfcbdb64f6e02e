package broadcast

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/trade-hub/trade-hub/internal/domain/conversation"
	"github.com/trade-hub/trade-hub/internal/domain/event"
)

// Broadcaster turns committed store mutations into realtime events.
// It must only be called after the mutation has committed.
type Broadcaster struct {
	publisher event.Publisher
	logger    zerolog.Logger
}

func NewBroadcaster(publisher event.Publisher, logger zerolog.Logger) *Broadcaster {
	return &Broadcaster{
		publisher: publisher,
		logger:    logger.With().Str("service", "broadcast").Logger(),
	}
}

// MessageAppended syncs msg to the pair room and points both parties at the room.
func (b *Broadcaster) MessageAppended(ctx context.Context, pair conversation.Pair, msg *conversation.Message) {
	if b == nil || msg == nil {
		return
	}
	ev, err := event.MessageSync(pair, msg)
	if err != nil {
		b.logger.Warn().Err(err).Str("room", pair.Room()).Msg("encode message event")
		return
	}
	b.publish(ctx, ev)

	for _, party := range []string{pair.A, pair.B} {
		activity, err := event.ConversationActivity(pair, msg.ConversationID, party, msg.FromParty, msg.CreatedAt)
		if err != nil {
			b.logger.Warn().Err(err).Str("party", party).Msg("encode activity event")
			continue
		}
		b.publish(ctx, activity)
	}
}

// ConversationDeleted notifies the counterparty of deletedBy.
func (b *Broadcaster) ConversationDeleted(ctx context.Context, pair conversation.Pair, deletedBy string, at time.Time) {
	if b == nil {
		return
	}
	ev, err := event.ConversationDeleted(pair, deletedBy, at)
	if err != nil {
		b.logger.Warn().Err(err).Str("room", pair.Room()).Msg("encode deletion event")
		return
	}
	b.publish(ctx, ev)
}

func (b *Broadcaster) publish(ctx context.Context, ev event.Event) {
	if b.publisher == nil {
		return
	}
	if err := b.publisher.Publish(ctx, ev); err != nil {
		b.logger.Warn().
			Err(err).
			Str("type", string(ev.Type)).
			Str("room", ev.Room).
			Str("party", ev.Party).
			Msg("realtime delivery failed")
	}
}
