// Package natsbus relays realtime events between server instances over core NATS.
package natsbus

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/trade-hub/trade-hub/internal/domain/event"
	"github.com/trade-hub/trade-hub/internal/metrics"
)

// DefaultPrefix is the subject prefix used when none is configured.
const DefaultPrefix = "tradehub"

// Sink receives events that arrived from the bus.
type Sink interface {
	Deliver(ev event.Event) int
}

// Connect dials NATS with reconnects enabled.
func Connect(url string, logger zerolog.Logger) (*nats.Conn, error) {
	log := logger.With().Str("component", "nats").Logger()
	nc, err := nats.Connect(url,
		nats.Name("trade-hub"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn().Err(err).Msg("nats disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("nats reconnected")
		}),
		nats.ErrorHandler(func(_ *nats.Conn, sub *nats.Subscription, err error) {
			evt := log.Error().Err(err)
			if sub != nil {
				evt = evt.Str("subject", sub.Subject)
			}
			evt.Msg("nats error")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	return nc, nil
}

// Bus implements event.Publisher by publishing to NATS and feeds every event received on
// its subjects into the local sink, including the ones this instance published.
type Bus struct {
	conn   *nats.Conn
	prefix string
	sink   Sink
	sub    *nats.Subscription
	logger zerolog.Logger
}

func New(conn *nats.Conn, prefix string, sink Sink, logger zerolog.Logger) *Bus {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Bus{
		conn:   conn,
		prefix: prefix,
		sink:   sink,
		logger: logger.With().Str("component", "natsbus").Logger(),
	}
}

// RoomSubject is the subject carrying events of a pair room.
func RoomSubject(prefix, room string) string {
	return prefix + ".room." + token(room)
}

// PartySubject is the subject carrying events of a party channel.
func PartySubject(prefix, party string) string {
	return prefix + ".party." + token(party)
}

// Party ids and room keys may contain characters that are special in subjects.
func token(s string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(s))
}

func (b *Bus) subject(ev event.Event) string {
	if ev.Room != "" {
		return RoomSubject(b.prefix, ev.Room)
	}
	return PartySubject(b.prefix, ev.Party)
}

// Start subscribes to every room and party subject under the prefix.
func (b *Bus) Start() error {
	sub, err := b.conn.Subscribe(b.prefix+".>", b.handle)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", b.prefix, err)
	}
	b.sub = sub
	return nil
}

func (b *Bus) Publish(_ context.Context, ev event.Event) error {
	if err := ev.Validate(); err != nil {
		return err
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	if err := b.conn.Publish(b.subject(ev), data); err != nil {
		metrics.BridgeErrorsTotal.WithLabelValues("publish").Inc()
		return fmt.Errorf("publish event: %w", err)
	}
	return nil
}

func (b *Bus) handle(msg *nats.Msg) {
	var ev event.Event
	if err := json.Unmarshal(msg.Data, &ev); err != nil {
		metrics.BridgeErrorsTotal.WithLabelValues("decode").Inc()
		b.logger.Warn().Err(err).Str("subject", msg.Subject).Msg("dropping undecodable event")
		return
	}
	if err := ev.Validate(); err != nil {
		metrics.BridgeErrorsTotal.WithLabelValues("decode").Inc()
		b.logger.Warn().Err(err).Str("subject", msg.Subject).Msg("dropping untargeted event")
		return
	}
	b.sink.Deliver(ev)
}

// Close unsubscribes. The connection is owned by the caller.
func (b *Bus) Close() error {
	if b.sub == nil {
		return nil
	}
	return b.sub.Unsubscribe()
}
