// Package events delivers domain events from the store outbox to consumers.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/Thiri06/Contact-Info-Capture-Agent/internal/domain/model"
	"github.com/Thiri06/Contact-Info-Capture-Agent/pkg/logger"
)

// Publisher hands one event to downstream consumers.
type Publisher interface {
	Publish(ctx context.Context, ev model.DomainEvent) error
}

// LogPublisher writes events to the log. It is used when no broker is configured.
type LogPublisher struct {
	logger logger.Logger
}

// NewLogPublisher returns a publisher that logs every event at info level.
func NewLogPublisher(l logger.Logger) *LogPublisher {
	if l == nil {
		l = logger.Get().Named("events")
	}
	return &LogPublisher{logger: l}
}

// Publish implements Publisher.
func (p *LogPublisher) Publish(ctx context.Context, ev model.DomainEvent) error {
	p.logger.Info(ctx, "domain event",
		logger.String("id", ev.ID),
		logger.String("type", string(ev.Type)),
		logger.String("aggregateId", ev.AggregateID),
		logger.Any("occurredAt", ev.OccurredAt),
	)
	return nil
}

// MsgPublisher is the part of *nats.Conn the NATS publisher uses.
type MsgPublisher interface {
	PublishMsg(m *nats.Msg) error
}

// NATSPublisher publishes events as JSON to "<prefix>.<type>". The event ID
// travels in the Nats-Msg-Id header so JetStream consumers can drop
// redeliveries.
type NATSPublisher struct {
	conn   MsgPublisher
	prefix string
}

// DefaultSubjectPrefix is used when no prefix is configured.
const DefaultSubjectPrefix = "attendees"

// NewNATSPublisher wraps an established connection.
func NewNATSPublisher(conn MsgPublisher, prefix string) *NATSPublisher {
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	return &NATSPublisher{conn: conn, prefix: prefix}
}

// DialNATS connects to url with reconnects enabled.
func DialNATS(url, name string) (*nats.Conn, error) {
	l := logger.Get().Named("nats")
	conn, err := nats.Connect(url,
		nats.Name(name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.Timeout(5*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				l.Warn(context.Background(), "nats disconnected", logger.Error(err))
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			l.Info(context.Background(), "nats reconnected", logger.String("url", c.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}
	return conn, nil
}

// Subject returns the subject an event of typ is published on.
func (p *NATSPublisher) Subject(typ model.EventType) string {
	return p.prefix + "." + string(typ)
}

// Publish implements Publisher.
func (p *NATSPublisher) Publish(ctx context.Context, ev model.DomainEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event %s: %w", ev.ID, err)
	}
	msg := &nats.Msg{Subject: p.Subject(ev.Type), Data: data, Header: nats.Header{}}
	msg.Header.Set(nats.MsgIdHdr, ev.ID)
	msg.Header.Set("Event-Type", string(ev.Type))
	if err := p.conn.PublishMsg(msg); err != nil {
		return fmt.Errorf("publish event %s: %w", ev.ID, err)
	}
	return nil
}
