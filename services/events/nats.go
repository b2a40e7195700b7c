// Package eventsvc publishes the domain events.
package eventsvc

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/pkg/errors"

	"github.com/trezcool/schoolstats/core"
)

// msgPublisher is satisfied by *nats.Conn.
type msgPublisher interface {
	PublishMsg(msg *nats.Msg) error
}

type NatsPublisher struct {
	conn msgPublisher
	nc   *nats.Conn
}

var _ core.EventPublisher = (*NatsPublisher)(nil)

// Connect opens a connection to the NATS server at url, reconnecting forever.
func Connect(url, appName string) (*NatsPublisher, error) {
	nc, err := nats.Connect(url, nats.Name(appName), nats.MaxReconnects(-1))
	if err != nil {
		return nil, errors.Wrapf(err, "connecting to nats at %s", url)
	}
	return &NatsPublisher{conn: nc, nc: nc}, nil
}

// Publish sends payload as JSON. Every message gets a unique Nats-Msg-Id header.
func (p *NatsPublisher) Publish(ctx context.Context, subject string, payload interface{}) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return errors.Wrapf(err, "encoding %s event", subject)
	}
	msg := nats.NewMsg(subject)
	msg.Data = data
	msg.Header.Set(nats.MsgIdHdr, uuid.NewString())
	msg.Header.Set("Content-Type", "application/json")
	return errors.Wrapf(p.conn.PublishMsg(msg), "publishing %s event", subject)
}

// Close drains the connection.
func (p *NatsPublisher) Close() error {
	if p.nc == nil {
		return nil
	}
	return p.nc.Drain()
}

type noopPublisher struct{}

// NewNoopPublisher drops every event. Used when no NATS server is configured.
func NewNoopPublisher() core.EventPublisher { return noopPublisher{} }

func (noopPublisher) Publish(context.Context, string, interface{}) error { return nil }
