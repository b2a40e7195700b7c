package eventsvc

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/schoolstats/core"
	"github.com/trezcool/schoolstats/core/report"
)

type fakeConn struct {
	msgs []*nats.Msg
	err  error
}

func (c *fakeConn) PublishMsg(msg *nats.Msg) error {
	c.msgs = append(c.msgs, msg)
	return c.err
}

func TestNatsPublisher_Publish(t *testing.T) {
	conn := &fakeConn{}
	p := &NatsPublisher{conn: conn}
	evt := report.ChildCommitted{ReportID: "r1", SectionKey: "a", Status: report.StatusDone, At: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)}

	require.NoError(t, p.Publish(context.Background(), core.SubjectChildCommitted, evt))
	require.NoError(t, p.Publish(context.Background(), core.SubjectChildCommitted, evt))
	require.Len(t, conn.msgs, 2)

	msg := conn.msgs[0]
	assert.Equal(t, core.SubjectChildCommitted, msg.Subject)
	assert.NotEqual(t, msg.Header.Get(nats.MsgIdHdr), conn.msgs[1].Header.Get(nats.MsgIdHdr))

	var got report.ChildCommitted
	require.NoError(t, json.Unmarshal(msg.Data, &got))
	assert.Equal(t, evt, got)
}

func TestNatsPublisher_errors(t *testing.T) {
	p := &NatsPublisher{conn: &fakeConn{err: nats.ErrConnectionClosed}}
	err := p.Publish(context.Background(), "x", 1)
	assert.Equal(t, nats.ErrConnectionClosed, errors.Cause(err))

	assert.Error(t, p.Publish(context.Background(), "x", func() {}), "unencodable payload")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Equal(t, context.Canceled, p.Publish(ctx, "x", 1))
	assert.NoError(t, p.Close())
}

func TestNoopPublisher(t *testing.T) {
	assert.NoError(t, NewNoopPublisher().Publish(context.Background(), "x", nil))
}
