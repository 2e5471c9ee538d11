package relay

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"chatrelay/pkg/models"
	"chatrelay/pkg/state/logger"
	"chatrelay/pkg/telemetry"

	"github.com/nats-io/nats.go"
)

// Conn is the publishing side of a NATS connection.
type Conn interface {
	Publish(subj string, data []byte) error
}

type Sink interface {
	Insert(ctx context.Context, m *models.Message) error
}

// Connect dials url with reconnects enabled for the lifetime of the process.
func Connect(url, name string) (*nats.Conn, error) {
	nc, err := nats.Connect(url,
		nats.Name(name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("nats_disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("nats_reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, err
	}
	logger.Info("nats_connected", "url", nc.ConnectedUrl())
	return nc, nil
}

// Publisher persists through next and then publishes the stored message
// on <prefix>.<recipient>. The stored copy is authoritative: a failed
// publish is logged and counted but not returned.
type Publisher struct {
	next    Sink
	conn    Conn
	prefix  string
	metrics *telemetry.Metrics
}

func NewPublisher(next Sink, conn Conn, prefix string, metrics *telemetry.Metrics) *Publisher {
	return &Publisher{next: next, conn: conn, prefix: strings.TrimSuffix(prefix, "."), metrics: metrics}
}

func (p *Publisher) Insert(ctx context.Context, m *models.Message) error {
	if err := p.next.Insert(ctx, m); err != nil {
		return err
	}
	data, err := json.Marshal(m)
	if err != nil {
		logger.Error("relay_encode_failed", "id", m.ID, "error", err)
		p.metrics.RelayPublished(false)
		return nil
	}
	subj := Subject(p.prefix, m.To)
	if err := p.conn.Publish(subj, data); err != nil {
		logger.Warn("relay_publish_failed", "subject", subj, "id", m.ID, "error", err)
		p.metrics.RelayPublished(false)
		return nil
	}
	p.metrics.RelayPublished(true)
	return nil
}

// Subject builds the delivery subject of a recipient. Characters with a
// meaning in NATS subjects are replaced by '_'.
func Subject(prefix, recipient string) string {
	token := strings.Map(func(r rune) rune {
		switch r {
		case '.', '*', '>', ' ', '\t', '\r', '\n':
			return '_'
		}
		return r
	}, recipient)
	if token == "" {
		token = "_"
	}
	return prefix + "." + token
}
