// Package eventbus publishes code request outcomes on NATS JetStream
package eventbus

import (
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// Stream and subject layout
const (
	StreamName    = "UCWS_GENERATION"
	SubjectPrefix = "ucws.generation"
)

// Bus holds the NATS connection and its JetStream context
type Bus struct {
	nc     *nats.Conn
	js     nats.JetStreamContext
	logger *zap.Logger
}

// Connect dials NATS and prepares the generation stream. A bus whose
// JetStream setup failed still publishes on core NATS.
func Connect(natsURL string, logger *zap.Logger) (*Bus, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if natsURL == "" {
		natsURL = nats.DefaultURL
	}
	nc, err := nats.Connect(natsURL,
		nats.Name("ucws"),
		nats.Timeout(5*time.Second),
		nats.MaxReconnects(3),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}
	b := &Bus{nc: nc, logger: logger}

	js, err := nc.JetStream()
	if err != nil {
		logger.Warn("JetStream unavailable, falling back to core NATS", zap.Error(err))
		return b, nil
	}
	if err := ensureStream(js); err != nil {
		logger.Warn("could not provision generation stream", zap.Error(err))
		return b, nil
	}
	b.js = js
	logger.Info("NATS and JetStream initialized", zap.String("url", natsURL))
	return b, nil
}

func ensureStream(js nats.JetStreamContext) error {
	_, err := js.StreamInfo(StreamName)
	if err == nil {
		return nil
	}
	if !errors.Is(err, nats.ErrStreamNotFound) {
		return err
	}
	_, err = js.AddStream(&nats.StreamConfig{
		Name:     StreamName,
		Subjects: []string{SubjectPrefix + ".>"},
		MaxAge:   7 * 24 * time.Hour,
	})
	return err
}

// Connected reports whether the connection is usable
func (b *Bus) Connected() bool {
	return b != nil && b.nc != nil && b.nc.IsConnected()
}

// Close drains and closes the connection
func (b *Bus) Close() {
	if b == nil || b.nc == nil {
		return
	}
	if err := b.nc.Drain(); err != nil {
		b.nc.Close()
	}
}

// Subscribe delivers events published under the generation prefix. contextFilter
// narrows to a single request context; empty means all.
func (b *Bus) Subscribe(contextFilter string, handler func(ResultEvent)) (*nats.Subscription, error) {
	if !b.Connected() {
		return nil, nats.ErrConnectionClosed
	}
	subject := SubjectPrefix + ".>"
	if contextFilter != "" {
		subject = Subject(contextFilter)
	}
	return b.nc.Subscribe(subject, func(msg *nats.Msg) {
		ev, err := DecodeEvent(msg.Data)
		if err != nil {
			b.logger.Warn("dropping malformed event", zap.String("subject", msg.Subject), zap.Error(err))
			return
		}
		handler(ev)
	})
}
