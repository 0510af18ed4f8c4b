// Package nats publishes snapshot summaries to a NATS subject.
package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"poolwatch/internal/config"
	"poolwatch/internal/observability"
	"poolwatch/internal/state"
)

// DefaultSubject is used when the config leaves the subject empty.
const DefaultSubject = "poolwatch.snapshot"

// Publisher sends every published snapshot summary to a subject.
type Publisher struct {
	nc      *nats.Conn
	subject string
	log     zerolog.Logger
}

var _ state.Listener = (*Publisher)(nil)

// Connect dials NATS and returns a publisher.
func Connect(cfg *config.NATSConfig, log zerolog.Logger) (*Publisher, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if cfg.URL == "" {
		return nil, errors.New("nats url is required")
	}

	subject := cfg.Subject
	if subject == "" {
		subject = DefaultSubject
	}

	log = log.With().Str("component", "nats").Logger()

	nc, err := nats.Connect(cfg.URL,
		nats.Name("poolwatch"),
		nats.Timeout(5*time.Second),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warn().Err(err).Msg("nats disconnected")
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			log.Info().Str("url", c.ConnectedUrl()).Msg("nats reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}

	log.Info().Str("url", cfg.URL).Str("subject", subject).Msg("connected to nats")
	return &Publisher{nc: nc, subject: subject, log: log}, nil
}

// Name implements state.Listener.
func (p *Publisher) Name() string { return "nats" }

// Subject returns the subject summaries are published to.
func (p *Publisher) Subject() string { return p.subject }

// OnSnapshot publishes the summary of u.Snapshot.
func (p *Publisher) OnSnapshot(_ context.Context, u state.Update) error {
	err := p.publish(state.Summarize(u.Snapshot))
	observability.RecordPublish(err)
	return err
}

func (p *Publisher) publish(sum state.Summary) error {
	if p.nc == nil {
		return errors.New("nats connection is not open")
	}
	data, err := json.Marshal(sum)
	if err != nil {
		return fmt.Errorf("marshal summary: %w", err)
	}
	if err := p.nc.Publish(p.subject, data); err != nil {
		return fmt.Errorf("publish %s: %w", p.subject, err)
	}
	return nil
}

// Ready reports whether the connection is up.
func (p *Publisher) Ready() bool {
	return p.nc != nil && p.nc.Status() == nats.CONNECTED
}

// Close drains and closes the connection. Safe to call more than once.
func (p *Publisher) Close() error {
	if p.nc == nil || p.nc.IsClosed() || p.nc.IsDraining() {
		return nil
	}
	if err := p.nc.Drain(); err != nil {
		p.nc.Close()
		return fmt.Errorf("drain nats: %w", err)
	}
	p.log.Info().Msg("nats connection closed")
	return nil
}
