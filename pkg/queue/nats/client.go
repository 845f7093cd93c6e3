package nats

import (
	"context"
	"flag"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/nats-io/nats.go"
	"github.com/pkg/errors"
)

// EndOfStreamHeader flags the empty message closing a channel.
const EndOfStreamHeader = "End-Of-Stream"

type Config struct {
	Url          string        `yaml:"url"`
	FlushTimeout time.Duration `yaml:"flush_timeout"`
}

func (c *Config) RegisterFlags(flagPrefix string, f *flag.FlagSet) {
	f.StringVar(&c.Url, flagPrefix+"nats.url", nats.DefaultURL, `Nats server url.`)
	f.DurationVar(&c.FlushTimeout, flagPrefix+"nats.flush-timeout", 5*time.Second, `Time to wait for the server to acknowledge published messages.`)
}

type Publisher struct {
	conn    *nats.Conn
	timeout time.Duration
	log     log.Logger
}

func NewPublisher(cfg Config, log log.Logger) (*Publisher, error) {
	conn, err := nats.Connect(cfg.Url, nats.Name("eprints-adaptor"))
	if err != nil {
		return nil, errors.Wrap(err, "initialize nats connection")
	}

	return &Publisher{
		conn:    conn,
		timeout: cfg.FlushTimeout,
		log:     log,
	}, nil
}

func (p *Publisher) Publish(ctx context.Context, channel string, msg string) error {
	if err := p.conn.Publish(channel, []byte(msg)); err != nil {
		return errors.Wrap(err, "nats publish")
	}

	return p.flush(ctx)
}

func (p *Publisher) CloseChannel(ctx context.Context, channel string) error {
	m := nats.NewMsg(channel)
	m.Header.Set(EndOfStreamHeader, "true")
	if err := p.conn.PublishMsg(m); err != nil {
		return errors.Wrap(err, "nats publish end of stream")
	}

	_ = level.Debug(p.log).Log("msg", "end of stream published", "channel", channel)
	return p.flush(ctx)
}

func (p *Publisher) Close() error {
	if err := p.conn.Drain(); err != nil {
		return errors.Wrap(err, "nats drain")
	}

	return nil
}

func (p *Publisher) flush(ctx context.Context) error {
	var err error
	if _, ok := ctx.Deadline(); ok {
		err = p.conn.FlushWithContext(ctx)
	} else {
		err = p.conn.FlushTimeout(p.timeout)
	}
	if err != nil {
		return errors.Wrap(err, "nats flush")
	}

	return nil
}
