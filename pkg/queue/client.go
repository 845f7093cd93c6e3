package queue

import (
	"context"
	"flag"

	"github.com/ValerySidorin/eprints-adaptor/pkg/queue/kafka"
	"github.com/ValerySidorin/eprints-adaptor/pkg/queue/memory"
	"github.com/ValerySidorin/eprints-adaptor/pkg/queue/nats"
	"github.com/go-kit/log"
	"github.com/pkg/errors"
)

type Config struct {
	Type           string       `yaml:"type"`
	PrimaryChannel string       `yaml:"primary_channel"`
	InvalidChannel string       `yaml:"invalid_channel"`
	Nats           nats.Config  `yaml:"nats"`
	Kafka          kafka.Config `yaml:"kafka"`
}

func (c *Config) RegisterFlags(flagPrefix string, f *flag.FlagSet) {
	f.StringVar(&c.Type, flagPrefix+"type", "", `Queue messages are published to: nats, kafka or memory.`)
	f.StringVar(&c.PrimaryChannel, flagPrefix+"primary-channel", "", `Channel valid messages are published to.`)
	f.StringVar(&c.InvalidChannel, flagPrefix+"invalid-channel", "", `Channel messages of failed records are published to.`)
	c.Nats.RegisterFlags(flagPrefix, f)
	c.Kafka.RegisterFlags(flagPrefix, f)
}

// Publisher writes text messages to named channels. CloseChannel emits an
// end-of-stream marker on the channel, consumers stop reading after it.
type Publisher interface {
	Publish(ctx context.Context, channel string, msg string) error
	CloseChannel(ctx context.Context, channel string) error
	Close() error
}

func NewPublisher(cfg Config, log log.Logger) (Publisher, error) {
	switch cfg.Type {
	case "nats":
		return nats.NewPublisher(cfg.Nats, log)
	case "kafka":
		return kafka.NewPublisher(cfg.Kafka, log)
	case "memory":
		return memory.NewPublisher(), nil
	default:
		return nil, errors.New("invalid queue type")
	}
}

// Output binds a publisher to the primary and invalid channels.
type Output struct {
	pub     Publisher
	primary string
	invalid string
}

func NewOutput(pub Publisher, primary, invalid string) *Output {
	return &Output{
		pub:     pub,
		primary: primary,
		invalid: invalid,
	}
}

func (o *Output) PublishPrimary(ctx context.Context, msg string) error {
	return errors.Wrapf(o.pub.Publish(ctx, o.primary, msg), "queue: publish to %s", o.primary)
}

func (o *Output) PublishInvalid(ctx context.Context, msg string) error {
	return errors.Wrapf(o.pub.Publish(ctx, o.invalid, msg), "queue: publish to %s", o.invalid)
}

// ClosePrimary signals end of stream on the primary channel.
func (o *Output) ClosePrimary(ctx context.Context) error {
	return errors.Wrapf(o.pub.CloseChannel(ctx, o.primary), "queue: close %s", o.primary)
}

func (o *Output) Close() error {
	return o.pub.Close()
}
