package kafka

import (
	"context"
	"flag"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/grafana/dskit/flagext"
	"github.com/pkg/errors"
	"github.com/segmentio/kafka-go"
)

// EndOfStreamHeader flags the empty message closing a topic.
const EndOfStreamHeader = "End-Of-Stream"

type Config struct {
	Brokers      flagext.StringSlice `yaml:"brokers"`
	BatchTimeout time.Duration       `yaml:"batch_timeout"`
}

func (c *Config) RegisterFlags(flagPrefix string, f *flag.FlagSet) {
	f.Var(&c.Brokers, flagPrefix+"kafka.brokers", `Kafka broker address. Can be repeated.`)
	f.DurationVar(&c.BatchTimeout, flagPrefix+"kafka.batch-timeout", 10*time.Millisecond, `Time limit on how often incomplete message batches are flushed.`)
}

// Publisher writes every message synchronously; the topic is the channel name.
type Publisher struct {
	writer *kafka.Writer
	log    log.Logger
}

func NewPublisher(cfg Config, log log.Logger) (*Publisher, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka: no brokers configured")
	}

	return &Publisher{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(cfg.Brokers...),
			Balancer:               &kafka.LeastBytes{},
			RequiredAcks:           kafka.RequireAll,
			BatchSize:              1,
			BatchTimeout:           cfg.BatchTimeout,
			AllowAutoTopicCreation: true,
		},
		log: log,
	}, nil
}

func (p *Publisher) Publish(ctx context.Context, channel string, msg string) error {
	if err := p.writer.WriteMessages(ctx, kafka.Message{
		Topic: channel,
		Value: []byte(msg),
	}); err != nil {
		return errors.Wrap(err, "kafka: write message")
	}

	return nil
}

func (p *Publisher) CloseChannel(ctx context.Context, channel string) error {
	if err := p.writer.WriteMessages(ctx, kafka.Message{
		Topic:   channel,
		Headers: []kafka.Header{{Key: EndOfStreamHeader, Value: []byte("true")}},
	}); err != nil {
		return errors.Wrap(err, "kafka: write end of stream")
	}

	_ = level.Debug(p.log).Log("msg", "end of stream published", "topic", channel)
	return nil
}

func (p *Publisher) Close() error {
	return errors.Wrap(p.writer.Close(), "kafka: close writer")
}
