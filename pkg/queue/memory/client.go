package memory

import (
	"context"
	"sync"

	"github.com/pkg/errors"
)

// Publisher keeps published messages per channel in memory.
type Publisher struct {
	mu       sync.Mutex
	messages map[string][]string
	closed   map[string]bool
}

func NewPublisher() *Publisher {
	return &Publisher{
		messages: make(map[string][]string),
		closed:   make(map[string]bool),
	}
}

func (p *Publisher) Publish(_ context.Context, channel string, msg string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed[channel] {
		return errors.Errorf("memory: channel %s is closed", channel)
	}
	p.messages[channel] = append(p.messages[channel], msg)
	return nil
}

func (p *Publisher) CloseChannel(_ context.Context, channel string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.closed[channel] = true
	return nil
}

func (p *Publisher) Close() error {
	return nil
}

// Messages returns a copy of everything published to channel.
func (p *Publisher) Messages(channel string) []string {
	p.mu.Lock()
	defer p.mu.Unlock()

	return append([]string(nil), p.messages[channel]...)
}

func (p *Publisher) Closed(channel string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.closed[channel]
}
