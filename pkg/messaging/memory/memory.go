package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/jwalitptl/telehealth-api/pkg/messaging"
)

const bufferSize = 100

type subscriber struct {
	ch   chan []byte
	done <-chan struct{}
}

// Broker is an in-process broker for single-instance deployments and tests.
// Slow subscribers drop messages once their buffer is full.
type Broker struct {
	mu     sync.RWMutex
	subs   map[string]map[*subscriber]struct{}
	closed bool
}

func NewBroker() *Broker {
	return &Broker{subs: make(map[string]map[*subscriber]struct{})}
}

var _ messaging.Broker = (*Broker)(nil)

func (b *Broker) Publish(ctx context.Context, channel string, message interface{}) error {
	payload, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return fmt.Errorf("broker closed")
	}

	for sub := range b.subs[channel] {
		select {
		case <-sub.done:
		case sub.ch <- payload:
		default:
		}
	}
	return nil
}

func (b *Broker) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, fmt.Errorf("broker closed")
	}
	sub := &subscriber{ch: make(chan []byte, bufferSize), done: ctx.Done()}
	if b.subs[channel] == nil {
		b.subs[channel] = make(map[*subscriber]struct{})
	}
	b.subs[channel][sub] = struct{}{}
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.remove(channel, sub)
	}()

	return sub.ch, nil
}

func (b *Broker) remove(channel string, sub *subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subs[channel][sub]; !ok {
		return
	}
	delete(b.subs[channel], sub)
	if len(b.subs[channel]) == 0 {
		delete(b.subs, channel)
	}
	close(sub.ch)
}

// Subscribers reports how many live subscriptions a channel has.
func (b *Broker) Subscribers(channel string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[channel])
}

func (b *Broker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	for channel, subs := range b.subs {
		for sub := range subs {
			close(sub.ch)
		}
		delete(b.subs, channel)
	}
	return nil
}
