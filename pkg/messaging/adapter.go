package messaging

import (
	"context"
	"encoding/json"

	"github.com/rs/zerolog/log"
)

// BrokerAdapter exposes a Broker as a callback-driven MessageBroker.
type BrokerAdapter struct {
	broker Broker
}

func NewBrokerAdapter(broker Broker) MessageBroker {
	return &BrokerAdapter{broker: broker}
}

func (a *BrokerAdapter) Publish(ctx context.Context, topic string, payload []byte) error {
	return a.broker.Publish(ctx, topic, json.RawMessage(payload))
}

func (a *BrokerAdapter) Close() error {
	return a.broker.Close()
}

// Subscribe runs handler for every message on topic until ctx is done.
func (a *BrokerAdapter) Subscribe(ctx context.Context, topic string, handler func([]byte) error) error {
	msgChan, err := a.broker.Subscribe(ctx, topic)
	if err != nil {
		return err
	}

	go func() {
		for msg := range msgChan {
			if err := handler(msg); err != nil {
				log.Warn().Err(err).Str("topic", topic).Msg("message handler failed")
			}
		}
	}()

	return nil
}
