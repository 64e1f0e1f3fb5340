package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/kazz187/asmith/internal/eventbus"
)

const DefaultExchange = "asmith.events"

type Config struct {
	URL      string
	Exchange string
}

// Publisher is the part of *amqp.Channel the relay needs.
type Publisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// Relay forwards domain events to an AMQP topic exchange. The routing key is
// the event type, so consumers can bind to patterns such as "task.*".
type Relay struct {
	pub      Publisher
	exchange string
	conn     *amqp.Connection
	ch       *amqp.Channel
}

func New(pub Publisher, exchange string) *Relay {
	if exchange == "" {
		exchange = DefaultExchange
	}
	return &Relay{pub: pub, exchange: exchange}
}

// Dial connects to the broker and declares the exchange.
func Dial(cfg Config) (*Relay, error) {
	if cfg.URL == "" {
		return nil, errors.New("amqp url is required")
	}
	exchange := cfg.Exchange
	if exchange == "" {
		exchange = DefaultExchange
	}
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to amqp broker: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to open amqp channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("failed to declare exchange %s: %w", exchange, err)
	}
	r := New(ch, exchange)
	r.conn = conn
	r.ch = ch
	return r, nil
}

func (r *Relay) Forward(ctx context.Context, ev *eventbus.Event) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	return r.pub.PublishWithContext(ctx, r.exchange, string(ev.Type), false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    ev.ID,
		Type:         string(ev.Type),
		Timestamp:    ev.CreatedAt,
		AppId:        "asmith",
		Body:         body,
	})
}

// Run forwards events until ctx is done or events is closed. A failed publish
// is logged and the event dropped.
func (r *Relay) Run(ctx context.Context, events <-chan *eventbus.Event) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			if err := r.Forward(ctx, ev); err != nil {
				slog.WarnContext(ctx, "failed to relay event", "event_id", ev.ID, "type", ev.Type, "error", err)
			}
		}
	}
}

func (r *Relay) Close() error {
	if r.ch != nil {
		_ = r.ch.Close()
	}
	if r.conn != nil {
		return r.conn.Close()
	}
	return nil
}
