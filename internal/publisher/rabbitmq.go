package publisher

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/goccy/go-json"
	amqp "github.com/rabbitmq/amqp091-go"

	"lms_extractor/internal/domain"
)

type RabbitMQ struct {
	conn       *amqp.Connection
	channel    *amqp.Channel
	exchange   string
	routingKey string
	logger     *slog.Logger
}

type Config struct {
	URL        string
	Exchange   string
	RoutingKey string
	QueueName  string
}

func NewRabbitMQ(cfg Config, logger *slog.Logger) (*RabbitMQ, error) {
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("connect to rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	if err := declareTopology(ch, cfg); err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}

	logger.Info("connected to rabbitmq",
		"exchange", cfg.Exchange,
		"queue", cfg.QueueName,
		"routing_key", cfg.RoutingKey,
	)

	return &RabbitMQ{
		conn:       conn,
		channel:    ch,
		exchange:   cfg.Exchange,
		routingKey: cfg.RoutingKey,
		logger:     logger,
	}, nil
}

// declareTopology declares a durable direct exchange and a durable queue
// bound to it with the routing key.
func declareTopology(ch *amqp.Channel, cfg Config) error {
	if err := ch.ExchangeDeclare(cfg.Exchange, "direct", true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare exchange: %w", err)
	}

	q, err := ch.QueueDeclare(cfg.QueueName, true, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("declare queue: %w", err)
	}

	if err := ch.QueueBind(q.Name, cfg.RoutingKey, cfg.Exchange, false, nil); err != nil {
		return fmt.Errorf("bind queue: %w", err)
	}
	return nil
}

// RecordMessage is the body of every published message.
type RecordMessage struct {
	Stream      string         `json:"stream"`
	Key         string         `json:"key"`
	Record      map[string]any `json:"record"`
	ExtractedAt time.Time      `json:"extracted_at"`
	Timestamp   time.Time      `json:"timestamp"`
}

// NewPublishing builds the AMQP message for a record. The stream name is
// carried in a header so consumers can route without decoding the body.
func NewPublishing(record *domain.Record, now time.Time) (amqp.Publishing, error) {
	msg := RecordMessage{
		Stream:      record.Stream,
		Key:         record.Key,
		Record:      record.Data,
		ExtractedAt: record.ExtractedAt,
		Timestamp:   now.UTC(),
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return amqp.Publishing{}, fmt.Errorf("marshal message: %w", err)
	}

	return amqp.Publishing{
		DeliveryMode: amqp.Persistent,
		ContentType:  "application/json",
		MessageId:    record.Stream + "/" + record.Key,
		Type:         record.Stream,
		Headers:      amqp.Table{"stream": record.Stream, "key": record.Key},
		Body:         body,
		Timestamp:    now,
	}, nil
}

func (r *RabbitMQ) Publish(ctx context.Context, record *domain.Record) error {
	pub, err := NewPublishing(record, time.Now())
	if err != nil {
		return err
	}

	err = r.channel.PublishWithContext(ctx, r.exchange, r.routingKey, false, false, pub)
	if err != nil {
		return fmt.Errorf("publish message: %w", err)
	}

	r.logger.Debug("published record",
		"stream", record.Stream,
		"key", record.Key,
	)

	return nil
}

func (r *RabbitMQ) Close() error {
	if r.channel != nil {
		r.channel.Close()
	}
	if r.conn != nil {
		return r.conn.Close()
	}
	return nil
}
