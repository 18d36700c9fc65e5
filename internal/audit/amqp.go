package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/castlemilk/pfinance/spending/internal/model"
	"github.com/rabbitmq/amqp091-go"
)

const publishTimeout = 5 * time.Second

// publisher is the part of *amqp091.Channel the recorder uses.
type publisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp091.Publishing) error
}

// AMQPRecorder publishes each report as a persistent JSON message to a
// durable direct exchange.
type AMQPRecorder struct {
	conn       *amqp091.Connection
	channel    publisher
	exchange   string
	routingKey string
}

// NewAMQPRecorder dials url and declares the exchange.
func NewAMQPRecorder(url, exchange, routingKey string) (*AMQPRecorder, error) {
	conn, err := amqp091.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial AMQP: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	err = channel.ExchangeDeclare(
		exchange, // name
		"direct", // type
		true,     // durable
		false,    // auto-deleted
		false,    // internal
		false,    // no-wait
		nil,      // arguments
	)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("declare exchange: %w", err)
	}

	return &AMQPRecorder{
		conn:       conn,
		channel:    channel,
		exchange:   exchange,
		routingKey: routingKey,
	}, nil
}

func (r *AMQPRecorder) Record(ctx context.Context, report *model.ReconciliationReport) error {
	body, err := encodeReport(report)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	err = r.channel.PublishWithContext(
		ctx,
		r.exchange,   // exchange
		r.routingKey, // routing key
		false,        // mandatory
		false,        // immediate
		amqp091.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp091.Persistent,
			Timestamp:    report.CompletedAt,
			MessageId:    report.OwnerID + "/" + report.StartedAt.UTC().Format(time.RFC3339Nano),
			Body:         body,
		},
	)
	if err != nil {
		return fmt.Errorf("publish report: %w", err)
	}
	return nil
}

func (r *AMQPRecorder) Close() error {
	if r.conn != nil {
		return r.conn.Close()
	}
	return nil
}
