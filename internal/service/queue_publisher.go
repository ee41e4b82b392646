// Package queue_publisher publishes domain events to RabbitMQ.  Errors are
// logged and returned so callers can ignore them without interrupting the
// main request flow.
package queue_publisher

import (
	"context"
	"encoding/json"
	"log"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	q "github.com/iliyamo/dayplanner/internal/queue"
)

// MirrorPublisher sends MirrorFailedEvents to the schedule.mirror queue.
// Each publish opens its own connection; drift events are rare.
type MirrorPublisher struct {
	url string
}

// NewMirrorPublisher returns a publisher for the broker at url.
func NewMirrorPublisher(url string) *MirrorPublisher {
	if url == "" {
		url = q.DefaultBrokerURL
	}
	return &MirrorPublisher{url: url}
}

// PublishMirrorFailed publishes event as a persistent JSON message.
func (p *MirrorPublisher) PublishMirrorFailed(ctx context.Context, event q.MirrorFailedEvent) error {
	conn, err := amqp.DialConfig(p.url, amqp.Config{Dial: amqp.DefaultDial(5 * time.Second)})
	if err != nil {
		log.Printf("rabbitmq: dial failed: %v", err)
		return err
	}
	defer func() { _ = conn.Close() }()

	ch, err := conn.Channel()
	if err != nil {
		log.Printf("rabbitmq: channel open failed: %v", err)
		return err
	}
	defer func() { _ = ch.Close() }()

	// durable so drift events survive broker restarts
	if _, err := ch.QueueDeclare(q.MirrorQueueName, true, false, false, false, nil); err != nil {
		log.Printf("rabbitmq: queue declare failed: %v", err)
		return err
	}

	body, err := json.Marshal(event)
	if err != nil {
		log.Printf("rabbitmq: marshal event failed: %v", err)
		return err
	}

	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	}
	if err := ch.PublishWithContext(ctx, "", q.MirrorQueueName, false, false, pub); err != nil {
		log.Printf("rabbitmq: publish failed: %v", err)
		return err
	}
	return nil
}
