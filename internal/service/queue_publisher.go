// Package queue_publisher provides functions to publish case lifecycle
// events to RabbitMQ. Errors are logged and returned so callers can ignore
// broker failures without interrupting the main request flow.
package queue_publisher

import (
    "context"
    "encoding/json"
    "log"
    "time"

    amqp "github.com/rabbitmq/amqp091-go"

    q "github.com/dhruvindave007/janmitra/internal/queue"
)

// PublishCaseEvent publishes a CaseEvent to the "case.events" queue. The
// function never panics; any error is logged and returned so the caller can
// choose to ignore it. Messages are marked as persistent.
func PublishCaseEvent(ctx context.Context, event q.CaseEvent) error {
    conn, err := amqp.Dial(q.BrokerURL())
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

    // Ensure the queue exists (idempotent). Durable so messages survive broker restarts.
    if _, err := ch.QueueDeclare(
        q.CaseEventQueue, // name
        true,             // durable
        false,            // autoDelete
        false,            // exclusive
        false,            // noWait
        nil,              // args
    ); err != nil {
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
        DeliveryMode: amqp.Persistent, // store on disk
        Timestamp:    time.Now().UTC(),
        Body:         body,
    }

    if err := ch.PublishWithContext(ctx,
        "",               // default exchange
        q.CaseEventQueue, // routing key = queue name
        false,            // mandatory
        false,            // immediate
        pub,
    ); err != nil {
        log.Printf("rabbitmq: publish failed: %v", err)
        return err
    }

    return nil
}
