package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/taskpilot/taskpilot/internal/core/domain"
	"github.com/taskpilot/taskpilot/internal/core/port"
	"go.uber.org/zap"
)

const (
	assignmentExchange = "tasks.direct"
	completionQueue    = "tasks.completions"
)

// Executor is the RabbitMQ execution backend: assignments go out on the
// tasks.direct exchange keyed by priority, outcomes come back on a
// completion queue and are fed to the scheduler's completion sink.
type Executor struct {
	conn *amqp.Connection
	ch   *amqp.Channel
	log  *zap.Logger
}

func NewExecutor(url string, log *zap.Logger) (*Executor, error) {
	var conn *amqp.Connection
	var err error

	// Retry connection up to 10 times with backoff
	maxRetries := 10
	for i := 1; i <= maxRetries; i++ {
		conn, err = amqp.Dial(url)
		if err == nil {
			ch, chErr := conn.Channel()
			if chErr == nil {
				if exErr := ch.ExchangeDeclare(
					assignmentExchange,
					"direct",
					true,  // durable
					false, // auto-delete
					false, // internal
					false, // no-wait
					nil,
				); exErr != nil {
					conn.Close()
					return nil, fmt.Errorf("declare exchange: %w", exErr)
				}
				return &Executor{
					conn: conn,
					ch:   ch,
					log:  log,
				}, nil
			}
			conn.Close()
			err = chErr
		}

		log.Warn("Failed to connect to RabbitMQ, retrying...",
			zap.Int("attempt", i),
			zap.Int("max_retries", maxRetries),
			zap.Error(err),
		)

		// Simple incremental backoff
		time.Sleep(time.Duration(i*2) * time.Second)
	}

	return nil, fmt.Errorf("failed to connect to RabbitMQ after %d attempts: %w", maxRetries, err)
}

// routingKey maps the scheduler's priority levels onto the three queue
// bindings remote workers consume from.
func routingKey(p domain.Priority) string {
	switch p {
	case domain.PriorityCritical, domain.PriorityHigh:
		return "task.high"
	case domain.PriorityLow:
		return "task.low"
	}
	return "task.normal"
}

func amqpPriority(p domain.Priority) uint8 {
	switch p {
	case domain.PriorityCritical:
		return 9
	case domain.PriorityHigh:
		return 7
	case domain.PriorityMedium:
		return 5
	}
	return 2
}

// Execute publishes the assignment for the remote worker fleet. The outcome
// arrives later through ConsumeCompletions.
func (e *Executor) Execute(ctx context.Context, a port.Assignment) error {
	body, err := json.Marshal(a)
	if err != nil {
		return err
	}

	key := routingKey(a.Priority)
	err = e.ch.PublishWithContext(ctx,
		assignmentExchange, // Exchange
		key,                // Routing key
		false,              // Mandatory
		false,              // Immediate
		amqp.Publishing{
			ContentType: "application/json",
			Body:        body,
			Priority:    amqpPriority(a.Priority),
		})
	if err != nil {
		e.log.Error("Failed to publish assignment", zap.String("task_id", a.TaskID), zap.Error(err))
		return err
	}

	e.log.Info("Published assignment",
		zap.String("task_id", a.TaskID),
		zap.String("worker_id", a.WorkerID),
		zap.String("key", key))
	return nil
}

// ConsumeCompletions listens on the completion queue and forwards outcomes
// to the sink. Malformed messages are discarded; delivery is acked only
// after the sink accepted the report.
func (e *Executor) ConsumeCompletions(ctx context.Context, sink port.CompletionSink) error {
	_, err := e.ch.QueueDeclare(
		completionQueue, // name
		true,            // durable
		false,           // delete when unused
		false,           // exclusive
		false,           // no-wait
		nil,             // arguments
	)
	if err != nil {
		return err
	}

	msgs, err := e.ch.Consume(
		completionQueue, // queue
		"",              // consumer
		false,           // auto-ack (ack after the sink took the report)
		false,           // exclusive
		false,           // no-local
		false,           // no-wait
		nil,             // args
	)
	if err != nil {
		return err
	}

	e.log.Info("Started consuming completions", zap.String("queue", completionQueue))

	go func() {
		for d := range msgs {
			var c port.Completion
			if err := json.Unmarshal(d.Body, &c); err != nil {
				e.log.Error("Failed to unmarshal completion", zap.Error(err))
				d.Nack(false, false) // discard invalid message
				continue
			}

			sink.ReportCompletion(c)
			d.Ack(false)

			e.log.Debug("Completion delivered",
				zap.String("task_id", c.TaskID),
				zap.Bool("success", c.Success))
		}
	}()

	return nil
}

// Close tears down the channel and connection.
func (e *Executor) Close() error {
	if err := e.ch.Close(); err != nil {
		return err
	}
	return e.conn.Close()
}
