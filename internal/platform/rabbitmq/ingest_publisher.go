package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"

	"chatpdf/internal/model"
)

// AttemptHeader carries the 1-based delivery attempt of an ingest job.
const AttemptHeader = "x-attempt"

type IngestPublisher struct {
	conn      *amqp.Connection
	queueName string
}

func NewIngestPublisher(conn *amqp.Connection, queueName string) *IngestPublisher {
	return &IngestPublisher{
		conn:      conn,
		queueName: queueName,
	}
}

func (p *IngestPublisher) PublishIngest(ctx context.Context, job model.IngestJob) error {
	return p.Republish(ctx, job, 1)
}

// Republish queues job again with the given attempt number.
func (p *IngestPublisher) Republish(ctx context.Context, job model.IngestJob, attempt int) error {
	msg, err := EncodeIngestJob(job, attempt)
	if err != nil {
		return err
	}

	ch, err := p.conn.Channel()
	if err != nil {
		return fmt.Errorf("open rabbitmq channel failed: %w", err)
	}
	defer ch.Close()

	if err := DeclareQueue(ch, p.queueName); err != nil {
		return err
	}
	if err := ch.PublishWithContext(ctx, "", p.queueName, false, false, msg); err != nil {
		return fmt.Errorf("publish ingest job failed: %w", err)
	}
	return nil
}

// EncodeIngestJob builds the persistent JSON message for job.
func EncodeIngestJob(job model.IngestJob, attempt int) (amqp.Publishing, error) {
	payload, err := json.Marshal(job)
	if err != nil {
		return amqp.Publishing{}, fmt.Errorf("marshal ingest job failed: %w", err)
	}
	return amqp.Publishing{
		ContentType:  "application/json",
		MessageId:    job.JobID,
		Body:         payload,
		DeliveryMode: amqp.Persistent,
		Headers:      amqp.Table{AttemptHeader: int32(attempt)},
	}, nil
}

// AttemptOf reads the attempt header, defaulting to the first attempt.
func AttemptOf(headers amqp.Table) int {
	switch v := headers[AttemptHeader].(type) {
	case int32:
		return max(int(v), 1)
	case int64:
		return max(int(v), 1)
	case int:
		return max(v, 1)
	case int16:
		return max(int(v), 1)
	case int8:
		return max(int(v), 1)
	default:
		return 1
	}
}
