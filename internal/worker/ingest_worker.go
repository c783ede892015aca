package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"chatpdf/internal/app"
	"chatpdf/internal/model"
	"chatpdf/internal/platform/rabbitmq"
)

type Processor interface {
	Process(ctx context.Context, job model.IngestJob) (*model.IngestOutcome, error)
}

type Republisher interface {
	Republish(ctx context.Context, job model.IngestJob, attempt int) error
}

type Options struct {
	QueueName   string
	MaxAttempts int
	Prefetch    int
	// RetryDelay is the wait before the first republish; it doubles per attempt.
	RetryDelay time.Duration
}

// IngestWorker consumes ingest jobs and runs them through the ingestion
// pipeline, republishing failed jobs until they run out of attempts.
type IngestWorker struct {
	conn      *amqp.Connection
	processor Processor
	publisher Republisher
	opts      Options
	logger    *slog.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewIngestWorker(conn *amqp.Connection, processor Processor, publisher Republisher, opts Options, logger *slog.Logger) *IngestWorker {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 3
	}
	if opts.Prefetch <= 0 {
		opts.Prefetch = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &IngestWorker{
		conn:      conn,
		processor: processor,
		publisher: publisher,
		opts:      opts,
		logger:    logger.With("component", "ingest_worker"),
	}
}

func (w *IngestWorker) Start(ctx context.Context) error {
	if w.cancel != nil {
		return nil
	}

	workerCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel

	ch, err := w.conn.Channel()
	if err != nil {
		cancel()
		return fmt.Errorf("open worker channel failed: %w", err)
	}
	if err := rabbitmq.DeclareQueue(ch, w.opts.QueueName); err != nil {
		_ = ch.Close()
		cancel()
		return err
	}
	if err := ch.Qos(w.opts.Prefetch, 0, false); err != nil {
		_ = ch.Close()
		cancel()
		return fmt.Errorf("set worker prefetch failed: %w", err)
	}

	deliveries, err := ch.Consume(
		w.opts.QueueName,
		"",
		false,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		_ = ch.Close()
		cancel()
		return fmt.Errorf("consume queue failed: %w", err)
	}

	w.logger.Info("ingest worker started", "queue", w.opts.QueueName, "prefetch", w.opts.Prefetch)
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		defer ch.Close()

		for {
			select {
			case <-workerCtx.Done():
				return
			case d, ok := <-deliveries:
				if !ok {
					w.logger.Warn("delivery channel closed")
					return
				}
				w.Handle(workerCtx, d)
			}
		}
	}()

	return nil
}

func (w *IngestWorker) Close() {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
}

// Handle processes one delivery and settles it.
func (w *IngestWorker) Handle(ctx context.Context, d amqp.Delivery) {
	var job model.IngestJob
	if err := json.Unmarshal(d.Body, &job); err != nil || strings.TrimSpace(job.DocumentID) == "" {
		w.logger.Error("drop malformed ingest job", "body", string(d.Body), "error", err)
		_ = d.Ack(false)
		return
	}
	if job.JobID == "" {
		job.JobID = d.MessageId
	}
	attempt := rabbitmq.AttemptOf(d.Headers)
	log := w.logger.With("document_id", job.DocumentID, "job_id", job.JobID, "attempt", attempt)

	out, err := w.processor.Process(ctx, job)
	if err == nil {
		log.Info("ingest job done", "status", out.Status, "total_chunks", out.TotalChunks)
		_ = d.Ack(false)
		return
	}

	switch {
	case ctx.Err() != nil:
		log.Warn("ingest job interrupted, requeueing", "error", err)
		_ = d.Nack(false, true)
	case errors.Is(err, app.ErrInvalidTransition), errors.Is(err, app.ErrDocumentNotFound), errors.Is(err, app.ErrInvalidInput):
		log.Warn("drop ingest job", "error", err)
		_ = d.Ack(false)
	case attempt >= w.opts.MaxAttempts:
		log.Error("ingest job exhausted its attempts", "max_attempts", w.opts.MaxAttempts, "error", err)
		_ = d.Ack(false)
	default:
		w.retry(ctx, d, job, attempt, err, log)
	}
}

func (w *IngestWorker) retry(ctx context.Context, d amqp.Delivery, job model.IngestJob, attempt int, cause error, log *slog.Logger) {
	if delay := w.backoff(attempt); delay > 0 {
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			_ = d.Nack(false, true)
			return
		case <-timer.C:
		}
	}

	if err := w.publisher.Republish(ctx, job, attempt+1); err != nil {
		log.Error("republish ingest job failed", "error", err)
		_ = d.Nack(false, true)
		return
	}
	log.Warn("ingest job failed, retrying", "next_attempt", attempt+1, "error", cause)
	_ = d.Ack(false)
}

func (w *IngestWorker) backoff(attempt int) time.Duration {
	if w.opts.RetryDelay <= 0 {
		return 0
	}
	delay := w.opts.RetryDelay << (attempt - 1)
	return min(delay, 30*time.Second)
}
