package cache

import (
	"context"
	"fmt"
	"time"

	redisv9 "github.com/redis/go-redis/v9"
)

// StepJournal records the finished steps of an ingestion job in a redis hash
// so a redelivered job resumes after its last committed step.
type StepJournal struct {
	client redisv9.Cmdable
	ttl    time.Duration
}

func NewStepJournal(client redisv9.Cmdable, ttl time.Duration) *StepJournal {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &StepJournal{client: client, ttl: ttl}
}

// Run calls fn unless step is already journaled for jobID. The step is
// journaled only when fn succeeds.
func (j *StepJournal) Run(ctx context.Context, jobID, step string, fn func(context.Context) error) error {
	key := stepsKey(jobID)
	done, err := j.client.HExists(ctx, key, step).Result()
	if err != nil {
		return fmt.Errorf("redis check step %s failed: %w", step, err)
	}
	if done {
		return nil
	}

	if err := fn(ctx); err != nil {
		return err
	}

	if err := j.client.HSet(ctx, key, step, time.Now().UTC().Format(time.RFC3339)).Err(); err != nil {
		return fmt.Errorf("redis record step %s failed: %w", step, err)
	}
	if err := j.client.Expire(ctx, key, j.ttl).Err(); err != nil {
		return fmt.Errorf("redis expire steps failed: %w", err)
	}
	return nil
}

// Reset forgets every step of jobID.
func (j *StepJournal) Reset(ctx context.Context, jobID string) error {
	if err := j.client.Del(ctx, stepsKey(jobID)).Err(); err != nil {
		return fmt.Errorf("redis reset steps failed: %w", err)
	}
	return nil
}

func stepsKey(jobID string) string {
	return fmt.Sprintf("ingest:steps:%s", jobID)
}
