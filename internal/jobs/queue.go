package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
)

// Queue is the enqueue-side capability handed to the orchestrator and the
// shipping dispatcher. Enqueue is fire-and-forget: the kafka write happens
// on the producer loop, so a slow broker never blocks a committed checkout.
type Queue interface {
	Enqueue(ctx context.Context, jobType string, payload any, delay time.Duration) error
}

type KafkaQueue struct {
	Producer *Producer
	Service  string
}

func (q *KafkaQueue) Enqueue(_ context.Context, jobType string, payload any, delay time.Duration) error {
	topic, ok := topicFor(jobType)
	if !ok {
		return fmt.Errorf("unknown job type %q", jobType)
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", jobType, err)
	}
	now := time.Now().UTC()
	env := Envelope{
		JobID:      uuid.NewString(),
		JobType:    jobType,
		EnqueuedAt: now,
		RunAt:      now.Add(delay),
		Producer:   q.Service,
		Payload:    body,
	}
	q.Producer.Publish(topic, PartitionKey(env.JobID), MustMarshal(env),
		kafka.Header{Key: "x-job-type", Value: []byte(jobType)},
	)
	return nil
}
