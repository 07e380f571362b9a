package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// JobMessage is the envelope written to the work stream for one queued job.
type JobMessage struct {
	ID        string    `json:"id"`
	JobID     string    `json:"job_id"`
	ProjectID string    `json:"project_id"`
	Type      string    `json:"type"`
	CreatedAt time.Time `json:"created_at"`
}

type StreamMessage struct {
	ID     string
	Stream string
	Job    *JobMessage
}

// PendingMessage is a delivered but unacknowledged stream entry.
type PendingMessage struct {
	ID         string
	Consumer   string
	Idle       time.Duration
	RetryCount int64
}

type Streams struct {
	client *Client
	maxLen int64
}

func NewStreams(client *Client) *Streams {
	return &Streams{client: client}
}

// WithMaxLen caps each stream at roughly n entries on publish. Zero leaves streams unbounded.
func (s *Streams) WithMaxLen(n int64) *Streams {
	s.maxLen = n
	return s
}

func (s *Streams) Publish(ctx context.Context, stream string, job *JobMessage) (string, error) {
	if job.ID == "" {
		job.ID = uuid.New().String()
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now().UTC()
	}

	payload, err := json.Marshal(job)
	if err != nil {
		return "", fmt.Errorf("failed to marshal job: %w", err)
	}

	args := &redis.XAddArgs{
		Stream: stream,
		Values: map[string]any{"data": string(payload)},
	}
	if s.maxLen > 0 {
		args.MaxLen = s.maxLen
		args.Approx = true
	}

	log := s.client.logger.WithContext(ctx).WithFields(map[string]any{
		"stream": stream,
		"job_id": job.JobID,
	})
	id, err := s.client.rdb.XAdd(ctx, args).Result()
	if err != nil {
		log.WithError(err).Error("Failed to publish job message")
		return "", err
	}

	log.WithField("message_id", id).Info("Published job message")
	return id, nil
}

func (s *Streams) CreateConsumerGroup(ctx context.Context, stream, group string) error {
	err := s.client.rdb.XGroupCreateMkStream(ctx, stream, group, "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return err
	}
	return nil
}

// Consume reads new entries for consumer. Entries that cannot be decoded are returned with a nil Job
// so the caller can acknowledge them.
func (s *Streams) Consume(ctx context.Context, stream, group, consumer string, count int64, block time.Duration) ([]StreamMessage, error) {
	results, err := s.client.rdb.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    group,
		Consumer: consumer,
		Streams:  []string{stream, ">"},
		Count:    count,
		Block:    block,
	}).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var messages []StreamMessage
	for _, result := range results {
		for _, msg := range result.Messages {
			messages = append(messages, s.decode(ctx, result.Stream, msg))
		}
	}
	return messages, nil
}

func (s *Streams) Ack(ctx context.Context, stream, group string, ids ...string) error {
	return s.client.rdb.XAck(ctx, stream, group, ids...).Err()
}

func (s *Streams) Pending(ctx context.Context, stream, group string, count int64) ([]PendingMessage, error) {
	pending, err := s.client.rdb.XPendingExt(ctx, &redis.XPendingExtArgs{
		Stream: stream,
		Group:  group,
		Start:  "-",
		End:    "+",
		Count:  count,
	}).Result()
	if err != nil {
		return nil, err
	}

	out := make([]PendingMessage, len(pending))
	for i, p := range pending {
		out[i] = PendingMessage{ID: p.ID, Consumer: p.Consumer, Idle: p.Idle, RetryCount: p.RetryCount}
	}
	return out, nil
}

// Claim takes ownership of idle pending entries.
func (s *Streams) Claim(ctx context.Context, stream, group, consumer string, minIdle time.Duration, ids ...string) ([]StreamMessage, error) {
	claimed, err := s.client.rdb.XClaim(ctx, &redis.XClaimArgs{
		Stream:   stream,
		Group:    group,
		Consumer: consumer,
		MinIdle:  minIdle,
		Messages: ids,
	}).Result()
	if err != nil {
		return nil, err
	}

	messages := make([]StreamMessage, 0, len(claimed))
	for _, msg := range claimed {
		messages = append(messages, s.decode(ctx, stream, msg))
	}
	return messages, nil
}

// Touch re-claims ids for consumer without bumping their delivery count, resetting their idle time.
func (s *Streams) Touch(ctx context.Context, stream, group, consumer string, ids ...string) error {
	return s.client.rdb.XClaimJustID(ctx, &redis.XClaimArgs{
		Stream:   stream,
		Group:    group,
		Consumer: consumer,
		MinIdle:  0,
		Messages: ids,
	}).Err()
}

func (s *Streams) Len(ctx context.Context, stream string) (int64, error) {
	return s.client.rdb.XLen(ctx, stream).Result()
}

func (s *Streams) decode(ctx context.Context, stream string, msg redis.XMessage) StreamMessage {
	out := StreamMessage{ID: msg.ID, Stream: stream}

	data, ok := msg.Values["data"].(string)
	if !ok {
		return out
	}

	var job JobMessage
	if err := json.Unmarshal([]byte(data), &job); err != nil {
		s.client.logger.WithContext(ctx).WithError(err).Warnf("Failed to unmarshal message %s", msg.ID)
		return out
	}
	out.Job = &job
	return out
}
