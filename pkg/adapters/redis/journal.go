package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aretw0/rewind/pkg/domain"
	backend "github.com/redis/go-redis/v9"
)

// farFuture is the index score of journals that never expire (2100-01-01).
const farFuture = 4102444800

// Journal implements ports.Journal using Redis.
// Each session is a list of JSON records; an index ZSET tracks the sessions,
// scored by expiration time so List can prune expired ones lazily.
type Journal struct {
	client  *backend.Client
	prefix  string
	ttl     time.Duration
	channel string
}

// Option configures a Journal.
type Option func(*Journal)

// WithTTL expires a session's journal ttl after its last append.
func WithTTL(ttl time.Duration) Option {
	return func(j *Journal) {
		j.ttl = ttl
	}
}

// WithPrefix sets the key prefix for journals.
func WithPrefix(prefix string) Option {
	return func(j *Journal) {
		j.prefix = prefix
	}
}

// WithChannel publishes every appended record to the given Pub/Sub channel.
func WithChannel(channel string) Option {
	return func(j *Journal) {
		j.channel = channel
	}
}

// New creates a Redis journal connecting to address.
func New(address, password string, db int, opts ...Option) *Journal {
	rdb := backend.NewClient(&backend.Options{
		Addr:     address,
		Password: password,
		DB:       db,
	})
	return NewFromClient(rdb, opts...)
}

// NewFromClient creates a Redis journal from an existing client.
func NewFromClient(client *backend.Client, opts ...Option) *Journal {
	j := &Journal{
		client: client,
		prefix: "rewind:journal:",
	}
	for _, opt := range opts {
		opt(j)
	}
	return j
}

// Client returns the underlying redis client, e.g. to share it with a Locker.
func (j *Journal) Client() *backend.Client {
	return j.client
}

func (j *Journal) key(sessionID string) string {
	return j.prefix + sessionID
}

func (j *Journal) indexKey() string {
	return j.prefix + "index"
}

// Append pushes the records to the session list in a single pipeline.
func (j *Journal) Append(ctx context.Context, sessionID string, records ...domain.JournalRecord) error {
	if len(records) == 0 {
		return nil
	}

	values := make([]any, 0, len(records))
	for _, r := range records {
		data, err := json.Marshal(r)
		if err != nil {
			return fmt.Errorf("failed to marshal journal record: %w", err)
		}
		values = append(values, data)
	}

	pipe := j.client.Pipeline()
	pipe.RPush(ctx, j.key(sessionID), values...)

	score := float64(farFuture)
	if j.ttl > 0 {
		pipe.Expire(ctx, j.key(sessionID), j.ttl)
		score = float64(time.Now().Add(j.ttl).Unix())
	}
	pipe.ZAdd(ctx, j.indexKey(), backend.Z{Score: score, Member: sessionID})

	if j.channel != "" {
		for _, v := range values {
			pipe.Publish(ctx, j.channel, v)
		}
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to append to redis journal: %w", err)
	}
	return nil
}

// Records reads the whole session list.
func (j *Journal) Records(ctx context.Context, sessionID string) ([]domain.JournalRecord, error) {
	values, err := j.client.LRange(ctx, j.key(sessionID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read redis journal: %w", err)
	}
	if len(values) == 0 {
		return nil, domain.ErrSessionNotFound
	}

	records := make([]domain.JournalRecord, 0, len(values))
	for _, v := range values {
		var r domain.JournalRecord
		if err := json.Unmarshal([]byte(v), &r); err != nil {
			return nil, fmt.Errorf("failed to unmarshal journal record: %w", err)
		}
		records = append(records, r)
	}
	return records, nil
}

// Delete removes the session list and its index entry.
func (j *Journal) Delete(ctx context.Context, sessionID string) error {
	pipe := j.client.Pipeline()
	pipe.Del(ctx, j.key(sessionID))
	pipe.ZRem(ctx, j.indexKey(), sessionID)

	_, err := pipe.Exec(ctx)
	return err
}

// List returns the sessions with records, pruning expired ones from the index first.
func (j *Journal) List(ctx context.Context) ([]string, error) {
	now := float64(time.Now().Unix())
	if err := j.client.ZRemRangeByScore(ctx, j.indexKey(), "-inf", fmt.Sprintf("%f", now)).Err(); err != nil {
		return nil, fmt.Errorf("failed to prune expired journals: %w", err)
	}

	sessions, err := j.client.ZRange(ctx, j.indexKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list journals: %w", err)
	}
	return sessions, nil
}

// Subscribe streams the records published on the journal channel until ctx is done.
// The returned channel is closed when the subscription ends.
func (j *Journal) Subscribe(ctx context.Context) (<-chan domain.JournalRecord, error) {
	if j.channel == "" {
		return nil, fmt.Errorf("%w: journal has no channel configured", domain.ErrInvalidArgument)
	}
	sub := j.client.Subscribe(ctx, j.channel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, fmt.Errorf("failed to subscribe to %s: %w", j.channel, err)
	}

	out := make(chan domain.JournalRecord)
	go func() {
		defer close(out)
		defer sub.Close()

		msgs := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				var r domain.JournalRecord
				if err := json.Unmarshal([]byte(msg.Payload), &r); err != nil {
					continue
				}
				select {
				case out <- r:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

// Close closes the redis client.
func (j *Journal) Close() error {
	return j.client.Close()
}
