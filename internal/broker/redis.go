package broker

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Redis implements Client using Redis Streams
type Redis struct {
	client redis.UniversalClient
	logger *zap.Logger
}

// NewRedis creates a new Redis Streams broker client
func NewRedis(client redis.UniversalClient, logger *zap.Logger) *Redis {
	return &Redis{
		client: client,
		logger: logger,
	}
}

// Append adds an entry to a stream
func (r *Redis) Append(ctx context.Context, stream string, fields map[string]string) (string, error) {
	return r.AppendCapped(ctx, stream, fields, 0)
}

// AppendCapped adds an entry and trims the stream to about maxLen entries.
// A maxLen of zero leaves the stream untrimmed.
func (r *Redis) AppendCapped(ctx context.Context, stream string, fields map[string]string, maxLen int64) (string, error) {
	values := make(map[string]interface{}, len(fields))
	for k, v := range fields {
		values[k] = v
	}

	args := &redis.XAddArgs{
		Stream: stream,
		Values: values,
	}
	if maxLen > 0 {
		args.MaxLen = maxLen
		args.Approx = true
	}

	id, err := r.client.XAdd(ctx, args).Result()
	if err != nil {
		return "", r.wrap(ctx, "xadd "+stream, err)
	}

	return id, nil
}

// ReadGroup reads pending entries first, then blocks for new ones
func (r *Redis) ReadGroup(ctx context.Context, group, consumer string, streams []string, block time.Duration, count int64) ([]Entry, error) {
	if len(streams) == 0 {
		return nil, fmt.Errorf("read group %s: no streams given", group)
	}

	// Entries delivered to this consumer but never acknowledged come first,
	// e.g. after a failed publish or a restart under the same name.
	pending, err := r.readGroup(ctx, group, consumer, streams, "0", -1, count)
	if err != nil {
		return nil, err
	}
	if len(pending) > 0 {
		r.logger.Debug("redelivering pending entries",
			zap.String("consumer", consumer),
			zap.Int("count", len(pending)),
		)
		return pending, nil
	}

	return r.readGroup(ctx, group, consumer, streams, ">", block, count)
}

func (r *Redis) readGroup(ctx context.Context, group, consumer string, streams []string, id string, block time.Duration, count int64) ([]Entry, error) {
	args := make([]string, 0, len(streams)*2)
	args = append(args, streams...)
	for range streams {
		args = append(args, id)
	}

	result, err := r.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    group,
		Consumer: consumer,
		Streams:  args,
		Count:    count,
		Block:    block,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, r.wrap(ctx, "xreadgroup "+group, err)
	}

	var entries []Entry
	for _, stream := range result {
		entries = append(entries, toEntries(stream.Stream, stream.Messages)...)
	}
	return entries, nil
}

// Ack acknowledges entries for a group
func (r *Redis) Ack(ctx context.Context, stream, group string, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	if err := r.client.XAck(ctx, stream, group, ids...).Err(); err != nil {
		return r.wrap(ctx, "xack "+stream, err)
	}
	return nil
}

// EnsureGroup creates the consumer group at the stream tail if it doesn't exist
func (r *Redis) EnsureGroup(ctx context.Context, stream, group string) error {
	return r.createGroup(ctx, stream, group, "$")
}

// RestoreGroup creates the consumer group at the stream start if it doesn't exist
func (r *Redis) RestoreGroup(ctx context.Context, stream, group string) error {
	return r.createGroup(ctx, stream, group, "0")
}

func (r *Redis) createGroup(ctx context.Context, stream, group, start string) error {
	err := r.client.XGroupCreateMkStream(ctx, stream, group, start).Err()
	if err != nil {
		// BUSYGROUP error means the group already exists, which is fine
		if strings.HasPrefix(err.Error(), "BUSYGROUP") {
			r.logger.Debug("consumer group already exists",
				zap.String("stream", stream),
				zap.String("group", group),
			)
			return nil
		}
		return r.wrap(ctx, "xgroup create "+stream, err)
	}

	r.logger.Info("created consumer group",
		zap.String("stream", stream),
		zap.String("group", group),
		zap.String("start", start),
	)
	return nil
}

// ClaimStale transfers idle pending entries to consumer
func (r *Redis) ClaimStale(ctx context.Context, stream, group, consumer string, minIdle time.Duration, count int64) ([]Entry, error) {
	var entries []Entry
	start := "0-0"

	for {
		messages, next, err := r.client.XAutoClaim(ctx, &redis.XAutoClaimArgs{
			Stream:   stream,
			Group:    group,
			Consumer: consumer,
			MinIdle:  minIdle,
			Start:    start,
			Count:    count,
		}).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				break
			}
			return nil, r.wrap(ctx, "xautoclaim "+stream, err)
		}

		entries = append(entries, toEntries(stream, messages)...)

		if next == "" || next == "0-0" || next == start {
			break
		}
		if count > 0 && int64(len(entries)) >= count {
			break
		}
		start = next
	}

	if len(entries) > 0 {
		r.logger.Info("claimed stale entries",
			zap.String("stream", stream),
			zap.String("consumer", consumer),
			zap.Int("count", len(entries)),
		)
	}
	return entries, nil
}

// Range reads entries of a stream starting at start
func (r *Redis) Range(ctx context.Context, stream, start string, count int64) ([]Entry, error) {
	messages, err := r.client.XRangeN(ctx, stream, start, "+", count).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, r.wrap(ctx, "xrange "+stream, err)
	}
	return toEntries(stream, messages), nil
}

// Ping checks the Redis connection
func (r *Redis) Ping(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return r.wrap(ctx, "ping", err)
	}
	return nil
}

// transientReplies are error replies of a server that is up but cannot
// serve commands yet
var transientReplies = []string{"LOADING", "BUSY ", "TRYAGAIN", "MASTERDOWN", "CLUSTERDOWN", "READONLY"}

// wrap classifies an error. Reply errors are the command's fault unless the
// server reports a transient condition; anything else is a transport failure
// and attributed to the broker, unless the caller gave up first.
func (r *Redis) wrap(ctx context.Context, op string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("%s: %w", op, ctxErr)
	}

	var reply redis.Error
	if errors.As(err, &reply) {
		msg := reply.Error()
		if strings.HasPrefix(msg, "NOGROUP") {
			return fmt.Errorf("%w: %s: %w", ErrNoGroup, op, err)
		}
		for _, prefix := range transientReplies {
			if strings.HasPrefix(msg, prefix) {
				return fmt.Errorf("%w: %s: %w", ErrUnavailable, op, err)
			}
		}
		return fmt.Errorf("%s: %w", op, err)
	}

	return fmt.Errorf("%w: %s: %w", ErrUnavailable, op, err)
}

func toEntries(stream string, messages []redis.XMessage) []Entry {
	entries := make([]Entry, 0, len(messages))
	for _, msg := range messages {
		fields := make(map[string]string, len(msg.Values))
		for k, v := range msg.Values {
			if s, ok := v.(string); ok {
				fields[k] = s
			} else {
				fields[k] = fmt.Sprint(v)
			}
		}
		entries = append(entries, Entry{
			Stream: stream,
			ID:     msg.ID,
			Fields: fields,
		})
	}
	return entries
}
