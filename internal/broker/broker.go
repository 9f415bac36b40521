package broker

import (
	"context"
	"errors"
	"time"
)

// ErrUnavailable is wrapped around errors caused by the broker being
// unreachable or temporarily unable to serve commands.
var ErrUnavailable = errors.New("broker unavailable")

// ErrNoGroup is returned when a stream or its consumer group no longer
// exists, e.g. after the broker restarted without persistence.
var ErrNoGroup = errors.New("consumer group missing")

// Entry is one record of a stream
type Entry struct {
	Stream string
	ID     string
	Fields map[string]string
}

// Client abstracts a stream broker with consumer groups
type Client interface {
	// Append writes one entry and returns its broker-assigned ID.
	Append(ctx context.Context, stream string, fields map[string]string) (string, error)

	// AppendCapped is Append that trims the stream to about maxLen entries.
	AppendCapped(ctx context.Context, stream string, fields map[string]string, maxLen int64) (string, error)

	// ReadGroup returns entries already pending for consumer if there are
	// any, otherwise blocks up to block for new entries across streams.
	// An empty result with a nil error means the read timed out.
	ReadGroup(ctx context.Context, group, consumer string, streams []string, block time.Duration, count int64) ([]Entry, error)

	// Ack marks entries as done for group. Acknowledging twice is a no-op.
	Ack(ctx context.Context, stream, group string, ids ...string) error

	// EnsureGroup creates group at the tail of stream, creating the stream
	// when needed. It succeeds if the group already exists.
	EnsureGroup(ctx context.Context, stream, group string) error

	// RestoreGroup recreates a lost group at the start of stream so entries
	// appended while it was missing are still delivered.
	RestoreGroup(ctx context.Context, stream, group string) error

	// ClaimStale moves entries pending longer than minIdle to consumer.
	ClaimStale(ctx context.Context, stream, group, consumer string, minIdle time.Duration, count int64) ([]Entry, error)

	// Range returns up to count entries starting at start (inclusive).
	Range(ctx context.Context, stream, start string, count int64) ([]Entry, error)

	// Ping checks connectivity.
	Ping(ctx context.Context) error
}
