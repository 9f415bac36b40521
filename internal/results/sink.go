package results

import (
	"context"
	"fmt"

	"github.com/aescanero/dago-node-llmworker/internal/broker"
	"github.com/aescanero/dago-node-llmworker/internal/task"
	"go.uber.org/zap"
)

// Sink appends results to a stream
type Sink struct {
	broker broker.Client
	stream string
	maxLen int64
	logger *zap.Logger
}

// Option configures a Sink
type Option func(*Sink)

// WithMaxLen keeps the result stream at about n entries. Zero disables
// trimming.
func WithMaxLen(n int64) Option {
	return func(s *Sink) {
		s.maxLen = n
	}
}

// NewSink creates a sink writing to stream
func NewSink(b broker.Client, stream string, logger *zap.Logger, opts ...Option) *Sink {
	s := &Sink{
		broker: b,
		stream: stream,
		logger: logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Stream returns the name of the result stream
func (s *Sink) Stream() string {
	return s.stream
}

// Publish appends one result and returns the entry ID it was stored under.
// An error means the result was not durably written.
func (s *Sink) Publish(ctx context.Context, res task.Result) (string, error) {
	if res.TaskID == "" {
		return "", fmt.Errorf("publish result: missing task id")
	}

	id, err := s.broker.AppendCapped(ctx, s.stream, res.Fields(), s.maxLen)
	if err != nil {
		return "", fmt.Errorf("publish result for task %s: %w", res.TaskID, err)
	}

	s.logger.Debug("published result",
		zap.String("task_id", res.TaskID),
		zap.String("status", string(res.Status)),
		zap.String("entry_id", id),
	)

	return id, nil
}
