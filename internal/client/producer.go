package client

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/aescanero/dago-node-llmworker/internal/broker"
	"github.com/aescanero/dago-node-llmworker/internal/task"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrResultNotFound is returned by Find while no result exists for a task
var ErrResultNotFound = errors.New("result not found")

// pageSize is how many result entries are read per XRANGE call
const pageSize = 100

// Streams names the queue streams
type Streams struct {
	Summary  string
	Question string
	Result   string
}

// Producer submits tasks and looks up their results
type Producer struct {
	broker  broker.Client
	streams Streams
	logger  *zap.Logger

	mu    sync.Mutex
	cache map[string]task.Result
}

// NewProducer creates a producer
func NewProducer(b broker.Client, streams Streams, logger *zap.Logger) *Producer {
	return &Producer{
		broker:  b,
		streams: streams,
		logger:  logger,
		cache:   make(map[string]task.Result),
	}
}

// Submit appends a task to the stream for its kind and returns the task ID.
// A task without an ID gets a random one.
func (p *Producer) Submit(ctx context.Context, t task.Task) (string, error) {
	stream, err := p.streamFor(t.Kind)
	if err != nil {
		return "", err
	}

	if strings.TrimSpace(t.Content) == "" {
		return "", fmt.Errorf("%w: content is required", task.ErrMalformedTask)
	}
	if t.Kind == task.KindAnswerQuestion && strings.TrimSpace(t.Question) == "" {
		return "", fmt.Errorf("%w: question is required", task.ErrMalformedTask)
	}

	if t.ID == "" {
		t.ID = uuid.NewString()
	}

	entryID, err := p.broker.Append(ctx, stream, t.Fields())
	if err != nil {
		return "", fmt.Errorf("failed to submit task %s: %w", t.ID, err)
	}

	p.logger.Info("task submitted",
		zap.String("task_id", t.ID),
		zap.String("stream", stream),
		zap.String("entry_id", entryID),
	)
	return t.ID, nil
}

func (p *Producer) streamFor(kind task.Kind) (string, error) {
	switch kind {
	case task.KindSummarize:
		return p.streams.Summary, nil
	case task.KindAnswerQuestion:
		return p.streams.Question, nil
	default:
		return "", fmt.Errorf("%w: unknown kind %q", task.ErrMalformedTask, kind)
	}
}

// Find scans the result stream from the start for the first result of
// taskID. Found results are cached for the lifetime of the producer.
func (p *Producer) Find(ctx context.Context, taskID string) (task.Result, error) {
	p.mu.Lock()
	cached, ok := p.cache[taskID]
	p.mu.Unlock()
	if ok {
		return cached, nil
	}

	start := "-"
	for {
		entries, err := p.broker.Range(ctx, p.streams.Result, start, pageSize)
		if err != nil {
			return task.Result{}, fmt.Errorf("failed to read results: %w", err)
		}

		// Every page after the first repeats its start entry.
		if start != "-" && len(entries) > 0 && entries[0].ID == start {
			entries = entries[1:]
		}
		if len(entries) == 0 {
			return task.Result{}, fmt.Errorf("%w: %s", ErrResultNotFound, taskID)
		}

		for _, entry := range entries {
			if entry.Fields[task.FieldTaskID] != taskID {
				continue
			}

			res, err := task.ParseResult(entry.Fields)
			if err != nil {
				p.logger.Warn("skipping unreadable result",
					zap.String("entry_id", entry.ID),
					zap.Error(err),
				)
				continue
			}

			p.mu.Lock()
			p.cache[taskID] = res
			p.mu.Unlock()
			return res, nil
		}

		start = entries[len(entries)-1].ID
	}
}

// Wait polls Find every interval until a result shows up or ctx is done
func (p *Producer) Wait(ctx context.Context, taskID string, interval time.Duration) (task.Result, error) {
	if interval <= 0 {
		return task.Result{}, fmt.Errorf("poll interval must be positive, got %s", interval)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		res, err := p.Find(ctx, taskID)
		if err == nil {
			return res, nil
		}
		if !errors.Is(err, ErrResultNotFound) {
			return task.Result{}, err
		}

		select {
		case <-ctx.Done():
			return task.Result{}, fmt.Errorf("waiting for task %s: %w", taskID, ctx.Err())
		case <-ticker.C:
		}
	}
}
