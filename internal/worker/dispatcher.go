package worker

import (
	"context"
	"fmt"
	"runtime/debug"
	"strings"

	"github.com/aescanero/dago-node-llmworker/internal/broker"
	"github.com/aescanero/dago-node-llmworker/internal/processor"
	"github.com/aescanero/dago-node-llmworker/internal/task"
	"go.uber.org/zap"
)

// Outcome pairs a delivered entry with the result produced for it. The entry
// is what gets acknowledged once the result is published.
type Outcome struct {
	Entry  broker.Entry
	Result task.Result
}

// Dispatcher turns delivered entries into results. It never touches the
// broker, so it can be exercised without one.
type Dispatcher struct {
	processors map[string]processor.Processor
	logger     *zap.Logger
}

// NewDispatcher creates a dispatcher routing each input stream to a processor
func NewDispatcher(processors map[string]processor.Processor, logger *zap.Logger) *Dispatcher {
	routes := make(map[string]processor.Processor, len(processors))
	for stream, p := range processors {
		routes[stream] = p
	}
	return &Dispatcher{
		processors: routes,
		logger:     logger,
	}
}

// Handles reports whether entries of stream can be dispatched
func (d *Dispatcher) Handles(stream string) bool {
	_, ok := d.processors[stream]
	return ok
}

// Dispatch processes entries in order and returns one outcome per entry
func (d *Dispatcher) Dispatch(ctx context.Context, entries []broker.Entry) []Outcome {
	outcomes := make([]Outcome, 0, len(entries))
	for _, entry := range entries {
		res := d.dispatch(ctx, entry)
		res.SourceEntry = entry.Stream + "/" + entry.ID
		outcomes = append(outcomes, Outcome{Entry: entry, Result: res})
	}
	return outcomes
}

func (d *Dispatcher) dispatch(ctx context.Context, entry broker.Entry) (res task.Result) {
	taskID := strings.TrimSpace(entry.Fields[task.FieldID])
	if taskID == "" {
		taskID = entry.ID
	}

	p, ok := d.processors[entry.Stream]
	if !ok {
		err := fmt.Errorf("%w: no processor for stream %s", task.ErrMalformedTask, entry.Stream)
		return task.Failed(taskID, "", task.ErrorKindMalformedTask, err)
	}

	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("processor panicked",
				zap.String("stream", entry.Stream),
				zap.String("entry_id", entry.ID),
				zap.Any("panic", r),
				zap.ByteString("stack", debug.Stack()),
			)
			res = task.Failed(taskID, p.Kind(), task.ErrorKindInternal, fmt.Errorf("processor panicked: %v", r))
		}
	}()

	t, err := task.Decode(p.Kind(), entry.ID, entry.Fields)
	if err != nil {
		d.logger.Warn("malformed entry",
			zap.String("stream", entry.Stream),
			zap.String("entry_id", entry.ID),
			zap.Error(err),
		)
		return task.Failed(taskID, p.Kind(), task.ErrorKindMalformedTask, err)
	}

	return p.Process(ctx, t)
}
