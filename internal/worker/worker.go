package worker

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aescanero/dago-node-llmworker/internal/broker"
	"github.com/aescanero/dago-node-llmworker/internal/config"
	"github.com/aescanero/dago-node-llmworker/internal/results"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// State is the position of the worker in its poll cycle
type State string

const (
	StateStarting    State = "starting"
	StatePolling     State = "polling"
	StateDispatching State = "dispatching"
	StateAckPending  State = "ack_pending"
	StateDraining    State = "draining"
	StateStopped     State = "stopped"
)

// claimBatch bounds how many stale entries are reclaimed per stream per pass
const claimBatch = 100

// Stats are cumulative counters since the worker started
type Stats struct {
	Processed    uint64 `json:"processed"`
	Failed       uint64 `json:"failed"`
	Acked        uint64 `json:"acked"`
	Claimed      uint64 `json:"claimed"`
	BrokerErrors uint64 `json:"broker_errors"`
	GroupsLost   uint64 `json:"groups_lost"`
}

// Worker represents the LLM worker
type Worker struct {
	id         string
	config     *config.Config
	broker     broker.Client
	dispatcher *Dispatcher
	sink       *results.Sink
	logger     *zap.Logger
	streams    []string

	stateMu   sync.Mutex
	state     State
	lastClaim time.Time

	processed    atomic.Uint64
	failed       atomic.Uint64
	acked        atomic.Uint64
	claimed      atomic.Uint64
	brokerErrors atomic.Uint64

	groupsRestored atomic.Uint64

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewWorker creates a new worker
func NewWorker(
	cfg *config.Config,
	b broker.Client,
	dispatcher *Dispatcher,
	sink *results.Sink,
	logger *zap.Logger,
) *Worker {
	id := cfg.WorkerID
	if id == "" {
		id = ConsumerID()
	}

	w := &Worker{
		id:         id,
		config:     cfg,
		broker:     b,
		dispatcher: dispatcher,
		sink:       sink,
		logger:     logger.With(zap.String("worker_id", id)),
		streams:    cfg.InputStreams(),
		state:      StateStarting,
	}
	return w
}

// ConsumerID derives a consumer name from host and process identity. The
// random suffix keeps restarted processes with a reused pid apart.
func ConsumerID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "worker"
	}
	return fmt.Sprintf("%s-%d-%s", host, os.Getpid(), uuid.NewString()[:8])
}

// ID returns the consumer name used inside the group
func (w *Worker) ID() string {
	return w.id
}

// State returns the current state
func (w *Worker) State() State {
	w.stateMu.Lock()
	defer w.stateMu.Unlock()
	return w.state
}

// setState moves to s. Once draining, only stopped is accepted, so the
// in-flight batch cannot report the worker as polling again.
func (w *Worker) setState(s State) {
	w.stateMu.Lock()
	defer w.stateMu.Unlock()
	if w.state == StateDraining && s != StateStopped {
		return
	}
	w.state = s
}

// Stats returns a snapshot of the worker counters
func (w *Worker) Stats() Stats {
	return Stats{
		Processed:    w.processed.Load(),
		Failed:       w.failed.Load(),
		Acked:        w.acked.Load(),
		Claimed:      w.claimed.Load(),
		BrokerErrors: w.brokerErrors.Load(),
		GroupsLost:   w.groupsRestored.Load(),
	}
}

// Setup creates the consumer group on every input stream, retrying with
// backoff until it succeeds or ctx is done
func (w *Worker) Setup(ctx context.Context) error {
	w.setState(StateStarting)

	for _, stream := range w.streams {
		if !w.dispatcher.Handles(stream) {
			return fmt.Errorf("no processor registered for stream %s", stream)
		}
	}

	bo := newBackoff(w.config.BackoffInitial, w.config.BackoffMax)
	for {
		err := w.ensureGroups(ctx)
		if err == nil {
			return nil
		}
		if !errors.Is(err, broker.ErrUnavailable) {
			return err
		}

		w.brokerErrors.Add(1)
		delay := bo.next()
		w.logger.Warn("broker unavailable during setup, retrying",
			zap.Duration("backoff", delay),
			zap.Error(err),
		)
		if err := sleep(ctx, delay); err != nil {
			return fmt.Errorf("failed to ensure consumer groups: %w", err)
		}
	}
}

func (w *Worker) ensureGroups(ctx context.Context) error {
	for _, stream := range w.streams {
		if err := w.broker.EnsureGroup(ctx, stream, w.config.ConsumerGroup); err != nil {
			return fmt.Errorf("failed to ensure consumer group on %s: %w", stream, err)
		}
	}
	return nil
}

// restoreGroups recreates groups lost on the broker. They start at the head
// of the stream so tasks appended while the group was missing are kept.
func (w *Worker) restoreGroups(ctx context.Context) error {
	for _, stream := range w.streams {
		if err := w.broker.RestoreGroup(ctx, stream, w.config.ConsumerGroup); err != nil {
			return fmt.Errorf("failed to restore consumer group on %s: %w", stream, err)
		}
	}
	w.groupsRestored.Add(1)
	return nil
}

// RunOnce performs a single poll cycle and returns the number of entries
// acknowledged. A returned error means the broker could not be used and no
// progress beyond the acknowledged count was made.
func (w *Worker) RunOnce(ctx context.Context) (int, error) {
	entries, err := w.poll(ctx)
	if errors.Is(err, broker.ErrNoGroup) {
		w.logger.Warn("consumer group lost, restoring", zap.Error(err))
		if err := w.restoreGroups(ctx); err != nil {
			return 0, err
		}
		entries, err = w.poll(ctx)
	}
	if err != nil {
		return 0, err
	}
	if len(entries) == 0 {
		return 0, nil
	}
	defer w.setState(StatePolling)

	// A delivered batch runs to completion even when shutdown is requested.
	workCtx := context.WithoutCancel(ctx)

	w.setState(StateDispatching)
	outcomes := w.dispatcher.Dispatch(workCtx, entries)

	w.setState(StateAckPending)
	acked := 0
	for _, out := range outcomes {
		w.processed.Add(1)
		if !out.Result.OK() {
			w.failed.Add(1)
		}

		// Publish strictly before ack; an entry whose result was not written
		// stays pending and is redelivered on the next poll.
		if _, err := w.sink.Publish(workCtx, out.Result); err != nil {
			return acked, err
		}
		if err := w.broker.Ack(workCtx, out.Entry.Stream, w.config.ConsumerGroup, out.Entry.ID); err != nil {
			return acked, fmt.Errorf("failed to acknowledge %s/%s: %w", out.Entry.Stream, out.Entry.ID, err)
		}

		acked++
		w.acked.Add(1)
		w.logger.Info("task done",
			zap.String("task_id", out.Result.TaskID),
			zap.String("stream", out.Entry.Stream),
			zap.String("entry_id", out.Entry.ID),
			zap.String("status", string(out.Result.Status)),
		)
	}

	return acked, nil
}

// poll reclaims stale entries when due and reads the next batch
func (w *Worker) poll(ctx context.Context) ([]broker.Entry, error) {
	if err := w.claimIfDue(ctx); err != nil {
		return nil, err
	}

	w.setState(StatePolling)
	entries, err := w.broker.ReadGroup(ctx, w.config.ConsumerGroup, w.id, w.streams, w.config.BlockTime, w.config.ReadCount)
	if err != nil {
		return nil, fmt.Errorf("failed to read from streams: %w", err)
	}
	return entries, nil
}

// claimIfDue moves entries abandoned by other consumers to this one. They
// are picked up by the next read, which returns pending entries first.
func (w *Worker) claimIfDue(ctx context.Context) error {
	if !w.lastClaim.IsZero() && time.Since(w.lastClaim) < w.config.ClaimInterval {
		return nil
	}

	for _, stream := range w.streams {
		entries, err := w.broker.ClaimStale(ctx, stream, w.config.ConsumerGroup, w.id, w.config.ClaimMinIdle, claimBatch)
		if err != nil {
			return fmt.Errorf("failed to claim stale entries: %w", err)
		}
		if len(entries) > 0 {
			w.claimed.Add(uint64(len(entries)))
			w.logger.Info("reclaimed stale entries",
				zap.String("stream", stream),
				zap.Int("count", len(entries)),
			)
		}
	}

	w.lastClaim = time.Now()
	return nil
}

// Run polls until ctx is done. Broker failures never stop the loop; they are
// logged and followed by an exponential backoff.
func (w *Worker) Run(ctx context.Context) error {
	if err := w.Setup(ctx); err != nil {
		w.setState(StateStopped)
		if ctx.Err() != nil {
			return nil
		}
		return err
	}

	w.logger.Info("worker polling",
		zap.Strings("streams", w.streams),
		zap.String("consumer_group", w.config.ConsumerGroup),
	)

	// A batch in flight when ctx ends keeps running; report it as draining.
	stopDraining := context.AfterFunc(ctx, func() { w.setState(StateDraining) })
	defer stopDraining()

	bo := newBackoff(w.config.BackoffInitial, w.config.BackoffMax)
	for ctx.Err() == nil {
		_, err := w.RunOnce(ctx)
		if err == nil {
			bo.reset()
			continue
		}
		if ctx.Err() != nil {
			break
		}

		w.brokerErrors.Add(1)
		delay := bo.next()
		w.logger.Error("poll cycle failed, backing off",
			zap.Duration("backoff", delay),
			zap.Error(err),
		)
		if sleep(ctx, delay) != nil {
			break
		}
	}

	w.logger.Info("work processing loop stopped")
	w.setState(StateStopped)
	return nil
}

// Start starts the worker
func (w *Worker) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.done != nil {
		return fmt.Errorf("worker %s already started", w.id)
	}

	w.logger.Info("starting LLM worker",
		zap.Strings("streams", w.streams),
		zap.String("result_stream", w.sink.Stream()),
		zap.String("consumer_group", w.config.ConsumerGroup),
	)

	ctx, cancel := context.WithCancel(context.Background())
	w.cancel = cancel
	w.done = make(chan struct{})

	go func() {
		defer close(w.done)
		if err := w.Run(ctx); err != nil {
			w.logger.Error("worker stopped with error", zap.Error(err))
		}
	}()

	return nil
}

// Stop stops the worker gracefully, waiting for the in-flight batch
func (w *Worker) Stop() error {
	w.mu.Lock()
	cancel, done := w.cancel, w.done
	w.mu.Unlock()

	if cancel == nil {
		return nil
	}

	w.logger.Info("stopping LLM worker")
	cancel()
	<-done

	w.logger.Info("LLM worker stopped", zap.Any("stats", w.Stats()))
	return nil
}
