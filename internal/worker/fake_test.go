package worker

import (
	"context"
	"sync"
	"time"

	"github.com/aescanero/dago-node-llmworker/internal/broker"
	"github.com/aescanero/dago-node-llmworker/internal/task"
)

// fakeBroker records every call in order
type fakeBroker struct {
	mu sync.Mutex

	calls    []string
	batches  [][]broker.Entry
	appended []map[string]string
	reads    int

	readErr   error
	readErrs  []error
	appendErr error
	ackErr    error
	pingErr   error
	groupErr  error
}

var _ broker.Client = (*fakeBroker)(nil)

func (f *fakeBroker) record(call string) {
	f.calls = append(f.calls, call)
}

func (f *fakeBroker) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeBroker) Reads() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reads
}

func (f *fakeBroker) Append(ctx context.Context, stream string, fields map[string]string) (string, error) {
	return f.AppendCapped(ctx, stream, fields, 0)
}

func (f *fakeBroker) AppendCapped(_ context.Context, stream string, fields map[string]string, _ int64) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.appendErr != nil {
		f.record("append-failed:" + stream)
		return "", f.appendErr
	}
	f.record("append:" + stream + ":" + fields[task.FieldTaskID])
	f.appended = append(f.appended, fields)
	return "1-0", nil
}

func (f *fakeBroker) ReadGroup(ctx context.Context, _, _ string, _ []string, _ time.Duration, _ int64) ([]broker.Entry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reads++
	f.record("read")
	if len(f.readErrs) > 0 {
		err := f.readErrs[0]
		f.readErrs = f.readErrs[1:]
		return nil, err
	}
	if f.readErr != nil {
		return nil, f.readErr
	}
	if len(f.batches) == 0 {
		return nil, ctx.Err()
	}
	batch := f.batches[0]
	f.batches = f.batches[1:]
	return batch, nil
}

func (f *fakeBroker) Ack(_ context.Context, stream, _ string, ids ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ackErr != nil {
		return f.ackErr
	}
	for _, id := range ids {
		f.record("ack:" + stream + ":" + id)
	}
	return nil
}

func (f *fakeBroker) EnsureGroup(_ context.Context, stream, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("group:" + stream)
	return f.groupErr
}

func (f *fakeBroker) RestoreGroup(_ context.Context, stream, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("restore:" + stream)
	return f.groupErr
}

func (f *fakeBroker) ClaimStale(_ context.Context, stream, _, _ string, _ time.Duration, _ int64) ([]broker.Entry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("claim:" + stream)
	return nil, nil
}

func (f *fakeBroker) Range(context.Context, string, string, int64) ([]broker.Entry, error) {
	return nil, nil
}

func (f *fakeBroker) Ping(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pingErr
}

// fakeProcessor echoes the content back or runs fn
type fakeProcessor struct {
	kind task.Kind
	fn   func(task.Task) task.Result
}

func (p *fakeProcessor) Kind() task.Kind {
	return p.kind
}

func (p *fakeProcessor) Process(_ context.Context, t task.Task) task.Result {
	if p.fn != nil {
		return p.fn(t)
	}
	return task.Result{TaskID: t.ID, Status: task.StatusOK, Kind: t.Kind, Payload: "echo: " + t.Content}
}
