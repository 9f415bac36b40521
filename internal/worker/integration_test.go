package worker

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/aescanero/dago-node-llmworker/internal/broker"
	"github.com/aescanero/dago-node-llmworker/internal/config"
	"github.com/aescanero/dago-node-llmworker/internal/eval/cel"
	"github.com/aescanero/dago-node-llmworker/internal/eval/template"
	"github.com/aescanero/dago-node-llmworker/internal/processor"
	"github.com/aescanero/dago-node-llmworker/internal/provider/mock"
	"github.com/aescanero/dago-node-llmworker/internal/results"
	"github.com/aescanero/dago-node-llmworker/internal/router"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type testEnv struct {
	mr     *miniredis.Miniredis
	cfg    *config.Config
	broker *broker.Redis
	rdb    *redis.Client
	model  *mock.MockModel
	worker *Worker
}

func newTestEnv(t *testing.T, overrides map[string]string) *testEnv {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	logger := zap.NewNop()
	cfg := testConfig(t, overrides)
	b := broker.NewRedis(rdb, logger)
	model := mock.NewMockModel("a concise summary of the document")

	lookup := func(key string) (string, bool) {
		if key == "OPENAI_API_KEY" {
			return "sk-test", true
		}
		return "", false
	}
	deps := processor.Deps{
		Router:    router.NewRouter(router.DefaultRegistry(), logger, router.WithEnvLookup(lookup)),
		Factory:   mock.NewMockFactory(model),
		Evaluator: cel.NewEvaluator(),
		Engine:    template.NewEngine(),
		Logger:    logger,
	}
	opts := processor.Options{Timeout: cfg.LLMTimeout, DefaultTemperature: cfg.DefaultTemperature}

	summary, err := processor.NewSummaryProcessor(deps, opts)
	require.NoError(t, err)
	question, err := processor.NewQuestionProcessor(deps, opts)
	require.NoError(t, err)

	dispatcher := NewDispatcher(map[string]processor.Processor{
		cfg.SummaryStream:  summary,
		cfg.QuestionStream: question,
	}, logger)
	sink := results.NewSink(b, cfg.ResultStream, logger)

	return &testEnv{
		mr:     mr,
		cfg:    cfg,
		broker: b,
		rdb:    rdb,
		model:  model,
		worker: NewWorker(cfg, b, dispatcher, sink, logger),
	}
}

func (e *testEnv) append(t *testing.T, stream string, fields map[string]string) string {
	t.Helper()
	id, err := e.broker.Append(context.Background(), stream, fields)
	require.NoError(t, err)
	return id
}

func (e *testEnv) results(t *testing.T) []broker.Entry {
	t.Helper()
	entries, err := e.broker.Range(context.Background(), e.cfg.ResultStream, "-", 100)
	require.NoError(t, err)
	return entries
}

func (e *testEnv) pending(t *testing.T, stream string) int64 {
	t.Helper()
	p, err := e.rdb.XPending(context.Background(), stream, e.cfg.ConsumerGroup).Result()
	require.NoError(t, err)
	return p.Count
}

func TestScenario_SummaryOK(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, nil)
	require.NoError(t, env.worker.Setup(ctx))

	entryID := env.append(t, "summary_requests", map[string]string{
		"id": "t1", "content": "lorem ipsum dolor sit amet", "model": "chatgpt",
	})

	acked, err := env.worker.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, acked)

	res := env.results(t)
	require.Len(t, res, 1)
	fields := res[0].Fields
	assert.Equal(t, "t1", fields["task_id"])
	assert.Equal(t, "ok", fields["status"])
	assert.NotEmpty(t, fields["payload"])
	assert.Equal(t, "summary_requests/"+entryID, fields["source_entry"])

	inputTokens, err := strconv.Atoi(fields["usage.input_tokens"])
	require.NoError(t, err)
	assert.Positive(t, inputTokens)

	assert.Zero(t, env.pending(t, "summary_requests"))
}

func TestScenario_UnknownModel(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, nil)
	require.NoError(t, env.worker.Setup(ctx))

	env.append(t, "summary_requests", map[string]string{
		"id": "t2", "content": "text", "model": "not-a-model",
	})

	acked, err := env.worker.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, acked)

	res := env.results(t)
	require.Len(t, res, 1)
	fields := res[0].Fields
	assert.Equal(t, "t2", fields["task_id"])
	assert.Equal(t, "error", fields["status"])
	assert.Equal(t, "unknown_model", fields["error_kind"])
	assert.Contains(t, fields["error_detail"], "not-a-model")

	assert.Zero(t, env.pending(t, "summary_requests"))
	assert.Zero(t, env.model.Calls())
}

func TestScenario_QuestionOK(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, nil)
	require.NoError(t, env.worker.Setup(ctx))

	env.append(t, "question_requests", map[string]string{
		"id": "q1", "content": "The sky is blue.", "question": "What colour is the sky?", "model": "gpt4o",
	})

	acked, err := env.worker.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, acked)

	res := env.results(t)
	require.Len(t, res, 1)
	assert.Equal(t, "q1", res[0].Fields["task_id"])
	assert.Equal(t, "ok", res[0].Fields["status"])
	assert.Equal(t, "answer_question", res[0].Fields["kind"])
	assert.Zero(t, env.pending(t, "question_requests"))
}

func TestMalformedEntryDoesNotBlock(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, nil)
	require.NoError(t, env.worker.Setup(ctx))

	env.append(t, "summary_requests", map[string]string{"id": "bad", "model": "chatgpt"})
	env.append(t, "summary_requests", map[string]string{"id": "good", "content": "text", "model": "chatgpt"})

	total := 0
	for i := 0; i < 4 && total < 2; i++ {
		acked, err := env.worker.RunOnce(ctx)
		require.NoError(t, err)
		total += acked
	}
	require.Equal(t, 2, total)

	byTask := map[string]map[string]string{}
	for _, e := range env.results(t) {
		byTask[e.Fields["task_id"]] = e.Fields
	}
	require.Len(t, byTask, 2)
	assert.Equal(t, "error", byTask["bad"]["status"])
	assert.Equal(t, "malformed_task", byTask["bad"]["error_kind"])
	assert.Equal(t, "ok", byTask["good"]["status"])
	assert.Zero(t, env.pending(t, "summary_requests"))
}

func TestCrashRecovery(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, nil)
	require.NoError(t, env.worker.Setup(ctx))

	env.append(t, "summary_requests", map[string]string{"id": "t3", "content": "text", "model": "chatgpt"})

	// another consumer takes the entry and dies before acknowledging it
	taken, err := env.broker.ReadGroup(ctx, env.cfg.ConsumerGroup, "crashed-consumer", env.cfg.InputStreams(), 10*time.Millisecond, 1)
	require.NoError(t, err)
	require.Len(t, taken, 1)

	env.cfg.ClaimMinIdle = 10 * time.Millisecond
	time.Sleep(30 * time.Millisecond)

	acked, err := env.worker.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, acked)
	assert.Equal(t, uint64(1), env.worker.Stats().Claimed)

	res := env.results(t)
	require.Len(t, res, 1)
	assert.Equal(t, "t3", res[0].Fields["task_id"])
	assert.Zero(t, env.pending(t, "summary_requests"))
}

func TestGroupLossRecovery(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, nil)
	require.NoError(t, env.worker.Setup(ctx))

	// broker restarted without persistence: streams and groups are gone
	env.mr.FlushAll()
	env.append(t, "summary_requests", map[string]string{"id": "t9", "content": "text", "model": "chatgpt"})

	acked, err := env.worker.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, acked)
	assert.Equal(t, uint64(1), env.worker.Stats().GroupsLost)

	res := env.results(t)
	require.Len(t, res, 1)
	assert.Equal(t, "t9", res[0].Fields["task_id"])
	assert.Equal(t, "ok", res[0].Fields["status"])
	assert.Zero(t, env.pending(t, "summary_requests"))
}

func TestStartStop(t *testing.T) {
	env := newTestEnv(t, nil)
	require.NoError(t, env.worker.Start())
	assert.Error(t, env.worker.Start())

	require.Eventually(t, func() bool {
		return env.worker.State() == StatePolling
	}, 2*time.Second, 5*time.Millisecond)

	env.append(t, "summary_requests", map[string]string{"id": "t4", "content": "text", "model": "chatgpt"})

	require.Eventually(t, func() bool {
		entries, err := env.broker.Range(context.Background(), env.cfg.ResultStream, "-", 10)
		return err == nil && len(entries) == 1
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, env.worker.Stop())
	assert.Equal(t, StateStopped, env.worker.State())
	assert.Equal(t, uint64(1), env.worker.Stats().Acked)
}
