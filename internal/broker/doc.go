// Package broker wraps a durable, ordered, replayable append log with
// consumer-group semantics.
//
// The Client interface is the whole contract the worker depends on: append,
// blocking group reads across several streams, acknowledgement, idempotent
// group setup and reclaiming of stale pending entries. Redis implements it on
// top of Redis Streams:
//
//	rdb := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
//	b := broker.NewRedis(rdb, logger)
//
//	if err := b.EnsureGroup(ctx, "summary_requests", "llm_workers"); err != nil {
//	    log.Fatal(err)
//	}
//	entries, err := b.ReadGroup(ctx, "llm_workers", "worker-1",
//	    []string{"summary_requests", "question_requests"}, 5*time.Second, 1)
//
// Transport failures are reported wrapped in ErrUnavailable so callers can
// tell a broken connection apart from an empty read.
package broker
