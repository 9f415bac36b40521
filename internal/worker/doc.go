// Package worker implements the LLM worker lifecycle over Redis Streams.
//
// The worker owns one consumer name inside the shared consumer group of each
// input stream. Every cycle it reads a batch, dispatches each entry to the
// processor registered for its stream, publishes the outcome to the result
// stream and only then acknowledges the input entry.
//
// Example usage:
//
//	cfg, _ := config.Load()
//	b := broker.NewRedis(redis.NewClient(&redis.Options{...}), logger)
//
//	dispatcher := worker.NewDispatcher(map[string]processor.Processor{
//	    cfg.SummaryStream:  summary,
//	    cfg.QuestionStream: question,
//	}, logger)
//	sink := results.NewSink(b, cfg.ResultStream, logger)
//
//	w := worker.NewWorker(cfg, b, dispatcher, sink, logger)
//	if err := w.Start(); err != nil {
//	    log.Fatal(err)
//	}
//	defer w.Stop()
//
// The worker handles:
//   - Consumer group setup
//   - Polling both input streams with a bounded block
//   - Reclaiming entries left pending by crashed consumers
//   - Backing off while the broker is unavailable
//   - Graceful shutdown that lets the in-flight batch finish
//
// Health checks are provided via a separate HTTP server:
//
//	healthServer := worker.NewHealthServer(8082, b, w, logger)
//	healthServer.Start()
//	defer healthServer.Stop()
package worker
