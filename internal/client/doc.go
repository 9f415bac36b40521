// Package client is the producer side of the queue.
//
// A Producer appends tasks to the input streams and reads outcomes back from
// the result stream by task ID. Results are never pushed to the producer:
//
//	p := client.NewProducer(b, client.Streams{...}, logger)
//	id, err := p.Submit(ctx, task.Task{Kind: task.KindSummarize, Content: text, Model: "claude"})
//	...
//	res, err := p.Wait(ctx, id, time.Second)
package client
