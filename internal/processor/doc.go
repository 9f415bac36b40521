// Package processor turns queued tasks into provider calls and results.
//
// Both processors follow the same steps: check the task against its
// admission rules, resolve the logical model through the router, render the
// role-structured prompt for the task kind, call the provider, and convert
// the normalized completion into a task.Result with usage and cost.
//
// Process never returns an error. Every failure, from a missing field to a
// rejected provider call, becomes a Result with status "error" and an
// error kind, so the worker can publish it like any other outcome.
package processor
