// Package results publishes task outcomes to the result stream.
//
// The result stream has no consumer group owned by the worker; producers
// read it with their own cursor, or by scanning for a task_id.
package results
