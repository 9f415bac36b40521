// Package task defines the unit of queued LLM work and the outcome record
// published for it, together with their flat string encodings as stream
// entry fields.
//
// A Task is immutable once appended to an input stream. Every attempt to run
// it produces exactly one Result, which is appended to the result stream and
// never modified afterwards:
//
//	t, err := task.Decode(task.KindSummarize, entry.ID, entry.Fields)
//	if err != nil {
//	    res := task.Failed(entry.ID, task.KindSummarize, "", err)
//	    ...
//	}
package task
