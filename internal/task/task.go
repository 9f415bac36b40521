package task

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrMalformedTask is returned when a stream entry cannot be turned into a
// runnable task. Malformed tasks are never retried.
var ErrMalformedTask = errors.New("malformed task")

// Kind discriminates which processor handles a task
type Kind string

const (
	// KindSummarize asks for a summary of the content
	KindSummarize Kind = "summarize"

	// KindAnswerQuestion asks for an answer to a question about the content
	KindAnswerQuestion Kind = "answer_question"
)

// Valid reports whether k is a known task kind
func (k Kind) Valid() bool {
	return k == KindSummarize || k == KindAnswerQuestion
}

// Input stream entry fields
const (
	FieldID          = "id"
	FieldContent     = "content"
	FieldQuestion    = "question"
	FieldModel       = "model"
	FieldMaxTokens   = "max_tokens"
	FieldTemperature = "temperature"
)

// Task is a unit of queued LLM work
type Task struct {
	ID       string
	Kind     Kind
	Content  string
	Question string
	Model    string

	// MaxTokens and Temperature are optional per-task overrides; zero values
	// mean "use the defaults".
	MaxTokens   int
	Temperature *float64
}

// Decode builds a task of the given kind from the fields of a stream entry.
// When the entry carries no id, the broker entry ID is used instead.
func Decode(kind Kind, entryID string, fields map[string]string) (Task, error) {
	if !kind.Valid() {
		return Task{}, fmt.Errorf("%w: unknown kind %q", ErrMalformedTask, kind)
	}
	if len(fields) == 0 {
		return Task{}, fmt.Errorf("%w: entry %s has no fields", ErrMalformedTask, entryID)
	}

	t := Task{
		ID:      strings.TrimSpace(fields[FieldID]),
		Kind:    kind,
		Content: strings.TrimSpace(fields[FieldContent]),
		Model:   strings.TrimSpace(fields[FieldModel]),
	}
	if t.ID == "" {
		t.ID = entryID
	}
	if kind == KindAnswerQuestion {
		t.Question = strings.TrimSpace(fields[FieldQuestion])
	}

	if raw := strings.TrimSpace(fields[FieldMaxTokens]); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return t, fmt.Errorf("%w: max_tokens must be a positive integer, got %q", ErrMalformedTask, raw)
		}
		t.MaxTokens = n
	}

	if raw := strings.TrimSpace(fields[FieldTemperature]); raw != "" {
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil || f < 0 || f > 2 {
			return t, fmt.Errorf("%w: temperature must be a number between 0 and 2, got %q", ErrMalformedTask, raw)
		}
		t.Temperature = &f
	}

	return t, nil
}

// Fields encodes the task as stream entry fields
func (t Task) Fields() map[string]string {
	fields := map[string]string{
		FieldID:      t.ID,
		FieldContent: t.Content,
		FieldModel:   t.Model,
	}
	if t.Kind == KindAnswerQuestion {
		fields[FieldQuestion] = t.Question
	}
	if t.MaxTokens > 0 {
		fields[FieldMaxTokens] = strconv.Itoa(t.MaxTokens)
	}
	if t.Temperature != nil {
		fields[FieldTemperature] = strconv.FormatFloat(*t.Temperature, 'f', -1, 64)
	}
	return fields
}

// Vars exposes the task to rule and template evaluation
func (t Task) Vars() map[string]interface{} {
	return map[string]interface{}{
		"id":       t.ID,
		"kind":     string(t.Kind),
		"content":  t.Content,
		"question": t.Question,
		"model":    t.Model,
	}
}
