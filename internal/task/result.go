package task

import (
	"fmt"
	"strconv"
	"time"
)

// Status is the outcome of one task attempt
type Status string

const (
	StatusOK    Status = "ok"
	StatusError Status = "error"
)

// ErrorKind classifies a failed attempt
type ErrorKind string

const (
	ErrorKindMalformedTask     ErrorKind = "malformed_task"
	ErrorKindUnknownModel      ErrorKind = "unknown_model"
	ErrorKindMissingCredential ErrorKind = "missing_credential"
	ErrorKindProvider          ErrorKind = "provider_error"
	ErrorKindInternal          ErrorKind = "internal"
)

// Result stream entry fields
const (
	FieldTaskID       = "task_id"
	FieldStatus       = "status"
	FieldPayload      = "payload"
	FieldErrorDetail  = "error_detail"
	FieldErrorKind    = "error_kind"
	FieldInputTokens  = "usage.input_tokens"
	FieldOutputTokens = "usage.output_tokens"
	FieldCost         = "usage.cost"
	FieldKind         = "kind"
	FieldResultModel  = "model"
	FieldProvider     = "provider"
	FieldDurationMS   = "duration_ms"
	FieldSourceEntry  = "source_entry"
	FieldCompletedAt  = "completed_at"
)

// Usage holds provider token counts and the computed cost in USD
type Usage struct {
	InputTokens  int
	OutputTokens int
	Cost         float64
}

// Result is the outcome of executing one task
type Result struct {
	TaskID      string
	Status      Status
	Kind        Kind
	Model       string
	ProviderID  string
	Payload     string
	Usage       *Usage
	ErrorKind   ErrorKind
	ErrorDetail string
	Duration    time.Duration
	SourceEntry string
	CompletedAt time.Time
}

// Failed builds an error result for a task
func Failed(taskID string, kind Kind, errKind ErrorKind, err error) Result {
	detail := "unknown error"
	if err != nil {
		detail = err.Error()
	}
	return Result{
		TaskID:      taskID,
		Status:      StatusError,
		Kind:        kind,
		ErrorKind:   errKind,
		ErrorDetail: detail,
		CompletedAt: time.Now().UTC(),
	}
}

// OK reports whether the attempt succeeded
func (r Result) OK() bool {
	return r.Status == StatusOK
}

// Fields encodes the result as stream entry fields
func (r Result) Fields() map[string]string {
	fields := map[string]string{
		FieldTaskID: r.TaskID,
		FieldStatus: string(r.Status),
	}

	if r.Status == StatusOK {
		fields[FieldPayload] = r.Payload
	} else {
		fields[FieldErrorDetail] = r.ErrorDetail
		if r.ErrorKind != "" {
			fields[FieldErrorKind] = string(r.ErrorKind)
		}
	}

	if r.Usage != nil {
		fields[FieldInputTokens] = strconv.Itoa(r.Usage.InputTokens)
		fields[FieldOutputTokens] = strconv.Itoa(r.Usage.OutputTokens)
		fields[FieldCost] = strconv.FormatFloat(r.Usage.Cost, 'f', 6, 64)
	}

	if r.Kind != "" {
		fields[FieldKind] = string(r.Kind)
	}
	if r.Model != "" {
		fields[FieldResultModel] = r.Model
	}
	if r.ProviderID != "" {
		fields[FieldProvider] = r.ProviderID
	}
	if r.Duration > 0 {
		fields[FieldDurationMS] = strconv.FormatInt(r.Duration.Milliseconds(), 10)
	}
	if r.SourceEntry != "" {
		fields[FieldSourceEntry] = r.SourceEntry
	}
	if !r.CompletedAt.IsZero() {
		fields[FieldCompletedAt] = r.CompletedAt.Format(time.RFC3339Nano)
	}

	return fields
}

// ParseResult decodes a result from result stream entry fields
func ParseResult(fields map[string]string) (Result, error) {
	r := Result{
		TaskID:      fields[FieldTaskID],
		Status:      Status(fields[FieldStatus]),
		Kind:        Kind(fields[FieldKind]),
		Model:       fields[FieldResultModel],
		ProviderID:  fields[FieldProvider],
		Payload:     fields[FieldPayload],
		ErrorKind:   ErrorKind(fields[FieldErrorKind]),
		ErrorDetail: fields[FieldErrorDetail],
		SourceEntry: fields[FieldSourceEntry],
	}

	if r.TaskID == "" {
		return r, fmt.Errorf("result is missing %s", FieldTaskID)
	}
	if r.Status != StatusOK && r.Status != StatusError {
		return r, fmt.Errorf("result %s has invalid status %q", r.TaskID, r.Status)
	}

	if raw, ok := fields[FieldInputTokens]; ok {
		usage := &Usage{}
		var err error
		if usage.InputTokens, err = strconv.Atoi(raw); err != nil {
			return r, fmt.Errorf("invalid %s: %w", FieldInputTokens, err)
		}
		if usage.OutputTokens, err = strconv.Atoi(fields[FieldOutputTokens]); err != nil {
			return r, fmt.Errorf("invalid %s: %w", FieldOutputTokens, err)
		}
		if usage.Cost, err = strconv.ParseFloat(fields[FieldCost], 64); err != nil {
			return r, fmt.Errorf("invalid %s: %w", FieldCost, err)
		}
		r.Usage = usage
	}

	if raw := fields[FieldDurationMS]; raw != "" {
		ms, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return r, fmt.Errorf("invalid %s: %w", FieldDurationMS, err)
		}
		r.Duration = time.Duration(ms) * time.Millisecond
	}

	if raw := fields[FieldCompletedAt]; raw != "" {
		ts, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return r, fmt.Errorf("invalid %s: %w", FieldCompletedAt, err)
		}
		r.CompletedAt = ts
	}

	return r, nil
}
