package processor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aescanero/dago-node-llmworker/internal/eval/cel"
	"github.com/aescanero/dago-node-llmworker/internal/eval/template"
	"github.com/aescanero/dago-node-llmworker/internal/provider"
	"github.com/aescanero/dago-node-llmworker/internal/router"
	"github.com/aescanero/dago-node-llmworker/internal/task"
	"go.uber.org/zap"
)

// Processor executes one kind of task
type Processor interface {
	Kind() task.Kind
	Process(ctx context.Context, t task.Task) task.Result
}

// Deps are the collaborators shared by all processors
type Deps struct {
	Router    *router.Router
	Factory   provider.Factory
	Evaluator *cel.Evaluator
	Engine    *template.Engine
	Logger    *zap.Logger
}

// Options tune processor behaviour
type Options struct {
	// Timeout bounds a single provider call.
	Timeout time.Duration

	// DefaultModel is used when a task names no model.
	DefaultModel string

	// DefaultTemperature is used when a task sets no temperature.
	DefaultTemperature float64

	// AdmissionRule is an extra CEL condition every task must satisfy.
	AdmissionRule string
}

// TaskProcessor implements Processor for one task kind
type TaskProcessor struct {
	kind    task.Kind
	prompts prompts
	rules   []cel.Rule
	deps    Deps
	opts    Options
	logger  *zap.Logger
}

// NewSummaryProcessor creates the processor for summarize tasks
func NewSummaryProcessor(deps Deps, opts Options) (*TaskProcessor, error) {
	return newTaskProcessor(task.KindSummarize, summaryPrompts, summaryRules, deps, opts)
}

// NewQuestionProcessor creates the processor for answer_question tasks
func NewQuestionProcessor(deps Deps, opts Options) (*TaskProcessor, error) {
	return newTaskProcessor(task.KindAnswerQuestion, questionPrompts, questionRules, deps, opts)
}

func newTaskProcessor(kind task.Kind, p prompts, rules []cel.Rule, deps Deps, opts Options) (*TaskProcessor, error) {
	if deps.Router == nil || deps.Factory == nil || deps.Evaluator == nil || deps.Engine == nil || deps.Logger == nil {
		return nil, fmt.Errorf("%s processor: missing dependency", kind)
	}
	if opts.Timeout <= 0 {
		return nil, fmt.Errorf("%s processor: timeout must be positive", kind)
	}

	if opts.AdmissionRule != "" {
		if err := deps.Evaluator.ValidateExpression(opts.AdmissionRule); err != nil {
			return nil, fmt.Errorf("%s processor: invalid admission rule: %w", kind, err)
		}
		rules = append(append([]cel.Rule(nil), rules...), cel.Rule{
			Condition: opts.AdmissionRule,
			Message:   "task rejected by admission rule: " + opts.AdmissionRule,
		})
	}

	for _, tmpl := range []string{p.system, p.user} {
		if err := deps.Engine.ValidateTemplate(tmpl); err != nil {
			return nil, fmt.Errorf("%s processor: invalid prompt template: %w", kind, err)
		}
	}

	return &TaskProcessor{
		kind:    kind,
		prompts: p,
		rules:   rules,
		deps:    deps,
		opts:    opts,
		logger:  deps.Logger.With(zap.String("kind", string(kind))),
	}, nil
}

// Kind returns the task kind handled by the processor
func (p *TaskProcessor) Kind() task.Kind {
	return p.kind
}

// Process runs one attempt of a task and always returns a result
func (p *TaskProcessor) Process(ctx context.Context, t task.Task) task.Result {
	start := time.Now()
	logger := p.logger.With(zap.String("task_id", t.ID))

	if t.Model == "" {
		t.Model = p.opts.DefaultModel
	}

	fail := func(err error, target *router.Target) task.Result {
		res := task.Failed(t.ID, p.kind, Classify(err), err)
		res.Model = t.Model
		if target != nil {
			res.ProviderID = target.ProviderID()
		}
		res.Duration = time.Since(start)

		logger.Warn("task failed",
			zap.String("model", t.Model),
			zap.String("error_kind", string(res.ErrorKind)),
			zap.Error(err),
		)
		return res
	}

	if t.Kind != p.kind {
		return fail(fmt.Errorf("%w: %s task sent to %s processor", task.ErrMalformedTask, t.Kind, p.kind), nil)
	}

	if err := p.validate(ctx, t); err != nil {
		return fail(err, nil)
	}

	target, err := p.deps.Router.Resolve(t.Model)
	if err != nil {
		return fail(err, nil)
	}

	req, err := p.buildRequest(t, target)
	if err != nil {
		return fail(err, target)
	}

	client, err := p.deps.Factory.NewClient(ctx, target)
	if err != nil {
		return fail(err, target)
	}

	callCtx, cancel := context.WithTimeout(ctx, p.opts.Timeout)
	defer cancel()

	logger.Debug("calling provider",
		zap.String("model", t.Model),
		zap.String("provider", target.ProviderID()),
		zap.Int("max_tokens", req.MaxTokens),
	)

	completion, err := client.Complete(callCtx, req)
	if err != nil {
		return fail(err, target)
	}

	res := task.Result{
		TaskID:      t.ID,
		Status:      task.StatusOK,
		Kind:        p.kind,
		Model:       target.Model.Name,
		ProviderID:  target.ProviderID(),
		Payload:     completion.Text,
		Duration:    time.Since(start),
		CompletedAt: time.Now().UTC(),
	}
	if completion.Usage != nil {
		res.Usage = &task.Usage{
			InputTokens:  completion.Usage.InputTokens,
			OutputTokens: completion.Usage.OutputTokens,
			Cost:         target.Model.Cost(completion.Usage.InputTokens, completion.Usage.OutputTokens),
		}
	}

	fields := []zap.Field{
		zap.String("provider", res.ProviderID),
		zap.Duration("duration", res.Duration),
	}
	if res.Usage != nil {
		fields = append(fields,
			zap.Int("input_tokens", res.Usage.InputTokens),
			zap.Int("output_tokens", res.Usage.OutputTokens),
			zap.Float64("cost", res.Usage.Cost),
		)
	}
	logger.Info("task completed", fields...)

	return res
}

// validate checks the task against the processor's rules
func (p *TaskProcessor) validate(ctx context.Context, t task.Task) error {
	failed, err := p.deps.Evaluator.Check(ctx, p.rules, map[string]interface{}{"task": t.Vars()})
	if err != nil {
		return fmt.Errorf("failed to evaluate task rules: %w", err)
	}
	if failed != nil {
		return fmt.Errorf("%w: %s", task.ErrMalformedTask, failed.Message)
	}
	return nil
}

// buildRequest renders the prompts and picks generation parameters
func (p *TaskProcessor) buildRequest(t task.Task, target *router.Target) (provider.Request, error) {
	vars := t.Vars()

	system, err := p.deps.Engine.Render(p.prompts.system, vars)
	if err != nil {
		return provider.Request{}, fmt.Errorf("failed to render system prompt: %w", err)
	}
	user, err := p.deps.Engine.Render(p.prompts.user, vars)
	if err != nil {
		return provider.Request{}, fmt.Errorf("failed to render user prompt: %w", err)
	}

	maxTokens := target.Model.MaxOutputTokens
	if t.MaxTokens > 0 && (maxTokens == 0 || t.MaxTokens < maxTokens) {
		maxTokens = t.MaxTokens
	}

	temperature := p.opts.DefaultTemperature
	if t.Temperature != nil {
		temperature = *t.Temperature
	}

	return provider.Request{
		System:      system,
		User:        user,
		MaxTokens:   maxTokens,
		Temperature: temperature,
	}, nil
}

// Classify maps an error to the error kind reported in results
func Classify(err error) task.ErrorKind {
	switch {
	case errors.Is(err, task.ErrMalformedTask):
		return task.ErrorKindMalformedTask
	case errors.Is(err, router.ErrUnknownModel):
		return task.ErrorKindUnknownModel
	case errors.Is(err, router.ErrMissingCredential):
		return task.ErrorKindMissingCredential
	case errors.Is(err, provider.ErrProvider):
		return task.ErrorKindProvider
	default:
		return task.ErrorKindInternal
	}
}
