package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"time"

	"github.com/aescanero/dago-node-llmworker/internal/broker"
	"github.com/aescanero/dago-node-llmworker/internal/client"
	"github.com/aescanero/dago-node-llmworker/internal/router"
	"github.com/aescanero/dago-node-llmworker/internal/task"
	"github.com/redis/go-redis/v9"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var logger = zap.NewNop()

func main() {
	if err := newApp().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp() *cli.App {
	submitFlags := []cli.Flag{
		&cli.StringFlag{
			Name:    "model",
			Aliases: []string{"m"},
			Usage:   "Logical model name (see `llmq models`)",
			Value:   "gemini",
		},
		&cli.StringFlag{
			Name:    "file",
			Aliases: []string{"f"},
			Usage:   "Read document content from a file, - for stdin",
		},
		&cli.StringFlag{
			Name:  "content",
			Usage: "Document content given inline",
		},
		&cli.StringFlag{
			Name:  "id",
			Usage: "Task ID (random when empty)",
		},
		&cli.IntFlag{
			Name:  "max-tokens",
			Usage: "Maximum output tokens (0 uses the model limit)",
		},
		&cli.Float64Flag{
			Name:  "temperature",
			Usage: "Sampling temperature (unset uses the worker default)",
		},
		&cli.BoolFlag{
			Name:    "wait",
			Aliases: []string{"w"},
			Usage:   "Wait for the result and print it",
		},
		&cli.DurationFlag{
			Name:  "timeout",
			Usage: "How long to wait for the result",
			Value: 2 * time.Minute,
		},
		&cli.DurationFlag{
			Name:  "interval",
			Usage: "Result polling interval",
			Value: time.Second,
		},
	}

	return &cli.App{
		Name:  "llmq",
		Usage: "Submit LLM tasks to the queue and read their results",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "redis-addr",
				Usage:   "Redis address",
				Value:   "localhost:6379",
				EnvVars: []string{"REDIS_ADDR"},
			},
			&cli.StringFlag{
				Name:    "redis-pass",
				Usage:   "Redis password",
				EnvVars: []string{"REDIS_PASS"},
			},
			&cli.IntFlag{
				Name:    "redis-db",
				Usage:   "Redis database",
				EnvVars: []string{"REDIS_DB"},
			},
			&cli.StringFlag{
				Name:    "summary-stream",
				Value:   "summary_requests",
				EnvVars: []string{"SUMMARY_STREAM"},
			},
			&cli.StringFlag{
				Name:    "question-stream",
				Value:   "question_requests",
				EnvVars: []string{"QUESTION_STREAM"},
			},
			&cli.StringFlag{
				Name:    "result-stream",
				Value:   "llm_results",
				EnvVars: []string{"RESULT_STREAM"},
			},
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error)",
				Value:   "warn",
			},
		},
		Before: setupLogger,
		Commands: []*cli.Command{
			{
				Name:   "summarize",
				Usage:  "Queue a document summary",
				Action: summarizeCommand,
				Flags:  submitFlags,
			},
			{
				Name:   "ask",
				Usage:  "Queue a question about a document",
				Action: askCommand,
				Flags: append([]cli.Flag{
					&cli.StringFlag{
						Name:     "question",
						Aliases:  []string{"q"},
						Usage:    "Question to answer from the document",
						Required: true,
					},
				}, submitFlags...),
			},
			{
				Name:      "result",
				Usage:     "Look up the result of a task",
				ArgsUsage: "TASK_ID",
				Action:    resultCommand,
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:    "wait",
						Aliases: []string{"w"},
						Usage:   "Wait until the result is available",
					},
					&cli.DurationFlag{
						Name:  "timeout",
						Usage: "How long to wait for the result",
						Value: 2 * time.Minute,
					},
					&cli.DurationFlag{
						Name:  "interval",
						Usage: "Result polling interval",
						Value: time.Second,
					},
				},
			},
			{
				Name:   "models",
				Usage:  "List the logical model names",
				Action: modelsCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "registry",
						Usage:   "Model registry file (built-in table when empty)",
						EnvVars: []string{"MODEL_REGISTRY_FILE"},
					},
				},
			},
		},
	}
}

func setupLogger(c *cli.Context) error {
	level, err := zapcore.ParseLevel(c.String("log-level"))
	if err != nil {
		return fmt.Errorf("invalid log level: %w", err)
	}

	cfg := zap.NewDevelopmentConfig()
	cfg.Level = zap.NewAtomicLevelAt(level)
	cfg.OutputPaths = []string{"stderr"}

	l, err := cfg.Build()
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	logger = l
	return nil
}

func newProducer(c *cli.Context) (*client.Producer, func()) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     c.String("redis-addr"),
		Password: c.String("redis-pass"),
		DB:       c.Int("redis-db"),
	})

	p := client.NewProducer(broker.NewRedis(rdb, logger), client.Streams{
		Summary:  c.String("summary-stream"),
		Question: c.String("question-stream"),
		Result:   c.String("result-stream"),
	}, logger)

	return p, func() { _ = rdb.Close() }
}

func summarizeCommand(c *cli.Context) error {
	return submit(c, task.KindSummarize)
}

func askCommand(c *cli.Context) error {
	return submit(c, task.KindAnswerQuestion)
}

func submit(c *cli.Context, kind task.Kind) error {
	t, err := taskFromFlags(c, kind)
	if err != nil {
		return err
	}

	p, closeFn := newProducer(c)
	defer closeFn()

	ctx := c.Context
	id, err := p.Submit(ctx, t)
	if err != nil {
		return err
	}
	fmt.Fprintln(c.App.Writer, id)

	if !c.Bool("wait") {
		return nil
	}
	return waitAndPrint(c, p, id)
}

// taskFromFlags builds a task from the submit flags
func taskFromFlags(c *cli.Context, kind task.Kind) (task.Task, error) {
	content, err := readContent(c)
	if err != nil {
		return task.Task{}, err
	}

	t := task.Task{
		ID:        c.String("id"),
		Kind:      kind,
		Content:   content,
		Model:     c.String("model"),
		MaxTokens: c.Int("max-tokens"),
	}
	if kind == task.KindAnswerQuestion {
		t.Question = c.String("question")
	}
	if t.MaxTokens < 0 {
		return task.Task{}, fmt.Errorf("max-tokens must not be negative")
	}
	if c.IsSet("temperature") {
		temp := c.Float64("temperature")
		if temp < 0 || temp > 2 {
			return task.Task{}, fmt.Errorf("temperature must be between 0 and 2")
		}
		t.Temperature = &temp
	}
	return t, nil
}

func readContent(c *cli.Context) (string, error) {
	file, inline := c.String("file"), c.String("content")
	switch {
	case file != "" && inline != "":
		return "", fmt.Errorf("use either --file or --content, not both")
	case inline != "":
		return inline, nil
	case file == "-":
		data, err := io.ReadAll(c.App.Reader)
		if err != nil {
			return "", fmt.Errorf("failed to read stdin: %w", err)
		}
		return string(data), nil
	case file != "":
		data, err := os.ReadFile(file)
		if err != nil {
			return "", fmt.Errorf("failed to read %s: %w", file, err)
		}
		return string(data), nil
	default:
		return "", fmt.Errorf("document content is required (--file or --content)")
	}
}

func resultCommand(c *cli.Context) error {
	id := strings.TrimSpace(c.Args().First())
	if id == "" {
		return fmt.Errorf("task id is required")
	}

	p, closeFn := newProducer(c)
	defer closeFn()

	if c.Bool("wait") {
		return waitAndPrint(c, p, id)
	}

	res, err := p.Find(c.Context, id)
	if errors.Is(err, client.ErrResultNotFound) {
		fmt.Fprintf(c.App.Writer, "%s: processing\n", id)
		return nil
	}
	if err != nil {
		return err
	}
	return printResult(c.App.Writer, res)
}

func waitAndPrint(c *cli.Context, p *client.Producer, id string) error {
	ctx, cancel := context.WithTimeout(c.Context, c.Duration("timeout"))
	defer cancel()

	res, err := p.Wait(ctx, id, c.Duration("interval"))
	if err != nil {
		return err
	}
	return printResult(c.App.Writer, res)
}

func printResult(w io.Writer, res task.Result) error {
	fmt.Fprintf(w, "task:     %s\n", res.TaskID)
	fmt.Fprintf(w, "status:   %s\n", res.Status)
	if res.Model != "" {
		fmt.Fprintf(w, "model:    %s (%s)\n", res.Model, res.ProviderID)
	}
	if res.Usage != nil {
		fmt.Fprintf(w, "usage:    %d in / %d out, $%.6f\n", res.Usage.InputTokens, res.Usage.OutputTokens, res.Usage.Cost)
	}
	if res.Duration > 0 {
		fmt.Fprintf(w, "duration: %s\n", res.Duration)
	}
	fmt.Fprintln(w)

	if !res.OK() {
		fmt.Fprintln(w, res.ErrorDetail)
		return cli.Exit(fmt.Sprintf("task %s failed: %s", res.TaskID, res.ErrorKind), 2)
	}
	fmt.Fprintln(w, res.Payload)
	return nil
}

func modelsCommand(c *cli.Context) error {
	registry := router.DefaultRegistry()
	if path := c.String("registry"); path != "" {
		r, err := router.LoadRegistry(path)
		if err != nil {
			return err
		}
		registry = r
	}

	for _, m := range registry.Models() {
		fmt.Fprintf(c.App.Writer, "%-10s %-28s %s\n", m.Name, m.DisplayName, m.ProviderID())
	}
	return nil
}
