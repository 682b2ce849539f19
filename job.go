package vitalog

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/m-mizutani/goerr/v2"
)

// Journal runs health-journaling jobs: one job per user query, from plan
// authoring through execution to the final response, with every intermediate
// artifact handed to the sink.
type Journal struct {
	planner     *Planner
	handlers    *Handlers
	artifacts   ArtifactSink
	logger      *slog.Logger
	execOptions []ExecutorOption
}

// Option configures a Journal.
type Option func(*Journal)

// WithLogger sets the logger attached to every job context.
func WithLogger(logger *slog.Logger) Option {
	return func(j *Journal) {
		j.logger = logger
	}
}

// WithArtifacts sets the sink receiving per-job artifacts.
func WithArtifacts(sink ArtifactSink) Option {
	return func(j *Journal) {
		j.artifacts = sink
	}
}

// WithExecutorOptions forwards options to the per-job executor.
func WithExecutorOptions(options ...ExecutorOption) Option {
	return func(j *Journal) {
		j.execOptions = append(j.execOptions, options...)
	}
}

// New creates a Journal over the given collaborators.
func New(llm Completer, search SearchClient, device DeviceClient, memory MemoryStore, options ...Option) (*Journal, error) {
	planner, err := NewPlanner(llm)
	if err != nil {
		return nil, err
	}

	j := &Journal{
		planner:  planner,
		handlers: NewHandlers(planner, search, device, memory),
		logger:   defaultLogger,
	}
	for _, opt := range options {
		opt(j)
	}
	return j, nil
}

// Result is the outcome of one job.
type Result struct {
	JobID    string   `json:"job_id"`
	Summary  *Summary `json:"summary"`
	Response string   `json:"response,omitempty"`
}

// Run executes one job for the given profile and query. Anything escaping
// the executor's retry-and-drop policy — including panics — is caught here,
// recorded as an error artifact, and returned; a job never crashes the host
// process.
func (j *Journal) Run(ctx context.Context, profileID, query string) (result *Result, err error) {
	jobID := uuid.New().String()
	logger := j.logger.With("job_id", jobID)
	ctx = ctxWithLogger(ctx, logger)

	defer func() {
		if r := recover(); r != nil {
			err = goerr.New("job panicked", goerr.V("panic", fmt.Sprint(r)))
			j.writeArtifact(ctx, jobID, "error", map[string]any{"panic": fmt.Sprint(r)})
			logger.Error("job panicked", "panic", fmt.Sprint(r))
		}
	}()

	logger.Info("job started", "profile_id", profileID, "query", query)
	j.writeArtifact(ctx, jobID, "query", map[string]string{
		"profile_id": profileID,
		"query":      query,
	})

	plan, err := j.planner.CreatePlan(ctx, query)
	if err != nil {
		j.writeArtifact(ctx, jobID, "error", map[string]string{"error": err.Error()})
		return nil, goerr.Wrap(err, "failed to author initial plan", goerr.V("job_id", jobID))
	}
	j.writeArtifact(ctx, jobID, "plan", plan)

	acc := NewAccumulator(profileID, query)

	execOptions := append([]ExecutorOption{
		WithDispatchHook(func(ctx context.Context, action Action, attempt int, dispatchErr error) {
			payload := map[string]any{
				"kind":     string(action.Kind),
				"priority": action.Priority,
				"attempt":  attempt,
				"ok":       dispatchErr == nil,
			}
			if action.Directive != "" {
				payload["directive"] = action.Directive
			}
			if dispatchErr != nil {
				payload["error"] = dispatchErr.Error()
			}
			j.writeArtifact(ctx, jobID, "dispatch_"+string(action.Kind), payload)
		}),
	}, j.execOptions...)

	executor := NewExecutor(j.handlers, execOptions...)
	summary, err := executor.Execute(ctx, plan, acc)
	if err != nil {
		j.writeArtifact(ctx, jobID, "error", map[string]string{"error": err.Error()})
		return nil, goerr.Wrap(err, "plan execution failed", goerr.V("job_id", jobID))
	}
	j.writeArtifact(ctx, jobID, "summary", summary)

	response, ok := acc.FinalResponse()
	if ok {
		j.writeArtifact(ctx, jobID, "response", map[string]string{"text": response})
	}

	logger.Info("job finished",
		"completed", summary.ActionsCompleted,
		"dropped", summary.ActionsDropped,
		"replans", summary.Replans,
		"final_response", ok)

	return &Result{JobID: jobID, Summary: summary, Response: response}, nil
}

func (j *Journal) writeArtifact(ctx context.Context, jobID, name string, payload any) {
	if j.artifacts == nil {
		return
	}
	if err := j.artifacts.Write(jobID, name, payload); err != nil {
		LoggerFromContext(ctx).Warn("failed to write artifact",
			"name", name, "error", err.Error())
	}
}
