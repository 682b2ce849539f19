package vitalog

import (
	"context"
	"sort"
	"time"

	"github.com/m-mizutani/goerr/v2"
)

// Dispatcher runs one action against the shared accumulator. The production
// implementation is *Handlers; tests substitute their own.
type Dispatcher interface {
	Dispatch(ctx context.Context, action Action, acc *Accumulator) error
}

// DispatchHook observes every dispatch attempt. attempt is the 0-based
// attempt count at dispatch time; err is nil on success.
type DispatchHook func(ctx context.Context, action Action, attempt int, err error)

// DefaultMaxRetries bounds both dependency deferrals and failure retries of
// one action before it is permanently dropped.
const DefaultMaxRetries = 3

// Executor orders, dispatches, retries, defers and — when an action installs
// a replacement plan — hot-swaps the remaining queue.
//
// Execution is strictly sequential by design: handlers mutate the shared
// accumulator without synchronization, so one action runs to completion
// before the next is popped.
type Executor struct {
	dispatcher Dispatcher
	maxRetries int
	interval   time.Duration
	hook       DispatchHook
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// WithMaxRetries sets the shared deferral/retry budget per action.
func WithMaxRetries(n int) ExecutorOption {
	return func(e *Executor) {
		e.maxRetries = n
	}
}

// WithActionInterval sets the delay inserted after each dispatch. This is a
// rate-limiting policy knob, not a correctness requirement; zero disables it.
func WithActionInterval(d time.Duration) ExecutorOption {
	return func(e *Executor) {
		e.interval = d
	}
}

// WithDispatchHook sets a hook called after every dispatch attempt.
func WithDispatchHook(hook DispatchHook) ExecutorOption {
	return func(e *Executor) {
		e.hook = hook
	}
}

// NewExecutor creates an executor dispatching through d.
func NewExecutor(d Dispatcher, options ...ExecutorOption) *Executor {
	e := &Executor{
		dispatcher: d,
		maxRetries: DefaultMaxRetries,
		interval:   time.Second,
	}
	for _, opt := range options {
		opt(e)
	}
	return e
}

// Summary reports what one job execution produced.
type Summary struct {
	ActionsConsidered  int  `json:"actions_considered"`
	ActionsCompleted   int  `json:"actions_completed"`
	ActionsDropped     int  `json:"actions_dropped"`
	Replans            int  `json:"replans"`
	SearchResultsFound int  `json:"search_results_found"`
	AnalysisPerformed  bool `json:"analysis_performed"`
	SynthesisPerformed bool `json:"synthesis_performed"`
	FinalResponse      bool `json:"final_response_generated"`
	DeviceDataFetched  bool `json:"device_data_fetched"`
}

// Execute runs the plan to completion and returns a summary. Individual
// action failures are absorbed by the retry-then-drop policy; Execute itself
// fails only on invalid arguments or context cancellation.
//
// The completed-set survives a plan swap: a replacement plan may reference
// dependency priorities satisfied under the old plan. The attempt-count map
// does not survive; replacement actions start with a fresh budget.
func (e *Executor) Execute(ctx context.Context, plan *Plan, acc *Accumulator) (*Summary, error) {
	if plan == nil {
		return nil, goerr.New("plan must not be nil")
	}
	if acc == nil {
		return nil, goerr.New("accumulator must not be nil")
	}

	logger := LoggerFromContext(ctx)
	summary := &Summary{}

	queue := sortByPriority(plan.Actions())
	summary.ActionsConsidered = len(queue)

	completed := make(map[int]bool)
	attempts := make(map[int]int)

	for len(queue) > 0 {
		if err := ctx.Err(); err != nil {
			return summary, goerr.Wrap(err, "execution interrupted")
		}

		action := queue[0]
		queue = queue[1:]

		if missing, ok := unmetDependency(action, completed); ok {
			if attempts[action.Priority] < e.maxRetries {
				attempts[action.Priority]++
				queue = append(queue, action)
				logger.Debug("action deferred on unmet dependency",
					"kind", string(action.Kind),
					"priority", action.Priority,
					"missing", missing,
					"attempts", attempts[action.Priority])
				continue
			}
			summary.ActionsDropped++
			logger.Warn("action dropped: dependency never satisfied",
				"kind", string(action.Kind),
				"priority", action.Priority,
				"missing", missing)
			continue
		}

		attempt := attempts[action.Priority]
		err := e.dispatcher.Dispatch(ctx, action, acc)
		if e.hook != nil {
			e.hook(ctx, action, attempt, err)
		}

		if err != nil {
			if attempt < e.maxRetries {
				attempts[action.Priority]++
				queue = append(queue, action)
				logger.Warn("action failed, queued for retry",
					"kind", string(action.Kind),
					"priority", action.Priority,
					"attempts", attempts[action.Priority],
					"error", err.Error())
			} else {
				summary.ActionsDropped++
				logger.Error("action dropped: retry budget exhausted",
					"kind", string(action.Kind),
					"priority", action.Priority,
					"error", err.Error())
			}
		} else {
			completed[action.Priority] = true
			summary.ActionsCompleted++
			logger.Info("action completed",
				"kind", string(action.Kind),
				"priority", action.Priority)
		}

		// Re-planning is checked after every dispatch, not only after
		// analyze: any handler may request a course change. The old queue is
		// discarded wholesale; the completed-set is kept.
		if replacement, ok := acc.TakeReplan(); ok {
			queue = sortByPriority(replacement.Actions())
			attempts = make(map[int]int)
			summary.Replans++
			summary.ActionsConsidered += len(queue)
			logger.Info("plan replaced mid-flight",
				"remaining_actions", len(queue))
		}

		if e.interval > 0 && len(queue) > 0 {
			select {
			case <-time.After(e.interval):
			case <-ctx.Done():
				return summary, goerr.Wrap(ctx.Err(), "execution interrupted")
			}
		}
	}

	summary.SearchResultsFound = len(acc.SearchResults())
	summary.AnalysisPerformed = len(acc.Analyses()) > 0
	summary.SynthesisPerformed = len(acc.Syntheses()) > 0
	_, summary.FinalResponse = acc.FinalResponse()
	summary.DeviceDataFetched = acc.Activity() != nil || acc.Sleep() != nil

	return summary, nil
}

// sortByPriority stable-sorts actions ascending by priority, preserving the
// original list order for equal values.
func sortByPriority(actions []Action) []Action {
	sorted := make([]Action, len(actions))
	copy(sorted, actions)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Priority < sorted[j].Priority
	})
	return sorted
}

// unmetDependency returns the first dependency priority not yet completed.
func unmetDependency(action Action, completed map[int]bool) (int, bool) {
	for _, dep := range action.Dependencies {
		if !completed[dep] {
			return dep, true
		}
	}
	return 0, false
}
