package vitalog

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/m-mizutani/goerr/v2"
)

// Memory search defaults used by the memory_search handler.
const (
	memorySearchThreshold = 0.7
	memorySearchLimit     = 5
)

// Handlers dispatches actions to their collaborators, mutating the shared
// accumulator. A handler that cannot complete its external call returns an
// error so the executor can count it against the retry budget; handlers
// never swallow failures.
type Handlers struct {
	planner *Planner
	search  SearchClient
	device  DeviceClient
	memory  MemoryStore
}

// NewHandlers wires the action handlers to their collaborators.
func NewHandlers(planner *Planner, search SearchClient, device DeviceClient, memory MemoryStore) *Handlers {
	return &Handlers{
		planner: planner,
		search:  search,
		device:  device,
		memory:  memory,
	}
}

// Dispatch runs the handler matching the action's kind.
func (h *Handlers) Dispatch(ctx context.Context, action Action, acc *Accumulator) error {
	switch action.Kind {
	case KindSearch:
		return h.handleSearch(ctx, action, acc)
	case KindAnalyze:
		return h.handleAnalyze(ctx, action, acc)
	case KindSynthesize:
		return h.handleSynthesize(ctx, action, acc)
	case KindRespond:
		return h.handleRespond(ctx, action, acc)
	case KindFetchActivity:
		return h.handleFetchActivity(ctx, acc)
	case KindFetchSleep:
		return h.handleFetchSleep(ctx, acc)
	case KindMemorySearch:
		return h.handleMemorySearch(ctx, action, acc)
	case KindMemoryStore:
		return h.handleMemoryStore(ctx, action, acc)
	default:
		return goerr.Wrap(ErrNoHandler, "dispatch failed", goerr.V("kind", string(action.Kind)))
	}
}

func (h *Handlers) handleSearch(ctx context.Context, action Action, acc *Accumulator) error {
	results, err := h.search.Search(ctx, action.Directive)
	if err != nil {
		return goerr.Wrap(err, "search failed", goerr.V("query", action.Directive))
	}
	acc.AddSearchResults(results)

	LoggerFromContext(ctx).Debug("search results accumulated",
		"query", action.Directive, "count", len(results))
	return nil
}

func (h *Handlers) handleAnalyze(ctx context.Context, action Action, acc *Accumulator) error {
	assessment, err := h.planner.Analyze(ctx, action.Directive, acc)
	if err != nil {
		return err
	}

	acc.AddAnalysis(Finding{Directive: action.Directive, Output: assessment.Text})
	if assessment.Replan != nil {
		acc.RequestReplan(assessment.Replan)
	}
	return nil
}

func (h *Handlers) handleSynthesize(ctx context.Context, action Action, acc *Accumulator) error {
	text, err := h.planner.Synthesize(ctx, action.Directive, acc)
	if err != nil {
		return err
	}
	acc.AddSynthesis(Finding{Directive: action.Directive, Output: text})
	return nil
}

func (h *Handlers) handleRespond(ctx context.Context, action Action, acc *Accumulator) error {
	text, err := h.planner.Respond(ctx, action.Directive, acc)
	if err != nil {
		return err
	}
	acc.SetFinalResponse(text)
	return nil
}

func (h *Handlers) handleFetchActivity(ctx context.Context, acc *Accumulator) error {
	activity, err := h.device.DailyActivity(ctx, "today")
	if err != nil {
		return goerr.Wrap(err, "activity fetch failed")
	}
	// nil activity means no data for the date; that is a valid snapshot.
	acc.SetActivity(activity)
	return nil
}

func (h *Handlers) handleFetchSleep(ctx context.Context, acc *Accumulator) error {
	sleep, err := h.device.Sleep(ctx, "today")
	if err != nil {
		return goerr.Wrap(err, "sleep fetch failed")
	}
	acc.SetSleep(sleep)
	return nil
}

func (h *Handlers) handleMemorySearch(ctx context.Context, action Action, acc *Accumulator) error {
	memories, err := h.memory.Search(ctx, acc.ProfileID, action.Directive, memorySearchThreshold, memorySearchLimit)
	if err != nil {
		return goerr.Wrap(err, "memory search failed", goerr.V("query", action.Directive))
	}
	acc.SetRecalled(memories)
	return nil
}

func (h *Handlers) handleMemoryStore(ctx context.Context, action Action, acc *Accumulator) error {
	rec := MemoryRecord{
		Title:      memoryTitle(action.Directive),
		Content:    action.Directive,
		Kind:       "journal",
		Importance: 5,
	}
	if _, err := h.memory.Store(ctx, acc.ProfileID, rec); err != nil {
		return goerr.Wrap(err, "memory store failed")
	}
	return nil
}

// memoryTitle derives a short title from the directive text: the first line,
// truncated at a word boundary.
func memoryTitle(directive string) string {
	const maxLen = 80

	title := directive
	if i := strings.IndexByte(title, '\n'); i >= 0 {
		title = title[:i]
	}
	title = strings.TrimSpace(title)
	if len(title) <= maxLen {
		return title
	}
	if i := strings.LastIndexByte(title[:maxLen], ' '); i > 0 {
		return title[:i]
	}
	// No word boundary in range; cut on a rune boundary so a multi-byte
	// character is never split.
	cut := maxLen
	for cut > 0 && !utf8.RuneStart(title[cut]) {
		cut--
	}
	return title[:cut]
}
