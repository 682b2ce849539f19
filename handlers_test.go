package vitalog_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gt"
	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/m-mizutani/vitalog"
)

type mockSearch struct {
	fn func(ctx context.Context, query string) ([]vitalog.SearchResult, error)
}

func (m *mockSearch) Search(ctx context.Context, query string) ([]vitalog.SearchResult, error) {
	return m.fn(ctx, query)
}

type mockDevice struct {
	activity func(ctx context.Context, date string) (*vitalog.Activity, error)
	sleep    func(ctx context.Context, date string) (*vitalog.Sleep, error)
}

func (m *mockDevice) DailyActivity(ctx context.Context, date string) (*vitalog.Activity, error) {
	return m.activity(ctx, date)
}

func (m *mockDevice) Sleep(ctx context.Context, date string) (*vitalog.Sleep, error) {
	return m.sleep(ctx, date)
}

type mockMemory struct {
	store  func(ctx context.Context, profileID string, rec vitalog.MemoryRecord) (*vitalog.Memory, error)
	search func(ctx context.Context, profileID, query string, threshold float64, limit int) ([]vitalog.Memory, error)
}

func (m *mockMemory) Store(ctx context.Context, profileID string, rec vitalog.MemoryRecord) (*vitalog.Memory, error) {
	return m.store(ctx, profileID, rec)
}

func (m *mockMemory) Search(ctx context.Context, profileID, query string, threshold float64, limit int) ([]vitalog.Memory, error) {
	return m.search(ctx, profileID, query, threshold, limit)
}

func newTestPlanner(t *testing.T, llm vitalog.Completer) *vitalog.Planner {
	t.Helper()
	if llm == nil {
		llm = &mockCompleter{
			complete: func(ctx context.Context, prompt, systemPrompt string) (string, error) {
				return "model output", nil
			},
			completeJSON: func(ctx context.Context, prompt, systemPrompt string, schema *jsonschema.Schema) (string, error) {
				return `{"actions": []}`, nil
			},
		}
	}
	return gt.R1(vitalog.NewPlanner(llm)).NoError(t)
}

func TestHandlersSearch(t *testing.T) {
	search := &mockSearch{
		fn: func(ctx context.Context, query string) ([]vitalog.SearchResult, error) {
			gt.Equal(t, query, "magnesium and sleep")
			return []vitalog.SearchResult{{Title: "study", URL: "https://example.com"}}, nil
		},
	}
	h := vitalog.NewHandlers(newTestPlanner(t, nil), search, &mockDevice{}, &mockMemory{})

	acc := vitalog.NewAccumulator("p1", "q")
	err := h.Dispatch(context.Background(), vitalog.Action{
		Kind: vitalog.KindSearch, Directive: "magnesium and sleep", Priority: 1,
	}, acc)
	gt.NoError(t, err)
	gt.Equal(t, len(acc.SearchResults()), 1)
}

func TestHandlersSearchFailurePropagates(t *testing.T) {
	search := &mockSearch{
		fn: func(ctx context.Context, query string) ([]vitalog.SearchResult, error) {
			return nil, goerr.New("rate limited")
		},
	}
	h := vitalog.NewHandlers(newTestPlanner(t, nil), search, &mockDevice{}, &mockMemory{})

	acc := vitalog.NewAccumulator("p1", "q")
	err := h.Dispatch(context.Background(), vitalog.Action{
		Kind: vitalog.KindSearch, Directive: "x", Priority: 1,
	}, acc)
	gt.Error(t, err)
	gt.Equal(t, len(acc.SearchResults()), 0)
}

func TestHandlersAnalyzeRequestsReplan(t *testing.T) {
	llm := &mockCompleter{
		complete: func(ctx context.Context, prompt, systemPrompt string) (string, error) {
			return vitalog.DefaultReplanMarker + "\n1. Search more", nil
		},
		completeJSON: func(ctx context.Context, prompt, systemPrompt string, schema *jsonschema.Schema) (string, error) {
			return `{"actions": [{"kind": "search", "directive": "more", "priority": 1}]}`, nil
		},
	}
	h := vitalog.NewHandlers(newTestPlanner(t, llm), &mockSearch{}, &mockDevice{}, &mockMemory{})

	acc := vitalog.NewAccumulator("p1", "q")
	err := h.Dispatch(context.Background(), vitalog.Action{
		Kind: vitalog.KindAnalyze, Directive: "assess coverage", Priority: 1,
	}, acc)
	gt.NoError(t, err)
	gt.Equal(t, len(acc.Analyses()), 1)

	replacement, ok := acc.TakeReplan()
	gt.True(t, ok)
	gt.Equal(t, replacement.Len(), 1)
}

func TestHandlersSynthesizeAndRespond(t *testing.T) {
	h := vitalog.NewHandlers(newTestPlanner(t, nil), &mockSearch{}, &mockDevice{}, &mockMemory{})

	acc := vitalog.NewAccumulator("p1", "q")
	gt.NoError(t, h.Dispatch(context.Background(), vitalog.Action{
		Kind: vitalog.KindSynthesize, Directive: "combine", Priority: 1,
	}, acc))
	gt.Equal(t, len(acc.Syntheses()), 1)
	gt.Equal(t, acc.Syntheses()[0].Output, "model output")

	gt.NoError(t, h.Dispatch(context.Background(), vitalog.Action{
		Kind: vitalog.KindRespond, Directive: "answer", Priority: 2,
	}, acc))
	text, ok := acc.FinalResponse()
	gt.True(t, ok)
	gt.Equal(t, text, "model output")
}

func TestHandlersDeviceFetch(t *testing.T) {
	device := &mockDevice{
		activity: func(ctx context.Context, date string) (*vitalog.Activity, error) {
			gt.Equal(t, date, "today")
			return &vitalog.Activity{Date: "2026-08-24", Steps: 8000}, nil
		},
		sleep: func(ctx context.Context, date string) (*vitalog.Sleep, error) {
			// A night without data is a valid snapshot, not an error.
			return nil, nil
		},
	}
	h := vitalog.NewHandlers(newTestPlanner(t, nil), &mockSearch{}, device, &mockMemory{})

	acc := vitalog.NewAccumulator("p1", "q")
	gt.NoError(t, h.Dispatch(context.Background(), vitalog.Action{
		Kind: vitalog.KindFetchActivity, Priority: 1,
	}, acc))
	gt.Equal(t, acc.Activity().Steps, 8000)

	gt.NoError(t, h.Dispatch(context.Background(), vitalog.Action{
		Kind: vitalog.KindFetchSleep, Priority: 2,
	}, acc))
	gt.Nil(t, acc.Sleep())
}

func TestHandlersMemorySearch(t *testing.T) {
	memory := &mockMemory{
		search: func(ctx context.Context, profileID, query string, threshold float64, limit int) ([]vitalog.Memory, error) {
			gt.Equal(t, profileID, "p1")
			gt.Equal(t, query, "past insomnia notes")
			gt.True(t, threshold > 0)
			gt.True(t, limit > 0)
			return []vitalog.Memory{{Title: "bad week in July"}}, nil
		},
	}
	h := vitalog.NewHandlers(newTestPlanner(t, nil), &mockSearch{}, &mockDevice{}, memory)

	acc := vitalog.NewAccumulator("p1", "q")
	gt.NoError(t, h.Dispatch(context.Background(), vitalog.Action{
		Kind: vitalog.KindMemorySearch, Directive: "past insomnia notes", Priority: 1,
	}, acc))
	gt.Equal(t, len(acc.Recalled()), 1)
}

func TestHandlersMemoryStore(t *testing.T) {
	var stored vitalog.MemoryRecord
	memory := &mockMemory{
		store: func(ctx context.Context, profileID string, rec vitalog.MemoryRecord) (*vitalog.Memory, error) {
			stored = rec
			return &vitalog.Memory{ID: "m1"}, nil
		},
	}
	h := vitalog.NewHandlers(newTestPlanner(t, nil), &mockSearch{}, &mockDevice{}, memory)

	directive := "Slept poorly after late espresso\nFull note: two shots at 21:00, sleep latency over an hour."
	gt.NoError(t, h.Dispatch(context.Background(), vitalog.Action{
		Kind: vitalog.KindMemoryStore, Directive: directive, Priority: 1,
	}, vitalog.NewAccumulator("p1", "q")))

	// The title is the first line; the full directive is the content.
	gt.Equal(t, stored.Title, "Slept poorly after late espresso")
	gt.Equal(t, stored.Content, directive)

	t.Run("long title without spaces keeps runes intact", func(t *testing.T) {
		// 40 three-byte runes, 120 bytes, no word boundary: the cut must land
		// on a rune boundary, not mid-character.
		long := strings.Repeat("眠", 40)
		gt.NoError(t, h.Dispatch(context.Background(), vitalog.Action{
			Kind: vitalog.KindMemoryStore, Directive: long, Priority: 1,
		}, vitalog.NewAccumulator("p1", "q")))

		gt.True(t, utf8.ValidString(stored.Title))
		gt.True(t, len(stored.Title) <= 80)
		gt.True(t, strings.HasPrefix(long, stored.Title))
	})
}

func TestHandlersUnknownKind(t *testing.T) {
	h := vitalog.NewHandlers(newTestPlanner(t, nil), &mockSearch{}, &mockDevice{}, &mockMemory{})
	err := h.Dispatch(context.Background(), vitalog.Action{
		Kind: "teleport", Priority: 1,
	}, vitalog.NewAccumulator("p1", "q"))
	gt.Error(t, err)
	gt.True(t, errors.Is(err, vitalog.ErrNoHandler))
}
