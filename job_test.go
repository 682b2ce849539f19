package vitalog_test

import (
	"context"
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/m-mizutani/vitalog"
)

// mockSink records artifact names in write order.
type mockSink struct {
	names []string
	jobID string
}

func (m *mockSink) Write(jobID, name string, payload any) error {
	m.jobID = jobID
	m.names = append(m.names, name)
	return nil
}

func TestJournalRun(t *testing.T) {
	llm := &mockCompleter{
		complete: func(ctx context.Context, prompt, systemPrompt string) (string, error) {
			return "1. Fetch last night's sleep\n2. Respond to the user", nil
		},
		completeJSON: func(ctx context.Context, prompt, systemPrompt string, schema *jsonschema.Schema) (string, error) {
			return `{"actions": [
				{"kind": "fetch_sleep", "priority": 1},
				{"kind": "respond", "directive": "summarize last night", "priority": 2, "dependencies": [1]}
			]}`, nil
		},
	}
	device := &mockDevice{
		sleep: func(ctx context.Context, date string) (*vitalog.Sleep, error) {
			return &vitalog.Sleep{Date: "2026-08-24", DurationMin: 480, MinutesAsleep: 432}, nil
		},
	}
	sink := &mockSink{}

	journal, err := vitalog.New(llm, &mockSearch{}, device, &mockMemory{},
		vitalog.WithArtifacts(sink),
		vitalog.WithExecutorOptions(vitalog.WithActionInterval(0)),
	)
	gt.NoError(t, err)

	result, err := journal.Run(context.Background(), "p1", "how did I sleep")
	gt.NoError(t, err)
	gt.NotEqual(t, result.JobID, "")
	gt.Equal(t, result.JobID, sink.jobID)
	// The respond handler's output is the final text. The mock completer
	// answers every free-text call the same way.
	gt.NotEqual(t, result.Response, "")
	gt.Equal(t, result.Summary.ActionsCompleted, 2)
	gt.True(t, result.Summary.FinalResponse)
	gt.True(t, result.Summary.DeviceDataFetched)

	gt.Equal(t, sink.names, []string{
		"query", "plan", "dispatch_fetch_sleep", "dispatch_respond", "summary", "response",
	})
}

func TestJournalRunPlanFailure(t *testing.T) {
	llm := &mockCompleter{
		complete: func(ctx context.Context, prompt, systemPrompt string) (string, error) {
			return "1. do something", nil
		},
		completeJSON: func(ctx context.Context, prompt, systemPrompt string, schema *jsonschema.Schema) (string, error) {
			return `{"actions": [{"kind": "teleport", "priority": 1}]}`, nil
		},
	}
	sink := &mockSink{}

	journal, err := vitalog.New(llm, &mockSearch{}, &mockDevice{}, &mockMemory{},
		vitalog.WithArtifacts(sink),
	)
	gt.NoError(t, err)

	_, err = journal.Run(context.Background(), "p1", "q")
	gt.Error(t, err)
	gt.Equal(t, sink.names, []string{"query", "error"})
}

func TestJournalRunRecoversPanic(t *testing.T) {
	llm := &mockCompleter{
		complete: func(ctx context.Context, prompt, systemPrompt string) (string, error) {
			panic("model client blew up")
		},
	}
	sink := &mockSink{}

	journal, err := vitalog.New(llm, &mockSearch{}, &mockDevice{}, &mockMemory{},
		vitalog.WithArtifacts(sink),
	)
	gt.NoError(t, err)

	_, err = journal.Run(context.Background(), "p1", "q")
	gt.Error(t, err)
	// The panic is converted into an error artifact; the process survives.
	gt.Equal(t, sink.names[len(sink.names)-1], "error")
}
