package llm_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gt"
	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/m-mizutani/vitalog/llm"
)

type mockClient struct {
	generate     func(ctx context.Context, prompt, systemPrompt string) (string, error)
	generateJSON func(ctx context.Context, prompt, systemPrompt string) (string, error)
	calls        int
}

func (m *mockClient) Generate(ctx context.Context, prompt, systemPrompt string) (string, error) {
	m.calls++
	return m.generate(ctx, prompt, systemPrompt)
}

func (m *mockClient) GenerateJSON(ctx context.Context, prompt, systemPrompt string) (string, error) {
	m.calls++
	return m.generateJSON(ctx, prompt, systemPrompt)
}

func fixedClient(text string) *mockClient {
	return &mockClient{
		generate: func(ctx context.Context, prompt, systemPrompt string) (string, error) {
			return text, nil
		},
		generateJSON: func(ctx context.Context, prompt, systemPrompt string) (string, error) {
			return text, nil
		},
	}
}

func failingClient(msg string) *mockClient {
	return &mockClient{
		generate: func(ctx context.Context, prompt, systemPrompt string) (string, error) {
			return "", goerr.New(msg)
		},
		generateJSON: func(ctx context.Context, prompt, systemPrompt string) (string, error) {
			return "", goerr.New(msg)
		},
	}
}

func compileTestSchema(t *testing.T, raw string) *jsonschema.Schema {
	t.Helper()
	doc := gt.R1(jsonschema.UnmarshalJSON(strings.NewReader(raw))).NoError(t)
	compiler := jsonschema.NewCompiler()
	gt.NoError(t, compiler.AddResource("test.json", doc))
	return gt.R1(compiler.Compile("test.json")).NoError(t)
}

func TestNewRouter(t *testing.T) {
	_, err := llm.NewRouter()
	gt.Error(t, err)
	gt.True(t, errors.Is(err, llm.ErrNoModels))
}

func TestRouterComplete(t *testing.T) {
	t.Run("first model wins", func(t *testing.T) {
		first := fixedClient("from first")
		second := fixedClient("from second")
		router := gt.R1(llm.NewRouter(
			llm.Model{Name: "first", Client: first},
			llm.Model{Name: "second", Client: second},
		)).NoError(t)

		text, err := router.Complete(context.Background(), "p", "s")
		gt.NoError(t, err)
		gt.Equal(t, text, "from first")
		gt.Equal(t, second.calls, 0)
	})

	t.Run("failure falls through to next model", func(t *testing.T) {
		first := failingClient("rate limited")
		second := fixedClient("from second")
		router := gt.R1(llm.NewRouter(
			llm.Model{Name: "first", Client: first},
			llm.Model{Name: "second", Client: second},
		)).NoError(t)

		text, err := router.Complete(context.Background(), "p", "s")
		gt.NoError(t, err)
		gt.Equal(t, text, "from second")
		gt.Equal(t, first.calls, 1)
	})

	t.Run("all models failed", func(t *testing.T) {
		router := gt.R1(llm.NewRouter(
			llm.Model{Name: "first", Client: failingClient("overloaded")},
			llm.Model{Name: "second", Client: failingClient("timeout")},
		)).NoError(t)

		_, err := router.Complete(context.Background(), "p", "s")
		gt.Error(t, err)
		gt.True(t, errors.Is(err, llm.ErrAllModelsFailed))
	})
}

func TestRouterCompleteJSON(t *testing.T) {
	schema := compileTestSchema(t, `{
		"type": "object",
		"properties": {"name": {"type": "string"}},
		"required": ["name"]
	}`)

	t.Run("valid JSON passes", func(t *testing.T) {
		router := gt.R1(llm.NewRouter(
			llm.Model{Name: "only", Client: fixedClient(`{"name": "vitalog"}`)},
		)).NoError(t)

		out, err := router.CompleteJSON(context.Background(), "p", "s", schema)
		gt.NoError(t, err)
		gt.Equal(t, out, `{"name": "vitalog"}`)
	})

	t.Run("fenced JSON is extracted before validation", func(t *testing.T) {
		router := gt.R1(llm.NewRouter(
			llm.Model{Name: "only", Client: fixedClient("Here you go:\n```json\n{\"name\": \"vitalog\"}\n```")},
		)).NoError(t)

		out, err := router.CompleteJSON(context.Background(), "p", "s", schema)
		gt.NoError(t, err)
		gt.Equal(t, out, `{"name": "vitalog"}`)
	})

	t.Run("non-JSON output advances to next model", func(t *testing.T) {
		second := fixedClient(`{"name": "fallback"}`)
		router := gt.R1(llm.NewRouter(
			llm.Model{Name: "first", Client: fixedClient("I cannot answer in JSON, sorry.")},
			llm.Model{Name: "second", Client: second},
		)).NoError(t)

		out, err := router.CompleteJSON(context.Background(), "p", "s", schema)
		gt.NoError(t, err)
		gt.Equal(t, out, `{"name": "fallback"}`)
	})

	t.Run("schema violation advances to next model", func(t *testing.T) {
		router := gt.R1(llm.NewRouter(
			llm.Model{Name: "first", Client: fixedClient(`{"wrong": true}`)},
			llm.Model{Name: "second", Client: fixedClient(`{"name": "fallback"}`)},
		)).NoError(t)

		out, err := router.CompleteJSON(context.Background(), "p", "s", schema)
		gt.NoError(t, err)
		gt.Equal(t, out, `{"name": "fallback"}`)
	})

	t.Run("nil schema skips validation", func(t *testing.T) {
		router := gt.R1(llm.NewRouter(
			llm.Model{Name: "only", Client: fixedClient(`{"anything": 1}`)},
		)).NoError(t)

		out, err := router.CompleteJSON(context.Background(), "p", "s", nil)
		gt.NoError(t, err)
		gt.Equal(t, out, `{"anything": 1}`)
	})

	t.Run("all models invalid", func(t *testing.T) {
		router := gt.R1(llm.NewRouter(
			llm.Model{Name: "first", Client: fixedClient("not json")},
			llm.Model{Name: "second", Client: failingClient("server error")},
		)).NoError(t)

		_, err := router.CompleteJSON(context.Background(), "p", "s", schema)
		gt.Error(t, err)
		gt.True(t, errors.Is(err, llm.ErrAllModelsFailed))
	})
}
