// Package llm routes completion requests across an ordered list of models.
// The first model that answers wins; a model failing with a rate limit,
// server error or malformed output is skipped and the next is tried. The
// router fails only when every configured model has failed.
package llm

import (
	"context"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/santhosh-tekuri/jsonschema/v6"
)

var (
	ErrNoModels        = goerr.New("no models configured")
	ErrAllModelsFailed = goerr.New("all configured models failed")
)

// Client is one model provider. Implementations live in the subpackages
// (openai, claude, gemini).
type Client interface {
	// Generate returns a plain text completion.
	Generate(ctx context.Context, prompt, systemPrompt string) (string, error)

	// GenerateJSON returns a completion requested in JSON output mode.
	// Providers without a native JSON mode instruct the model instead; the
	// router validates the output either way.
	GenerateJSON(ctx context.Context, prompt, systemPrompt string) (string, error)
}

// Model pairs a human-readable identifier with its provider client.
type Model struct {
	Name   string
	Client Client
}

// Router tries models in order until one answers.
type Router struct {
	models []Model
}

// NewRouter creates a router over the given models, tried in order.
func NewRouter(models ...Model) (*Router, error) {
	if len(models) == 0 {
		return nil, ErrNoModels
	}
	return &Router{models: models}, nil
}

// Complete returns the first successful text completion.
func (r *Router) Complete(ctx context.Context, prompt, systemPrompt string) (string, error) {
	var errs []goerr.Option
	for _, m := range r.models {
		text, err := m.Client.Generate(ctx, prompt, systemPrompt)
		if err != nil {
			errs = append(errs, goerr.V(m.Name, err.Error()))
			continue
		}
		return text, nil
	}
	return "", goerr.Wrap(ErrAllModelsFailed, "completion failed", errs...)
}

// CompleteJSON returns the first completion that parses as JSON and, when
// schema is non-nil, validates against it. A model returning text that fails
// either check counts as a failed model, same as a transport error.
func (r *Router) CompleteJSON(ctx context.Context, prompt, systemPrompt string, schema *jsonschema.Schema) (string, error) {
	var errs []goerr.Option
	for _, m := range r.models {
		text, err := m.Client.GenerateJSON(ctx, prompt, systemPrompt)
		if err != nil {
			errs = append(errs, goerr.V(m.Name, err.Error()))
			continue
		}

		extracted := ExtractJSON(text)
		value, err := jsonschema.UnmarshalJSON(strings.NewReader(extracted))
		if err != nil {
			errs = append(errs, goerr.V(m.Name, "non-JSON output: "+err.Error()))
			continue
		}
		if schema != nil {
			if err := schema.Validate(value); err != nil {
				errs = append(errs, goerr.V(m.Name, "schema violation: "+err.Error()))
				continue
			}
		}
		return extracted, nil
	}
	return "", goerr.Wrap(ErrAllModelsFailed, "JSON completion failed", errs...)
}
