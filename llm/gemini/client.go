// Package gemini implements the llm.Client interface over Google's Gemini
// models served through Vertex AI.
package gemini

import (
	"context"
	"strings"

	"cloud.google.com/go/vertexai/genai"
	"github.com/m-mizutani/goerr/v2"
	"google.golang.org/api/option"
)

const DefaultModel = "gemini-1.5-flash"

// Client is a client for Gemini models on Vertex AI.
type Client struct {
	projectID string
	location  string

	// client is the underlying Vertex AI client.
	client *genai.Client

	// defaultModel is the model to use for chat completions.
	// It can be overridden using WithModel option.
	defaultModel string

	// gcpOptions are additional options for Google Cloud Platform.
	// They can be set using WithGoogleCloudOptions.
	gcpOptions []option.ClientOption

	temperature float32
	maxTokens   int32
}

// Option is a configuration option for the Gemini client.
type Option func(*Client)

// WithModel sets the model to use for text generation.
// Default: "gemini-1.5-flash"
func WithModel(model string) Option {
	return func(c *Client) {
		c.defaultModel = model
	}
}

// WithGoogleCloudOptions sets additional Google Cloud options.
// These can include authentication credentials, endpoint overrides, etc.
func WithGoogleCloudOptions(opts ...option.ClientOption) Option {
	return func(c *Client) {
		c.gcpOptions = append(c.gcpOptions, opts...)
	}
}

// WithTemperature sets the temperature parameter for text generation.
// Range: 0.0 to 2.0
func WithTemperature(temp float32) Option {
	return func(c *Client) {
		c.temperature = temp
	}
}

// WithMaxTokens sets the maximum number of tokens to generate.
func WithMaxTokens(maxTokens int32) Option {
	return func(c *Client) {
		c.maxTokens = maxTokens
	}
}

// New creates a new client for Gemini on Vertex AI.
// It requires a GCP project ID and location.
func New(ctx context.Context, projectID, location string, options ...Option) (*Client, error) {
	client := &Client{
		projectID:    projectID,
		location:     location,
		defaultModel: DefaultModel,
		temperature:  0.7,
	}

	for _, option := range options {
		option(client)
	}

	newClient, err := genai.NewClient(ctx, projectID, location, client.gcpOptions...)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create Vertex AI client",
			goerr.V("project_id", projectID),
			goerr.V("location", location))
	}
	client.client = newClient

	return client, nil
}

// Close releases the underlying Vertex AI connection.
func (c *Client) Close() error {
	return c.client.Close()
}

// Generate returns a plain text completion for the prompt.
func (c *Client) Generate(ctx context.Context, prompt, systemPrompt string) (string, error) {
	return c.generate(ctx, prompt, systemPrompt, "")
}

// GenerateJSON returns a completion with the response MIME type pinned to
// JSON.
func (c *Client) GenerateJSON(ctx context.Context, prompt, systemPrompt string) (string, error) {
	return c.generate(ctx, prompt, systemPrompt, "application/json")
}

func (c *Client) generate(ctx context.Context, prompt, systemPrompt, mimeType string) (string, error) {
	model := c.client.GenerativeModel(c.defaultModel)
	model.SetTemperature(c.temperature)
	if c.maxTokens > 0 {
		model.SetMaxOutputTokens(c.maxTokens)
	}
	if mimeType != "" {
		model.GenerationConfig.ResponseMIMEType = mimeType
	}
	if systemPrompt != "" {
		model.SystemInstruction = &genai.Content{
			Parts: []genai.Part{genai.Text(systemPrompt)},
		}
	}

	resp, err := model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", goerr.Wrap(err, "failed to generate content",
			goerr.V("model", c.defaultModel))
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", goerr.New("no candidates returned",
			goerr.V("model", c.defaultModel))
	}

	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			sb.WriteString(string(text))
		}
	}
	if sb.Len() == 0 {
		return "", goerr.New("no text parts returned",
			goerr.V("model", c.defaultModel))
	}

	return strings.TrimSpace(sb.String()), nil
}
