package openai_test

import (
	"context"
	"testing"

	"github.com/m-mizutani/gt"

	"github.com/m-mizutani/vitalog/llm/openai"
)

func TestGenerateEmbeddingUnsupportedModel(t *testing.T) {
	client, err := openai.New(context.Background(), "test-key",
		openai.WithEmbeddingModel("text-embedding-bogus"))
	gt.NoError(t, err)

	// The model is rejected before any API call is made.
	_, err = client.GenerateEmbedding(context.Background(), 256, []string{"text"})
	gt.Error(t, err)
}
