package openai

import (
	"context"

	"github.com/m-mizutani/goerr/v2"
	"github.com/sashabaranov/go-openai"
)

// GenerateEmbedding generates one embedding vector per input text. The
// dimension applies only to the v3 embedding models; the legacy ada-002
// model always emits its native 1536 dimensions and ignores the argument.
func (c *Client) GenerateEmbedding(ctx context.Context, dimension int, input []string) ([][]float64, error) {
	req := openai.EmbeddingRequest{Input: input}

	switch c.embeddingModel {
	case "text-embedding-3-small":
		req.Model = openai.SmallEmbedding3
		req.Dimensions = dimension
	case "text-embedding-3-large":
		req.Model = openai.LargeEmbedding3
		req.Dimensions = dimension
	case "text-embedding-ada-002":
		req.Model = openai.AdaEmbeddingV2
	default:
		return nil, goerr.New("unsupported embedding model",
			goerr.V("model", c.embeddingModel))
	}

	resp, err := c.client.CreateEmbeddings(ctx, req)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create embedding",
			goerr.V("model", c.embeddingModel))
	}
	if len(resp.Data) != len(input) {
		return nil, goerr.New("embedding count does not match input count",
			goerr.V("inputs", len(input)),
			goerr.V("embeddings", len(resp.Data)))
	}

	vectors := make([][]float64, len(resp.Data))
	for i, data := range resp.Data {
		vector := make([]float64, len(data.Embedding))
		for j, v := range data.Embedding {
			vector[j] = float64(v)
		}
		vectors[i] = vector
	}

	return vectors, nil
}
