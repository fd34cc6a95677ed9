package utils

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/pinecone-io/go-pinecone/pinecone"
	openai "github.com/sashabaranov/go-openai"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/Sori-Labs/sori-go-sdk/models"
)

const exampleNamespace = "sori-examples"

// ExampleMemory stores confirmed voice commands as embeddings so the
// context classifier can show the model how similar utterances were
// resolved before. Strictly additive: when it is unavailable the prompt
// just carries no examples.
type ExampleMemory struct {
	index *pinecone.IndexConnection
	embed *openai.Client
	model openai.EmbeddingModel
}

// NewExampleMemory connects to the configured Pinecone index.
func NewExampleMemory(cfg *models.Config) (*ExampleMemory, error) {
	ctx := context.Background()

	client, err := pinecone.NewClient(pinecone.NewClientParams{ApiKey: cfg.PineconeAPIKey})
	if err != nil {
		return nil, fmt.Errorf("failed to create Pinecone client: %w", err)
	}

	idx, err := client.DescribeIndex(ctx, cfg.PineconeIndex)
	if err != nil {
		return nil, fmt.Errorf("failed to describe index %q: %w", cfg.PineconeIndex, err)
	}

	idxConnection, err := client.Index(pinecone.NewIndexConnParams{Host: idx.Host, Namespace: exampleNamespace})
	if err != nil {
		return nil, fmt.Errorf("failed to create IndexConnection for Host %v: %w", idx.Host, err)
	}

	oc := openai.DefaultConfig(cfg.OpenAIAPIKey)
	if cfg.OpenAIBaseURL != "" {
		oc.BaseURL = cfg.OpenAIBaseURL
	}

	return &ExampleMemory{
		index: idxConnection,
		embed: openai.NewClientWithConfig(oc),
		model: openai.AdaEmbeddingV2,
	}, nil
}

// Similar returns up to topK stored command lines resembling transcript.
func (m *ExampleMemory) Similar(ctx context.Context, transcript string, topK int) ([]string, error) {
	embedding, err := m.vectorize(ctx, transcript)
	if err != nil {
		return nil, err
	}

	queryResponse, err := m.index.QueryByVectorValues(ctx, &pinecone.QueryByVectorValuesRequest{
		Vector:          embedding,
		TopK:            uint32(topK),
		IncludeValues:   false,
		IncludeMetadata: true,
	})
	if err != nil {
		return nil, fmt.Errorf("error querying Pinecone index: %w", err)
	}

	var matches []string
	for _, match := range queryResponse.Matches {
		if match.Vector == nil || match.Vector.Metadata == nil {
			continue
		}
		if value, ok := match.Vector.Metadata.Fields["text"]; ok {
			if text := value.GetStringValue(); text != "" {
				matches = append(matches, text)
			}
		}
	}
	return matches, nil
}

// Store records how a command was resolved. Callers should only store
// results that were confidently executed, not guesses.
func (m *ExampleMemory) Store(ctx context.Context, transcript string, res models.IntentResult) error {
	line := fmt.Sprintf("%q = %s", transcript, res.Intent)
	if res.Target != "" {
		line = fmt.Sprintf("%q = %s %s", transcript, res.Intent, res.Target)
	}

	embedding, err := m.vectorize(ctx, transcript)
	if err != nil {
		return err
	}

	metadata, err := structpb.NewStruct(map[string]interface{}{"text": line})
	if err != nil {
		return fmt.Errorf("failed to build vector metadata: %w", err)
	}

	_, err = m.index.UpsertVectors(ctx, []*pinecone.Vector{{
		Id:       uuid.New().String(),
		Values:   embedding,
		Metadata: metadata,
	}})
	if err != nil {
		return fmt.Errorf("error upserting to Pinecone index: %w", err)
	}
	return nil
}

func (m *ExampleMemory) vectorize(ctx context.Context, text string) ([]float32, error) {
	resp, err := m.embed.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: []string{strings.TrimSpace(text)},
		Model: m.model,
	})
	if err != nil {
		return nil, fmt.Errorf("error vectorizing text: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("no data in embeddings response")
	}
	return resp.Data[0].Embedding, nil
}
