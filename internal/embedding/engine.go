// Package embedding provides vector embedding generation for semantic
// precedent retrieval. Supports Ollama (local) and Google GenAI (cloud).
package embedding

import (
	"context"
	"fmt"
	"math"

	"tradenerd/internal/logging"
)

// Engine generates vector embeddings for text.
type Engine interface {
	// Embed generates an embedding for a single text
	Embed(ctx context.Context, text string) ([]float32, error)

	// Dimensions returns the dimensionality of embeddings
	Dimensions() int

	// Name returns the engine name
	Name() string
}

// Config holds embedding engine configuration.
type Config struct {
	// Provider: "ollama" or "genai"
	Provider string

	OllamaEndpoint string // Default: "http://localhost:11434"
	OllamaModel    string // Default: "embeddinggemma"

	GenAIAPIKey string
	GenAIModel  string // Default: "gemini-embedding-001"
}

// NewEngine creates an embedding engine based on configuration.
func NewEngine(cfg Config) (Engine, error) {
	logging.Embedding("Creating embedding engine with provider=%s", cfg.Provider)

	switch cfg.Provider {
	case "ollama":
		return NewOllamaEngine(cfg.OllamaEndpoint, cfg.OllamaModel)
	case "genai":
		return NewGenAIEngine(cfg.GenAIAPIKey, cfg.GenAIModel)
	default:
		return nil, fmt.Errorf("unsupported embedding provider: %s (use 'ollama' or 'genai')", cfg.Provider)
	}
}

// CosineSimilarity calculates the cosine similarity between two vectors.
// Returns a value between -1 and 1.
func CosineSimilarity(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("vectors must have the same length: %d != %d", len(a), len(b))
	}

	var dot, aMag, bMag float64
	for i := 0; i < len(a); i++ {
		dot += float64(a[i] * b[i])
		aMag += float64(a[i] * a[i])
		bMag += float64(b[i] * b[i])
	}

	if aMag == 0 || bMag == 0 {
		logging.Get(logging.CategoryEmbedding).Warn("CosineSimilarity: zero magnitude vector")
		return 0, nil
	}

	return dot / (math.Sqrt(aMag) * math.Sqrt(bMag)), nil
}

// Similarity01 maps cosine similarity onto [0,1] so it can be combined
// with keyword relevance in the hybrid score.
func Similarity01(a, b []float32) (float64, error) {
	cos, err := CosineSimilarity(a, b)
	if err != nil {
		return 0, err
	}
	return (cos + 1) / 2, nil
}
