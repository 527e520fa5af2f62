// Package embed turns text into vectors for negative issue scoring.
// Three providers are supported: a local Ollama server, the Gemini API,
// and offline word vector models.
package embed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/esglab/newsdesk/internal/config"
	"github.com/esglab/newsdesk/internal/vector"
)

// Embedder is the interface for generating embeddings.
type Embedder interface {
	Name() string
	Embed(ctx context.Context, texts []string) ([][]float64, error)
}

// OllamaEmbedder generates embeddings via a local Ollama server.
type OllamaEmbedder struct {
	Model   string
	BaseURL string
	client  *http.Client
}

// NewOllamaEmbedder creates a new Ollama embedder.
func NewOllamaEmbedder(model, baseURL string) *OllamaEmbedder {
	return &OllamaEmbedder{
		Model:   model,
		BaseURL: baseURL,
		client:  &http.Client{Timeout: 120 * time.Second},
	}
}

func (e *OllamaEmbedder) Name() string { return "ollama" }

// IsAvailable checks that Ollama answers and serves the model.
func (e *OllamaEmbedder) IsAvailable(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.BaseURL+"/api/tags", nil)
	if err != nil {
		return false
	}
	resp, err := e.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false
	}

	var result struct {
		Models []struct {
			Name string `json:"name"`
		} `json:"models"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return false
	}

	modelBase := strings.SplitN(e.Model, ":", 2)[0]
	for _, m := range result.Models {
		if strings.Contains(m.Name, modelBase) {
			return true
		}
	}
	log.Printf("ollama model %q not found", e.Model)
	return false
}

// Embed generates embeddings for the given texts.
func (e *OllamaEmbedder) Embed(ctx context.Context, texts []string) ([][]float64, error) {
	body := map[string]any{
		"model": e.Model,
		"input": texts,
	}
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.BaseURL+"/api/embed", bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ollama embed error: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("ollama embed returned %d: %s", resp.StatusCode, string(respBody))
	}

	var result struct {
		Embeddings [][]float64 `json:"embeddings"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decoding embeddings: %w", err)
	}
	if len(result.Embeddings) != len(texts) {
		return nil, fmt.Errorf("ollama returned %d embeddings for %d texts", len(result.Embeddings), len(texts))
	}
	return result.Embeddings, nil
}

// geminiBatchSize is the per-request cap of the Gemini batch endpoint.
const geminiBatchSize = 100

// GeminiEmbedder generates embeddings via the Gemini API.
type GeminiEmbedder struct {
	model  string
	client *genai.Client
}

// NewGeminiEmbedder creates a Gemini embedder with the given API key.
func NewGeminiEmbedder(ctx context.Context, apiKey, model string) (*GeminiEmbedder, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}
	return &GeminiEmbedder{model: model, client: client}, nil
}

func (g *GeminiEmbedder) Name() string { return "gemini" }

// Close releases the underlying API client.
func (g *GeminiEmbedder) Close() {
	if g.client != nil {
		g.client.Close()
	}
}

// Embed generates embeddings for the given texts, batching at the API
// limit.
func (g *GeminiEmbedder) Embed(ctx context.Context, texts []string) ([][]float64, error) {
	em := g.client.EmbeddingModel(g.model)

	out := make([][]float64, 0, len(texts))
	for start := 0; start < len(texts); start += geminiBatchSize {
		end := min(start+geminiBatchSize, len(texts))

		batch := em.NewBatch()
		for _, text := range texts[start:end] {
			batch.AddContent(genai.Text(text))
		}

		resp, err := em.BatchEmbedContents(ctx, batch)
		if err != nil {
			return nil, fmt.Errorf("gemini embed: %w", err)
		}
		if len(resp.Embeddings) != end-start {
			return nil, fmt.Errorf("gemini returned %d embeddings for %d texts", len(resp.Embeddings), end-start)
		}
		for _, e := range resp.Embeddings {
			vec := make([]float64, len(e.Values))
			for i, v := range e.Values {
				vec[i] = float64(v)
			}
			out = append(out, vec)
		}
	}
	return out, nil
}

// VectorsEmbedder embeds text offline as the mean of word vectors from a
// local model file. Texts with no known words come back as zero vectors.
type VectorsEmbedder struct {
	model *vector.Model
}

// NewVectorsEmbedder loads the word vector model at path.
func NewVectorsEmbedder(path string) (*VectorsEmbedder, error) {
	m, err := vector.Load(path)
	if err != nil {
		return nil, err
	}
	return &VectorsEmbedder{model: m}, nil
}

func (v *VectorsEmbedder) Name() string { return "vectors" }

// Embed generates embeddings for the given texts.
func (v *VectorsEmbedder) Embed(_ context.Context, texts []string) ([][]float64, error) {
	out := make([][]float64, len(texts))
	for i, text := range texts {
		if vec, ok := v.model.SentenceVector(text); ok {
			out[i] = vec
		} else {
			out[i] = make([]float64, v.model.Dim)
		}
	}
	return out, nil
}

// New picks an embedder from configuration. The configured provider is
// tried first and the others serve as fallbacks, so a scoring run keeps
// working when the preferred backend is down.
func New(ctx context.Context, cfg *config.Config) (Embedder, error) {
	provider := strings.ToLower(cfg.Embedding.Provider)

	if provider == "" || provider == "ollama" {
		e := NewOllamaEmbedder(cfg.Embedding.Model, cfg.Embedding.OllamaURL)
		if e.IsAvailable(ctx) {
			log.Printf("using ollama embeddings with model %s", e.Model)
			return e, nil
		}
		log.Println("ollama not reachable, trying gemini")
	}

	if provider == "" || provider == "ollama" || provider == "gemini" {
		if key := os.Getenv(cfg.Embedding.APIKeyEnv); key != "" {
			e, err := NewGeminiEmbedder(ctx, key, cfg.Embedding.GeminiModel)
			if err == nil {
				log.Printf("using gemini embeddings with model %s", cfg.Embedding.GeminiModel)
				return e, nil
			}
			log.Printf("gemini unavailable: %v", err)
		} else if provider == "gemini" {
			return nil, fmt.Errorf("embedding provider gemini needs %s set", cfg.Embedding.APIKeyEnv)
		}
	}

	if cfg.Embedding.VectorsPath != "" {
		e, err := NewVectorsEmbedder(cfg.Embedding.VectorsPath)
		if err != nil {
			return nil, err
		}
		log.Printf("using word vector embeddings from %s", cfg.Embedding.VectorsPath)
		return e, nil
	}

	return nil, fmt.Errorf("no embedding provider available: start ollama, set %s, or configure embedding.vectors_path", cfg.Embedding.APIKeyEnv)
}
