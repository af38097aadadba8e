package vector

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Ollama API defaults for the embedding provider collaborator interface
// (spec.md §6.2): no thermal-progression timeout scaling, since spec.md
// has no notion of GPU thermal throttling.
const (
	DefaultOllamaHost    = "http://localhost:11434"
	DefaultOllamaModel   = "qwen3-embedding:0.6b"
	DefaultOllamaTimeout = 60 * time.Second
)

// OllamaConfig configures OllamaProvider.
type OllamaConfig struct {
	Host       string
	Model      string
	Dimensions int // 0 = auto-detect from the first embedding call
	Timeout    time.Duration
}

func (c OllamaConfig) withDefaults() OllamaConfig {
	if c.Host == "" {
		c.Host = DefaultOllamaHost
	}
	if c.Model == "" {
		c.Model = DefaultOllamaModel
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultOllamaTimeout
	}
	return c
}

// ollamaEmbedRequest/Response mirror Ollama's /api/embed request and
// response bodies.
type ollamaEmbedRequest struct {
	Model string `json:"model"`
	Input any    `json:"input"`
}

type ollamaEmbedResponse struct {
	Model      string      `json:"model"`
	Embeddings [][]float64 `json:"embeddings"`
}

// OllamaProvider implements Provider against Ollama's HTTP /api/embed
// endpoint.
type OllamaProvider struct {
	client *http.Client
	config OllamaConfig
	dims   int
}

var _ Provider = (*OllamaProvider)(nil)

// NewOllamaProvider builds a provider without performing a health check;
// Dimensions() reports cfg.Dimensions until the first successful Embed
// call auto-detects it for an unset Dimensions.
func NewOllamaProvider(cfg OllamaConfig) *OllamaProvider {
	cfg = cfg.withDefaults()
	return &OllamaProvider{
		client: &http.Client{Timeout: cfg.Timeout},
		config: cfg,
		dims:   cfg.Dimensions,
	}
}

func (p *OllamaProvider) ModelID() string  { return p.config.Model }
func (p *OllamaProvider) Dimensions() int { return p.dims }

func (p *OllamaProvider) Embed(ctx context.Context, texts []string, kind Kind) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	reqBody, err := json.Marshal(ollamaEmbedRequest{Model: p.config.Model, Input: texts})
	if err != nil {
		return nil, fmt.Errorf("marshal embed request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.config.Host+"/api/embed", bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("build embed request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ollama embed request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("ollama embed: status %d: %s", resp.StatusCode, string(body))
	}

	var parsed ollamaEmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode embed response: %w", err)
	}
	if len(parsed.Embeddings) != len(texts) {
		return nil, fmt.Errorf("ollama embed: expected %d embeddings, got %d", len(texts), len(parsed.Embeddings))
	}

	out := make([][]float32, len(parsed.Embeddings))
	for i, vec := range parsed.Embeddings {
		out[i] = make([]float32, len(vec))
		for j, v := range vec {
			out[i][j] = float32(v)
		}
	}
	if p.dims == 0 && len(out) > 0 {
		p.dims = len(out[0])
	}
	return out, nil
}
