package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/llamaha/sagitta-sub008/internal/config"
	"github.com/llamaha/sagitta-sub008/internal/sagerr"
)

type embedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embedResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

// HTTPEmbedder calls a configured OpenAI-compatible embeddings endpoint,
// grounded on manifold/internal/embedding.EmbedText.
type HTTPEmbedder struct {
	cfg    config.EmbeddingConfig
	client *http.Client
}

// NewHTTPEmbedder returns an HTTPEmbedder for cfg.
func NewHTTPEmbedder(cfg config.EmbeddingConfig) *HTTPEmbedder {
	return &HTTPEmbedder{cfg: cfg, client: http.DefaultClient}
}

func (e *HTTPEmbedder) Dimensions() int { return e.cfg.Dimensions }

// Embed posts inputs to the configured endpoint and returns one embedding
// per input, preserving order. Batching (the "configurable
// batches") is the caller's responsibility — this method embeds exactly
// the inputs it's given in a single request.
func (e *HTTPEmbedder) Embed(ctx context.Context, inputs []string) ([][]float32, error) {
	if len(inputs) == 0 {
		return nil, fmt.Errorf("embed: no inputs: %w", sagerr.ErrInvalidParameter)
	}

	body, err := json.Marshal(embedRequest{Model: e.cfg.Model, Input: inputs})
	if err != nil {
		return nil, fmt.Errorf("marshal embed request: %w", sagerr.ErrSerialization)
	}

	timeout := time.Duration(e.cfg.Timeout) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	url := e.cfg.BaseURL + e.cfg.Path
	req, err := http.NewRequestWithContext(cctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build embed request: %w", sagerr.ErrNetwork)
	}
	if e.cfg.APIHeader == "Authorization" {
		req.Header.Set("Authorization", "Bearer "+e.cfg.APIKey)
	} else if e.cfg.APIHeader != "" {
		req.Header.Set(e.cfg.APIHeader, e.cfg.APIKey)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call embeddings endpoint: %w", sagerr.ErrNetwork)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read embeddings response: %w", sagerr.ErrNetwork)
	}
	if resp.StatusCode/100 != 2 {
		return nil, fmt.Errorf("embeddings endpoint returned %s: %s: %w", resp.Status, string(respBody), sagerr.ErrLLMProvider)
	}

	var parsed embedResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("parse embeddings response: %w", sagerr.ErrParse)
	}
	if len(parsed.Data) != len(inputs) {
		return nil, fmt.Errorf("embeddings endpoint returned %d vectors, wanted %d: %w", len(parsed.Data), len(inputs), sagerr.ErrParse)
	}

	out := make([][]float32, len(parsed.Data))
	for i := range parsed.Data {
		out[i] = parsed.Data[i].Embedding
	}
	return out, nil
}

// CheckReachability sends a minimal request to verify the endpoint responds.
func (e *HTTPEmbedder) CheckReachability(ctx context.Context) error {
	_, err := e.Embed(ctx, []string{"ping"})
	if err != nil {
		return fmt.Errorf("embedding endpoint reachability check failed: %w", err)
	}
	return nil
}
