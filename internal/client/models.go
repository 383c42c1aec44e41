package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"
)

const (
	// ModelsTTL is how long a fetched model list is reused.
	ModelsTTL = 24 * time.Hour

	modelsTimeout = 20 * time.Second
	maxModels     = 60
)

// recommendedModels are offered when the provider cannot list its models.
var recommendedModels = []string{
	"Qwen/Qwen3-Next-80B-A3B-Instruct",
	"meta-llama/Llama-3.3-70B-Instruct",
	"mistralai/Mistral-Large-Instruct-2411",
	"Qwen/Qwen3-235B-A22B-Thinking-2507",
	"deepseek-ai/DeepSeek-R1-0528",
}

// Model is an entry of the provider's model list.
type Model struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// RecommendedModels returns the built-in fallback list.
func RecommendedModels() []Model {
	models := make([]Model, 0, len(recommendedModels))
	for _, id := range recommendedModels {
		models = append(models, Model{ID: id, Name: id})
	}
	return models
}

type modelEntry struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Model string `json:"model"`
}

type modelsResponse struct {
	Data   []modelEntry `json:"data"`
	Models []modelEntry `json:"models"`
}

// Models lists the provider's models. A rejected request falls back to the
// recommended list; transport failures are returned.
func (c *Client) Models(ctx context.Context) ([]Model, error) {
	c.mu.Lock()
	if len(c.models) > 0 && c.now().Sub(c.modelsAt) < ModelsTTL {
		models := append([]Model(nil), c.models...)
		c.mu.Unlock()
		return models, nil
	}
	c.mu.Unlock()

	headers, err := c.tokens.Headers(ctx)
	switch {
	case errors.Is(err, ErrMissingAPIKey):
		headers = http.Header{}
	case err != nil:
		return nil, fmt.Errorf("failed to get headers: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, modelsTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/models", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header = headers

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			c.logger.Warn("failed to close response body", "err", err)
		}
	}()

	if resp.StatusCode != http.StatusOK {
		c.logger.Debug("model list unavailable, using recommended models", "status", resp.StatusCode)
		return RecommendedModels(), nil
	}

	var body modelsResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		c.logger.Debug("failed to decode model list", "err", err)
	}

	entries := body.Data
	if entries == nil {
		entries = body.Models
	}

	models := make([]Model, 0, min(len(entries), maxModels))
	for _, e := range entries {
		id := firstNonEmpty(e.ID, e.Name, e.Model)
		if id == "" {
			continue
		}
		models = append(models, Model{ID: id, Name: id})
		if len(models) == maxModels {
			break
		}
	}
	if len(models) == 0 {
		return RecommendedModels(), nil
	}

	c.mu.Lock()
	c.models = models
	c.modelsAt = c.now()
	c.mu.Unlock()

	return append([]Model(nil), models...), nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
