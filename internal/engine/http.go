package engine

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"
	"github.com/tiktoken-go/tokenizer"
	"golang.org/x/time/rate"

	"github.com/thebtf/orion/internal/privacy"
	"github.com/thebtf/orion/pkg/similarity"
)

// Defaults for HTTPConfig.
const (
	DefaultTimeout           = 5 * time.Minute
	DefaultMaxTokensPerForce = 512
	DefaultRequestsPerSecond = 1.0
	maxErrorBody             = 4 << 10
)

// HTTPConfig configures the remote clustering engine client.
type HTTPConfig struct {
	Client            *http.Client
	URL               string
	Timeout           time.Duration
	MaxTokensPerForce int
	RequestsPerSecond float64
}

// HTTPEngine calls a remote clustering service over JSON/HTTP.
type HTTPEngine struct {
	client    *http.Client
	limiter   *rate.Limiter
	codec     tokenizer.Codec
	url       string
	maxTokens int
}

// NewHTTPEngine creates a client for the engine at cfg.URL.
func NewHTTPEngine(cfg HTTPConfig) (*HTTPEngine, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("engine url is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxTokensPerForce <= 0 {
		cfg.MaxTokensPerForce = DefaultMaxTokensPerForce
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = DefaultRequestsPerSecond
	}
	client := cfg.Client
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}

	codec, err := tokenizer.Get(tokenizer.Cl100kBase)
	if err != nil {
		return nil, fmt.Errorf("load tokenizer: %w", err)
	}

	return &HTTPEngine{
		client:    client,
		limiter:   rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1),
		codec:     codec,
		url:       strings.TrimRight(cfg.URL, "/"),
		maxTokens: cfg.MaxTokensPerForce,
	}, nil
}

type clusterRequest struct {
	JobID  string       `json:"jobId"`
	Forces []ForceInput `json:"forces"`
	Params Params       `json:"params"`
}

// Cluster sends the forces to the remote engine and returns its result.
func (e *HTTPEngine) Cluster(ctx context.Context, forces []ForceInput, params Params, jobID string) (*Result, error) {
	payload := clusterRequest{
		JobID:  jobID,
		Params: params,
		Forces: make([]ForceInput, len(forces)),
	}
	titles := make(map[string]string, len(forces))
	for i, f := range forces {
		titles[f.ID] = f.Title
		payload.Forces[i] = ForceInput{
			ID:        f.ID,
			Title:     privacy.Clean(f.Title),
			Text:      e.truncate(privacy.Clean(f.Text)),
			Embedding: f.Embedding,
		}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	if err := e.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.url+"/cluster", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call engine: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, fmt.Errorf("engine returned %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var result Result
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	relabeled := relabel(result.Clusters, titles)

	log.Debug().
		Str("job_id", jobID).
		Int("forces", len(forces)).
		Int("clusters", len(result.Clusters)).
		Int("relabeled", relabeled).
		Dur("elapsed", time.Since(start)).
		Msg("Clustering engine responded")

	return &result, nil
}

// truncate limits text to the configured token budget.
func (e *HTTPEngine) truncate(text string) string {
	ids, _, err := e.codec.Encode(text)
	if err != nil || len(ids) <= e.maxTokens {
		return text
	}
	out, err := e.codec.Decode(ids[:e.maxTokens])
	if err != nil {
		return text
	}
	return out
}

// relabel replaces generic "Cluster N" labels with keyword titles built from
// the member force titles. Returns the number of labels replaced.
func relabel(clusters []ClusterResult, titles map[string]string) int {
	n := 0
	for i := range clusters {
		if !similarity.IsGenericLabel(clusters[i].Label) {
			continue
		}
		// Blank labels stay blank so validation still rejects clusters the engine left unnamed.
		if strings.TrimSpace(clusters[i].Label) == "" {
			continue
		}
		memberTitles := make([]string, 0, len(clusters[i].ForceIDs))
		for _, id := range clusters[i].ForceIDs {
			if t, ok := titles[id]; ok {
				memberTitles = append(memberTitles, t)
			}
		}
		clusters[i].Label = similarity.SuggestTitle(memberTitles, i+1)
		n++
	}
	return n
}
