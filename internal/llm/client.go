package llm

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"golang.org/x/sync/semaphore"

	"askcode/internal/budget"
	"askcode/internal/metrics"
	"askcode/pkg/types"
)

// Common errors
var (
	ErrEmptyText      = errors.New("text cannot be empty")
	ErrEmptyPrompt    = errors.New("prompt cannot be empty")
	ErrProviderFailed = errors.New("model provider failed")
)

const (
	// DefaultConcurrency bounds in-flight remote calls process-wide.
	DefaultConcurrency = 5
	// DefaultTimeout wraps every individual remote call.
	DefaultTimeout = 30 * time.Second
	// DefaultCacheSize is the embedding LRU capacity.
	DefaultCacheSize = 10000

	chatTemperature = 0.2
)

// Config holds client construction parameters.
type Config struct {
	APIKey       string
	BaseURL      string
	EmbedModel   string
	ChatModel    string
	Concurrency  int64
	Timeout      time.Duration
	RetryBackoff time.Duration
	CacheSize    int
}

// Client issues embedding and chat-completion calls against an
// OpenAI-compatible provider. Every call acquires the shared semaphore,
// runs under a per-call timeout, retries once on a transient signal, and
// accumulates its token cost into the budget tracker.
type Client struct {
	oc         openai.Client
	sem        *semaphore.Weighted
	budget     *budget.Tracker
	metrics    *metrics.Metrics
	cache      *lru.Cache[string, []float32]
	embedModel string
	chatModel  string
	timeout    time.Duration
	retry      RetryPolicy
	logger     *slog.Logger
}

// New builds a client. The tracker is required: remote spending without
// budget accounting is not allowed anywhere in the engine.
func New(cfg Config, tracker *budget.Tracker, m *metrics.Metrics, logger *slog.Logger) (*Client, error) {
	if tracker == nil {
		return nil, errors.New("budget tracker is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConcurrency
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = DefaultCacheSize
	}
	retry := DefaultRetryPolicy()
	if cfg.RetryBackoff > 0 {
		retry.Backoff = cfg.RetryBackoff
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		// The engine owns retry behavior; disable the SDK's.
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	cache, err := lru.New[string, []float32](cfg.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("create embedding cache: %w", err)
	}

	return &Client{
		oc:         openai.NewClient(opts...),
		sem:        semaphore.NewWeighted(cfg.Concurrency),
		budget:     tracker,
		metrics:    m,
		cache:      cache,
		embedModel: cfg.EmbedModel,
		chatModel:  cfg.ChatModel,
		timeout:    cfg.Timeout,
		retry:      retry,
		logger:     logger.With("component", "llm"),
	}, nil
}

// cacheKey keys embeddings by content and embed-type tag, since the two
// weightings produce different vectors for the same text.
func cacheKey(text string, embedType types.EmbedType) string {
	h := sha256.Sum256([]byte(string(embedType) + "\x00" + text))
	return hex.EncodeToString(h[:])
}

// Embed converts text into a vector, tagging the provider request with
// the embed type. Results are cached; cache hits cost nothing.
func (c *Client) Embed(ctx context.Context, text string, embedType types.EmbedType) ([]float32, error) {
	if text == "" {
		return nil, ErrEmptyText
	}

	key := cacheKey(text, embedType)
	if vec, ok := c.cache.Get(key); ok {
		out := make([]float32, len(vec))
		copy(out, vec)
		return out, nil
	}

	if err := c.budget.Check(); err != nil {
		return nil, err
	}
	if err := c.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer c.sem.Release(1)

	vec, err := retryTransient(ctx, c.retry, func() ([]float32, error) {
		callCtx, cancel := context.WithTimeout(ctx, c.timeout)
		defer cancel()

		resp, err := c.oc.Embeddings.New(callCtx, openai.EmbeddingNewParams{
			Input: openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: []string{text}},
			Model: openai.EmbeddingModel(c.embedModel),
			User:  openai.String(string(embedType)),
		})
		if err != nil {
			c.metrics.APIError(errorKind(err))
			return nil, err
		}
		if len(resp.Data) == 0 {
			c.metrics.APIError("malformed")
			return nil, fmt.Errorf("%w: no embedding returned", ErrProviderFailed)
		}

		c.metrics.AddUsage(c.embedModel, resp.Usage.PromptTokens, 0)
		cost, berr := c.budget.Add(c.embedModel, resp.Usage.PromptTokens, 0)
		c.metrics.SetBudgetSpent(c.budget.Spent())
		c.logger.Debug("embedding generated",
			"embedType", embedType, "tokens", resp.Usage.PromptTokens, "cost", cost)
		if berr != nil {
			return nil, berr
		}

		out := make([]float32, len(resp.Data[0].Embedding))
		for i, v := range resp.Data[0].Embedding {
			out[i] = float32(v)
		}
		return out, nil
	})
	if err != nil {
		return nil, err
	}

	c.cache.Add(key, vec)
	return vec, nil
}

// Complete sends one user-role prompt and returns the completion text
// untouched.
func (c *Client) Complete(ctx context.Context, prompt string) (string, error) {
	if prompt == "" {
		return "", ErrEmptyPrompt
	}

	if err := c.budget.Check(); err != nil {
		return "", err
	}
	if err := c.sem.Acquire(ctx, 1); err != nil {
		return "", err
	}
	defer c.sem.Release(1)

	return retryTransient(ctx, c.retry, func() (string, error) {
		callCtx, cancel := context.WithTimeout(ctx, c.timeout)
		defer cancel()

		resp, err := c.oc.Chat.Completions.New(callCtx, openai.ChatCompletionNewParams{
			Model: openai.ChatModel(c.chatModel),
			Messages: []openai.ChatCompletionMessageParamUnion{
				openai.UserMessage(prompt),
			},
			Temperature: openai.Float(chatTemperature),
		})
		if err != nil {
			c.metrics.APIError(errorKind(err))
			return "", err
		}
		if len(resp.Choices) == 0 {
			c.metrics.APIError("malformed")
			return "", fmt.Errorf("%w: no completion returned", ErrProviderFailed)
		}

		c.metrics.AddUsage(c.chatModel, resp.Usage.PromptTokens, resp.Usage.CompletionTokens)
		cost, berr := c.budget.Add(c.chatModel, resp.Usage.PromptTokens, resp.Usage.CompletionTokens)
		c.metrics.SetBudgetSpent(c.budget.Spent())
		c.logger.Debug("completion generated",
			"promptTokens", resp.Usage.PromptTokens,
			"completionTokens", resp.Usage.CompletionTokens, "cost", cost)
		if berr != nil {
			return "", berr
		}

		return resp.Choices[0].Message.Content, nil
	})
}

// errorKind buckets a provider error for the metrics counter.
func errorKind(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case isTransient(err):
		return "rate_limit"
	default:
		return "provider"
	}
}
