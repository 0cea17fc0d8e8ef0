// Package vectorstore implements the structured query contract against a
// Weaviate-style GraphQL endpoint holding the indexed code fragments.
//
// Every query filters on the active embedVersion by default; callers that
// exhaust the primary query may explicitly fall back to an unversioned
// variant so older embedding generations remain reachable.
package vectorstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"time"

	"askcode/pkg/types"
)

// ErrMalformedResponse indicates the store returned an unexpected shape.
// It is a failure of that single call, never process-fatal.
var ErrMalformedResponse = errors.New("malformed vector store response")

// Hit is one fragment returned by a store query. Vector queries carry a
// similarity distance; filter-only queries do not.
type Hit struct {
	Fragment    types.Fragment
	Distance    float64
	HasDistance bool
}

// Config holds client construction parameters.
type Config struct {
	BaseURL      string
	Class        string
	EmbedVersion string
	Timeout      time.Duration
}

// Client talks to the fragment collection.
type Client struct {
	baseURL      string
	class        string
	embedVersion string
	httpc        *http.Client
	logger       *slog.Logger
}

// New builds a store client.
func New(cfg Config, logger *slog.Logger) *Client {
	if cfg.Class == "" {
		cfg.Class = "CodeFragment"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL:      strings.TrimRight(cfg.BaseURL, "/"),
		class:        cfg.Class,
		embedVersion: cfg.EmbedVersion,
		httpc:        &http.Client{Timeout: cfg.Timeout},
		logger:       logger.With("component", "vectorstore"),
	}
}

// EmbedVersion returns the active embedding generation tag.
func (c *Client) EmbedVersion() string { return c.embedVersion }

// fragmentFields lists every property fetched per hit.
const fragmentFields = `filePath startLine endLine signature parentSignatures content docstring tags calls calledBy embedType embedVersion`

// NearVector runs a nearest-neighbor query restricted to one embed type
// and the active embed version.
func (c *Client) NearVector(ctx context.Context, vector []float32, limit int, embedType types.EmbedType) ([]Hit, error) {
	vec, err := json.Marshal(vector)
	if err != nil {
		return nil, fmt.Errorf("encode vector: %w", err)
	}
	where := and(
		eq("embedType", string(embedType)),
		c.versionPredicate(),
	)
	q := fmt.Sprintf(`{
  Get {
    %s(
      nearVector: { vector: %s },
      limit: %d,
      where: %s
    ) { %s _additional { distance } }
  }
}`, c.class, vec, limit, where, fragmentFields)
	return c.getHits(ctx, q, true)
}

// SignatureMatch runs a Like filter on the signature field. pattern may
// contain * wildcards for substring matching. withVersion toggles the
// embedVersion predicate; the fallback path disables it.
func (c *Client) SignatureMatch(ctx context.Context, pattern string, limit int, withVersion bool) ([]Hit, error) {
	where := like("signature", pattern)
	if withVersion {
		where = and(where, c.versionPredicate())
	}
	return c.getHits(ctx, c.filterQuery(where, limit), false)
}

// Keyword matches a term in content, tags, or docstring.
func (c *Client) Keyword(ctx context.Context, term string, limit int) ([]Hit, error) {
	where := and(
		or(
			like("content", term),
			containsAny("tags", []string{term}),
			like("docstring", term),
		),
		c.versionPredicate(),
	)
	return c.getHits(ctx, c.filterQuery(where, limit), false)
}

// ParentChain matches any fragment whose ancestor chain contains one of
// the given signatures.
func (c *Client) ParentChain(ctx context.Context, signatures []string, limit int) ([]Hit, error) {
	if len(signatures) == 0 {
		return nil, nil
	}
	where := and(
		containsAny("parentSignatures", signatures),
		c.versionPredicate(),
	)
	return c.getHits(ctx, c.filterQuery(where, limit), false)
}

// Callers matches fragments related to the given symbols through the
// call graph, in either direction.
func (c *Client) Callers(ctx context.Context, symbols []string, limit int) ([]Hit, error) {
	if len(symbols) == 0 {
		return nil, nil
	}
	where := and(
		or(
			containsAny("calls", symbols),
			containsAny("calledBy", symbols),
		),
		c.versionPredicate(),
	)
	return c.getHits(ctx, c.filterQuery(where, limit), false)
}

// FileFragments returns every fragment of one file, sorted by start line.
func (c *Client) FileFragments(ctx context.Context, filePath string, limit int) ([]types.Fragment, error) {
	if limit <= 0 {
		limit = 500
	}
	where := and(
		like("filePath", "*"+filePath),
		c.versionPredicate(),
	)
	hits, err := c.getHits(ctx, c.filterQuery(where, limit), false)
	if err != nil {
		return nil, err
	}
	frags := make([]types.Fragment, len(hits))
	for i, h := range hits {
		frags[i] = h.Fragment
	}
	sort.SliceStable(frags, func(i, j int) bool {
		return frags[i].StartLine < frags[j].StartLine
	})
	return frags, nil
}

// Count returns the number of indexed fragments via an aggregate query.
func (c *Client) Count(ctx context.Context) (int64, error) {
	q := fmt.Sprintf(`{ Aggregate { %s { meta { count } } } }`, c.class)
	raw, err := c.post(ctx, q)
	if err != nil {
		return 0, err
	}
	var data struct {
		Aggregate map[string][]struct {
			Meta struct {
				Count int64 `json:"count"`
			} `json:"meta"`
		} `json:"Aggregate"`
	}
	if err := json.Unmarshal(raw, &data); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	rows, ok := data.Aggregate[c.class]
	if !ok || len(rows) == 0 {
		return 0, fmt.Errorf("%w: missing aggregate for class %s", ErrMalformedResponse, c.class)
	}
	return rows[0].Meta.Count, nil
}

// filterQuery builds a where-only Get query.
func (c *Client) filterQuery(where string, limit int) string {
	return fmt.Sprintf(`{
  Get {
    %s(
      where: %s,
      limit: %d
    ) { %s }
  }
}`, c.class, where, limit, fragmentFields)
}

type gqlAdditional struct {
	Distance *float64 `json:"distance"`
}

type gqlHit struct {
	types.Fragment
	Additional *gqlAdditional `json:"_additional"`
}

// getHits posts a Get query and decodes the hits for the class.
func (c *Client) getHits(ctx context.Context, query string, expectDistance bool) ([]Hit, error) {
	raw, err := c.post(ctx, query)
	if err != nil {
		return nil, err
	}
	var data struct {
		Get map[string][]gqlHit `json:"Get"`
	}
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	rows, ok := data.Get[c.class]
	if !ok {
		return nil, fmt.Errorf("%w: missing class %s", ErrMalformedResponse, c.class)
	}
	hits := make([]Hit, 0, len(rows))
	for _, row := range rows {
		h := Hit{Fragment: row.Fragment}
		if expectDistance && row.Additional != nil && row.Additional.Distance != nil {
			h.Distance = *row.Additional.Distance
			h.HasDistance = true
		}
		hits = append(hits, h)
	}
	return hits, nil
}

// post sends one GraphQL request and returns the raw data payload.
func (c *Client) post(ctx context.Context, query string) (json.RawMessage, error) {
	body, err := json.Marshal(map[string]string{"query": query})
	if err != nil {
		return nil, fmt.Errorf("encode query: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/graphql", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("vector store request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("vector store status %d: %s", resp.StatusCode, strings.TrimSpace(string(payload)))
	}

	var envelope struct {
		Data   json.RawMessage `json:"data"`
		Errors []struct {
			Message string `json:"message"`
		} `json:"errors"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if len(envelope.Errors) > 0 {
		msgs := make([]string, len(envelope.Errors))
		for i, e := range envelope.Errors {
			msgs[i] = e.Message
		}
		return nil, fmt.Errorf("graphql error(s): %s", strings.Join(msgs, "; "))
	}
	if envelope.Data == nil {
		return nil, fmt.Errorf("%w: missing data", ErrMalformedResponse)
	}
	return envelope.Data, nil
}

// versionPredicate is the default embedVersion equality filter.
func (c *Client) versionPredicate() string {
	return eq("embedVersion", c.embedVersion)
}

// Where-filter fragments. Weaviate operators are GraphQL enums, so the
// predicates are assembled as raw strings with JSON-escaped values.

func eq(path, value string) string {
	return fmt.Sprintf(`{ path: [%s], operator: Equal, valueString: %s }`, quote(path), quote(value))
}

func like(path, pattern string) string {
	return fmt.Sprintf(`{ path: [%s], operator: Like, valueString: %s }`, quote(path), quote(pattern))
}

func containsAny(path string, values []string) string {
	arr, _ := json.Marshal(values)
	return fmt.Sprintf(`{ path: [%s], operator: ContainsAny, valueStringArray: %s }`, quote(path), arr)
}

func and(operands ...string) string {
	return fmt.Sprintf(`{ operator: And, operands: [%s] }`, strings.Join(operands, ", "))
}

func or(operands ...string) string {
	return fmt.Sprintf(`{ operator: Or, operands: [%s] }`, strings.Join(operands, ", "))
}

func quote(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}
