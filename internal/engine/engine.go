package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"askcode/internal/budget"
	"askcode/internal/metrics"
	"askcode/internal/vectorstore"
	"askcode/pkg/types"
)

// Retrieval channel labels. The slice fixes the merge order, which makes
// first-seen-wins deduplication deterministic.
const (
	ChannelExact     = "exact"
	ChannelSignature = "signature"
	ChannelDef       = "def"
	ChannelContent   = "content"
	ChannelKeywords  = "keywords"
	ChannelContext   = "context"
	ChannelCallers   = "callers"
)

var channelOrder = []string{
	ChannelExact, ChannelSignature, ChannelDef, ChannelContent,
	ChannelKeywords, ChannelContext, ChannelCallers,
}

// Answer sentinels. Gate rejection and zero-result retrieval are reported
// through these, never as errors.
const (
	NoResultsAnswer = "no relevant fragments were retrieved for this question"
)

// errAllChannelsFailed marks a fan-out where every channel raised.
var errAllChannelsFailed = errors.New("all retrieval channels failed")

// Store is the subset of the vector store contract the engine consumes.
type Store interface {
	NearVector(ctx context.Context, vector []float32, limit int, embedType types.EmbedType) ([]vectorstore.Hit, error)
	SignatureMatch(ctx context.Context, pattern string, limit int, withVersion bool) ([]vectorstore.Hit, error)
	Keyword(ctx context.Context, term string, limit int) ([]vectorstore.Hit, error)
	ParentChain(ctx context.Context, signatures []string, limit int) ([]vectorstore.Hit, error)
	Callers(ctx context.Context, symbols []string, limit int) ([]vectorstore.Hit, error)
	FileFragments(ctx context.Context, filePath string, limit int) ([]types.Fragment, error)
}

// ModelClient issues the remote embedding and completion calls.
type ModelClient interface {
	Embed(ctx context.Context, text string, embedType types.EmbedType) ([]float32, error)
	Complete(ctx context.Context, prompt string) (string, error)
}

// Analyzer derives the query context from a raw question.
type Analyzer interface {
	Analyze(question string) types.QueryContext
	ExtractKeywords(text string, limit int) []string
}

// TraceSink receives the diagnostic search trace. Implementations must be
// best-effort: a sink failure never surfaces to the caller.
type TraceSink interface {
	RecordMerge(question string, results []types.ScoredFragment)
	RecordAnswer(question, answer string)
}

// Options are the engine tunables.
type Options struct {
	TopK            int
	MaxSnippetChars int
	MinLines        int
	AutoConfirm     bool
	// Weights maps question category to a channel weight profile. The
	// "default" profile must be present.
	Weights map[string]map[string]float64
}

// Response is the result of one question.
type Response struct {
	Answer       string                  `json:"answer"`
	Fragments    []types.ScoredFragment  `json:"fragments"`
	Category     types.Category          `json:"category"`
	Inconclusive bool                    `json:"inconclusive,omitempty"`
}

// Engine coordinates analysis, multi-channel retrieval, reranking, the
// threshold gate, and answer synthesis.
type Engine struct {
	analyzer Analyzer
	store    Store
	model    ModelClient
	opts     Options
	metrics  *metrics.Metrics
	trace    TraceSink
	logger   *slog.Logger
}

// New builds an engine. metrics and trace may be nil.
func New(analyzer Analyzer, store Store, model ModelClient, opts Options, m *metrics.Metrics, trace TraceSink, logger *slog.Logger) (*Engine, error) {
	if analyzer == nil || store == nil || model == nil {
		return nil, errors.New("analyzer, store, and model client are required")
	}
	if opts.TopK <= 0 {
		opts.TopK = DefaultTopK
	}
	if opts.MaxSnippetChars <= 0 {
		opts.MaxSnippetChars = DefaultMaxSnippetChars
	}
	if opts.Weights == nil {
		return nil, errors.New("channel weight profiles are required")
	}
	if _, ok := opts.Weights["default"]; !ok {
		return nil, errors.New("weight profiles must include default")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		analyzer: analyzer,
		store:    store,
		model:    model,
		opts:     opts,
		metrics:  m,
		trace:    trace,
		logger:   logger.With("component", "engine"),
	}, nil
}

// profile returns the channel weight profile for a category.
func (e *Engine) profile(category types.Category) map[string]float64 {
	if p, ok := e.opts.Weights[string(category)]; ok {
		return p
	}
	return e.opts.Weights["default"]
}

// fileRe spots questions that name a whole source file, which short-cuts
// into the file-overview path.
var fileRe = regexp.MustCompile(`([\w\-./]+\.(?:go|py|js|ts|java|rb|rs|c|cc|cpp|h))\b`)

// Ask answers one question end to end.
func (e *Engine) Ask(ctx context.Context, question string) (*Response, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, types.ErrEmptyQuestion
	}

	if m := fileRe.FindStringSubmatch(question); m != nil {
		return e.fileOverview(ctx, question, m[1])
	}

	category := e.analyzer.Analyze(question).Category

	results, qc, err := e.Search(ctx, question)
	if err != nil {
		if errors.Is(err, budget.ErrBudgetExceeded) {
			return nil, err
		}
		e.logger.Error("multi-channel search failed, trying keyword fallback", "err", err)
		results, err = e.keywordFallback(ctx, question)
		if err != nil {
			return nil, err
		}
		qc = types.QueryContext{Question: question, Category: category}
	}

	if len(results) == 0 {
		return &Response{Answer: NoResultsAnswer, Category: qc.Category}, nil
	}

	if resp, gated := e.gate(qc.Category, question, results); gated {
		return resp, nil
	}

	answer, err := e.synthesize(ctx, question, results)
	if err != nil {
		return nil, err
	}

	if e.trace != nil {
		e.trace.RecordAnswer(question, answer)
	}
	return &Response{Answer: answer, Fragments: results, Category: qc.Category}, nil
}

// Search runs analysis, the channel fan-out, merge, and rerank. The
// returned slice may be empty; the rescue path has already run by then.
func (e *Engine) Search(ctx context.Context, question string) ([]types.ScoredFragment, types.QueryContext, error) {
	start := time.Now()
	qc := e.analyzer.Analyze(question)

	channels, allFailed, err := e.fanOut(ctx, qc)
	if err != nil {
		return nil, qc, err
	}
	if allFailed {
		return nil, qc, errAllChannelsFailed
	}

	merged := Rerank(qc, channels, e.profile(qc.Category))

	if len(merged) == 0 {
		if rescued := e.rescue(ctx, qc); len(rescued) > 0 {
			merged = Rerank(qc, map[string][]types.ChannelResult{ChannelSignature: rescued}, e.profile(qc.Category))
		}
	}

	e.metrics.ObserveSearch(string(qc.Category), time.Since(start))
	scores := make([]float64, len(merged))
	for i, r := range merged {
		scores[i] = r.FinalScore
	}
	e.metrics.ObserveMergeQuality(scores)

	if e.trace != nil && len(merged) > 0 {
		top := merged
		if len(top) > e.opts.TopK {
			top = top[:e.opts.TopK]
		}
		e.trace.RecordMerge(question, top)
	}
	return merged, qc, nil
}

// gate applies the adaptive threshold to the best distance among merged
// results. Fragments from non-vector channels carry no distance and do
// not participate; when nothing carries a distance the gate is skipped,
// since the keyword path is an accepted route to an answer.
func (e *Engine) gate(category types.Category, question string, results []types.ScoredFragment) (*Response, bool) {
	best, ok := bestDistance(results)
	if !ok {
		return nil, false
	}
	threshold := AdaptiveThreshold(category, results)
	if best > threshold+GateSlack && !e.opts.AutoConfirm {
		e.logger.Info("retrieval inconclusive",
			"bestDistance", best, "threshold", threshold, "question", question)
		return &Response{
			Answer: fmt.Sprintf(
				"retrieval inconclusive: best distance %.3f exceeds threshold %.3f",
				best, threshold),
			Fragments:    results,
			Category:     category,
			Inconclusive: true,
		}, true
	}
	return nil, false
}

func bestDistance(results []types.ScoredFragment) (float64, bool) {
	best, found := 0.0, false
	for _, r := range results {
		if !r.HasDistance {
			continue
		}
		if !found || r.Distance < best {
			best, found = r.Distance, true
		}
	}
	return best, found
}

// keywordFallback is the last retrieval resort when every channel raised.
func (e *Engine) keywordFallback(ctx context.Context, question string) ([]types.ScoredFragment, error) {
	keywords := e.analyzer.ExtractKeywords(question, 0)
	var hits []types.ChannelResult
	for _, kw := range keywords {
		found, err := e.store.Keyword(ctx, kw, keywordChannelLimit)
		if err != nil {
			e.logger.Warn("keyword fallback query failed", "keyword", kw, "err", err)
			continue
		}
		for _, h := range found {
			if h.Fragment.Lines() < e.opts.MinLines {
				continue
			}
			hits = append(hits, types.NoDistance(h.Fragment, ChannelKeywords))
		}
	}
	if len(hits) == 0 {
		return nil, nil
	}
	qc := types.QueryContext{
		Question: question,
		Keywords: keywords,
		Category: types.CategoryDefault,
	}
	return Rerank(qc, map[string][]types.ChannelResult{ChannelKeywords: hits}, e.profile(qc.Category)), nil
}

// synthesize builds the bounded prompt and requests the answer.
func (e *Engine) synthesize(ctx context.Context, question string, results []types.ScoredFragment) (string, error) {
	prompt := buildPrompt(question, buildContext(results, e.opts.TopK, e.opts.MaxSnippetChars))
	answer, err := e.model.Complete(ctx, prompt)
	if err != nil {
		return "", fmt.Errorf("answer synthesis: %w", err)
	}
	return answer, nil
}

// fileOverview summarizes one whole file instead of running the fan-out.
// Failures degrade to a sentinel answer; only budget errors propagate.
func (e *Engine) fileOverview(ctx context.Context, question, filePath string) (*Response, error) {
	frags, err := e.store.FileFragments(ctx, filePath, 0)
	if err != nil {
		e.logger.Error("file overview fetch failed", "file", filePath, "err", err)
		return &Response{
			Answer:   fmt.Sprintf("could not load fragments for %s", filePath),
			Category: types.CategoryDefault,
		}, nil
	}
	if len(frags) == 0 {
		return &Response{
			Answer:   fmt.Sprintf("no fragments found for file %s", filePath),
			Category: types.CategoryDefault,
		}, nil
	}

	var sb strings.Builder
	for _, f := range frags {
		sb.WriteString(f.Content)
		sb.WriteString("\n")
	}
	prompt := fmt.Sprintf(
		"Below is the full source of %s. Summarize its three core responsibilities as concise bullet points.\n\n%s",
		filePath, sb.String())

	answer, err := e.model.Complete(ctx, prompt)
	if err != nil {
		if errors.Is(err, budget.ErrBudgetExceeded) {
			return nil, err
		}
		e.logger.Error("file overview synthesis failed", "file", filePath, "err", err)
		return &Response{
			Answer:   fmt.Sprintf("file overview failed for %s", filePath),
			Category: types.CategoryDefault,
		}, nil
	}

	scored := make([]types.ScoredFragment, len(frags))
	for i, f := range frags {
		scored[i] = types.ScoredFragment{Fragment: f, Channel: ChannelKeywords}
	}
	return &Response{Answer: answer, Fragments: scored, Category: types.CategoryDefault}, nil
}
