package engine

import (
	"context"
	"errors"
	"sync"

	"golang.org/x/sync/errgroup"

	"askcode/internal/budget"
	"askcode/internal/query"
	"askcode/internal/vectorstore"
	"askcode/pkg/types"
)

// Per-channel result limits.
const (
	exactChannelLimit     = 10
	signatureChannelLimit = 15
	vectorChannelLimit    = 15
	keywordChannelLimit   = 20
	relationChannelLimit  = 20

	// signatureTokenCount is how many leading question tokens feed the
	// signature-substring channel.
	signatureTokenCount = 4
)

// channelTask is one independent retrieval strategy invocation.
type channelTask struct {
	channel string
	run     func(ctx context.Context) ([]vectorstore.Hit, error)
}

// fanOut embeds the query variants and runs every channel concurrently.
// Individual failures are captured and contribute zero results; a budget
// overrun is the only fatal error. allFailed reports that every task
// raised, which triggers the caller's keyword fallback.
func (e *Engine) fanOut(ctx context.Context, qc types.QueryContext) (channels map[string][]types.ChannelResult, allFailed bool, err error) {
	defVectors, fatal := e.embedVariants(ctx, qc.Variants, types.EmbedDef)
	if fatal != nil {
		return nil, false, fatal
	}
	contentVectors, fatal := e.embedVariants(ctx, qc.Variants, types.EmbedContent)
	if fatal != nil {
		return nil, false, fatal
	}

	tasks := e.buildTasks(qc, defVectors, contentVectors)
	if len(tasks) == 0 {
		return map[string][]types.ChannelResult{}, false, nil
	}

	hits := make([][]vectorstore.Hit, len(tasks))
	errs := make([]error, len(tasks))

	var g errgroup.Group
	for i, t := range tasks {
		g.Go(func() error {
			hits[i], errs[i] = t.run(ctx)
			return nil
		})
	}
	_ = g.Wait()

	channels = make(map[string][]types.ChannelResult, len(channelOrder))
	failures := 0
	for i, t := range tasks {
		if errs[i] != nil {
			if errors.Is(errs[i], budget.ErrBudgetExceeded) {
				return nil, false, errs[i]
			}
			e.logger.Warn("channel task failed", "channel", t.channel, "err", errs[i])
			failures++
			continue
		}
		for _, h := range hits[i] {
			if t.channel == ChannelKeywords && h.Fragment.Lines() < e.opts.MinLines {
				continue
			}
			if h.HasDistance {
				channels[t.channel] = append(channels[t.channel], types.WithDistance(h.Fragment, t.channel, h.Distance))
			} else {
				channels[t.channel] = append(channels[t.channel], types.NoDistance(h.Fragment, t.channel))
			}
		}
	}

	return channels, failures == len(tasks), nil
}

// embedVariants converts every query variant into a vector with the given
// weighting. Individual embedding failures are tolerated; only a budget
// overrun is returned.
func (e *Engine) embedVariants(ctx context.Context, variants []string, embedType types.EmbedType) ([][]float32, error) {
	vectors := make([][]float32, len(variants))
	errs := make([]error, len(variants))

	var wg sync.WaitGroup
	for i, v := range variants {
		wg.Add(1)
		go func() {
			defer wg.Done()
			vectors[i], errs[i] = e.model.Embed(ctx, v, embedType)
		}()
	}
	wg.Wait()

	out := make([][]float32, 0, len(variants))
	for i := range variants {
		if errs[i] != nil {
			if errors.Is(errs[i], budget.ErrBudgetExceeded) {
				return nil, errs[i]
			}
			e.logger.Warn("variant embedding failed",
				"embedType", embedType, "variant", variants[i], "err", errs[i])
			continue
		}
		out = append(out, vectors[i])
	}
	return out, nil
}

// buildTasks assembles one task per channel invocation.
func (e *Engine) buildTasks(qc types.QueryContext, defVectors, contentVectors [][]float32) []channelTask {
	var tasks []channelTask

	for _, sym := range qc.Symbols {
		tasks = append(tasks, channelTask{ChannelExact, func(ctx context.Context) ([]vectorstore.Hit, error) {
			return e.store.SignatureMatch(ctx, sym, exactChannelLimit, true)
		}})
	}

	for _, tok := range query.SignatureTokens(qc.Question, signatureTokenCount) {
		pattern := "*" + tok + "*"
		tasks = append(tasks, channelTask{ChannelSignature, func(ctx context.Context) ([]vectorstore.Hit, error) {
			hits, err := e.store.SignatureMatch(ctx, pattern, signatureChannelLimit, true)
			if err != nil || len(hits) > 0 {
				return hits, err
			}
			// Zero hits under the active embed version: fall back to an
			// unversioned match so older generations remain reachable.
			return e.store.SignatureMatch(ctx, pattern, signatureChannelLimit, false)
		}})
	}

	for _, vec := range defVectors {
		tasks = append(tasks, channelTask{ChannelDef, func(ctx context.Context) ([]vectorstore.Hit, error) {
			return e.store.NearVector(ctx, vec, vectorChannelLimit, types.EmbedDef)
		}})
	}
	for _, vec := range contentVectors {
		tasks = append(tasks, channelTask{ChannelContent, func(ctx context.Context) ([]vectorstore.Hit, error) {
			return e.store.NearVector(ctx, vec, vectorChannelLimit, types.EmbedContent)
		}})
	}

	for _, kw := range qc.Keywords {
		if kw == "" || query.IsStopword(kw) {
			continue
		}
		tasks = append(tasks, channelTask{ChannelKeywords, func(ctx context.Context) ([]vectorstore.Hit, error) {
			return e.store.Keyword(ctx, kw, keywordChannelLimit)
		}})
	}

	if len(qc.Symbols) > 0 {
		tasks = append(tasks, channelTask{ChannelContext, func(ctx context.Context) ([]vectorstore.Hit, error) {
			return e.store.ParentChain(ctx, qc.Symbols, relationChannelLimit)
		}})
		tasks = append(tasks, channelTask{ChannelCallers, func(ctx context.Context) ([]vectorstore.Hit, error) {
			return e.store.Callers(ctx, qc.Symbols, relationChannelLimit)
		}})
	}

	return tasks
}

// rescue retries the signature-substring channel token by token over the
// raw question until any token hits. It runs only when a full fan-out
// merged to nothing.
func (e *Engine) rescue(ctx context.Context, qc types.QueryContext) []types.ChannelResult {
	for _, tok := range query.SignatureTokens(qc.Question, 0) {
		hits, err := e.store.SignatureMatch(ctx, "*"+tok+"*", signatureChannelLimit, true)
		if err != nil {
			e.logger.Warn("rescue signature search failed", "token", tok, "err", err)
			continue
		}
		if len(hits) == 0 {
			continue
		}
		e.logger.Info("rescue path matched", "token", tok, "hits", len(hits))
		out := make([]types.ChannelResult, 0, len(hits))
		for _, h := range hits {
			out = append(out, types.NoDistance(h.Fragment, ChannelSignature))
		}
		return out
	}
	return nil
}
