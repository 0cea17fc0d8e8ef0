package engine

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"askcode/internal/budget"
	"askcode/internal/query"
	"askcode/internal/vectorstore"
	"askcode/pkg/types"
)

// fakeStore lets each test script the channel responses.
type fakeStore struct {
	nearVector     func(embedType types.EmbedType) ([]vectorstore.Hit, error)
	signatureMatch func(pattern string, withVersion bool) ([]vectorstore.Hit, error)
	keyword        func(term string) ([]vectorstore.Hit, error)
	parentChain    func() ([]vectorstore.Hit, error)
	callers        func() ([]vectorstore.Hit, error)
	fileFragments  func(filePath string) ([]types.Fragment, error)
}

func (s *fakeStore) NearVector(ctx context.Context, vector []float32, limit int, embedType types.EmbedType) ([]vectorstore.Hit, error) {
	if s.nearVector == nil {
		return nil, nil
	}
	return s.nearVector(embedType)
}

func (s *fakeStore) SignatureMatch(ctx context.Context, pattern string, limit int, withVersion bool) ([]vectorstore.Hit, error) {
	if s.signatureMatch == nil {
		return nil, nil
	}
	return s.signatureMatch(pattern, withVersion)
}

func (s *fakeStore) Keyword(ctx context.Context, term string, limit int) ([]vectorstore.Hit, error) {
	if s.keyword == nil {
		return nil, nil
	}
	return s.keyword(term)
}

func (s *fakeStore) ParentChain(ctx context.Context, signatures []string, limit int) ([]vectorstore.Hit, error) {
	if s.parentChain == nil {
		return nil, nil
	}
	return s.parentChain()
}

func (s *fakeStore) Callers(ctx context.Context, symbols []string, limit int) ([]vectorstore.Hit, error) {
	if s.callers == nil {
		return nil, nil
	}
	return s.callers()
}

func (s *fakeStore) FileFragments(ctx context.Context, filePath string, limit int) ([]types.Fragment, error) {
	if s.fileFragments == nil {
		return nil, nil
	}
	return s.fileFragments(filePath)
}

// fakeModel answers every embed with a fixed vector and records prompts.
type fakeModel struct {
	mu       sync.Mutex
	embedErr error
	answer   string
	prompts  []string
}

func (m *fakeModel) Embed(ctx context.Context, text string, embedType types.EmbedType) ([]float32, error) {
	if m.embedErr != nil {
		return nil, m.embedErr
	}
	return []float32{0.1, 0.2, 0.3}, nil
}

func (m *fakeModel) Complete(ctx context.Context, prompt string) (string, error) {
	m.mu.Lock()
	m.prompts = append(m.prompts, prompt)
	m.mu.Unlock()
	return m.answer, nil
}

func (m *fakeModel) lastPrompt() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.prompts) == 0 {
		return ""
	}
	return m.prompts[len(m.prompts)-1]
}

func testWeights() map[string]map[string]float64 {
	return map[string]map[string]float64{
		"default": flatWeights(),
	}
}

func newTestEngine(t *testing.T, store Store, model ModelClient, opts Options) *Engine {
	t.Helper()
	if opts.Weights == nil {
		opts.Weights = testWeights()
	}
	eng, err := New(query.NewAnalyzer(), store, model, opts, nil, nil, nil)
	require.NoError(t, err)
	return eng
}

func hit(path string, start, end int, opts ...func(*vectorstore.Hit)) vectorstore.Hit {
	h := vectorstore.Hit{
		Fragment: types.Fragment{
			FilePath:  path,
			StartLine: start,
			EndLine:   end,
			Content:   "body of " + path,
		},
	}
	for _, o := range opts {
		o(&h)
	}
	return h
}

func withDist(d float64) func(*vectorstore.Hit) {
	return func(h *vectorstore.Hit) {
		h.Distance = d
		h.HasDistance = true
	}
}

func TestNew(t *testing.T) {
	t.Run("requires collaborators", func(t *testing.T) {
		_, err := New(nil, &fakeStore{}, &fakeModel{}, Options{Weights: testWeights()}, nil, nil, nil)
		assert.Error(t, err)
	})

	t.Run("requires a default weight profile", func(t *testing.T) {
		_, err := New(query.NewAnalyzer(), &fakeStore{}, &fakeModel{},
			Options{Weights: map[string]map[string]float64{"purpose": flatWeights()}}, nil, nil, nil)
		assert.Error(t, err)
	})

	t.Run("fills option defaults", func(t *testing.T) {
		eng := newTestEngine(t, &fakeStore{}, &fakeModel{}, Options{})
		assert.Equal(t, DefaultTopK, eng.opts.TopK)
		assert.Equal(t, DefaultMaxSnippetChars, eng.opts.MaxSnippetChars)
	})
}

func TestAsk(t *testing.T) {
	t.Run("rejects an empty question", func(t *testing.T) {
		eng := newTestEngine(t, &fakeStore{}, &fakeModel{}, Options{AutoConfirm: true})
		_, err := eng.Ask(context.Background(), "   ")
		assert.ErrorIs(t, err, types.ErrEmptyQuestion)
	})

	t.Run("exact symbol match ranks first and is answered", func(t *testing.T) {
		lbHit := hit("internal/lb/balancer.go", 10, 60)
		lbHit.Fragment.Signature = "func update_weights(pool *Pool)"
		lbHit.Fragment.Docstring = "Rebalances backend weights after a health change."
		lbHit.Fragment.Tags = []string{"loadbalance"}

		store := &fakeStore{
			signatureMatch: func(pattern string, withVersion bool) ([]vectorstore.Hit, error) {
				if pattern == "update_weights" {
					return []vectorstore.Hit{lbHit}, nil
				}
				return nil, nil
			},
			nearVector: func(embedType types.EmbedType) ([]vectorstore.Hit, error) {
				return []vectorstore.Hit{hit("decoy.go", 1, 30, withDist(0.95))}, nil
			},
		}
		model := &fakeModel{answer: "update_weights rebalances the backend pool"}
		eng := newTestEngine(t, store, model, Options{AutoConfirm: true})

		resp, err := eng.Ask(context.Background(), "what is the purpose of update_weights in the loadbalance module?")
		require.NoError(t, err)

		assert.Equal(t, "update_weights rebalances the backend pool", resp.Answer)
		assert.Equal(t, types.CategoryPurpose, resp.Category)
		require.NotEmpty(t, resp.Fragments)
		assert.Equal(t, "internal/lb/balancer.go", resp.Fragments[0].FilePath)
		assert.Equal(t, ChannelExact, resp.Fragments[0].Channel)

		// The prompt carries the winning fragment and the question.
		prompt := model.lastPrompt()
		assert.Contains(t, prompt, "internal/lb/balancer.go:10-60")
		assert.Contains(t, prompt, "update_weights")
	})

	t.Run("empty store yields the no-results sentinel", func(t *testing.T) {
		model := &fakeModel{answer: "should never be asked"}
		eng := newTestEngine(t, &fakeStore{}, model, Options{AutoConfirm: true})

		resp, err := eng.Ask(context.Background(), "what is the purpose of frobnicate?")
		require.NoError(t, err)
		assert.Equal(t, NoResultsAnswer, resp.Answer)
		assert.Empty(t, model.prompts, "synthesis must not run without results")
	})

	t.Run("gate suppresses generation when confidence is low", func(t *testing.T) {
		store := &fakeStore{
			nearVector: func(embedType types.EmbedType) ([]vectorstore.Hit, error) {
				return []vectorstore.Hit{hit("far.go", 1, 40, withDist(0.93))}, nil
			},
		}
		model := &fakeModel{answer: "should never be asked"}
		eng := newTestEngine(t, store, model, Options{AutoConfirm: false})

		resp, err := eng.Ask(context.Background(), "what is the purpose of the scheduler?")
		require.NoError(t, err)
		assert.True(t, resp.Inconclusive)
		assert.Contains(t, resp.Answer, "inconclusive")
		assert.NotEmpty(t, resp.Fragments, "evidence is still returned for inspection")
		assert.Empty(t, model.prompts)
	})

	t.Run("auto confirm bypasses the gate", func(t *testing.T) {
		store := &fakeStore{
			nearVector: func(embedType types.EmbedType) ([]vectorstore.Hit, error) {
				return []vectorstore.Hit{hit("far.go", 1, 40, withDist(0.93))}, nil
			},
		}
		model := &fakeModel{answer: "a distant but real answer"}
		eng := newTestEngine(t, store, model, Options{AutoConfirm: true})

		resp, err := eng.Ask(context.Background(), "what is the purpose of the scheduler?")
		require.NoError(t, err)
		assert.False(t, resp.Inconclusive)
		assert.Equal(t, "a distant but real answer", resp.Answer)
	})

	t.Run("budget overrun is fatal", func(t *testing.T) {
		model := &fakeModel{embedErr: budget.ErrBudgetExceeded}
		eng := newTestEngine(t, &fakeStore{}, model, Options{AutoConfirm: true})

		_, err := eng.Ask(context.Background(), "what is the purpose of anything?")
		assert.ErrorIs(t, err, budget.ErrBudgetExceeded)
	})

	t.Run("total channel failure degrades to the sentinel", func(t *testing.T) {
		boom := errors.New("store down")
		store := &fakeStore{
			nearVector: func(types.EmbedType) ([]vectorstore.Hit, error) { return nil, boom },
			signatureMatch: func(string, bool) ([]vectorstore.Hit, error) {
				return nil, boom
			},
			keyword:     func(string) ([]vectorstore.Hit, error) { return nil, boom },
			parentChain: func() ([]vectorstore.Hit, error) { return nil, boom },
			callers:     func() ([]vectorstore.Hit, error) { return nil, boom },
		}
		eng := newTestEngine(t, store, &fakeModel{}, Options{AutoConfirm: true})

		resp, err := eng.Ask(context.Background(), "what is the purpose of update_weights?")
		require.NoError(t, err)
		assert.Equal(t, NoResultsAnswer, resp.Answer)
	})
}

func TestSearchRescue(t *testing.T) {
	// Only the fifth question token matches, and only as a substring
	// pattern: the regular fan-out (first four tokens) comes up empty and
	// the rescue pass must find it.
	store := &fakeStore{
		signatureMatch: func(pattern string, withVersion bool) ([]vectorstore.Hit, error) {
			if pattern == "*update_weights*" {
				return []vectorstore.Hit{hit("internal/lb/balancer.go", 10, 60)}, nil
			}
			return nil, nil
		},
	}
	eng := newTestEngine(t, store, &fakeModel{}, Options{AutoConfirm: true})

	results, _, err := eng.Search(context.Background(), "alpha bravo charlie delta update_weights")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, ChannelSignature, results[0].Channel)
	assert.False(t, results[0].HasDistance)
}

func TestSearchTagOverlapBreaksDistanceTie(t *testing.T) {
	// Three fragments at the same vector distance: the one tagged with a
	// question keyword must win on the overlap bonus alone.
	tagged := hit("internal/lb/balancer.go", 10, 60, withDist(0.5))
	tagged.Fragment.Tags = []string{"loadbalance"}

	store := &fakeStore{
		nearVector: func(embedType types.EmbedType) ([]vectorstore.Hit, error) {
			return []vectorstore.Hit{
				hit("internal/http/router.go", 5, 40, withDist(0.5)),
				tagged,
				hit("internal/db/pool.go", 80, 130, withDist(0.5)),
			}, nil
		},
	}
	eng := newTestEngine(t, store, &fakeModel{}, Options{AutoConfirm: true})

	results, qc, err := eng.Search(context.Background(), "load_balance function purpose")
	require.NoError(t, err)
	assert.Equal(t, types.CategoryPurpose, qc.Category)
	require.NotEmpty(t, results)
	assert.Equal(t, "internal/lb/balancer.go", results[0].FilePath)
	assert.Greater(t, results[0].FinalScore, results[1].FinalScore)
}

func TestKeywordFallback(t *testing.T) {
	t.Run("filters fragments below the line minimum", func(t *testing.T) {
		store := &fakeStore{
			keyword: func(term string) ([]vectorstore.Hit, error) {
				if term != "loadbalance" {
					return nil, nil
				}
				return []vectorstore.Hit{
					hit("tiny.go", 1, 4),
					hit("internal/lb/balancer.go", 10, 60),
				}, nil
			},
		}
		eng := newTestEngine(t, store, &fakeModel{}, Options{MinLines: 10, AutoConfirm: true})

		results, err := eng.keywordFallback(context.Background(), "explain loadbalance")
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, "internal/lb/balancer.go", results[0].FilePath)
		assert.Equal(t, ChannelKeywords, results[0].Channel)
	})

	t.Run("returns nil when nothing matches", func(t *testing.T) {
		eng := newTestEngine(t, &fakeStore{}, &fakeModel{}, Options{AutoConfirm: true})
		results, err := eng.keywordFallback(context.Background(), "explain loadbalance")
		require.NoError(t, err)
		assert.Nil(t, results)
	})
}

func TestFileOverview(t *testing.T) {
	t.Run("file mention routes to the overview path", func(t *testing.T) {
		store := &fakeStore{
			fileFragments: func(filePath string) ([]types.Fragment, error) {
				assert.Equal(t, "internal/lb/picker.go", filePath)
				return []types.Fragment{
					{FilePath: filePath, StartLine: 1, EndLine: 30, Content: "package lb"},
					{FilePath: filePath, StartLine: 32, EndLine: 80, Content: "func Pick() {}"},
				}, nil
			},
		}
		model := &fakeModel{answer: "- picks backends\n- tracks weights\n- drains dead hosts"}
		eng := newTestEngine(t, store, model, Options{AutoConfirm: true})

		resp, err := eng.Ask(context.Background(), "summarize internal/lb/picker.go please")
		require.NoError(t, err)
		assert.Equal(t, model.answer, resp.Answer)
		assert.Len(t, resp.Fragments, 2)
		assert.Contains(t, model.lastPrompt(), "internal/lb/picker.go")
		assert.Contains(t, model.lastPrompt(), "package lb")
	})

	t.Run("unknown file yields a sentinel answer", func(t *testing.T) {
		eng := newTestEngine(t, &fakeStore{}, &fakeModel{}, Options{AutoConfirm: true})

		resp, err := eng.Ask(context.Background(), "summarize missing/file.go")
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(resp.Answer, "no fragments found"))
	})

	t.Run("fetch failure degrades instead of erroring", func(t *testing.T) {
		store := &fakeStore{
			fileFragments: func(string) ([]types.Fragment, error) {
				return nil, errors.New("store down")
			},
		}
		eng := newTestEngine(t, store, &fakeModel{}, Options{AutoConfirm: true})

		resp, err := eng.Ask(context.Background(), "summarize missing/file.go")
		require.NoError(t, err)
		assert.Contains(t, resp.Answer, "could not load fragments")
	})
}
