package query

import (
	"regexp"
	"sort"
	"strings"

	"askcode/pkg/types"
)

// DefaultKeywordLimit caps how many keywords a question contributes.
const DefaultKeywordLimit = 8

// stopwords are discarded during keyword extraction (bilingual).
var stopwords = map[string]bool{
	"the": true, "and": true, "of": true, "to": true, "in": true,
	"for": true, "is": true, "on": true, "return": true,
	"def": true, "class": true, "import": true, "from": true, "as": true,
	"函数": true, "类": true, "返回": true, "如果": true, "循环": true, "导入": true,
}

// symbolStoplist filters generic words out of candidate symbol extraction.
var symbolStoplist = map[string]bool{
	"function": true, "method": true, "class": true, "code": true,
	"implementation": true, "details": true, "purpose": true,
	"parameters": true, "logic": true, "update": true,
}

// synonyms is the fixed substitution table for query variants.
// Order matters for determinism, so it is a slice of pairs.
var synonyms = []struct {
	word string
	alts []string
}{
	{"function", []string{"method", "procedure", "routine"}},
	{"parameters", []string{"arguments", "args", "inputs"}},
	{"purpose", []string{"goal", "objective", "functionality"}},
	{"implementation", []string{"code", "logic", "execution"}},
	{"update", []string{"modify", "change", "set"}},
	{"logic", []string{"algorithm", "process", "flow"}},
}

var (
	latinTokenRe = regexp.MustCompile(`[A-Za-z][A-Za-z0-9_]{2,}`)
	snakeRe      = regexp.MustCompile(`\b[a-z][a-z0-9_]+\b`)
	camelRe      = regexp.MustCompile(`\b[A-Z][a-zA-Z0-9_]+\b`)
	callRe       = regexp.MustCompile(`\b[A-Za-z_][A-Za-z0-9_]*\(`)
	alnumRe      = regexp.MustCompile(`[A-Za-z0-9_]{3,}`)
)

// Analyzer derives keywords, candidate symbols, paraphrase variants, and a
// category from a raw question. The domain vocabulary and the similarity
// strategy are fixed at construction so extraction stays a pure function
// of its inputs.
type Analyzer struct {
	domainWeights map[string]float64
	domainTerms   []string // sorted keys of domainWeights
	similarity    SimilarityFunc
	keywordLimit  int
}

// DefaultDomainWeights returns the built-in domain vocabulary with its
// term weights.
func DefaultDomainWeights() map[string]float64 {
	return map[string]float64{
		"loadbalance":    2.0,
		"trailing_mgr":   2.0,
		"retry":          1.5,
		"network":        1.5,
		"update_logic":   1.5,
		"error_handling": 1.5,
		"config":         1.5,
		"api":            1.5,
	}
}

// Option configures an Analyzer.
type Option func(*Analyzer)

// WithDomainWeights replaces the domain vocabulary table.
func WithDomainWeights(weights map[string]float64) Option {
	return func(a *Analyzer) {
		a.domainWeights = weights
	}
}

// WithSimilarity replaces the fuzzy-correction scoring strategy.
func WithSimilarity(sim SimilarityFunc) Option {
	return func(a *Analyzer) {
		a.similarity = sim
	}
}

// WithKeywordLimit sets the default keyword cap.
func WithKeywordLimit(limit int) Option {
	return func(a *Analyzer) {
		if limit > 0 {
			a.keywordLimit = limit
		}
	}
}

// NewAnalyzer builds an analyzer with the default vocabulary and the
// edit-distance ratio strategy.
func NewAnalyzer(opts ...Option) *Analyzer {
	a := &Analyzer{
		domainWeights: DefaultDomainWeights(),
		similarity:    Ratio,
		keywordLimit:  DefaultKeywordLimit,
	}
	for _, opt := range opts {
		opt(a)
	}
	a.domainTerms = make([]string, 0, len(a.domainWeights))
	for t := range a.domainWeights {
		a.domainTerms = append(a.domainTerms, t)
	}
	sort.Strings(a.domainTerms)
	return a
}

// Analyze bundles keyword, symbol, variant, and category extraction into
// one QueryContext.
func (a *Analyzer) Analyze(question string) types.QueryContext {
	return types.QueryContext{
		Question: question,
		Keywords: a.ExtractKeywords(question, a.keywordLimit),
		Symbols:  a.ExtractSymbols(question),
		Variants: a.Variants(question),
		Category: Categorize(question),
	}
}

// normalizeToken folds common spellings of domain terms into their
// canonical form before fuzzy correction.
func normalizeToken(w string) string {
	w = strings.TrimSpace(w)
	w = strings.ReplaceAll(w, "load_balance", "loadbalance")
	if w == "lb" {
		return "loadbalance"
	}
	return w
}

// IsStopword reports whether w is filtered during keyword extraction.
func IsStopword(w string) bool {
	return stopwords[strings.ToLower(w)]
}

// ExtractKeywords tokenizes the text, discards stopwords, fuzzy-corrects
// tokens against the domain vocabulary, applies domain weights, and
// returns at most limit tokens. Tokens with underscores or a leading
// uppercase letter sort first, the rest by weighted frequency descending.
func (a *Analyzer) ExtractKeywords(text string, limit int) []string {
	if limit <= 0 {
		limit = a.keywordLimit
	}

	tokens := tokenize(text)

	freq := make(map[string]float64)
	special := make(map[string]bool)
	order := make(map[string]int) // first-seen order for stable output
	next := 0

	record := func(tok string, isSpecial bool) {
		if _, seen := freq[tok]; !seen {
			order[tok] = next
			next++
		}
		freq[tok]++
		if isSpecial {
			special[tok] = true
		}
	}

	for _, raw := range tokens {
		isSpecial := strings.Contains(raw, "_") || startsUpper(raw)
		tok := normalizeToken(strings.ToLower(raw))
		if len(tok) < 3 && !isCJK(tok) {
			continue
		}
		if stopwords[tok] {
			continue
		}
		if !isCJK(tok) {
			tok = correct(tok, a.domainTerms, a.similarity)
		}
		record(tok, isSpecial)
	}

	scored := make(map[string]float64, len(freq))
	for tok, f := range freq {
		w := 1.0
		if dw, ok := a.domainWeights[tok]; ok {
			w = dw
		}
		scored[tok] = f * w
	}

	var specials, rest []string
	for tok := range scored {
		if special[tok] || strings.Contains(tok, "_") {
			specials = append(specials, tok)
		} else {
			rest = append(rest, tok)
		}
	}
	sort.Slice(specials, func(i, j int) bool {
		return order[specials[i]] < order[specials[j]]
	})
	sort.Slice(rest, func(i, j int) bool {
		if scored[rest[i]] != scored[rest[j]] {
			return scored[rest[i]] > scored[rest[j]]
		}
		return order[rest[i]] < order[rest[j]]
	})

	out := append(specials, rest...)
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

// ExtractSymbols pulls lowercase-snake and UpperCamel identifiers out of
// the question, minus the generic stoplist. Minimum length 3.
func (a *Analyzer) ExtractSymbols(question string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, re := range []*regexp.Regexp{snakeRe, camelRe} {
		for _, m := range re.FindAllString(question, -1) {
			if len(m) < 3 || symbolStoplist[strings.ToLower(m)] || seen[m] {
				continue
			}
			seen[m] = true
			out = append(out, m)
		}
	}
	return out
}

// MaxVariants caps the paraphrase set per question.
const MaxVariants = 8

// HasCallPattern reports whether the question contains something that
// looks like a call site, e.g. "load_balance(".
func HasCallPattern(question string) bool {
	return callRe.MatchString(question)
}

// Variants generates paraphrases of the question: the original first,
// whole-word synonym substitutions, templated variants for
// identifier-looking symbols, and parameter/parent variants when a
// call-like pattern is present. Deduplicated and capped at MaxVariants.
func (a *Analyzer) Variants(question string) []string {
	variants := []string{question}
	ql := strings.ToLower(question)

	for _, entry := range synonyms {
		if !strings.Contains(ql, entry.word) {
			continue
		}
		re := regexp.MustCompile(`(?i)\b` + entry.word + `\b`)
		for _, alt := range entry.alts {
			variants = append(variants, re.ReplaceAllString(question, alt))
		}
	}

	symbols := a.ExtractSymbols(question)
	for _, sym := range symbols {
		if !strings.Contains(sym, "_") && !startsUpper(sym) {
			continue
		}
		variants = append(variants,
			sym+" docstring", sym+" summary",
			sym+" parameters", sym+" update logic")
	}

	if HasCallPattern(question) {
		for _, sym := range symbols {
			variants = append(variants, sym+" parameters", sym+" parent")
		}
	}

	seen := make(map[string]bool)
	var out []string
	for _, v := range variants {
		if seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
		if len(out) >= MaxVariants {
			break
		}
	}
	return out
}

// category keyword sets, bilingual; priority order is purpose,
// implementation, parameter, then default.
var categoryKeywords = []struct {
	category types.Category
	words    []string
}{
	{types.CategoryPurpose, []string{"purpose", "summary", "功能说明"}},
	{types.CategoryImplementation, []string{"implementation", "逻辑", "实现"}},
	{types.CategoryParameter, []string{"parameter", "参数"}},
}

// Categorize maps a question to its category; first match wins.
func Categorize(question string) types.Category {
	ql := strings.ToLower(question)
	for _, ck := range categoryKeywords {
		for _, w := range ck.words {
			if strings.Contains(ql, w) {
				return ck.category
			}
		}
	}
	return types.CategoryDefault
}

// SignatureTokens returns the first limit alphanumeric tokens of at least
// three characters from the raw question, used for signature-substring
// channels. limit <= 0 means all tokens.
func SignatureTokens(question string, limit int) []string {
	tokens := alnumRe.FindAllString(question, -1)
	if limit > 0 && len(tokens) > limit {
		tokens = tokens[:limit]
	}
	return tokens
}

// tokenize splits text into Latin tokens and CJK bigrams.
func tokenize(text string) []string {
	out := latinTokenRe.FindAllString(text, -1)
	out = append(out, cjkSegments(text)...)
	return out
}

// cjkSegments segments contiguous CJK runs into overlapping bigrams. A
// run of length one is kept as-is. This is the standard no-dictionary
// fallback for CJK word segmentation.
func cjkSegments(text string) []string {
	var run []rune
	var out []string
	flush := func() {
		switch {
		case len(run) == 1:
			out = append(out, string(run))
		case len(run) > 1:
			for i := 0; i+1 < len(run); i++ {
				out = append(out, string(run[i:i+2]))
			}
		}
		run = run[:0]
	}
	for _, r := range text {
		if r >= 0x4e00 && r <= 0x9fa5 {
			run = append(run, r)
			continue
		}
		flush()
	}
	flush()
	return out
}

func isCJK(s string) bool {
	for _, r := range s {
		if r >= 0x4e00 && r <= 0x9fa5 {
			return true
		}
	}
	return false
}

func startsUpper(s string) bool {
	return s != "" && s[0] >= 'A' && s[0] <= 'Z'
}
