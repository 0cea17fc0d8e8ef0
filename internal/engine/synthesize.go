package engine

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"askcode/pkg/types"
)

const (
	// DefaultTopK bounds how many fragments enter the prompt.
	DefaultTopK = 15
	// DefaultMaxSnippetChars is the per-fragment character budget.
	DefaultMaxSnippetChars = 600

	// InsufficientAnswer is the phrase the model is told to emit when the
	// retrieved context cannot answer the question.
	InsufficientAnswer = "insufficient information"
)

// truncateSnippet trims content to the byte budget, cutting at the last
// period or newline when that boundary covers at least half the budget,
// otherwise cutting hard. A hard cut backs off to a rune boundary so
// multi-byte content never yields invalid UTF-8.
func truncateSnippet(content string, budget int) string {
	if budget <= 0 || len(content) <= budget {
		return content
	}
	sn := content[:budget]
	cut := strings.LastIndexByte(sn, '.')
	if nl := strings.LastIndexByte(sn, '\n'); nl > cut {
		cut = nl
	}
	if cut >= budget/2 {
		sn = sn[:cut]
	} else {
		for len(sn) > 0 {
			if r, size := utf8.DecodeLastRuneInString(sn); r != utf8.RuneError || size > 1 {
				break
			}
			sn = sn[:len(sn)-1]
		}
	}
	return sn + "..."
}

// buildContext renders the top-K fragments as a provenance header plus an
// indented snippet, one block per fragment.
func buildContext(results []types.ScoredFragment, topK, maxChars int) string {
	if topK > 0 && len(results) > topK {
		results = results[:topK]
	}
	var sb strings.Builder
	for i, r := range results {
		header := fmt.Sprintf("[%d] %s:%d-%d", i+1, r.FilePath, r.StartLine, r.EndLine)
		if r.Signature != "" {
			header += " · " + r.Signature
		}
		if r.HasDistance {
			header += fmt.Sprintf(" · dist=%.3f", r.Distance)
		}
		if r.EmbedType != "" {
			header += " · " + string(r.EmbedType)
		}
		sb.WriteString(header)
		sb.WriteString("\n")
		for _, line := range strings.Split(truncateSnippet(r.Content, maxChars), "\n") {
			sb.WriteString("    ")
			sb.WriteString(line)
			sb.WriteString("\n")
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

// buildPrompt frames the question and rendered fragments for the chat
// model. The model must answer only from the supplied context.
func buildPrompt(question, context string) string {
	var sb strings.Builder
	sb.WriteString("You are a senior engineer answering a question about a codebase.\n")
	sb.WriteString("Answer strictly from the code fragments below. Cite file paths when relevant.\n")
	sb.WriteString("If the fragments do not contain enough evidence, reply exactly: ")
	sb.WriteString(InsufficientAnswer)
	sb.WriteString("\n\nQuestion: ")
	sb.WriteString(question)
	sb.WriteString("\n\nCode fragments:\n\n")
	sb.WriteString(context)
	return sb.String()
}
