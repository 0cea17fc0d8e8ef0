package query

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRatio(t *testing.T) {
	t.Run("identical strings score 100", func(t *testing.T) {
		assert.InDelta(t, 100, Ratio("retry", "retry"), 1e-9)
		assert.InDelta(t, 100, Ratio("", ""), 1e-9)
	})

	t.Run("disjoint strings score low", func(t *testing.T) {
		assert.Less(t, Ratio("abc", "xyz"), 40.0)
	})

	t.Run("near misses clear the correction threshold", func(t *testing.T) {
		// one dropped letter
		assert.Greater(t, Ratio("confg", "config"), float64(correctionThreshold))
		assert.Greater(t, Ratio("retr", "retry"), float64(correctionThreshold))
	})

	t.Run("symmetric", func(t *testing.T) {
		assert.Equal(t, Ratio("config", "confg"), Ratio("confg", "config"))
	})
}

func TestCorrect(t *testing.T) {
	terms := []string{"api", "config", "loadbalance", "retry"}

	t.Run("folds a close token into the vocabulary", func(t *testing.T) {
		assert.Equal(t, "config", correct("confg", terms, Ratio))
	})

	t.Run("keeps a distant token unchanged", func(t *testing.T) {
		assert.Equal(t, "banana", correct("banana", terms, Ratio))
	})

	t.Run("exact matches stay put", func(t *testing.T) {
		assert.Equal(t, "retry", correct("retry", terms, Ratio))
	})
}
