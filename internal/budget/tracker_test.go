package budget

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrice(t *testing.T) {
	tr := NewTracker(100, nil)

	t.Run("known model uses its table entry", func(t *testing.T) {
		// gpt-4-turbo: $0.01/1K prompt, $0.03/1K completion
		cost := tr.Price("gpt-4-turbo", 2000, 1000)
		assert.InDelta(t, 0.05, cost, 1e-9)
	})

	t.Run("unknown model falls back", func(t *testing.T) {
		got := tr.Price("gpt-99-ultra", 1000, 1000)
		want := tr.Price(FallbackModel, 1000, 1000)
		assert.Equal(t, want, got)
	})

	t.Run("price does not record spending", func(t *testing.T) {
		before := tr.Spent()
		tr.Price("gpt-4-turbo", 100000, 100000)
		assert.Equal(t, before, tr.Spent())
	})
}

func TestAdd(t *testing.T) {
	t.Run("accumulates under the ceiling", func(t *testing.T) {
		tr := NewTracker(1.0, nil)
		cost, err := tr.Add("gpt-4-turbo", 1000, 1000)
		require.NoError(t, err)
		assert.InDelta(t, 0.04, cost, 1e-9)
		assert.InDelta(t, 0.04, tr.Spent(), 1e-9)
	})

	t.Run("overrun is recorded and reported", func(t *testing.T) {
		tr := NewTracker(0.01, nil)
		// $0.02 call against a $0.01 ceiling
		cost, err := tr.Add("gpt-4-turbo", 2000, 0)
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrBudgetExceeded))
		assert.InDelta(t, 0.02, cost, 1e-9)
		// The overrun stays visible in the total.
		assert.InDelta(t, 0.02, tr.Spent(), 1e-9)
	})

	t.Run("zero ceiling blocks all spending", func(t *testing.T) {
		tr := NewTracker(0, nil)
		_, err := tr.Add("gpt-4-turbo", 1, 0)
		assert.True(t, errors.Is(err, ErrBudgetExceeded))
	})
}

func TestCheck(t *testing.T) {
	tr := NewTracker(0.01, nil)
	require.NoError(t, tr.Check())

	_, err := tr.Add("gpt-4-turbo", 2000, 0)
	require.Error(t, err)

	err = tr.Check()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrBudgetExceeded))
}

func TestConcurrentAdds(t *testing.T) {
	tr := NewTracker(1000, nil)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = tr.Add("gpt-4-turbo", 1000, 0)
		}()
	}
	wg.Wait()
	assert.InDelta(t, 0.5, tr.Spent(), 1e-9)
}
