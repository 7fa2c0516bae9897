package openhtf

import (
	"errors"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCleanupStackReverseOrder(t *testing.T) {
	stack := NewCleanupStack(log.New())

	var order []string
	for _, name := range []string{"first", "second", "third"} {
		name := name
		require.NoError(t, stack.Push(name, func() error {
			order = append(order, name)
			return nil
		}))
	}

	stack.Close()
	assert.Equal(t, []string{"third", "second", "first"}, order)
}

func TestCleanupStackCloseIsIdempotent(t *testing.T) {
	stack := NewCleanupStack(log.New())

	calls := 0
	require.NoError(t, stack.Push("count", func() error {
		calls++
		return nil
	}))

	stack.Close()
	stack.Close()
	stack.Close()
	assert.Equal(t, 1, calls)
	assert.True(t, stack.Closed())
}

func TestCleanupStackRejectsPushAfterClose(t *testing.T) {
	stack := NewCleanupStack(log.New())
	stack.Close()

	err := stack.Push("late", func() error { return nil })
	require.ErrorIs(t, err, ErrStackClosed)
}

func TestCleanupStackSurvivesFailingActions(t *testing.T) {
	stack := NewCleanupStack(log.New())

	var order []string
	require.NoError(t, stack.Push("bottom", func() error {
		order = append(order, "bottom")
		return nil
	}))
	require.NoError(t, stack.Push("failing", func() error {
		order = append(order, "failing")
		return errors.New("release failed")
	}))
	require.NoError(t, stack.Push("panicking", func() error {
		order = append(order, "panicking")
		panic("boom")
	}))

	stack.Close()
	assert.Equal(t, []string{"panicking", "failing", "bottom"}, order)
}

func TestCleanupStackConcurrentClose(t *testing.T) {
	stack := NewCleanupStack(log.New())

	calls := 0
	require.NoError(t, stack.Push("count", func() error {
		calls++
		return nil
	}))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			stack.Close()
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, calls)
}
