// internal/browser/context_test.go
package browser

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCombineContext(t *testing.T) {
	type ctxKey string
	const key ctxKey = "target"

	t.Run("InheritsValuesFromPrimary", func(t *testing.T) {
		primary := context.WithValue(context.Background(), key, "tab-1")
		combined, cancel := CombineContext(primary, context.Background())
		defer cancel()

		assert.Equal(t, "tab-1", combined.Value(key))
		assert.NoError(t, combined.Err())
	})

	t.Run("CancelledByPrimary", func(t *testing.T) {
		primary, cancelPrimary := context.WithCancel(context.Background())
		combined, cancel := CombineContext(primary, context.Background())
		defer cancel()

		cancelPrimary()
		<-combined.Done()
		assert.ErrorIs(t, combined.Err(), context.Canceled)
	})

	t.Run("CancelledBySecondary", func(t *testing.T) {
		secondary, cancelSecondary := context.WithCancel(context.Background())
		combined, cancel := CombineContext(context.Background(), secondary)
		defer cancel()

		cancelSecondary()
		assert.Eventually(t, func() bool { return combined.Err() != nil },
			time.Second, 5*time.Millisecond)
		assert.ErrorIs(t, combined.Err(), context.Canceled)
	})

	t.Run("SecondaryDeadline", func(t *testing.T) {
		secondary, cancelSecondary := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancelSecondary()
		combined, cancel := CombineContext(context.Background(), secondary)
		defer cancel()

		select {
		case <-combined.Done():
		case <-time.After(time.Second):
			t.Fatal("combined context outlived the secondary deadline")
		}
	})

	t.Run("CancelDoesNotAffectParents", func(t *testing.T) {
		primary, cancelPrimary := context.WithCancel(context.Background())
		defer cancelPrimary()
		secondary, cancelSecondary := context.WithCancel(context.Background())
		defer cancelSecondary()

		_, cancel := CombineContext(primary, secondary)
		cancel()
		assert.NoError(t, primary.Err())
		assert.NoError(t, secondary.Err())
	})
}

func TestDetach(t *testing.T) {
	type ctxKey string
	const key ctxKey = "logger"

	parent, cancel := context.WithTimeout(context.WithValue(context.Background(), key, "value"), time.Millisecond)
	cancel()
	require.Error(t, parent.Err())

	detached := Detach(parent)
	assert.NoError(t, detached.Err())
	assert.Nil(t, detached.Done())
	_, hasDeadline := detached.Deadline()
	assert.False(t, hasDeadline)
	assert.Equal(t, "value", detached.Value(key))

	child, childCancel := context.WithCancel(detached)
	defer childCancel()
	assert.NoError(t, child.Err(), "children of a detached context are not canceled by the original parent")
}
