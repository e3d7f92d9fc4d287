// File: internal/navigator/stop_test.go
package navigator

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStopSignal_SetIsIdempotent(t *testing.T) {
	s := NewStopSignal()
	assert.False(t, s.Stopped())

	s.Set()
	s.Set()
	s.Set()

	assert.True(t, s.Stopped())
	select {
	case <-s.Done():
	default:
		t.Fatal("Done channel should be closed after Set")
	}
}

func TestStopSignal_ConcurrentSet(t *testing.T) {
	s := NewStopSignal()
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Set()
		}()
	}
	wg.Wait()
	assert.True(t, s.Stopped())
}

func TestStopRegistry_Lifecycle(t *testing.T) {
	r := NewStopRegistry()
	assert.Equal(t, 0, r.Len())

	_, ok := r.Lookup("missing")
	assert.False(t, ok)

	sig := NewStopSignal()
	r.Add("session-1", sig)
	require.Equal(t, 1, r.Len())

	got, ok := r.Lookup("session-1")
	require.True(t, ok)
	assert.Same(t, sig, got)

	// Replacing an id keeps a single entry.
	replacement := NewStopSignal()
	r.Add("session-1", replacement)
	assert.Equal(t, 1, r.Len())
	got, _ = r.Lookup("session-1")
	assert.Same(t, replacement, got)

	r.Remove("session-1")
	assert.Equal(t, 0, r.Len())
	r.Remove("session-1") // no-op
}
