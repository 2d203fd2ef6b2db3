package locker

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLocker(t *testing.T) {
	l := New()
	unlock := l.Lock("a")

	// Other keys are independent.
	unlockB := l.Lock("b")
	unlockB()

	unlock()
	require.Empty(t, l.locks)
}

func TestLocker_Serializes(t *testing.T) {
	l := New()

	var (
		wg      sync.WaitGroup
		counter int
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := l.Lock("key")
			defer unlock()
			v := counter
			v++
			counter = v
		}()
	}
	wg.Wait()

	require.Equal(t, 50, counter)
	require.Empty(t, l.locks)
}
