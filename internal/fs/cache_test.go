package fs

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCacheGetCollapsesConcurrentLoadsOfTheSameInumber(t *testing.T) {
	fsys, _ := newTestFS(t)

	const callers = 8
	const inumber = 3

	var wg sync.WaitGroup
	entries := make([]*CacheEntry, callers)
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			entries[i], errs[i] = fsys.Cache.Get(nil, inumber)
		}(i)
	}
	wg.Wait()

	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		assert.Same(t, entries[0], entries[i])
	}
	assert.Equal(t, callers, entries[0].RefCount)
	assert.True(t, entries[0].ready)
}
