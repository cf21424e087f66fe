package cache

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lepinkainen/folio/internal/sources"
)

func candidates(titles ...string) []sources.Candidate {
	out := make([]sources.Candidate, len(titles))
	for i, title := range titles {
		out[i] = sources.Candidate{Source: "OpenLibrary", Title: title}
	}
	return out
}

func TestResponseCache_GetPut(t *testing.T) {
	c := New(0, 0)

	_, ok := c.Get("dune", "OpenLibrary")
	assert.False(t, ok)

	c.Put("dune", "OpenLibrary", candidates("Dune", "Dune Messiah"), 0)

	got, ok := c.Get("dune", "OpenLibrary")
	require.True(t, ok)
	assert.Len(t, got, 2)

	_, ok = c.Get("dune", "Google Books")
	assert.False(t, ok, "key includes the source")
	_, ok = c.Get("dune messiah", "OpenLibrary")
	assert.False(t, ok, "key includes the query")
}

func TestResponseCache_ReturnsCopies(t *testing.T) {
	c := New(time.Minute, time.Minute)
	c.Put("dune", "OpenLibrary", candidates("Dune"), 0)

	got, ok := c.Get("dune", "OpenLibrary")
	require.True(t, ok)
	got[0].Title = "mutated"

	again, ok := c.Get("dune", "OpenLibrary")
	require.True(t, ok)
	assert.Equal(t, "Dune", again[0].Title)
}

func TestResponseCache_Expiry(t *testing.T) {
	c := New(20*time.Millisecond, time.Hour)
	c.Put("dune", "OpenLibrary", candidates("Dune"), 0)

	_, ok := c.Get("dune", "OpenLibrary")
	require.True(t, ok)

	time.Sleep(40 * time.Millisecond)
	_, ok = c.Get("dune", "OpenLibrary")
	assert.False(t, ok, "expired entries are misses before the sweep runs")
}

func TestResponseCache_ExplicitTTL(t *testing.T) {
	c := New(time.Hour, time.Hour)
	c.Put("dune", "OpenLibrary", candidates("Dune"), 20*time.Millisecond)

	time.Sleep(40 * time.Millisecond)
	_, ok := c.Get("dune", "OpenLibrary")
	assert.False(t, ok)
}

func TestResponseCache_NegativeTTL(t *testing.T) {
	c := New(time.Hour, time.Hour, WithNegativeTTL(20*time.Millisecond))
	c.Put("nothing", "OpenLibrary", nil, 0)
	c.Put("dune", "OpenLibrary", candidates("Dune"), 0)

	got, ok := c.Get("nothing", "OpenLibrary")
	require.True(t, ok, "empty responses are cached")
	assert.Empty(t, got)

	time.Sleep(40 * time.Millisecond)
	_, ok = c.Get("nothing", "OpenLibrary")
	assert.False(t, ok)
	_, ok = c.Get("dune", "OpenLibrary")
	assert.True(t, ok)
}

func TestResponseCache_LastWriteWins(t *testing.T) {
	c := New(0, 0)
	c.Put("dune", "OpenLibrary", candidates("first"), 0)
	c.Put("dune", "OpenLibrary", candidates("second"), 0)

	got, ok := c.Get("dune", "OpenLibrary")
	require.True(t, ok)
	assert.Equal(t, "second", got[0].Title)
	assert.Equal(t, 1, c.ItemCount())
}

func TestResponseCache_InvalidateSourceAndFlush(t *testing.T) {
	c := New(0, 0)
	c.Put("dune", "OpenLibrary", candidates("Dune"), 0)
	c.Put("hobbit", "OpenLibrary", candidates("The Hobbit"), 0)
	c.Put("dune", "ISBNdb", candidates("Dune"), 0)

	assert.Equal(t, 2, c.InvalidateSource("OpenLibrary"))
	assert.Equal(t, 1, c.ItemCount())
	_, ok := c.Get("dune", "ISBNdb")
	assert.True(t, ok)

	c.Flush()
	assert.Zero(t, c.ItemCount())
}

func TestResponseCache_ConcurrentAccess(t *testing.T) {
	c := New(0, 0)

	var wg sync.WaitGroup
	for i := range 16 {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			query := fmt.Sprintf("q%d", i%4)
			for range 100 {
				c.Put(query, "OpenLibrary", candidates(query), 0)
				got, ok := c.Get(query, "OpenLibrary")
				if ok {
					assert.Equal(t, query, got[0].Title)
				}
			}
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 4, c.ItemCount())
}
