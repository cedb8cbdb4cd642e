package model

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRegistryRegisterIsIdempotent(t *testing.T) {
	r := NewRegistry()
	p1 := r.Register("alice")
	p2 := r.Register("alice")
	assert.Same(t, p1, p2)
	assert.Equal(t, 1, r.Count())
}

func TestRegistryLookupMissing(t *testing.T) {
	r := NewRegistry()
	assert.Nil(t, r.Lookup("ghost"))
}

func TestRegistryConcurrentRegisterSameName(t *testing.T) {
	r := NewRegistry()
	var wg sync.WaitGroup
	results := make([]*Player, 20)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = r.Register("shared")
		}(i)
	}
	wg.Wait()

	for _, p := range results {
		assert.Same(t, results[0], p)
	}
	assert.Equal(t, 1, r.Count())
}
