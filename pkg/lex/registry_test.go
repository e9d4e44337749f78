package lex

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func constCallback(s string) Callback {
	return func(Params, any, string, *Map) (string, error) { return s, nil }
}

func TestRegistry_RegisterAndLookup(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register("content:snippet", constCallback("snippet")))
	require.NoError(t, reg.Register("title", constCallback("title")))

	for _, name := range []string{"content:snippet", "content_snippet"} {
		cb, ok := reg.Lookup(name)
		require.True(t, ok, "Lookup(%q)", name)
		out, err := cb(nil, nil, "", nil)
		require.NoError(t, err)
		assert.Equal(t, "snippet", out)
	}
	_, ok := reg.Lookup("content:other")
	assert.False(t, ok)
	assert.Equal(t, []string{"content:snippet", "title"}, reg.Names())
}

func TestRegistry_RejectsDuplicatesAndInvalid(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register("content_snippet", constCallback("a")))
	assert.Error(t, reg.Register("content:snippet", constCallback("b")))
	assert.Error(t, reg.Register("", constCallback("c")))
	assert.Error(t, reg.Register("nil:callback", nil))
}

func TestRegistry_Freeze(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register("a:b", constCallback("x")))
	assert.False(t, reg.Frozen())
	reg.Freeze()
	assert.True(t, reg.Frozen())
	assert.ErrorIs(t, reg.Register("c:d", constCallback("y")), ErrRegistryFrozen)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, ok := reg.Lookup("a:b")
			assert.True(t, ok)
		}()
	}
	wg.Wait()
}

func TestRegistry_NilLookup(t *testing.T) {
	var reg *Registry
	_, ok := reg.Lookup("a:b")
	assert.False(t, ok)
}

func TestParser_ConcurrentParsersShareRegistry(t *testing.T) {
	reg := testRegistry(t)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p, err := NewParser(DefaultConfig())
			if !assert.NoError(t, err) {
				return
			}
			out, err := p.Parse(`{{ items }}{{ upper:text value=name }}{{ /items }}`,
				map[string]any{"items": []any{map[string]any{"name": "x"}}}, reg)
			assert.NoError(t, err)
			assert.Equal(t, "X", out)
		}()
	}
	wg.Wait()
}
