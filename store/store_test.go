package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInmem(t *testing.T) {
	kv := NewInmem()
	defer func() {
		assert.NoError(t, kv.Close())
	}()

	_, err := kv.Get([]byte("missing"))
	assert.Equal(t, ErrNotFound, err)

	has, err := kv.Has([]byte("missing"))
	assert.NoError(t, err)
	assert.False(t, has)

	assert.NoError(t, kv.Put([]byte("key"), []byte("value")))

	value, err := kv.Get([]byte("key"))
	assert.NoError(t, err)
	assert.Equal(t, []byte("value"), value)

	has, err = kv.Has([]byte("key"))
	assert.NoError(t, err)
	assert.True(t, has)

	// Mutating the returned slice must not corrupt the store.
	value[0] = 'X'

	value, err = kv.Get([]byte("key"))
	assert.NoError(t, err)
	assert.Equal(t, []byte("value"), value)

	assert.NoError(t, kv.Delete([]byte("key")))

	_, err = kv.Get([]byte("key"))
	assert.Equal(t, ErrNotFound, err)
}
