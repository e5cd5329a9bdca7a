package debouncer

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type recorder struct {
	sync.Mutex
	batches [][]interface{}
}

func (r *recorder) record(batch []interface{}) {
	r.Lock()
	r.batches = append(r.batches, batch)
	r.Unlock()
}

func (r *recorder) count() int {
	r.Lock()
	defer r.Unlock()
	return len(r.batches)
}

func TestBatchDebouncerFlushesOnSizeLimit(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	r := new(recorder)

	d := NewBatchDebouncer(ctx, r.record, time.Hour, 8)

	d.Add([]byte{1, 2, 3, 4}, 4, "")
	assert.Equal(t, 0, r.count())

	d.Add([]byte{5, 6, 7, 8}, 4, "")
	assert.Equal(t, 1, r.count())

	r.Lock()
	assert.Len(t, r.batches[0], 2)
	r.Unlock()
}

func TestBatchDebouncerFlushesOnInterval(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	r := new(recorder)

	d := NewBatchDebouncer(ctx, r.record, 10*time.Millisecond, 1<<20)

	d.Add([]byte("payload"), 7, "")

	deadline := time.Now().Add(time.Second)
	for r.count() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	assert.Equal(t, 1, r.count())
}
