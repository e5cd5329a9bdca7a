// Copyright (c) 2019 Perlin
//
// Permission is hereby granted, free of charge, to any person obtaining a copy of
// this software and associated documentation files (the "Software"), to deal in
// the Software without restriction, including without limitation the rights to
// use, copy, modify, merge, publish, distribute, sublicense, and/or sell copies of
// the Software, and to permit persons to whom the Software is furnished to do so,
// subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY, FITNESS
// FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE AUTHORS OR
// COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER LIABILITY, WHETHER
// IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM, OUT OF OR IN
// CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE SOFTWARE.

// Package debouncer coalesces small payloads into batches that are flushed
// either when a size limit is hit or when a quiet period elapses.
package debouncer

import (
	"context"
	"sync"
	"time"

	"github.com/phf/go-queue/queue"
)

type IDebouncer interface {
	Add(payload []byte, size int, key string)
}

type BatchDebouncer struct {
	sync.Mutex

	action func([]interface{})
	period time.Duration
	limit  int

	buffer  *queue.Queue
	pending int
}

// NewBatchDebouncer flushes accumulated payloads through action whenever
// their total size reaches limit, or every period otherwise. The debouncer
// stops when ctx is cancelled.
func NewBatchDebouncer(ctx context.Context, action func([]interface{}), period time.Duration, limit int) *BatchDebouncer {
	d := &BatchDebouncer{
		action: action,
		period: period,
		limit:  limit,
		buffer: queue.New(),
	}

	go d.run(ctx)

	return d
}

// Add enqueues a payload. The key is accepted for interface compatibility
// with keyed debouncers; batches ignore it.
func (d *BatchDebouncer) Add(payload []byte, size int, key string) {
	d.Lock()

	d.buffer.PushBack(payload)
	d.pending += size

	var flush []interface{}
	if d.pending >= d.limit {
		flush = d.drain()
	}

	d.Unlock()

	if flush != nil {
		d.action(flush)
	}
}

func (d *BatchDebouncer) run(ctx context.Context) {
	ticker := time.NewTicker(d.period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.Lock()
			flush := d.drain()
			d.Unlock()

			if flush != nil {
				d.action(flush)
			}
		}
	}
}

// drain empties the buffer. Callers must hold the lock.
func (d *BatchDebouncer) drain() []interface{} {
	if d.buffer.Len() == 0 {
		return nil
	}

	flush := make([]interface{}, 0, d.buffer.Len())
	for d.buffer.Len() > 0 {
		flush = append(flush, d.buffer.PopFront())
	}

	d.pending = 0

	return flush
}
