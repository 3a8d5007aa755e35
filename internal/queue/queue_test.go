package queue

import (
	"strconv"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

type msgItem struct {
	Data string
}

func TestLockFree(t *testing.T) {
	assert := assert.New(t)

	t.Run("Empty Queue", func(t *testing.T) {
		q := NewLockFree[*msgItem]()

		assert.True(q.IsEmpty())
		assert.Equal(0, q.Length())

		item, ok := q.Dequeue()
		assert.False(ok)
		assert.Nil(item)
	})

	t.Run("Enqueue and Dequeue", func(t *testing.T) {
		q := NewLockFree[*msgItem]()

		item1 := &msgItem{"data1"}
		item2 := &msgItem{"data2"}
		q.Enqueue(item1)
		assert.False(q.IsEmpty())
		q.Enqueue(item2)
		assert.Equal(2, q.Length())

		got, ok := q.Dequeue()
		assert.True(ok)
		assert.Same(item1, got)
		assert.Equal(1, q.Length())

		got, ok = q.Dequeue()
		assert.True(ok)
		assert.Same(item2, got)
		assert.True(q.IsEmpty())

		_, ok = q.Dequeue()
		assert.False(ok)
	})

	t.Run("Zero Values", func(t *testing.T) {
		q := NewLockFree[int]()
		q.Enqueue(0)

		v, ok := q.Dequeue()
		assert.True(ok)
		assert.Zero(v)
	})

	t.Run("Single Producer Order", func(t *testing.T) {
		q := NewLockFree[int]()

		var wg sync.WaitGroup
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range 1000 {
				q.Enqueue(i)
			}
		}()

		next := 0
		for next < 1000 {
			if v, ok := q.Dequeue(); ok {
				assert.Equal(next, v)
				next++
			}
		}
		wg.Wait()
	})

	t.Run("Concurrency", func(t *testing.T) {
		q := NewLockFree[*msgItem]()

		var wg sync.WaitGroup
		for i := range 1000 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				q.Enqueue(&msgItem{strconv.Itoa(i)})
			}()
		}
		wg.Wait()

		assert.Equal(1000, q.Length())

		var mu sync.Mutex
		seen := make(map[string]bool)
		wg.Add(1000)
		for range 1000 {
			go func() {
				defer wg.Done()
				item, ok := q.Dequeue()
				if ok {
					mu.Lock()
					seen[item.Data] = true
					mu.Unlock()
				}
			}()
		}
		wg.Wait()

		assert.True(q.IsEmpty())
		assert.Len(seen, 1000)
	})
}

func BenchmarkLockFree_100(b *testing.B) {
	q := NewLockFree[int]()

	for b.Loop() {
		for i := range 100 {
			q.Enqueue(i)
		}
		for range 100 {
			_, _ = q.Dequeue()
		}
	}
}
