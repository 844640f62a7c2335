package foreign

import (
	"sync"

	"github.com/haivivi/bindkit/pkg/abi"
)

// dropQueue holds decrements requested while no token was available. Pushes
// may come from any goroutine; take is only called under a token.
type dropQueue struct {
	mu    sync.Mutex
	limit int
	ptrs  []abi.Ptr
}

func newDropQueue(limit int) *dropQueue {
	return &dropQueue{limit: limit}
}

// push appends p and reports whether the queue reached its limit.
func (q *dropQueue) push(p abi.Ptr) (full bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.ptrs = append(q.ptrs, p)
	return len(q.ptrs) >= q.limit
}

func (q *dropQueue) take() []abi.Ptr {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.ptrs) == 0 {
		return nil
	}
	ptrs := q.ptrs
	q.ptrs = nil
	return ptrs
}

func (q *dropQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.ptrs)
}
