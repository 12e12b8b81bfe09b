package callback

import (
	"container/list"
	"sync"
)

// executedSet tracks recently executed command ids with LRU eviction,
// providing the at-most-once guard for command execution.
type executedSet struct {
	mu       sync.Mutex
	capacity int
	order    *list.List               // front = most recent
	index    map[string]*list.Element // command id -> order element
}

func newExecutedSet(capacity int) *executedSet {
	return &executedSet{
		capacity: capacity,
		order:    list.New(),
		index:    make(map[string]*list.Element, capacity),
	}
}

// Add records the id and reports whether it was newly added. A known id
// returns false and is refreshed as most recently seen.
func (e *executedSet) Add(id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if elem, ok := e.index[id]; ok {
		e.order.MoveToFront(elem)
		return false
	}

	e.index[id] = e.order.PushFront(id)
	if e.order.Len() > e.capacity {
		oldest := e.order.Back()
		e.order.Remove(oldest)
		delete(e.index, oldest.Value.(string))
	}
	return true
}

// Len returns the number of tracked ids.
func (e *executedSet) Len() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.order.Len()
}
