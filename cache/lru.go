package cache

import "sync"

// LRU is a Policy that keeps at most Capacity keys, evicting the least
// recently used one when a new key is admitted past the limit.
//
// LRU is safe for concurrent use.
type LRU[K comparable] struct {
	mu       sync.Mutex
	capacity int
	nodes    map[K]*lruNode[K]
	list     lruList[K]
}

// NewLRU creates an LRU policy. A capacity <= 0 disables eviction.
func NewLRU[K comparable](capacity int) *LRU[K] {
	return &LRU[K]{
		capacity: capacity,
		nodes:    make(map[K]*lruNode[K]),
	}
}

// Admitted implements Policy.
func (p *LRU[K]) Admitted(key K) []K {
	p.mu.Lock()
	defer p.mu.Unlock()

	if n, ok := p.nodes[key]; ok {
		p.list.MoveToFront(n)
	} else {
		p.nodes[key] = p.list.PushFront(key)
	}
	if p.capacity <= 0 {
		return nil
	}

	var victims []K
	for p.list.Len() > p.capacity {
		oldest, ok := p.list.RemoveOldest()
		if !ok {
			break
		}
		delete(p.nodes, oldest)
		victims = append(victims, oldest)
	}
	return victims
}

// Touched implements Policy.
func (p *LRU[K]) Touched(key K) {
	p.mu.Lock()
	if n, ok := p.nodes[key]; ok {
		p.list.MoveToFront(n)
	}
	p.mu.Unlock()
}

// Forget implements Policy.
func (p *LRU[K]) Forget(key K) {
	p.mu.Lock()
	if n, ok := p.nodes[key]; ok {
		p.list.Remove(n)
		delete(p.nodes, key)
	}
	p.mu.Unlock()
}

// Len returns the number of tracked keys.
func (p *LRU[K]) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.list.Len()
}

// lruNode is a node in a doubly-linked LRU list.
type lruNode[K comparable] struct {
	key  K
	prev *lruNode[K]
	next *lruNode[K]
}

// lruList is a doubly-linked list; head is most recently used.
// Not thread-safe; LRU serializes access.
type lruList[K comparable] struct {
	head *lruNode[K]
	tail *lruNode[K]
	len  int
}

func (l *lruList[K]) Len() int { return l.len }

// PushFront adds a new node at the front and returns it.
func (l *lruList[K]) PushFront(key K) *lruNode[K] {
	node := &lruNode[K]{key: key}
	l.linkFront(node)
	return node
}

// MoveToFront moves an existing node to the front.
func (l *lruList[K]) MoveToFront(node *lruNode[K]) {
	if node == nil || node == l.head {
		return
	}
	l.unlink(node)
	l.linkFront(node)
}

// Remove removes a node from the list.
func (l *lruList[K]) Remove(node *lruNode[K]) {
	if node != nil {
		l.unlink(node)
	}
}

// RemoveOldest removes and returns the least recently used key.
func (l *lruList[K]) RemoveOldest() (K, bool) {
	if l.tail == nil {
		var zero K
		return zero, false
	}
	node := l.tail
	l.unlink(node)
	return node.key, true
}

func (l *lruList[K]) linkFront(node *lruNode[K]) {
	node.prev = nil
	node.next = l.head
	if l.head != nil {
		l.head.prev = node
	}
	l.head = node
	if l.tail == nil {
		l.tail = node
	}
	l.len++
}

func (l *lruList[K]) unlink(node *lruNode[K]) {
	if node.prev != nil {
		node.prev.next = node.next
	} else {
		l.head = node.next
	}
	if node.next != nil {
		node.next.prev = node.prev
	} else {
		l.tail = node.prev
	}
	node.prev = nil
	node.next = nil
	l.len--
}
