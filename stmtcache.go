package zbatch

import (
	"container/list"
	"database/sql"
	"sync"
	"sync/atomic"
)

// StmtCacheStats reports prepared statement reuse.
type StmtCacheStats struct {
	Hits   int64
	Misses int64
	Size   int
}

// stmtCache keeps prepared batch statements in LRU order. Chunked batches
// render the same SQL for every full chunk, so their statements are reused.
// Evicted statements are closed once their last user releases them.
type stmtCache struct {
	mu       sync.Mutex
	capacity int
	entries  map[string]*stmtEntry
	order    *list.List

	hits   atomic.Int64
	misses atomic.Int64
}

type stmtEntry struct {
	key     string
	stmt    *sql.Stmt
	elem    *list.Element
	users   int
	evicted bool
}

// newStmtCache creates a cache holding at most capacity statements.
// A capacity of 0 or less defaults to 100.
func newStmtCache(capacity int) *stmtCache {
	if capacity <= 0 {
		capacity = 100
	}
	return &stmtCache{
		capacity: capacity,
		entries:  make(map[string]*stmtEntry),
		order:    list.New(),
	}
}

// acquire returns the statement cached under key, calling prepare on a miss.
// The returned release func must be called once the statement's rows are
// closed.
func (c *stmtCache) acquire(key string, prepare func() (*sql.Stmt, error)) (*sql.Stmt, func(), error) {
	c.mu.Lock()
	if e, ok := c.entries[key]; ok {
		c.order.MoveToFront(e.elem)
		e.users++
		c.mu.Unlock()
		c.hits.Add(1)
		return e.stmt, func() { c.release(e) }, nil
	}
	c.mu.Unlock()
	c.misses.Add(1)

	stmt, err := prepare()
	if err != nil {
		return nil, nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	// Another goroutine prepared the same query meanwhile.
	if e, ok := c.entries[key]; ok {
		_ = stmt.Close()
		c.order.MoveToFront(e.elem)
		e.users++
		return e.stmt, func() { c.release(e) }, nil
	}

	for len(c.entries) >= c.capacity {
		c.evict(c.order.Back().Value.(*stmtEntry))
	}

	e := &stmtEntry{key: key, stmt: stmt, users: 1}
	e.elem = c.order.PushFront(e)
	c.entries[key] = e
	return stmt, func() { c.release(e) }, nil
}

func (c *stmtCache) release(e *stmtEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e.users--
	if e.evicted && e.users == 0 {
		_ = e.stmt.Close()
	}
}

// evict must be called with c.mu held.
func (c *stmtCache) evict(e *stmtEntry) {
	c.order.Remove(e.elem)
	delete(c.entries, e.key)
	e.evicted = true
	if e.users == 0 {
		_ = e.stmt.Close()
	}
}

// Close evicts every statement. Statements still in use close on release.
func (c *stmtCache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, e := range c.entries {
		c.evict(e)
	}
	return nil
}

func (c *stmtCache) stats() StmtCacheStats {
	c.mu.Lock()
	size := len(c.entries)
	c.mu.Unlock()

	return StmtCacheStats{
		Hits:   c.hits.Load(),
		Misses: c.misses.Load(),
		Size:   size,
	}
}
