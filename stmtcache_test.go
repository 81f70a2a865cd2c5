package zbatch

import (
	"context"
	"database/sql"
	"reflect"
	"sync"
	"testing"
)

func prepareOn(t *testing.T, db *sql.DB, query string) func() (*sql.Stmt, error) {
	t.Helper()
	return func() (*sql.Stmt, error) {
		return db.Prepare(query)
	}
}

func TestStmtCache_LRU(t *testing.T) {
	db := setupBlogDB(t)
	c := newStmtCache(2)

	queries := []string{
		"SELECT * FROM tags WHERE id = ?",
		"SELECT * FROM articles WHERE id = ?",
		"SELECT * FROM videos WHERE id = ?",
	}

	first, release, err := c.acquire(queries[0], prepareOn(t, db, queries[0]))
	if err != nil {
		t.Fatalf("acquire failed: %v", err)
	}
	release()

	for _, q := range queries[1:] {
		_, release, err := c.acquire(q, prepareOn(t, db, q))
		if err != nil {
			t.Fatalf("acquire failed: %v", err)
		}
		release()
	}

	if got := c.stats(); got.Size != 2 || got.Misses != 3 || got.Hits != 0 {
		t.Errorf("unexpected stats %+v", got)
	}

	// The least recently used statement was evicted and closed.
	if _, err := first.Query(10); err == nil {
		t.Error("expected evicted statement to be closed")
	}

	if _, release, err := c.acquire(queries[2], prepareOn(t, db, queries[2])); err != nil {
		t.Fatalf("acquire failed: %v", err)
	} else {
		release()
	}
	if got := c.stats(); got.Hits != 1 {
		t.Errorf("expected a cache hit, got %+v", got)
	}
}

func TestStmtCache_EvictedWhileInUse(t *testing.T) {
	db := setupBlogDB(t)
	c := newStmtCache(1)

	q1 := "SELECT name FROM tags WHERE id = ?"
	stmt, release, err := c.acquire(q1, prepareOn(t, db, q1))
	if err != nil {
		t.Fatalf("acquire failed: %v", err)
	}

	q2 := "SELECT title FROM articles WHERE id = ?"
	_, release2, err := c.acquire(q2, prepareOn(t, db, q2))
	if err != nil {
		t.Fatalf("acquire failed: %v", err)
	}
	release2()

	// Still usable until released.
	var name string
	if err := stmt.QueryRow(10).Scan(&name); err != nil || name != "go" {
		t.Fatalf("expected in-use statement to survive eviction, got %q (%v)", name, err)
	}
	release()

	if err := stmt.QueryRow(10).Scan(&name); err == nil {
		t.Error("expected statement to be closed after release")
	}
}

func TestStmtCache_Concurrent(t *testing.T) {
	db := setupBlogDB(t)
	c := newStmtCache(4)
	query := "SELECT * FROM tags WHERE id = ?"

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, release, err := c.acquire(query, prepareOn(t, db, query))
			if err != nil {
				t.Errorf("acquire failed: %v", err)
				return
			}
			release()
		}()
	}
	wg.Wait()

	if got := c.stats(); got.Size != 1 || got.Hits+got.Misses != 16 {
		t.Errorf("unexpected stats %+v", got)
	}
	c.Close()
	if got := c.stats(); got.Size != 0 {
		t.Errorf("expected empty cache after Close, got %+v", got)
	}
}

func TestSQLStore_StatementCacheWithChunks(t *testing.T) {
	db := setupBlogDB(t)
	store := NewSQLStore(db, Dialects.SQLite3, WithStatementCache(8))
	defer store.Close()

	b, err := New(store, blogRegistry(t), WithMaxInClause(2))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	cached, err := b.BatchManyToMany(context.Background(), "Article", []any{1, 2, 3, 4}, "tags")
	if err != nil {
		t.Fatalf("BatchManyToMany failed: %v", err)
	}

	if got := store.StmtCacheStats(); got.Misses != 1 || got.Hits != 1 {
		t.Errorf("expected equal-size chunks to share a statement, got %+v", got)
	}

	plain, _ := newTestBatcher(t)
	want, err := plain.BatchManyToMany(context.Background(), "Article", []any{1, 2, 3, 4}, "tags")
	if err != nil {
		t.Fatalf("BatchManyToMany failed: %v", err)
	}
	if !reflect.DeepEqual(cached, want) {
		t.Errorf("cached statements changed the result: %v vs %v", cached, want)
	}
}
