package zbatch

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
)

// TestRoundRobinLoadBalancer tests the round-robin load balancing
func TestRoundRobinLoadBalancer(t *testing.T) {
	lb := &RoundRobinLoadBalancer{}

	replicas := []*sql.DB{
		&sql.DB{},
		&sql.DB{},
		&sql.DB{},
	}

	selected := make(map[*sql.DB]int)
	for i := 0; i < 9; i++ {
		selected[lb.Next(replicas)]++
	}

	// Each replica should be selected exactly 3 times
	for _, db := range replicas {
		if selected[db] != 3 {
			t.Errorf("Expected replica to be selected 3 times, got %d", selected[db])
		}
	}
}

func TestRoundRobinLoadBalancer_EmptyReplicas(t *testing.T) {
	lb := &RoundRobinLoadBalancer{}
	if db := lb.Next([]*sql.DB{}); db != nil {
		t.Error("Expected nil for empty replicas")
	}
}

func TestRandomLoadBalancer(t *testing.T) {
	replicas := []*sql.DB{&sql.DB{}, &sql.DB{}}
	lb := RandomLoadBalancer{}

	for i := 0; i < 20; i++ {
		db := lb.Next(replicas)
		if db != replicas[0] && db != replicas[1] {
			t.Fatal("Expected one of the replicas")
		}
	}
	if lb.Next(nil) != nil {
		t.Error("Expected nil for empty replicas")
	}
}

func TestDBResolver(t *testing.T) {
	primary := &sql.DB{}
	replica1 := &sql.DB{}
	replica2 := &sql.DB{}

	resolver := NewDBResolver(primary, []*sql.DB{replica1, replica2}, nil)

	if first, second, third := resolver.Reader(), resolver.Reader(), resolver.Reader(); first != replica1 || second != replica2 || third != replica1 {
		t.Error("Expected round robin over replicas by default")
	}
}

func TestDBResolver_FallbackToPrimary(t *testing.T) {
	primary := &sql.DB{}
	resolver := NewDBResolver(primary, nil, RandomLoadBalancer{})

	if resolver.Reader() != primary {
		t.Error("Expected Reader() to fall back to primary when no replicas")
	}
}

func TestSQLStore_ReadsFromReplica(t *testing.T) {
	primary := setupBlogDB(t)
	replica := setupBlogDB(t)

	if _, err := replica.Exec("UPDATE tags SET name = 'from-replica' WHERE id = 10"); err != nil {
		t.Fatal(err)
	}

	store := NewSQLStore(primary, Dialects.SQLite3, WithResolver(NewDBResolver(primary, []*sql.DB{replica}, nil)))

	rows, err := store.LoadByIDs(context.Background(), "tags", "id", []any{10})
	if err != nil {
		t.Fatalf("LoadByIDs failed: %v", err)
	}
	if rows["10"]["name"] != "from-replica" {
		t.Errorf("expected read to hit the replica, got %v", rows["10"])
	}

	// Replicas passed in by the caller stay open.
	if err := store.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := replica.Ping(); err != nil {
		t.Errorf("expected caller's replica to stay open, got %v", err)
	}
}

func TestOpenStore_Replicas(t *testing.T) {
	dir := t.TempDir()
	primaryDSN := filepath.Join(dir, "primary.db")
	replicaDSN := filepath.Join(dir, "replica.db")

	for dsn, name := range map[string]string{primaryDSN: "primary", replicaDSN: "replica"} {
		db, err := sql.Open("sqlite3", dsn)
		if err != nil {
			t.Fatalf("open %s: %v", name, err)
		}
		_, err = db.Exec(`CREATE TABLE tags (id INTEGER PRIMARY KEY, name TEXT);
			INSERT INTO tags (id, name) VALUES (10, '` + name + `');`)
		db.Close()
		if err != nil {
			t.Fatalf("setup %s: %v", name, err)
		}
	}

	store, db, err := OpenStore("sqlite3", primaryDSN, &DBConfig{ReplicaDSNs: []string{replicaDSN}})
	if err != nil {
		t.Fatalf("OpenStore failed: %v", err)
	}
	defer db.Close()

	rows, err := store.LoadByIDs(context.Background(), "tags", "id", []any{10})
	if err != nil {
		t.Fatalf("LoadByIDs failed: %v", err)
	}
	if rows["10"]["name"] != "replica" {
		t.Errorf("expected read to hit the replica, got %v", rows["10"])
	}

	replica := store.resolver.replicas[0]
	if err := store.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := replica.Ping(); err == nil {
		t.Error("expected the opened replica to be closed with the store")
	}
	if err := db.Ping(); err != nil {
		t.Errorf("expected primary to stay open, got %v", err)
	}
}

func TestOpenStore_BadReplica(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "primary.db")
	_, _, err := OpenStore("sqlite3", dsn, &DBConfig{ReplicaDSNs: []string{"file:/nonexistent/dir/replica.db?mode=ro"}})
	if err == nil {
		t.Error("expected an error for an unreachable replica")
	}
}
