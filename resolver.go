package zbatch

import (
	"database/sql"
	"errors"
	"math/rand/v2"
	"sync/atomic"
)

// DBResolver routes batch reads. Every lookup the batcher issues is a read,
// so it goes to a replica when any are configured and to the primary
// otherwise.
type DBResolver struct {
	primary  *sql.DB
	replicas []*sql.DB
	lb       LoadBalancer
}

// LoadBalancer picks the replica the next batch query runs on.
type LoadBalancer interface {
	Next(replicas []*sql.DB) *sql.DB
}

// RoundRobinLoadBalancer cycles through the replicas in order.
type RoundRobinLoadBalancer struct {
	counter atomic.Uint64
}

func (r *RoundRobinLoadBalancer) Next(replicas []*sql.DB) *sql.DB {
	switch len(replicas) {
	case 0:
		return nil
	case 1:
		return replicas[0]
	}
	idx := r.counter.Add(1) - 1
	return replicas[idx%uint64(len(replicas))]
}

// RandomLoadBalancer picks a replica uniformly at random.
type RandomLoadBalancer struct{}

func (RandomLoadBalancer) Next(replicas []*sql.DB) *sql.DB {
	if len(replicas) == 0 {
		return nil
	}
	return replicas[rand.IntN(len(replicas))]
}

// NewDBResolver routes reads over replicas, falling back to primary. A nil
// lb means round robin.
func NewDBResolver(primary *sql.DB, replicas []*sql.DB, lb LoadBalancer) *DBResolver {
	if lb == nil {
		lb = &RoundRobinLoadBalancer{}
	}
	return &DBResolver{primary: primary, replicas: replicas, lb: lb}
}

// Reader returns the connection the next batch read should use.
func (r *DBResolver) Reader() *sql.DB {
	if db := r.lb.Next(r.replicas); db != nil {
		return db
	}
	return r.primary
}

// Close closes the replicas. The primary belongs to the caller.
func (r *DBResolver) Close() error {
	var errs []error
	for _, db := range r.replicas {
		if err := db.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
