// Package zbatch attaches related records to a collection of already
// fetched records without issuing one query per record.
//
// Relations are declared up front in a Registry: many-to-many relations
// through a join table, and generic relations where the target table stores
// a type tag and an owner id. A Batcher then answers, for a whole batch of
// primary ids, which rows belong to each id using a single bulk query per
// relation:
//
//	tags, err := b.BatchManyToMany(ctx, "Article", ids, "tags")
//	comments, err := b.BatchGeneric(ctx, "Article", ids, "comments")
//
// Forward polymorphic references (a type tag plus id stored on each record)
// are resolved with ResolveForward, one query per distinct type tag.
//
// Queries go through a Store. SQLStore runs them on database/sql with the
// bundled MySQL, PostgreSQL and SQLite drivers; BunStore runs them on bun.
package zbatch
