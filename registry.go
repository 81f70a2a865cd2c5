package zbatch

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Registry holds the statically declared entities and relations the batcher
// resolves against. It is safe for concurrent use; writes normally happen once
// at startup.
type Registry struct {
	mu        sync.RWMutex
	entities  map[string]EntityType
	relations map[string]map[string]RelationDescriptor // owner -> name -> descriptor
	tags      map[string]string                        // KeyOf(type tag) -> entity name
	tagValues map[string]any                           // KeyOf(type tag) -> tag as stored
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		entities:  make(map[string]EntityType),
		relations: make(map[string]map[string]RelationDescriptor),
		tags:      make(map[string]string),
		tagValues: make(map[string]any),
	}
}

// RegisterEntity adds or replaces an entity declaration.
func (r *Registry) RegisterEntity(e EntityType) error {
	e = e.withDefaults()
	if err := e.validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	tagKey := KeyOf(e.TypeTag)
	if other, ok := r.tags[tagKey]; ok && other != e.Name {
		return configError(e.Name, "", fmt.Errorf("%w: type tag %q already used by %s", ErrInvalidConfig, tagKey, other))
	}

	if old, ok := r.entities[e.Name]; ok {
		oldKey := KeyOf(old.TypeTag)
		delete(r.tags, oldKey)
		delete(r.tagValues, oldKey)
	}

	r.entities[e.Name] = e
	r.tags[tagKey] = e.Name
	r.tagValues[tagKey] = e.TypeTag
	return nil
}

// RegisterRelation declares a relation. Owner and Target must already be
// registered; missing columns get their conventional defaults.
func (r *Registry) RegisterRelation(d RelationDescriptor) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	owner, ok := r.entities[d.Owner]
	if !ok {
		return configError(d.Owner, d.Name, ErrUnknownEntity)
	}
	target, ok := r.entities[d.Target]
	if !ok {
		return configError(d.Target, d.Name, ErrUnknownEntity)
	}

	d = d.withDefaults(owner, target)
	if err := d.validate(); err != nil {
		return err
	}

	if r.relations[d.Owner] == nil {
		r.relations[d.Owner] = make(map[string]RelationDescriptor)
	}
	r.relations[d.Owner][d.Name] = d
	return nil
}

// AliasTypeTag maps an additional type tag value onto a registered entity.
// Content type tables usually store numeric ids next to the model name.
func (r *Registry) AliasTypeTag(tag any, entity string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.entities[entity]; !ok {
		return configError(entity, "", ErrUnknownEntity)
	}
	r.setTag(tag, entity)
	return nil
}

// Entity returns the declaration registered under name.
func (r *Registry) Entity(name string) (EntityType, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entities[name]
	if !ok {
		return EntityType{}, configError(name, "", ErrUnknownEntity)
	}
	return e, nil
}

// Relation resolves the relation metadata declared on owner.
func (r *Registry) Relation(owner, name string) (RelationDescriptor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if _, ok := r.entities[owner]; !ok {
		return RelationDescriptor{}, configError(owner, name, ErrUnknownEntity)
	}
	d, ok := r.relations[owner][name]
	if !ok {
		return RelationDescriptor{}, configError(owner, name, ErrRelationNotFound)
	}
	return d, nil
}

// TypeTag returns the tag polymorphic rows store when they point at entity.
func (r *Registry) TypeTag(entity string) (any, error) {
	e, err := r.Entity(entity)
	if err != nil {
		return nil, err
	}
	return e.TypeTag, nil
}

// TypeTags returns every tag that maps to entity: the declared tag first,
// then aliases in key order.
func (r *Registry) TypeTags(entity string) ([]any, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entities[entity]
	if !ok {
		return nil, configError(entity, "", ErrUnknownEntity)
	}

	declared := KeyOf(e.TypeTag)
	var aliases []string
	for key, name := range r.tags {
		if name == entity && key != declared {
			aliases = append(aliases, key)
		}
	}
	sort.Strings(aliases)

	tags := []any{e.TypeTag}
	for _, key := range aliases {
		tags = append(tags, r.tagValues[key])
	}
	return tags, nil
}

// EntityForTag maps a stored type tag back to its entity.
func (r *Registry) EntityForTag(tag any) (EntityType, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	key := KeyOf(tag)
	name, ok := r.tags[key]
	if !ok {
		return EntityType{}, configError(key, "", ErrUnknownTypeTag)
	}
	return r.entities[name], nil
}

// Entities returns all entity declarations sorted by name.
func (r *Registry) Entities() []EntityType {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]EntityType, 0, len(r.entities))
	for _, e := range r.entities {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Relations returns all relation declarations sorted by owner and name.
func (r *Registry) Relations() []RelationDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []RelationDescriptor
	for _, byName := range r.relations {
		for _, d := range byName {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Owner != out[j].Owner {
			return out[i].Owner < out[j].Owner
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// LoadTypeTags reads a content type table in one query and aliases every
// row's key to the entity named in nameColumn. Rows naming unregistered
// entities are ignored. It returns the number of aliases added.
func (r *Registry) LoadTypeTags(ctx context.Context, s Store, table, keyColumn, nameColumn string) (int, error) {
	rows, err := s.Select(ctx, Query{
		Table:   table,
		Columns: []Column{{Name: keyColumn}, {Name: nameColumn}},
		OrderBy: []string{keyColumn},
	})
	if err != nil {
		return 0, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	added := 0
	for _, row := range rows {
		name := KeyOf(row[nameColumn])
		if _, ok := r.entities[name]; !ok {
			continue
		}
		r.setTag(row[keyColumn], name)
		added++
	}
	return added, nil
}

// setTag must be called with r.mu held.
func (r *Registry) setTag(tag any, entity string) {
	key := KeyOf(tag)
	r.tags[key] = entity
	r.tagValues[key] = normalizeValue(tag)
}
