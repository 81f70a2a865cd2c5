package zbatch

import "fmt"

// RelationKind defines the cardinality of a declared relation.
type RelationKind string

const (
	// RelationManyToMany connects two entities through an intermediary
	// join table holding a "from" and a "to" foreign key.
	RelationManyToMany RelationKind = "many_to_many"

	// RelationGeneric is a polymorphic one-to-many relation: rows of the
	// target table point back at the owner through a (type tag, object id)
	// column pair.
	RelationGeneric RelationKind = "generic"
)

// RelationDescriptor statically declares a relation of an owner entity.
// Descriptors are registered once and looked up by (Owner, Name); nothing is
// discovered by inspecting the database or Go types.
type RelationDescriptor struct {
	Name   string
	Kind   RelationKind
	Owner  string // Entity the relation is declared on
	Target string // Entity of the related records

	// Many-to-many
	Through    string // Join table, required
	ThroughKey string // Join table primary key, optional tiebreaker for ordering
	FromColumn string // Join column pointing at the owner
	ToColumn   string // Join column pointing at the target

	// Generic
	TypeColumn string // Target column holding the owner's type tag
	IDColumn   string // Target column holding the owner's id
}

// Default column names for generic relations.
const (
	DefaultTypeColumn = "content_type"
	DefaultIDColumn   = "object_id"
)

func (d RelationDescriptor) withDefaults(owner, target EntityType) RelationDescriptor {
	switch d.Kind {
	case RelationManyToMany:
		from, to := DefaultForeignKey(owner.Table), DefaultForeignKey(target.Table)
		if from == to {
			// Self-referential: "from_user_id" and "to_user_id".
			from, to = "from_"+from, "to_"+to
		}
		if d.FromColumn == "" {
			d.FromColumn = from
		}
		if d.ToColumn == "" {
			d.ToColumn = to
		}
	case RelationGeneric:
		if d.TypeColumn == "" {
			d.TypeColumn = DefaultTypeColumn
		}
		if d.IDColumn == "" {
			d.IDColumn = DefaultIDColumn
		}
	}
	return d
}

func (d RelationDescriptor) validate() error {
	if d.Name == "" || d.Owner == "" || d.Target == "" {
		return configError(d.Owner, d.Name, ErrInvalidConfig)
	}

	var idents []string
	switch d.Kind {
	case RelationManyToMany:
		if d.Through == "" {
			return configError(d.Owner, d.Name,
				fmt.Errorf("%w: intermediate table must be explicitly configured for many-to-many relationships", ErrInvalidConfig))
		}
		if d.FromColumn == d.ToColumn {
			return configError(d.Owner, d.Name,
				fmt.Errorf("%w: from and to columns are both %q", ErrInvalidConfig, d.FromColumn))
		}
		idents = []string{d.Through, d.FromColumn, d.ToColumn}
		if d.ThroughKey != "" {
			idents = append(idents, d.ThroughKey)
		}
	case RelationGeneric:
		idents = []string{d.TypeColumn, d.IDColumn}
	default:
		return configError(d.Owner, d.Name, fmt.Errorf("%w: unsupported kind %q", ErrInvalidRelation, d.Kind))
	}

	for _, ident := range idents {
		if err := ValidateIdentifier(ident); err != nil {
			return configError(d.Owner, d.Name, err)
		}
	}
	return nil
}

// orderTiebreak is the join column used after the from key so that rows of
// one group come back in a deterministic order.
func (d RelationDescriptor) orderTiebreak() string {
	if d.ThroughKey != "" {
		return d.ThroughKey
	}
	return d.ToColumn
}
