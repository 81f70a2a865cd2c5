package zbatch

// EntityType describes a table the batcher reads from.
type EntityType struct {
	// Name identifies the entity in relation declarations, e.g. "article".
	Name string

	// Table defaults to the plural snake case of Name.
	Table string

	// PrimaryKey defaults to "id".
	PrimaryKey string

	// TypeTag is the value stored in polymorphic type columns for rows that
	// point at this entity. It may be a model name or a numeric content type
	// id. Defaults to Name.
	TypeTag any
}

func (e EntityType) withDefaults() EntityType {
	if e.Table == "" {
		e.Table = DefaultTable(e.Name)
	}
	if e.PrimaryKey == "" {
		e.PrimaryKey = "id"
	}
	if isNilID(e.TypeTag) || KeyOf(e.TypeTag) == "" {
		e.TypeTag = e.Name
	}
	return e
}

func (e EntityType) validate() error {
	if e.Name == "" {
		return configError("", "", ErrInvalidConfig)
	}
	for _, ident := range []string{e.Table, e.PrimaryKey} {
		if err := ValidateIdentifier(ident); err != nil {
			return configError(e.Name, "", err)
		}
	}
	return nil
}
