package zbatch

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for common failure cases
var (
	// ErrConfiguration is matched by every ConfigurationError via errors.Is.
	ErrConfiguration = errors.New("zbatch: configuration error")

	// ErrUnknownEntity is returned when an entity name is not registered
	ErrUnknownEntity = errors.New("zbatch: unknown entity")

	// ErrRelationNotFound is returned when a relation is not declared on the entity
	ErrRelationNotFound = errors.New("zbatch: relation not found")

	// ErrInvalidRelation is returned when the relation has the wrong kind for the operation
	ErrInvalidRelation = errors.New("zbatch: invalid relation type")

	// ErrUnknownTypeTag is returned when a polymorphic type tag maps to no entity
	ErrUnknownTypeTag = errors.New("zbatch: unknown type tag")

	// ErrInvalidConfig is returned when a relation or entity declaration is incomplete
	ErrInvalidConfig = errors.New("zbatch: invalid relation config")

	// ErrInvalidIdentifier is returned for table or column names that are not plain identifiers
	ErrInvalidIdentifier = errors.New("zbatch: invalid identifier")

	// ErrNilStore is returned when a batcher is built without a store
	ErrNilStore = errors.New("zbatch: nil store")
)

// ConfigurationError reports a schema mismatch between the caller and the
// registry: an unknown relation, a relation of the wrong kind, or a type tag
// that maps to no entity. It is never retried.
type ConfigurationError struct {
	Entity   string // Entity the relation was resolved on
	Relation string // Relation name, empty for entity-level failures
	Err      error  // One of the sentinel errors above
}

func (e *ConfigurationError) Error() string {
	if e.Relation == "" {
		return fmt.Sprintf("zbatch: configuration error on entity '%s': %v", e.Entity, e.Err)
	}
	return fmt.Sprintf("zbatch: configuration error on relation '%s' of entity '%s': %v",
		e.Relation, e.Entity, e.Err)
}

func (e *ConfigurationError) Unwrap() error {
	return e.Err
}

// Is lets errors.Is(err, ErrConfiguration) match any ConfigurationError.
func (e *ConfigurationError) Is(target error) bool {
	return target == ErrConfiguration
}

// QueryError wraps database errors with query context for better debugging
type QueryError struct {
	Query     string // The SQL query that failed
	Args      []any  // The query arguments
	Operation string // Operation type, e.g. SELECT
	Err       error  // The underlying error
}

func (e *QueryError) Error() string {
	argsStr := formatArgs(e.Args)
	return fmt.Sprintf("zbatch: %s failed: %v\nQuery: %s\nArgs: %s",
		e.Operation, e.Err, e.Query, argsStr)
}

func (e *QueryError) Unwrap() error {
	return e.Err
}

// WrapQueryError wraps a database error with query context
func WrapQueryError(operation, query string, args []any, err error) error {
	if err == nil {
		return nil
	}
	return &QueryError{
		Query:     query,
		Args:      args,
		Operation: operation,
		Err:       err,
	}
}

func configError(entity, relation string, err error) error {
	return &ConfigurationError{Entity: entity, Relation: relation, Err: err}
}

// IsConfigurationError checks if the error is a ConfigurationError
func IsConfigurationError(err error) bool {
	return errors.Is(err, ErrConfiguration)
}

// formatArgs formats query arguments for error messages
func formatArgs(args []any) string {
	if len(args) == 0 {
		return "[]"
	}

	parts := make([]string, len(args))
	for i, arg := range args {
		parts[i] = fmt.Sprintf("%v", arg)
	}

	// Limit output length
	result := "[" + strings.Join(parts, ", ") + "]"
	if len(result) > 200 {
		return result[:196] + "...]"
	}
	return result
}
