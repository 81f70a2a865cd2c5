package zbatch

import (
	"bytes"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config declares the schema the batcher resolves against plus its runtime
// settings.
//
// Example:
//
//	batcher:
//	  max_in_clause: 500
//	  log_level: debug
//	database:
//	  driver: sqlite3
//	  dsn: "file:blog.db"
//	entities:
//	  - name: Article
//	  - name: Tag
//	relations:
//	  - owner: Article
//	    name: tags
//	    kind: many_to_many
//	    target: Tag
//	    through: article_tags
type Config struct {
	Batcher   BatcherConfig    `yaml:"batcher"`
	Database  DatabaseConfig   `yaml:"database"`
	Entities  []EntityConfig   `yaml:"entities"`
	Relations []RelationConfig `yaml:"relations"`
}

// BatcherConfig holds runtime options for a Batcher.
type BatcherConfig struct {
	// MaxInClause splits IN lists larger than this. Zero disables splitting.
	MaxInClause int    `yaml:"max_in_clause,omitempty"`
	LogLevel    string `yaml:"log_level,omitempty"`
	// LogFormat is "json" or "console" (default).
	LogFormat string `yaml:"log_format,omitempty"`
}

// DatabaseConfig describes the connection used by OpenStore.
type DatabaseConfig struct {
	Driver          string        `yaml:"driver,omitempty"`
	DSN             string        `yaml:"dsn,omitempty"`
	MaxOpenConns    int           `yaml:"max_open_conns,omitempty"`
	MaxIdleConns    int           `yaml:"max_idle_conns,omitempty"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime,omitempty"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time,omitempty"`
	StmtCacheSize   int           `yaml:"stmt_cache_size,omitempty"`
	// Replicas are DSNs batch reads are spread over.
	Replicas []string `yaml:"replicas,omitempty"`
}

type EntityConfig struct {
	Name       string `yaml:"name"`
	Table      string `yaml:"table,omitempty"`
	PrimaryKey string `yaml:"primary_key,omitempty"`
	TypeTag    any    `yaml:"type_tag,omitempty"`
	// Aliases are extra stored tag values that map to this entity.
	Aliases []any `yaml:"aliases,omitempty"`
}

type RelationConfig struct {
	Owner      string       `yaml:"owner"`
	Name       string       `yaml:"name"`
	Kind       RelationKind `yaml:"kind"`
	Target     string       `yaml:"target"`
	Through    string       `yaml:"through,omitempty"`
	ThroughKey string       `yaml:"through_key,omitempty"`
	FromColumn string       `yaml:"from_column,omitempty"`
	ToColumn   string       `yaml:"to_column,omitempty"`
	TypeColumn string       `yaml:"type_column,omitempty"`
	IDColumn   string       `yaml:"id_column,omitempty"`
}

// LoadConfig reads and parses a YAML config file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("zbatch: reading config %s: %w", path, err)
	}
	return ParseConfig(data)
}

// ParseConfig parses YAML config data. Unknown keys are rejected.
func ParseConfig(data []byte) (*Config, error) {
	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && err != io.EOF {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return &cfg, nil
}

// Registry builds a registry from the declared entities and relations.
func (c *Config) Registry() (*Registry, error) {
	r := NewRegistry()
	for _, e := range c.Entities {
		if err := r.RegisterEntity(EntityType{
			Name:       e.Name,
			Table:      e.Table,
			PrimaryKey: e.PrimaryKey,
			TypeTag:    e.TypeTag,
		}); err != nil {
			return nil, err
		}
		for _, alias := range e.Aliases {
			if err := r.AliasTypeTag(alias, e.Name); err != nil {
				return nil, err
			}
		}
	}

	for _, rel := range c.Relations {
		if err := r.RegisterRelation(RelationDescriptor{
			Name:       rel.Name,
			Kind:       rel.Kind,
			Owner:      rel.Owner,
			Target:     rel.Target,
			Through:    rel.Through,
			ThroughKey: rel.ThroughKey,
			FromColumn: rel.FromColumn,
			ToColumn:   rel.ToColumn,
			TypeColumn: rel.TypeColumn,
			IDColumn:   rel.IDColumn,
		}); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Options returns the batcher options described by the config. Logs go to w.
func (c *Config) Options(w io.Writer) []Option {
	opts := []Option{WithMaxInClause(c.Batcher.MaxInClause)}
	if c.Batcher.LogLevel != "" {
		opts = append(opts, WithLogger(NewLogger(c.Batcher.LogLevel, c.Batcher.LogFormat, w)))
	}
	return opts
}

// DBConfig returns the pool settings of the database section.
func (c *Config) DBConfig() *DBConfig {
	return &DBConfig{
		MaxOpenConns:    c.Database.MaxOpenConns,
		MaxIdleConns:    c.Database.MaxIdleConns,
		ConnMaxLifetime: c.Database.ConnMaxLifetime,
		ConnMaxIdleTime: c.Database.ConnMaxIdleTime,
		StmtCacheSize:   c.Database.StmtCacheSize,
		ReplicaDSNs:     c.Database.Replicas,
	}
}

// NewBatcher opens the configured database and returns a batcher over it
// together with a closer for the store and its connections.
func (c *Config) NewBatcher(w io.Writer) (*Batcher, io.Closer, error) {
	if c.Database.Driver == "" {
		return nil, nil, fmt.Errorf("%w: database.driver is required", ErrInvalidConfig)
	}

	registry, err := c.Registry()
	if err != nil {
		return nil, nil, err
	}

	store, db, err := OpenStore(c.Database.Driver, c.Database.DSN, c.DBConfig())
	if err != nil {
		return nil, nil, err
	}

	closer := storeCloser{store: store, db: db}
	b, err := New(store, registry, c.Options(w)...)
	if err != nil {
		closer.Close()
		return nil, nil, err
	}
	return b, closer, nil
}

type storeCloser struct {
	store *SQLStore
	db    *sql.DB
}

func (c storeCloser) Close() error {
	return errors.Join(c.store.Close(), c.db.Close())
}
