package zbatch

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testConfig = `
batcher:
  max_in_clause: 2
  log_level: debug
  log_format: json
database:
  driver: sqlite3
  dsn: ":memory:"
  max_open_conns: 1
  conn_max_lifetime: 5m
  replicas: [":memory:"]
entities:
  - name: Article
    type_tag: article
    aliases: [1]
  - name: Tag
    table: labels
  - name: Comment
relations:
  - owner: Article
    name: tags
    kind: many_to_many
    target: Tag
    through: article_labels
    to_column: label_id
  - owner: Article
    name: comments
    kind: generic
    target: Comment
    type_column: subject_type
`

func TestParseConfig(t *testing.T) {
	cfg, err := ParseConfig([]byte(testConfig))
	require.NoError(t, err)

	assert.Equal(t, 2, cfg.Batcher.MaxInClause)
	assert.Equal(t, "debug", cfg.Batcher.LogLevel)
	assert.Equal(t, "sqlite3", cfg.Database.Driver)
	assert.Equal(t, 5*time.Minute, cfg.Database.ConnMaxLifetime)
	require.Len(t, cfg.Entities, 3)
	require.Len(t, cfg.Relations, 2)
	assert.Equal(t, RelationManyToMany, cfg.Relations[0].Kind)

	db := cfg.DBConfig()
	assert.Equal(t, 1, db.MaxOpenConns)
	assert.Equal(t, 5*time.Minute, db.ConnMaxLifetime)
	assert.Equal(t, []string{":memory:"}, db.ReplicaDSNs)
}

func TestParseConfig_RejectsUnknownKeys(t *testing.T) {
	_, err := ParseConfig([]byte("batcher:\n  max_in_clauses: 3\n"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestParseConfig_Empty(t *testing.T) {
	cfg, err := ParseConfig(nil)
	require.NoError(t, err)
	assert.Empty(t, cfg.Entities)
}

func TestConfig_Registry(t *testing.T) {
	cfg, err := ParseConfig([]byte(testConfig))
	require.NoError(t, err)

	r, err := cfg.Registry()
	require.NoError(t, err)

	tag, err := r.Entity("Tag")
	require.NoError(t, err)
	assert.Equal(t, "labels", tag.Table)

	tags, err := r.Relation("Article", "tags")
	require.NoError(t, err)
	assert.Equal(t, "article_id", tags.FromColumn)
	assert.Equal(t, "label_id", tags.ToColumn)

	comments, err := r.Relation("Article", "comments")
	require.NoError(t, err)
	assert.Equal(t, "subject_type", comments.TypeColumn)
	assert.Equal(t, DefaultIDColumn, comments.IDColumn)

	e, err := r.EntityForTag(1)
	require.NoError(t, err)
	assert.Equal(t, "Article", e.Name)
}

func TestConfig_RegistryErrors(t *testing.T) {
	cfg, err := ParseConfig([]byte(`
entities:
  - name: Article
relations:
  - owner: Article
    name: tags
    kind: many_to_many
    target: Tag
    through: article_tags
`))
	require.NoError(t, err)

	_, err = cfg.Registry()
	assert.ErrorIs(t, err, ErrUnknownEntity)
	assert.True(t, IsConfigurationError(err))
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "zbatch.yaml")
	require.NoError(t, os.WriteFile(path, []byte(testConfig), 0o600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Len(t, cfg.Entities, 3)

	_, err = LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestConfig_NewBatcher(t *testing.T) {
	cfg, err := ParseConfig([]byte(testConfig))
	require.NoError(t, err)

	var logs bytes.Buffer
	b, closer, err := cfg.NewBatcher(&logs)
	require.NoError(t, err)
	defer closer.Close()

	assert.Equal(t, 2, b.maxInClause)

	// The in-memory database has no tables yet; the query reaches the driver.
	_, err = b.BatchGeneric(context.Background(), "Article", []any{1}, "comments")
	var qe *QueryError
	assert.ErrorAs(t, err, &qe)

	cfg.Database.Driver = ""
	_, _, err = cfg.NewBatcher(nil)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}
