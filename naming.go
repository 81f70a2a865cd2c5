package zbatch

import (
	"github.com/gertd/go-pluralize"
	"github.com/iancoleman/strcase"
)

var inflector = pluralize.NewClient()

// ToSnakeCase converts a string to snake_case.
func ToSnakeCase(s string) string {
	return strcase.ToSnake(s)
}

// DefaultTable derives a table name from an entity name: "BlogPost" -> "blog_posts".
func DefaultTable(entity string) string {
	return inflector.Plural(ToSnakeCase(entity))
}

// DefaultForeignKey derives the column that points at rows of table:
// "articles" -> "article_id".
func DefaultForeignKey(table string) string {
	return inflector.Singular(table) + "_id"
}
