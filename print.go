package zbatch

import (
	"fmt"
	"io"
	"sort"

	"github.com/jedib0t/go-pretty/table"
)

// PrintSchematic writes the registered entities and relations to w as tables.
func PrintSchematic(w io.Writer, r *Registry) {
	et := table.NewWriter()
	et.AppendHeader(table.Row{"Entity", "Table", "Primary Key", "Type Tag"})
	for _, e := range r.Entities() {
		et.AppendRow(table.Row{e.Name, e.Table, e.PrimaryKey, KeyOf(e.TypeTag)})
	}
	fmt.Fprintln(w, et.Render())

	rt := table.NewWriter()
	rt.AppendHeader(table.Row{"Owner", "Relation", "Kind", "Target", "Via", "Keys"})
	for _, d := range r.Relations() {
		switch d.Kind {
		case RelationManyToMany:
			rt.AppendRow(table.Row{d.Owner, d.Name, "N-N", d.Target, d.Through, d.FromColumn + " -> " + d.ToColumn})
		case RelationGeneric:
			rt.AppendRow(table.Row{d.Owner, d.Name, "1-N generic", d.Target, d.TypeColumn, d.IDColumn})
		}
	}
	fmt.Fprintln(w, rt.Render())
}

// RenderResult renders a ResultMap as a table with one line per related row.
// Only the given columns are shown; with none, the union of all columns is
// used.
func RenderResult(result ResultMap, columns ...string) string {
	if len(columns) == 0 {
		seen := make(map[string]struct{})
		for _, rows := range result {
			for _, row := range rows {
				for c := range row {
					if _, ok := seen[c]; !ok {
						seen[c] = struct{}{}
						columns = append(columns, c)
					}
				}
			}
		}
		sort.Strings(columns)
	}

	w := table.NewWriter()
	header := table.Row{"Key"}
	for _, c := range columns {
		header = append(header, c)
	}
	w.AppendHeader(header)

	for _, key := range result.Keys() {
		rows := result[key]
		if len(rows) == 0 {
			w.AppendRow(table.Row{key})
			continue
		}
		for _, row := range rows {
			line := table.Row{key}
			for _, c := range columns {
				line = append(line, row[c])
			}
			w.AppendRow(line)
		}
	}
	return w.Render()
}
