// Package migrations embeds the SQL schema files applied by cmd/migrate.
package migrations

import (
	"embed"
	"fmt"
	"io/fs"
	"sort"
	"strings"
)

//go:embed *.sql
var files embed.FS

// Direction selects up or down scripts.
type Direction string

const (
	Up   Direction = "up"
	Down Direction = "down"
)

// Script is one migration file.
type Script struct {
	Name string
	SQL  string
}

// Scripts returns the scripts for d in the order they must run: ascending for up,
// descending for down.
func Scripts(d Direction) ([]Script, error) {
	if d != Up && d != Down {
		return nil, fmt.Errorf("invalid migration direction %q (want up or down)", d)
	}
	names, err := fs.Glob(files, "*."+string(d)+".sql")
	if err != nil {
		return nil, fmt.Errorf("failed to list migrations: %w", err)
	}
	sort.Strings(names)
	if d == Down {
		sort.Sort(sort.Reverse(sort.StringSlice(names)))
	}

	out := make([]Script, 0, len(names))
	for _, n := range names {
		b, err := files.ReadFile(n)
		if err != nil {
			return nil, fmt.Errorf("failed to read migration %s: %w", n, err)
		}
		out = append(out, Script{Name: strings.TrimSuffix(n, ".sql"), SQL: string(b)})
	}
	return out, nil
}
