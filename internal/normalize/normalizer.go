// Package normalize canonicalizes region names so that the rainfall and crop
// sources join on the same key.
package normalize

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"
)

// DefaultAliases maps historical or alternate region spellings to the canonical
// name used for joining.
var DefaultAliases = map[string]string{
	"Andaman & Nicobar Islands": "Andaman And Nicobar Islands",
	"Andaman & Nicobar":         "Andaman And Nicobar Islands",
	"Delhi":                     "Nct Of Delhi",
	"Orissa":                    "Odisha",
	"Pondicherry":               "Puducherry",
	"Jammu & Kashmir":           "Jammu And Kashmir",
	"Uttaranchal":               "Uttarakhand",
	"Chattisgarh":               "Chhattisgarh",
	"Telengana":                 "Telangana",
}

// AliasTable is an immutable alias → canonical mapping. Keys and values are stored
// in canonical casing.
type AliasTable struct {
	aliases map[string]string
}

// NewAliasTable builds a table from raw pairs. Later maps override earlier ones.
func NewAliasTable(sets ...map[string]string) *AliasTable {
	t := &AliasTable{aliases: make(map[string]string)}
	for _, set := range sets {
		for from, to := range set {
			from, to = titleCase(from), titleCase(to)
			if from == "" || to == "" || from == to {
				continue
			}
			t.aliases[from] = to
		}
	}
	return t
}

// aliasFile is the YAML layout of an alias extension file:
//
//	aliases:
//	  Orissa: Odisha
type aliasFile struct {
	Aliases map[string]string `yaml:"aliases"`
}

// LoadAliasFile reads extra aliases from a YAML file and layers them over DefaultAliases.
func LoadAliasFile(path string) (*AliasTable, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read alias file: %w", err)
	}
	var af aliasFile
	if err := yaml.Unmarshal(data, &af); err != nil {
		return nil, fmt.Errorf("failed to parse alias file %s: %w", path, err)
	}
	return NewAliasTable(DefaultAliases, af.Aliases), nil
}

// Lookup returns the canonical name for an already title-cased alias.
func (t *AliasTable) Lookup(name string) (string, bool) {
	c, ok := t.aliases[name]
	return c, ok
}

// Len is the number of aliases.
func (t *AliasTable) Len() int { return len(t.aliases) }

// Pairs returns the aliases sorted by alias name.
func (t *AliasTable) Pairs() [][2]string {
	out := make([][2]string, 0, len(t.aliases))
	for k, v := range t.aliases {
		out = append(out, [2]string{k, v})
	}
	sort.Slice(out, func(i, j int) bool { return out[i][0] < out[j][0] })
	return out
}

// Normalizer turns raw region strings into join keys.
type Normalizer struct {
	aliases *AliasTable
}

// New returns a Normalizer over the given alias table. A nil table means DefaultAliases.
func New(aliases *AliasTable) *Normalizer {
	if aliases == nil {
		aliases = NewAliasTable(DefaultAliases)
	}
	return &Normalizer{aliases: aliases}
}

// Canonical trims and title-cases a region name, then resolves aliases.
// Unknown names pass through in title case.
func (n *Normalizer) Canonical(raw string) string {
	name := titleCase(raw)
	if c, ok := n.aliases.Lookup(name); ok {
		return c
	}
	return name
}

// Aliases exposes the table the normalizer resolves against.
func (n *Normalizer) Aliases() *AliasTable { return n.aliases }

func titleCase(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	if s == "" {
		return ""
	}
	return cases.Title(language.Und).String(s)
}
