// Package labels maps internal class labels to display labels.
package labels

import (
	"fmt"
	"sort"
)

// Unrecognized is the sentinel label of a rejected clip
const Unrecognized = "Nao reconhecido"

// DefaultTranslations is the Portuguese display table
var DefaultTranslations = map[string]string{
	"clock_alarm":     "Alarme de Relógio",
	"crying_baby":     "Bebe Chorando",
	"dog":             "Cachorro",
	"door_wood_knock": "Batida na Porta",
	"glass_breaking":  "Vidro Quebrando",
	"siren":           "Sirene",
	Unrecognized:      Unrecognized,
}

// Table is an immutable translation table. Labels without an entry are
// returned unchanged.
type Table struct {
	entries map[string]string
}

// NewTable copies entries into a Table. Empty display labels are rejected.
func NewTable(entries map[string]string) (*Table, error) {
	t := &Table{entries: make(map[string]string, len(entries))}
	for k, v := range entries {
		if v == "" {
			return nil, fmt.Errorf("display label for %q is empty", k)
		}
		t.entries[k] = v
	}
	return t, nil
}

// Translate returns the display label for label
func (t *Table) Translate(label string) string {
	if t == nil {
		return label
	}
	if v, ok := t.entries[label]; ok {
		return v
	}
	return label
}

// Missing returns the labels that have no entry, sorted
func (t *Table) Missing(labels []string) []string {
	var missing []string
	for _, l := range labels {
		if _, ok := t.entries[l]; !ok {
			missing = append(missing, l)
		}
	}
	sort.Strings(missing)
	return missing
}

// Len returns the number of entries
func (t *Table) Len() int {
	return len(t.entries)
}
