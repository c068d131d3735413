package labels

import (
	"reflect"
	"testing"
)

func TestTranslate(t *testing.T) {
	table := Default()

	tests := []struct {
		label string
		want  string
	}{
		{"dog", "Cachorro"},
		{"glass_breaking", "Vidro Quebrando"},
		{"clock_alarm", "Alarme de Relógio"},
		{Unrecognized, Unrecognized},
		{"helicopter", "helicopter"},
		{"", ""},
	}

	for _, tt := range tests {
		if got := table.Translate(tt.label); got != tt.want {
			t.Errorf("Translate(%q) = %q, want %q", tt.label, got, tt.want)
		}
	}
}

func TestNilTablePassesThrough(t *testing.T) {
	var table *Table
	if got := table.Translate("dog"); got != "dog" {
		t.Errorf("expected pass-through, got %q", got)
	}
}

func TestNewTableCopiesEntries(t *testing.T) {
	entries := map[string]string{"dog": "Hund"}
	table, err := NewTable(entries)
	if err != nil {
		t.Fatalf("NewTable failed: %v", err)
	}

	entries["dog"] = "Chien"
	if got := table.Translate("dog"); got != "Hund" {
		t.Errorf("table was modified through the source map: %q", got)
	}

	if _, err := NewTable(map[string]string{"dog": ""}); err == nil {
		t.Error("expected error for empty display label")
	}
}

func TestMissing(t *testing.T) {
	table := Default()
	got := table.Missing([]string{"siren", "rain", "dog", "car_horn"})
	want := []string{"car_horn", "rain"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Missing() = %v, want %v", got, want)
	}
	if table.Len() != 7 {
		t.Errorf("expected 7 entries, got %d", table.Len())
	}
}
