package htmlutil

import "testing"

func TestToText(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"<p>National poverty headcount ratio</p>", "National poverty headcount ratio"},
		{"Exports &amp; imports.\n\n  Data are in current U.S. dollars.", "Exports & imports. Data are in current U.S. dollars."},
		{"", ""},
	}
	for _, tt := range tests {
		if got := ToText(tt.in); got != tt.want {
			t.Errorf("ToText(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		in   string
		max  int
		want string
	}{
		{"Población total", 20, "Población total"},
		{"Población total", 10, "Población…"},
		{"abc", 1, "…"},
		{"abc", 0, "abc"},
	}
	for _, tt := range tests {
		if got := Truncate(tt.in, tt.max); got != tt.want {
			t.Errorf("Truncate(%q, %d) = %q, want %q", tt.in, tt.max, got, tt.want)
		}
	}
}
