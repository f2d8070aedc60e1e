package language

import (
	"slices"
	"testing"
)

func TestToISO2(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"en", "en"},
		{"EN", "en"},
		{"eng", "en"},
		{"fre", "fr"},
		{"ger", "de"},
		{"fil", "tl"},
		{"English", "en"},
		{"en-US", "en"},
		{"pt-BR", "pt"},
		{"en-orig", "en"},
		{"zh-Hans", "zh"},
		{"xy", "xy"},
		{"xyz", ""},
		{"", ""},
		{" ", ""},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := ToISO2(tt.input); got != tt.expected {
				t.Errorf("ToISO2(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestDisplayName(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"en", "English"},
		{"es-419", "Spanish"},
		{"kor", "Korean"},
		{"", "Unknown"},
		{"xx", "XX"},
	}
	for _, tt := range tests {
		if got := DisplayName(tt.input); got != tt.expected {
			t.Errorf("DisplayName(%q) = %q, want %q", tt.input, got, tt.expected)
		}
	}
}

func TestNormalizeList(t *testing.T) {
	got := NormalizeList([]string{"English", "en-GB", " ", "spa", "es"})
	want := []string{"en", "es"}
	if !slices.Equal(got, want) {
		t.Fatalf("NormalizeList = %v, want %v", got, want)
	}
	if NormalizeList(nil) != nil {
		t.Fatal("expected nil for empty input")
	}
}

func TestPickCaption(t *testing.T) {
	tests := []struct {
		name      string
		available []string
		preferred []string
		want      string
	}{
		{"exact tag wins", []string{"en-US", "en"}, []string{"en"}, "en"},
		{"regional fallback", []string{"fr", "en-GB"}, []string{"en"}, "en-GB"},
		{"preference order", []string{"fr", "es"}, []string{"es", "fr"}, "es"},
		{"no match", []string{"ja"}, []string{"en"}, ""},
		{"nothing offered", nil, []string{"en"}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := PickCaption(tt.available, tt.preferred); got != tt.want {
				t.Errorf("PickCaption = %q, want %q", got, tt.want)
			}
		})
	}
}
