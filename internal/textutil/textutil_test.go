package textutil

import (
	"reflect"
	"testing"
)

func TestTokenize(t *testing.T) {
	tests := []struct {
		input string
		want  []string
	}{
		{"John lives in Paris.", []string{"John", "lives", "in", "Paris", "."}},
		{"user_name", []string{"user_name"}},
		{"", nil},
		{"  spaces  ", []string{"spaces"}},
		{"café résumé", []string{"café", "résumé"}},
		{"hello-world", []string{"hello", "-", "world"}},
	}
	for _, tt := range tests {
		got := Tokenize(tt.input)
		if !reflect.DeepEqual(got, tt.want) {
			t.Errorf("Tokenize(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestNormalizeWhitespaces(t *testing.T) {
	if got := NormalizeWhitespaces("a\nb   c"); got != "a b c" {
		t.Errorf("NormalizeWhitespaces = %q", got)
	}
}

func TestLower(t *testing.T) {
	tests := map[string]string{
		"Paris":  "paris",
		"ÉCOLE":  "école",
		"ABC123": "abc123",
	}
	for in, want := range tests {
		if got := Lower(in); got != want {
			t.Errorf("Lower(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestEnrich(t *testing.T) {
	tests := []struct {
		token string
		want  [EnrichDim]float64
	}{
		{"ABC123", [EnrichDim]float64{1, 0, 0, 0, 0, 0, 1}},
		{"Paris", [EnrichDim]float64{1, 0, 1, 0, 0, 1, 1}},
		{"2024", [EnrichDim]float64{1, 1, 0, 1, 0, 0, 1}},
		{"lives", [EnrichDim]float64{1, 0, 1, 0, 1, 0, 1}},
		{".", [EnrichDim]float64{0, 0, 0, 0, 0, 0, 1}},
		{"Zürich", [EnrichDim]float64{1, 0, 1, 0, 0, 1, 0}},
		{"New-York", [EnrichDim]float64{0, 0, 0, 0, 0, 1, 1}},
		{"", [EnrichDim]float64{0, 0, 0, 0, 0, 0, 1}},
	}
	for _, tt := range tests {
		if got := Enrich(tt.token); got != tt.want {
			t.Errorf("Enrich(%q) = %v, want %v", tt.token, got, tt.want)
		}
	}
}

func TestIsTitle(t *testing.T) {
	tests := map[string]bool{
		"Hello World": true,
		"HELLO":       false,
		"hello":       false,
		"He11o":       false,
		"O'Neil":      true,
		"123":         false,
	}
	for in, want := range tests {
		if got := IsTitle(in); got != want {
			t.Errorf("IsTitle(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestIsBlank(t *testing.T) {
	if !IsBlank(" \t") || !IsBlank("") || IsBlank("a") {
		t.Error("IsBlank misclassified input")
	}
}

func TestIsDigit(t *testing.T) {
	tests := []struct {
		s    string
		want bool
	}{
		{"123", true},
		{"٣", true},
		{"²", true},
		{"x²", false},
		{"①₂", true},
		{"½", false},
		{"1.5", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := IsDigit(tt.s); got != tt.want {
			t.Errorf("IsDigit(%q) = %v, want %v", tt.s, got, tt.want)
		}
	}
}
