package language

import (
	"testing"
)

func TestCanonical(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"en", "en"},
		{"EN", "en"},
		{" es ", "es"},
		{"fre", "fr"},
		{"ger", "de"},
		{"english", "en"},
		{"French", "fr"},
		{"pt_br", "pt-BR"},
		{"en-us", "en-US"},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			result, err := Canonical(tt.input)
			if err != nil {
				t.Fatalf("Canonical(%q) failed: %v", tt.input, err)
			}
			if result != tt.expected {
				t.Errorf("Canonical(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}

func TestCanonicalRejectsInvalid(t *testing.T) {
	for _, input := range []string{"", "  ", "not a language", "12", "und"} {
		if _, err := Canonical(input); err == nil {
			t.Errorf("Canonical(%q) expected error", input)
		}
	}
}

func TestToISO2(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"en", "en"},
		{"en-GB", "en"},
		{"chinese", "zh"},
		{"dut", "nl"},
		{"", ""},
		{"bogus tag!", ""},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if result := ToISO2(tt.input); result != tt.expected {
				t.Errorf("ToISO2(%q) = %q, want %q", tt.input, result, tt.expected)
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
		{"ger", "German"},
		{"ja", "Japanese"},
		{"", "Unknown"},
		{"bogus tag!", "BOGUS TAG!"},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if result := DisplayName(tt.input); result != tt.expected {
				t.Errorf("DisplayName(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}
