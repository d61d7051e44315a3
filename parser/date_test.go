package parser

import (
	"testing"
	"time"
)

func TestExtractDate(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected time.Time
		wantErr  bool
	}{
		{
			name:     "plain date",
			input:    "3.5.2024",
			expected: time.Date(2024, 5, 3, 0, 0, 0, 0, time.UTC),
		},
		{
			name:     "date embedded in text",
			input:    "Nächste Abholung: 17.06.2024 (Montag)",
			expected: time.Date(2024, 6, 17, 0, 0, 0, 0, time.UTC),
		},
		{
			name:     "impossible date skipped",
			input:    "31.02.2024 oder 01.03.2024",
			expected: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		},
		{
			name:     "first of several",
			input:    "12.01.2024, 26.01.2024",
			expected: time.Date(2024, 1, 12, 0, 0, 0, 0, time.UTC),
		},
		{
			name:    "no date",
			input:   "keine Abholung",
			wantErr: true,
		},
		{
			name:    "only impossible dates",
			input:   "31.02.2024",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExtractDate(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ExtractDate(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if !tt.wantErr && !got.Equal(tt.expected) {
				t.Errorf("ExtractDate(%q) = %v, want %v", tt.input, got, tt.expected)
			}
		})
	}
}
