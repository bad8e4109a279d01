package logger

import "testing"

func TestRedactEmail(t *testing.T) {
	tests := []struct {
		name  string
		email string
		want  string
	}{
		{"normal address", "jane.doe@example.com", "ja***@example.com"},
		{"two char local part", "ab@example.com", "***@example.com"},
		{"one char local part", "a@example.com", "***@example.com"},
		{"not an address", "not-an-email", "***@***"},
		{"double at", "a@b@example.com", "***@***"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := RedactEmail(tt.email); got != tt.want {
				t.Errorf("RedactEmail(%q) = %q, want %q", tt.email, got, tt.want)
			}
		})
	}
}
