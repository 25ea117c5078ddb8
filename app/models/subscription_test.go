package models

import "testing"

func TestNormalizeEmail(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "User@Example.com", want: "user@example.com"},
		{in: "  user@example.com  ", want: "user@example.com"},
		{in: "USER@EXAMPLE.COM", want: "user@example.com"},
		{in: "user@example.com", want: "user@example.com"},
		{in: "", want: ""},
	}

	for _, tt := range tests {
		if got := NormalizeEmail(tt.in); got != tt.want {
			t.Fatalf("NormalizeEmail(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
