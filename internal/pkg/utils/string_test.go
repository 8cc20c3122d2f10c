package utils

import "testing"

func TestTruncate(t *testing.T) {
	tests := []struct {
		in   string
		max  int
		want string
	}{
		{"short", 10, "short"},
		{"abcdef", 3, "abc..."},
		{"привет", 3, "п..."},
	}
	for _, tt := range tests {
		if got := Truncate(tt.in, tt.max); got != tt.want {
			t.Errorf("Truncate(%q, %d) = %q, want %q", tt.in, tt.max, got, tt.want)
		}
	}
}

func TestRandomID(t *testing.T) {
	for i := 0; i < 100; i++ {
		if id := RandomID(); id <= 0 {
			t.Fatalf("RandomID() = %d", id)
		}
	}
}
