package testutil

import "testing"

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		root string
		want string
	}{
		{"root", "Source: /tmp/x/.kmerge/config.json", "/tmp/x", "Source: <root>/.kmerge/config.json"},
		{"uuid", "run 3f2a9c1e-1b2c-4d5e-8f90-0123456789ab done", "", "run <uuid> done"},
		{"rfc3339", `"startedAt": "2024-01-02T03:04:05.123Z"`, "", `"startedAt": "<time>"`},
		{"rfc3339 offset", "at 2024-01-02T03:04:05+02:00", "", "at <time>"},
		{"datetime", "Created:  2024-01-02 03:04:05", "", "Created:  <time>"},
		{"separators", `a\b\c`, "", "a/b/c"},
		{"untouched", "1\n2\n3", "", "1\n2\n3"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Normalize(tt.in, tt.root); got != tt.want {
				t.Errorf("Normalize(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
