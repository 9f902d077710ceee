package strategy

import "testing"

func TestClassify(t *testing.T) {
	tests := []struct {
		path string
		want Strategy
	}{
		{"/api/auth/login", Hybrid},
		{"/api/auth/refresh", Hybrid},
		{"/api/auth", Hybrid},
		{"/api/auth/session", Hybrid},
		{"/api/cases/42", Bearer},
		{"/api/firms/acme/documents", Bearer},
		{"/api/authz", Bearer}, // not under /api/auth/
		{"/dashboard", Session},
		{"/", Session},
		{"", Session},
		{"/login", Session},
		{"api/cases", Session}, // no leading slash, falls back
	}

	for _, tt := range tests {
		if got := Classify(tt.path); got != tt.want {
			t.Errorf("Classify(%q) = %q, want %q", tt.path, got, tt.want)
		}
	}
}

func TestClassifyIsStable(t *testing.T) {
	for i := 0; i < 3; i++ {
		if got := Classify("/api/cases/42"); got != Bearer {
			t.Fatalf("classification changed between calls: %q", got)
		}
	}
}
