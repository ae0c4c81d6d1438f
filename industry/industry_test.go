package industry

import "testing"

func TestResolve(t *testing.T) {
	tests := []struct {
		phrase string
		want   string
	}{
		{"cleantech", "cleantech"},
		{"CleanTech", "cleantech"},
		{"  ict  ", "ICT"},
		{"Life-Sciences", "Life-Sciences"},
		{"health", "healthcare IT"},
		{"Health Care", "healthcare IT"},
		{"fintech", "ICT (fintech)"},
		{"micro/nano", "micro / nano"},
		{"medical", "medtech"},
		{"bio", "biotech"},
		// substring: first key in declaration order wins
		{"clean energy", "cleantech"},
		{"digital health startups", "healthcare IT"},
		{"biotechnology", "ICT"},
		{"life sciences companies", "Life-Sciences"},
		// fallback keeps the phrase as written
		{"totally-unknown-xyz", "totally-unknown-xyz"},
		{"Aerospace", "Aerospace"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := Resolve(tt.phrase); got != tt.want {
			t.Errorf("Resolve(%q) = %q, want %q", tt.phrase, got, tt.want)
		}
	}
}

func TestResolveIsStable(t *testing.T) {
	for _, c := range Canonical() {
		if got := Resolve(c); got != c {
			t.Errorf("canonical %q resolved to %q", c, got)
		}
	}
}

func TestIsCanonical(t *testing.T) {
	if !IsCanonical("ICT (fintech)") {
		t.Error("ICT (fintech) should be canonical")
	}
	if IsCanonical("ict") {
		t.Error("lower-case ict is an alias, not a canonical label")
	}
}

func TestResolverExtraAliases(t *testing.T) {
	r := NewResolver(map[string]string{
		"Robotics": "micro / nano",
		"medical":  "healthcare IT",
	})
	if got := r.Resolve("robotics"); got != "micro / nano" {
		t.Errorf("extra alias: got %q", got)
	}
	if got := r.Resolve("medical"); got != "healthcare IT" {
		t.Errorf("override: got %q", got)
	}
	if got := r.Resolve("swiss robotics scene"); got != "micro / nano" {
		t.Errorf("extra substring: got %q", got)
	}
	if got := Resolve("robotics"); got != "robotics" {
		t.Errorf("package resolver must not see extras, got %q", got)
	}
}

func TestCanonicalReturnsCopy(t *testing.T) {
	c := Canonical()
	c[0] = "mutated"
	if Canonical()[0] != "cleantech" {
		t.Fatal("Canonical must return a copy")
	}
}
