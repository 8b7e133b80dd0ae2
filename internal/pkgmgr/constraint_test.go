package pkgmgr

import "testing"

func TestConstraintAllows(t *testing.T) {
	cases := []struct {
		req       string
		candidate string
		want      bool
	}{
		{"^1.2.3", "1.2.3", true},
		{"^1.2.3", "1.9.0", true},
		{"^1.2.3", "2.0.0", false},
		{"^1.2.3", "1.2.2", false},
		{"^0.2.3", "0.2.9", true},
		{"^0.2.3", "0.3.0", false},
		{"^0.0.3", "0.0.3", true},
		{"^0.0.3", "0.0.4", false},
		{"~1.2.3", "1.2.9", true},
		{"~1.2.3", "1.3.0", false},
		{"=1.2.3", "1.2.3", true},
		{"=1.2.3", "1.2.4", false},
		{"1.2.3", "1.4.0", true}, // bare requirement defaults to ^
	}
	for _, tc := range cases {
		c, err := ParseConstraint(tc.req)
		if err != nil {
			t.Fatalf("ParseConstraint(%q): %v", tc.req, err)
		}
		if got := c.Allows(tc.candidate); got != tc.want {
			t.Errorf("Constraint(%q).Allows(%q) = %v, want %v", tc.req, tc.candidate, got, tc.want)
		}
	}
}

func TestParseConstraintRejectsEmpty(t *testing.T) {
	if _, err := ParseConstraint(""); err == nil {
		t.Fatal("expected an error for an empty requirement")
	}
}

func TestParseConstraintRejectsMalformedVersion(t *testing.T) {
	if _, err := ParseConstraint("^not-a-version"); err == nil {
		t.Fatal("expected an error for a malformed version")
	}
}
