package semver

import (
	"errors"
	"testing"
)

func mustVersion(t *testing.T, s string) Version {
	t.Helper()
	v, err := ParseVersion(s)
	if err != nil {
		t.Fatalf("parse version %q: %v", s, err)
	}
	return v
}

func mustReq(t *testing.T, s string) Req {
	t.Helper()
	r, err := ParseReq(s)
	if err != nil {
		t.Fatalf("parse req %q: %v", s, err)
	}
	return r
}

func TestParseVersion(t *testing.T) {
	v := mustVersion(t, "0.7.0")
	if v.Major != 0 || v.Minor != 7 || v.Patch != 0 {
		t.Fatalf("unexpected components: %+v", v)
	}

	v = mustVersion(t, "1.2.3-alpha.1+build.9")
	if v.Pre != "alpha.1" || v.Build != "build.9" {
		t.Fatalf("unexpected pre/build: %+v", v)
	}
	if v.String() != "1.2.3-alpha.1+build.9" {
		t.Fatalf("round trip mismatch: %q", v.String())
	}
}

func TestParseVersionRejectsPartials(t *testing.T) {
	for _, s := range []string{"", "1", "1.2", "1.2.3.4", "01.0.0", "1.a.0"} {
		if _, err := ParseVersion(s); err == nil {
			t.Fatalf("expected error for %q", s)
		}
	}
	if _, err := ParseVersion(""); !errors.Is(err, ErrEmptyVersion) {
		t.Fatalf("expected ErrEmptyVersion, got %v", err)
	}
}

func TestVersionCompare(t *testing.T) {
	cases := []struct {
		a, b string
		want int
	}{
		{"0.7.0", "0.7.0", 0},
		{"0.7.0", "0.7.1", -1},
		{"0.8.0", "0.7.9", 1},
		{"1.0.0-alpha", "1.0.0", -1},
		{"1.0.0-alpha.1", "1.0.0-alpha.2", -1},
		{"1.0.0-alpha.beta", "1.0.0-alpha.1", 1},
		{"1.0.0-alpha", "1.0.0-alpha.1", -1},
		{"1.0.0+a", "1.0.0+b", 0},
	}
	for _, tc := range cases {
		a, b := mustVersion(t, tc.a), mustVersion(t, tc.b)
		if got := a.Compare(b); got != tc.want {
			t.Fatalf("%s <=> %s: got %d want %d", tc.a, tc.b, got, tc.want)
		}
	}
}

func TestReqCaretDefault(t *testing.T) {
	cases := []struct {
		req, v string
		want   bool
	}{
		// bare requirement is a caret requirement
		{"0.7.0", "0.7.0", true},
		{"0.7.0", "0.7.9", true},
		{"0.7.0", "0.8.0", false},
		{"0.7.0", "0.6.9", false},
		{"1.2.3", "1.9.0", true},
		{"1.2.3", "2.0.0", false},
		// zero-major caret pins the left-most non-zero component
		{"^0.0.3", "0.0.3", true},
		{"^0.0.3", "0.0.4", false},
		{"^0.2", "0.2.7", true},
		{"^0.2", "0.3.0", false},
		{"^1", "1.9.9", true},
		{"^1", "2.0.0", false},
		{"^0", "0.9.0", true},
		{"^0", "1.0.0", false},
	}
	for _, tc := range cases {
		if got := mustReq(t, tc.req).Matches(mustVersion(t, tc.v)); got != tc.want {
			t.Fatalf("%q matches %q: got %v want %v", tc.req, tc.v, got, tc.want)
		}
	}
}

func TestReqOperators(t *testing.T) {
	cases := []struct {
		req, v string
		want   bool
	}{
		{"~1.2.3", "1.2.9", true},
		{"~1.2.3", "1.3.0", false},
		{"~1.2", "1.2.0", true},
		{"~1.2", "1.3.0", false},
		{"~1", "1.9.0", true},
		{"~1", "2.0.0", false},
		{"=0.7.0", "0.7.0", true},
		{"=0.7.0", "0.7.1", false},
		{"=1.2", "1.2.9", true},
		{"=1.2", "1.3.0", false},
		{">=0.4, <0.6", "0.5.2", true},
		{">=0.4, <0.6", "0.6.0", false},
		{">1.2", "1.3.0", true},
		{">1.2", "1.2.9", false},
		{"<=2", "2.9.9", true},
		{"<2", "2.0.0", false},
		{"*", "9.9.9", true},
		{"1.*", "1.4.0", true},
		{"1.*", "2.0.0", false},
		{"1.2.*", "1.2.7", true},
		{"1.2.*", "1.3.0", false},
	}
	for _, tc := range cases {
		if got := mustReq(t, tc.req).Matches(mustVersion(t, tc.v)); got != tc.want {
			t.Fatalf("%q matches %q: got %v want %v", tc.req, tc.v, got, tc.want)
		}
	}
}

func TestReqBareWildcardMatchesAnyMajor(t *testing.T) {
	// a versionless dependency falls back to "*", which must admit
	// every release regardless of major
	for _, s := range []string{"0.0.1", "0.9.0", "1.2.3", "9.9.9"} {
		if !mustReq(t, "*").Matches(mustVersion(t, s)) {
			t.Fatalf("* did not match %s", s)
		}
	}
}

func TestReqIntersects(t *testing.T) {
	cases := []struct {
		a, b string
		want bool
	}{
		// differently spelled caret ranges over the same versions
		{"1.0", "1.0.0", true},
		{"1", "1.5", true},
		{">=1, <2", ">=1.5", true},
		{"=1.2.3", "1", true},
		{"*", "3.1.0", true},
		{"0.4", "0.5", false},
		{"<0.5", "0.7", false},
		{"~1.2", "1.3.0", false},
	}
	for _, tc := range cases {
		a, b := mustReq(t, tc.a), mustReq(t, tc.b)
		if got := a.Intersects(b); got != tc.want {
			t.Fatalf("%q intersects %q: got %v want %v", tc.a, tc.b, got, tc.want)
		}
		if got := b.Intersects(a); got != tc.want {
			t.Fatalf("%q intersects %q: got %v want %v", tc.b, tc.a, got, tc.want)
		}
	}
}

func TestReqPreReleaseGate(t *testing.T) {
	// a pre-release only matches when the requirement names a
	// pre-release on the same triple
	if mustReq(t, "^1.0.0").Matches(mustVersion(t, "1.1.0-alpha")) {
		t.Fatalf("pre-release matched a release requirement")
	}
	if !mustReq(t, "^1.1.0-alpha").Matches(mustVersion(t, "1.1.0-beta")) {
		t.Fatalf("pre-release rejected despite pre-release requirement on same triple")
	}
	if mustReq(t, "^1.1.0-alpha").Matches(mustVersion(t, "1.2.0-alpha")) {
		t.Fatalf("pre-release on a different triple matched")
	}
}

func TestParseReqRejectsMalformed(t *testing.T) {
	for _, s := range []string{"", "  ", "^*", ">=1.x", "*.2.3", "abc", "1.2.3,"} {
		if _, err := ParseReq(s); err == nil {
			t.Fatalf("expected error for %q", s)
		}
	}
	if _, err := ParseReq(""); !errors.Is(err, ErrEmptyRequirement) {
		t.Fatalf("expected ErrEmptyRequirement, got %v", err)
	}
}
