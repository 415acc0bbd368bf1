package version

import "testing"

func TestString(t *testing.T) {
	restore := func(v, c, d string) {
		Version, Commit, Date = v, c, d
	}
	defer restore(Version, Commit, Date)

	restore("dev", "none", "unknown")
	if got := String(); got != "dev" {
		t.Fatalf("dev build = %q", got)
	}

	restore("v0.3.0", "abc1234", "2026-08-29")
	if got := String(); got != "v0.3.0 commit=abc1234 date=2026-08-29" {
		t.Fatalf("release build = %q", got)
	}

	restore("", "none", "unknown")
	if got := String(); got != "dev" {
		t.Fatalf("empty version = %q", got)
	}
}
