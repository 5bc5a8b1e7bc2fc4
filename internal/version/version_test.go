package version

import (
	"strings"
	"testing"
)

func TestVersionDefault(t *testing.T) {
	if Version != "dev" {
		t.Fatalf("expected default Version to be %q, got %q", "dev", Version)
	}
	if Resolved() == "" {
		t.Fatal("Resolved must not be empty")
	}
}

func TestResolvedPrefersLdflags(t *testing.T) {
	old := Version
	t.Cleanup(func() { Version = old })
	Version = "v1.4.0"
	if got := Resolved(); got != "v1.4.0" {
		t.Fatalf("Resolved() = %q", got)
	}
}

func TestString(t *testing.T) {
	oldV, oldC := Version, Commit
	t.Cleanup(func() { Version, Commit = oldV, oldC })
	Version, Commit = "v2.0.0", "abc1234"
	got := String()
	if !strings.HasPrefix(got, "guardian v2.0.0 (abc1234) ") {
		t.Fatalf("String() = %q", got)
	}
}
