package pathfilter

import "testing"

func TestFilter_NoRules(t *testing.T) {
	f, err := New()
	if err != nil {
		t.Fatal(err)
	}
	if !f.Allow("anything/goes.go") {
		t.Error("expected empty filter to allow everything")
	}
}

func TestFilter_ExcludeOnly(t *testing.T) {
	f, err := New(WithExclude("**/*.png", "vendor/**"))
	if err != nil {
		t.Fatal(err)
	}
	if f.Allow("assets/logo.png") {
		t.Error("expected .png to be excluded")
	}
	if f.Allow("vendor/lib/thing.go") {
		t.Error("expected vendor/** to be excluded")
	}
	if !f.Allow("pkg/main.go") {
		t.Error("expected non-matching path to be allowed")
	}
}

func TestFilter_IncludeOnly(t *testing.T) {
	f, err := New(WithInclude("**/*.go"))
	if err != nil {
		t.Fatal(err)
	}
	if !f.Allow("pkg/main.go") {
		t.Error("expected .go to be included")
	}
	if f.Allow("README.md") {
		t.Error("expected non-matching path to be excluded when include list is set")
	}
}

func TestFilter_ExcludeTakesPrecedence(t *testing.T) {
	f, err := New(
		WithInclude("**/*.go"),
		WithExclude("**/generated/**"),
	)
	if err != nil {
		t.Fatal(err)
	}
	if f.Allow("pkg/generated/thing.go") {
		t.Error("expected exclude to win over include")
	}
	if !f.Allow("pkg/main.go") {
		t.Error("expected included, non-excluded path to pass")
	}
}

func TestFilter_AmbiguousDefault(t *testing.T) {
	f, err := New(WithInclude("**/*.go"), WithExclude("**/*.md"))
	if err != nil {
		t.Fatal(err)
	}
	if f.Allow("notes.txt") {
		t.Error("expected default-deny for unmatched path")
	}

	f, err = New(WithInclude("**/*.go"), WithExclude("**/*.md"), WithDefaultAllow())
	if err != nil {
		t.Fatal(err)
	}
	if !f.Allow("notes.txt") {
		t.Error("expected default-allow for unmatched path when configured")
	}
}

func TestFilter_InvalidGlob(t *testing.T) {
	if _, err := New(WithExclude("[")); err == nil {
		t.Error("expected error for invalid glob pattern")
	}
}
