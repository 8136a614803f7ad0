package scanerr

import (
	"errors"
	"testing"
)

func TestError_FormatsCodeAndMessage(t *testing.T) {
	err := New(UnsupportedURL, "host must be github.com or gitlab.com", nil)
	if got, want := err.Error(), "unsupported-url: host must be github.com or gitlab.com"; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestWrap_PreservesCause(t *testing.T) {
	cause := errors.New("dial tcp: connection refused")
	err := Wrap(NetworkError, cause, "cloning repository", nil)
	if !errors.Is(err, cause) {
		t.Error("expected Unwrap chain to reach the original cause")
	}
}

func TestIs_MatchesCode(t *testing.T) {
	err := New(RepositoryTooLarge, "working tree exceeds per-repo-size", map[string]any{"limit": "500 MiB"})
	if !Is(err, RepositoryTooLarge) {
		t.Error("expected Is to match the error's own code")
	}
	if Is(err, RepositoryNotFound) {
		t.Error("expected Is to reject a non-matching code")
	}
}

func TestIs_NonScanerrError(t *testing.T) {
	if Is(errors.New("plain error"), NetworkError) {
		t.Error("expected Is to return false for a non-*Error")
	}
}
