package util

import "testing"

func TestPtr(t *testing.T) {
	days := Ptr(30)
	if *days != 30 {
		t.Errorf("expected *days=30, got %d", *days)
	}

	prefix := Ptr("archive/")
	if *prefix != "archive/" {
		t.Errorf("expected *prefix=archive/, got %s", *prefix)
	}
}

func TestDeref(t *testing.T) {
	size := int64(512)
	if Deref(&size) != 512 {
		t.Error("expected Deref to return 512")
	}

	var days *int
	if Deref(days) != 0 {
		t.Error("expected Deref of nil to return zero value")
	}

	var prefix *string
	if Deref(prefix) != "" {
		t.Error("expected Deref of nil string pointer to return empty string")
	}
}

func TestCoalesce(t *testing.T) {
	if got := Coalesce("", "", "hello", "world"); got != "hello" {
		t.Errorf("Coalesce strings = %q, want %q", got, "hello")
	}
	if got := Coalesce(0, 0, 42); got != 42 {
		t.Errorf("Coalesce ints = %d, want 42", got)
	}
	if got := Coalesce("", ""); got != "" {
		t.Errorf("Coalesce all-zero = %q, want empty", got)
	}
}
