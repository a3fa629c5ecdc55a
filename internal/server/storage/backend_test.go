package storage

import (
	"regexp"
	"strings"
	"testing"
)

func TestNewKey_Shape(t *testing.T) {
	re := regexp.MustCompile(`^drive/[0-9a-f-]{36}\.jpg$`)

	key := NewKey("drive", ".jpg")
	if !re.MatchString(key) {
		t.Fatalf("unexpected key shape: %q", key)
	}

	if NewKey("drive", ".jpg") == key {
		t.Fatal("keys must be unique per call")
	}
}

func TestNewKey_NoPrefix(t *testing.T) {
	key := NewKey("", "")
	if strings.Contains(key, "/") {
		t.Fatalf("expected bare id, got %q", key)
	}
	if len(key) != 36 {
		t.Fatalf("expected uuid, got %q", key)
	}
}
