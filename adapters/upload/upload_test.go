package upload_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/victorteokw/docmap/adapters/upload"
)

func newLocal(t *testing.T) *upload.Local {
	t.Helper()
	l, err := upload.NewLocal(t.TempDir(), "http://localhost:9080/uploads")
	if err != nil {
		t.Fatalf("new local: %v", err)
	}
	return l
}

func TestLocal_Put_WritesAndReturnsURL(t *testing.T) {
	l := newLocal(t)

	url, err := l.Put(context.Background(), "avatar-1.png", strings.NewReader("png-bytes"))
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if url != "http://localhost:9080/uploads/avatar-1.png" {
		t.Fatalf("url = %q", url)
	}

	data, err := os.ReadFile(filepath.Join(l.Dir(), "avatar-1.png"))
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if string(data) != "png-bytes" {
		t.Errorf("payload = %q", data)
	}
}

func TestLocal_Put_RejectsBadSlots(t *testing.T) {
	l := newLocal(t)

	for _, slot := range []string{"", "../escape", "a/b.png", ".hidden"} {
		if _, err := l.Put(context.Background(), slot, strings.NewReader("x")); err == nil {
			t.Errorf("slot %q accepted", slot)
		}
	}
}

func TestLocal_Owns(t *testing.T) {
	l := newLocal(t)

	cases := []struct {
		url  string
		want bool
	}{
		{"http://localhost:9080/uploads/avatar-1.png", true},
		{"http://localhost:9080/uploads/../etc/passwd", false},
		{"http://elsewhere.example.com/uploads/avatar-1.png", false},
		{"http://localhost:9080/other/avatar-1.png", false},
		{"", false},
	}
	for _, tc := range cases {
		if got := l.Owns(tc.url); got != tc.want {
			t.Errorf("Owns(%q) = %v, want %v", tc.url, got, tc.want)
		}
	}
}
