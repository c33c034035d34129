package helper

import (
	"bytes"
	"strings"
	"testing"
)

func TestChunkIDDeterministic(t *testing.T) {
	a := ChunkID("docs/a.pdf", 1, 0)
	b := ChunkID("docs/a.pdf", 1, 0)
	if a != b {
		t.Errorf("expected stable id, got %s and %s", a, b)
	}
	if a == ChunkID("docs/a.pdf", 1, 1) {
		t.Error("expected different ids for different chunk positions")
	}
	if a == ChunkID("docs/a.pdf", 2, 0) {
		t.Error("expected different ids for different pages")
	}
}

func TestPrettyPrint(t *testing.T) {
	var buf bytes.Buffer
	PrettyPrint(&buf, map[string]int{"chunks": 3})
	if !strings.Contains(buf.String(), `"chunks": 3`) {
		t.Errorf("unexpected output %q", buf.String())
	}
}

func TestCreateFolder(t *testing.T) {
	dir := t.TempDir() + "/a/b/c"
	if err := CreateFolder(dir); err != nil {
		t.Fatal(err)
	}
	if err := CreateFolder(dir); err != nil {
		t.Errorf("expected idempotent create, got %v", err)
	}
}
