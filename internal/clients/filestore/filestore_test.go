package filestore

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestRead(t *testing.T) {
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "samples"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "samples", "caller.mp3"), []byte("ID3audio"), 0o644); err != nil {
		t.Fatal(err)
	}

	store := New(dir)

	data, err := store.Read(context.Background(), "samples/caller.mp3")
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if string(data) != "ID3audio" {
		t.Errorf("Read() = %q, want %q", data, "ID3audio")
	}
}

func TestRead_RejectsEscapingPaths(t *testing.T) {
	store := New(t.TempDir())

	for _, location := range []string{"../etc/passwd", "/etc/passwd"} {
		if _, err := store.Read(context.Background(), location); err == nil {
			t.Errorf("Read(%q) expected error, got nil", location)
		}
	}
}

func TestRead_MissingFile(t *testing.T) {
	store := New(t.TempDir())

	if _, err := store.Read(context.Background(), "samples/missing.mp3"); err == nil {
		t.Error("expected error for missing file")
	}
}
