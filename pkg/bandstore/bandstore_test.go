package bandstore

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestDirStore_Resolve(t *testing.T) {
	dir := t.TempDir()
	want := filepath.Join(dir, "S2A_T21LYH_B04.tif")
	if err := os.WriteFile(want, []byte("tif"), 0o644); err != nil {
		t.Fatal(err)
	}

	s := NewDirStore(dir)
	got, err := s.Resolve("S2A_T21LYH", "B04")
	if err != nil {
		t.Fatal(err)
	}
	if got != want {
		t.Errorf("path = %q, want %q", got, want)
	}
}

func TestDirStore_NotFound(t *testing.T) {
	s := NewDirStore(t.TempDir())
	_, err := s.Resolve("S2A_T21LYH", "B08")
	var nf *NotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("expected NotFoundError, got %v", err)
	}
	if nf.Band != "B08" || nf.SceneURI != "S2A_T21LYH" {
		t.Errorf("error fields = %+v", nf)
	}
}
