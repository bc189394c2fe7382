// Package bandstore resolves scene URIs and band names to local imagery
// files.
package bandstore

import (
	"fmt"
	"os"
	"path/filepath"
)

// Store maps a scene and band to a readable raster path.
type Store interface {
	Resolve(sceneURI, band string) (string, error)
}

// NotFoundError reports a band file that is not present in the store.
type NotFoundError struct {
	SceneURI string
	Band     string
	Path     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("band %s of scene %s not found at %s", e.Band, e.SceneURI, e.Path)
}

// DirStore resolves bands against a flat directory laid out as
// <dir>/<sceneURI>_<band>.tif.
type DirStore struct {
	dir string
}

// NewDirStore creates a DirStore rooted at dir.
func NewDirStore(dir string) *DirStore {
	return &DirStore{dir: dir}
}

// Resolve returns the path for the scene's band, or a NotFoundError when the
// file is absent.
func (s *DirStore) Resolve(sceneURI, band string) (string, error) {
	path := filepath.Join(s.dir, fmt.Sprintf("%s_%s.tif", sceneURI, band))
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return "", &NotFoundError{SceneURI: sceneURI, Band: band, Path: path}
		}
		return "", fmt.Errorf("checking %s: %w", path, err)
	}
	return path, nil
}
