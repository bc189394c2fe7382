// Package catalog provides scene sources for the analysis pipeline: an
// in-memory source for embedding and tests, and a JSON file source for
// offline catalogs.
package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/minewatch/minewatch/internal/types"
)

// Source lists candidate scenes for an area of interest.
type Source interface {
	Scenes(ctx context.Context) ([]types.SceneRecord, error)
}

// Memory is a fixed in-memory scene source.
type Memory struct {
	scenes []types.SceneRecord
}

// NewMemory creates a Memory source holding a copy of scenes.
func NewMemory(scenes ...types.SceneRecord) *Memory {
	return &Memory{scenes: append([]types.SceneRecord(nil), scenes...)}
}

// Scenes returns a copy of the stored records.
func (m *Memory) Scenes(ctx context.Context) ([]types.SceneRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return append([]types.SceneRecord(nil), m.scenes...), nil
}

// File reads scene records from a JSON array on disk. The file is re-read on
// every call so catalog refreshes need no restart.
type File struct {
	path string
}

// NewFile creates a File source for path.
func NewFile(path string) *File {
	return &File{path: path}
}

// Scenes loads and parses the catalog file.
func (f *File) Scenes(ctx context.Context) ([]types.SceneRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(f.path)
	if err != nil {
		return nil, fmt.Errorf("reading catalog %s: %w", f.path, err)
	}
	var scenes []types.SceneRecord
	if err := json.Unmarshal(data, &scenes); err != nil {
		return nil, fmt.Errorf("parsing catalog %s: %w", f.path, err)
	}
	return scenes, nil
}
