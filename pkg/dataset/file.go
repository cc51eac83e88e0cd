package dataset

import (
	"fmt"

	"github.com/Sternrassler/pokeapi-harvester/pkg/storage"
	"github.com/go-git/go-billy/v5"
)

// Write encodes ds and atomically replaces the file at path.
func Write(fs billy.Filesystem, path string, ds Dataset) error {
	data, err := Encode(ds)
	if err != nil {
		return err
	}
	if err := storage.WriteFileAtomic(fs, path, data); err != nil {
		return fmt.Errorf("write dataset: %w", err)
	}
	return nil
}

// Read loads a dataset previously written with Write.
func Read(fs billy.Filesystem, path string) (Dataset, error) {
	data, err := storage.ReadFile(fs, path)
	if err != nil {
		return nil, err
	}
	return Decode(data)
}
