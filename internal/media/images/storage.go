// Package images provides local storage for side-loaded cover and
// contributor images.
package images

import (
	"fmt"
	"os"
	"path/filepath"
)

// Storage keeps one image per entity id under a dedicated directory.
// Writes go through a temp file and rename so a crash mid-download never
// leaves a truncated image behind.
type Storage struct {
	dir string
}

// NewStorage creates a Storage rooted at {basePath}/{subdir}/.
// Example: NewStorage("/data/images", "covers") -> /data/images/covers/.
func NewStorage(basePath, subdir string) (*Storage, error) {
	if basePath == "" || subdir == "" {
		return nil, fmt.Errorf("image storage path incomplete: base %q, subdir %q", basePath, subdir)
	}

	dir := filepath.Join(basePath, subdir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create image directory %s: %w", dir, err)
	}

	return &Storage{dir: dir}, nil
}

// Save stores image data for an entity, replacing any existing image.
func (s *Storage) Save(id string, data []byte) error {
	if id == "" {
		return fmt.Errorf("image id is empty")
	}
	if len(data) == 0 {
		return fmt.Errorf("image data is empty")
	}

	tmp, err := os.CreateTemp(s.dir, "img-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp image: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write image: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("close image: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.Path(id)); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("store image for %s: %w", id, err)
	}
	return nil
}

// Get retrieves the stored image for an entity.
func (s *Storage) Get(id string) ([]byte, error) {
	if id == "" {
		return nil, fmt.Errorf("image id is empty")
	}

	data, err := os.ReadFile(s.Path(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("no image stored for %s: %w", id, err)
		}
		return nil, fmt.Errorf("read image for %s: %w", id, err)
	}
	return data, nil
}

// Exists reports whether an image is stored for the entity.
func (s *Storage) Exists(id string) bool {
	if id == "" {
		return false
	}
	_, err := os.Stat(s.Path(id))
	return err == nil
}

// Delete removes the image for an entity. Missing images are not an error.
func (s *Storage) Delete(id string) error {
	if id == "" {
		return fmt.Errorf("image id is empty")
	}
	if err := os.Remove(s.Path(id)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete image for %s: %w", id, err)
	}
	return nil
}

// Path returns the filesystem path for an entity's image.
func (s *Storage) Path(id string) string {
	return filepath.Join(s.dir, id+".jpg")
}
