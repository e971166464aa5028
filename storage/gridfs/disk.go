package gridfs

import (
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/dienlabs/eduportal/core/blob"
)

// DiskStore keeps blobs on the local filesystem when GridFS is down.
// Saved files get a random name and are referenced by their public URL
// path so documents stay servable across a store outage.
type DiskStore struct {
	dir     string
	baseURL string
}

var _ blob.FallbackStore = (*DiskStore)(nil)

func NewDiskStore(dir, baseURL string) (*DiskStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrap(err, "creating uploads dir")
	}
	return &DiskStore{dir: dir, baseURL: strings.TrimRight(baseURL, "/")}, nil
}

func (s *DiskStore) Save(data []byte, filename string) (string, error) {
	name := uuid.New().String() + filepath.Ext(filename)
	if err := os.WriteFile(filepath.Join(s.dir, name), data, 0o644); err != nil {
		return "", errors.Wrap(err, "writing fallback blob")
	}
	return path.Join(s.baseURL, name), nil
}

func (s *DiskStore) Remove(p string) error {
	name := filepath.Base(p)
	if err := os.Remove(filepath.Join(s.dir, name)); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return errors.Wrap(err, "removing fallback blob")
	}
	return nil
}
