package archive

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/couchcryptid/spc-outlook-etl/internal/domain"
)

// FSStore keeps archives on disk as
// <root>/<date>_day<d>_<type>/raw_data_day<d>_<date>.zip, with a JSON
// sidecar recording the negotiated variant and fetch time. Files are
// written to a temporary name and renamed into place.
type FSStore struct {
	root string
}

// NewFSStore creates a store rooted at dir.
func NewFSStore(dir string) *FSStore {
	return &FSStore{root: dir}
}

type fsMeta struct {
	Variant   string    `json:"variant"`
	FetchedAt time.Time `json:"fetched_at"`
}

// Dir returns the directory holding a key's archive and extracted output.
func (s *FSStore) Dir(key domain.ArchiveKey) string {
	return filepath.Join(s.root, key.String())
}

// Path returns the archive file path for a key.
func (s *FSStore) Path(key domain.ArchiveKey) string {
	return filepath.Join(s.Dir(key), fmt.Sprintf("raw_data_day%d_%s.zip", key.Day, key.DateString()))
}

func (s *FSStore) metaPath(key domain.ArchiveKey) string {
	return filepath.Join(s.Dir(key), fmt.Sprintf("raw_data_day%d_%s.json", key.Day, key.DateString()))
}

// Get reads a stored archive.
func (s *FSStore) Get(_ context.Context, key domain.ArchiveKey) (domain.Archive, error) {
	data, err := os.ReadFile(s.Path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return domain.Archive{}, ErrNotFound
	}
	if err != nil {
		return domain.Archive{}, fmt.Errorf("read archive %s: %w", key, err)
	}

	a := domain.Archive{Key: key, Data: data}
	raw, err := os.ReadFile(s.metaPath(key))
	switch {
	case err == nil:
		var meta fsMeta
		if err := json.Unmarshal(raw, &meta); err != nil {
			return domain.Archive{}, fmt.Errorf("decode archive metadata %s: %w", key, err)
		}
		a.Variant, a.FetchedAt = meta.Variant, meta.FetchedAt
	case errors.Is(err, fs.ErrNotExist):
		// Archives placed by hand have no sidecar.
		if info, statErr := os.Stat(s.Path(key)); statErr == nil {
			a.FetchedAt = info.ModTime().UTC()
		}
	default:
		return domain.Archive{}, fmt.Errorf("read archive metadata %s: %w", key, err)
	}
	return a, nil
}

// Put writes the sidecar and then the archive, each atomically.
func (s *FSStore) Put(_ context.Context, a domain.Archive) error {
	if err := os.MkdirAll(s.Dir(a.Key), 0o755); err != nil {
		return fmt.Errorf("create archive dir: %w", err)
	}

	meta, err := json.Marshal(fsMeta{Variant: a.Variant, FetchedAt: a.FetchedAt})
	if err != nil {
		return fmt.Errorf("encode archive metadata: %w", err)
	}
	if err := writeAtomic(s.metaPath(a.Key), meta); err != nil {
		return err
	}
	return writeAtomic(s.Path(a.Key), a.Data)
}

func writeAtomic(path string, data []byte) (err error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+"-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer func() {
		if err != nil {
			os.Remove(tmp.Name())
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	if err = tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync %s: %w", filepath.Base(path), err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", filepath.Base(path), err)
	}
	if err = os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("publish %s: %w", filepath.Base(path), err)
	}
	return nil
}
