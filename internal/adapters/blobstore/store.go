// Package blobstore implements the content-addressed file store described
// in spec §4.2: an immutable, write-once object layout keyed by SHA-1 hash.
package blobstore

import (
	"io"
	"os"
	"path/filepath"
	"sync"

	"go.trai.ch/cellar/internal/core/domain"
	"go.trai.ch/cellar/internal/core/hashutil"
	"go.trai.ch/zerr"
)

const (
	dirPerm      = 0o750
	objectPerm   = 0o440 // read-only after write, per spec §4.2
	tempFilePerm = 0o600
)

// Store is a content-addressed blob store rooted at objects/<2-hex>/<38-hex>.
type Store struct {
	root string

	mu    sync.RWMutex
	known map[hashutil.Hash]struct{} // in-memory cache avoiding repeated stats
}

// NewStore creates (if needed) and opens a blob store rooted at root.
func NewStore(root string) (*Store, error) {
	clean := filepath.Clean(root)
	if err := os.MkdirAll(filepath.Join(clean, "objects"), dirPerm); err != nil {
		return nil, zerr.Wrap(err, "blobstore: create root")
	}
	return &Store{root: clean, known: make(map[hashutil.Hash]struct{})}, nil
}

func (s *Store) path(h hashutil.Hash) string {
	dir, rest := h.ShardPath()
	return filepath.Join(s.root, "objects", dir, rest)
}

func (s *Store) cached(h hashutil.Hash) bool {
	s.mu.RLock()
	_, ok := s.known[h]
	s.mu.RUnlock()
	return ok
}

func (s *Store) remember(h hashutil.Hash) {
	s.mu.Lock()
	s.known[h] = struct{}{}
	s.mu.Unlock()
}

// Has reports whether a blob for hash is present, consulting the in-memory
// cache before falling back to a stat.
func (s *Store) Has(h hashutil.Hash) bool {
	if s.cached(h) {
		return true
	}
	if _, err := os.Stat(s.path(h)); err == nil {
		s.remember(h)
		return true
	}
	return false
}

// StoreBytes idempotently writes b as the blob addressed by its own SHA-1
// hash, returning that hash. If the target already exists the call is a
// no-op (spec §4.2).
func (s *Store) StoreBytes(b []byte) (hashutil.Hash, error) {
	h := hashutil.HashBytes(b)
	if s.Has(h) {
		return h, nil
	}
	if err := s.writeTempThenRename(h, func(tmp string) error {
		//nolint:gosec // store is the cellar's own data directory
		return os.WriteFile(tmp, b, tempFilePerm)
	}); err != nil {
		return "", err
	}
	return h, nil
}

// StorePath idempotently ingests the file at srcPath as a blob. When move is
// true, the source is renamed into place (preferred per spec §4.2); the
// caller is responsible for passing move=true only when it owns srcPath
// exclusively.
func (s *Store) StorePath(srcPath string, move bool) (hashutil.Hash, error) {
	//nolint:gosec // path comes from the caller's own sandbox listing
	data, err := os.ReadFile(srcPath)
	if err != nil {
		return "", zerr.With(zerr.Wrap(err, "blobstore: read source"), "path", srcPath)
	}
	h := hashutil.HashBytes(data)

	if s.Has(h) {
		if move {
			_ = os.Remove(srcPath)
		}
		return h, nil
	}

	if move {
		if err := s.writeTempThenRename(h, func(tmp string) error {
			return os.Rename(srcPath, tmp)
		}); err != nil {
			// Cross-device rename failure: fall back to copy.
			if err2 := s.writeTempThenRename(h, func(tmp string) error {
				return copyFile(srcPath, tmp)
			}); err2 != nil {
				return "", err2
			}
			return h, nil
		}
		return h, nil
	}

	if err := s.writeTempThenRename(h, func(tmp string) error {
		return copyFile(srcPath, tmp)
	}); err != nil {
		return "", err
	}
	return h, nil
}

func (s *Store) writeTempThenRename(h hashutil.Hash, write func(tmp string) error) error {
	dst := s.path(h)
	if err := os.MkdirAll(filepath.Dir(dst), dirPerm); err != nil {
		return zerr.Wrap(err, "blobstore: mkdir shard")
	}

	// A unique temp name per call, so concurrent writers of the same
	// content never write into one another's temp file.
	f, err := os.CreateTemp(filepath.Dir(dst), filepath.Base(dst)+".*.tmp")
	if err != nil {
		return zerr.Wrap(err, "blobstore: create temp")
	}
	tmp := f.Name()
	_ = f.Close()
	if err := write(tmp); err != nil {
		return zerr.With(zerr.Wrap(err, "blobstore: write temp"), "hash", h.String())
	}
	if err := os.Chmod(tmp, objectPerm); err != nil {
		return zerr.Wrap(err, "blobstore: chmod")
	}
	if err := os.Rename(tmp, dst); err != nil {
		// Another writer raced us to the same content address: the bytes
		// are identical by definition (same hash), so this is harmless.
		if os.IsExist(err) || s.Has(h) {
			_ = os.Remove(tmp)
			s.remember(h)
			return nil
		}
		return zerr.Wrap(err, "blobstore: rename into place")
	}
	s.remember(h)
	return nil
}

// Get opens the blob addressed by h for reading, verifying its content
// matches the address (spec §7 HashMismatch) before returning.
func (s *Store) Get(h hashutil.Hash) (io.ReadCloser, error) {
	if !s.Has(h) {
		return nil, zerr.With(domain.ErrBlobNotFound, "hash", h.String())
	}
	if err := s.VerifyContent(h); err != nil {
		return nil, err
	}
	//nolint:gosec // path is derived from a validated Hash
	f, err := os.Open(s.path(h))
	if err != nil {
		return nil, zerr.Wrap(err, "blobstore: open")
	}
	return f, nil
}

// VerifyContent reads the blob back and confirms its hash matches h,
// returning ErrHashMismatch if not.
func (s *Store) VerifyContent(h hashutil.Hash) error {
	//nolint:gosec // path is derived from a validated Hash
	data, err := os.ReadFile(s.path(h))
	if err != nil {
		return zerr.Wrap(err, "blobstore: verify read")
	}
	if hashutil.HashBytes(data) != h {
		return zerr.With(domain.ErrHashMismatch, "hash", h.String())
	}
	return nil
}

// Path returns the absolute on-disk path for h. Used by checkout to create
// symlinks directly into the store without copying bytes.
func (s *Store) Path(h hashutil.Hash) string {
	return s.path(h)
}

// GC deletes every object file whose hash is not in retain.
func (s *Store) GC(retain map[hashutil.Hash]struct{}) (removed int, err error) {
	objectsDir := filepath.Join(s.root, "objects")
	entries, err := os.ReadDir(objectsDir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, zerr.Wrap(err, "blobstore: gc: list shards")
	}

	for _, shard := range entries {
		if !shard.IsDir() {
			continue
		}
		shardDir := filepath.Join(objectsDir, shard.Name())
		files, err := os.ReadDir(shardDir)
		if err != nil {
			return removed, zerr.Wrap(err, "blobstore: gc: list objects")
		}
		for _, f := range files {
			h := hashutil.Hash(shard.Name() + f.Name())
			if _, keep := retain[h]; keep {
				continue
			}
			if err := os.Remove(filepath.Join(shardDir, f.Name())); err != nil {
				return removed, zerr.Wrap(err, "blobstore: gc: remove object")
			}
			s.mu.Lock()
			delete(s.known, h)
			s.mu.Unlock()
			removed++
		}
	}
	return removed, nil
}

func copyFile(src, dst string) error {
	//nolint:gosec // path comes from the caller's own sandbox listing
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close() //nolint:errcheck

	//nolint:gosec // dst is a store-managed temp path
	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, tempFilePerm)
	if err != nil {
		return err
	}
	defer out.Close() //nolint:errcheck

	_, err = io.Copy(out, in)
	return err
}
