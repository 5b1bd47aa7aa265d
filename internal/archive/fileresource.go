package archive

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/AdguardTeam/golibs/errors"
	"github.com/cespare/xxhash/v2"
	"github.com/google/renameio/v2"
	"github.com/ipmap/core/internal/geoipdb"
	"golang.org/x/sys/unix"
)

// fileExtension is the fixed extension of a cache directory's archive
// files; a file's name stem is its checksum in decimal.
const fileExtension = "res"

// checksumSize is the width of the trailing checksum appended to every
// archive file.
const checksumSize = 8

// Ingest errors.
const (
	// ErrAlreadyExists signals that an archive with the same content
	// checksum is already present in the cache directory.
	ErrAlreadyExists errors.Error = "archive: already exists"

	// ErrBadChecksumName signals that a candidate file's name stem did not
	// parse as a decimal u64 checksum.
	ErrBadChecksumName errors.Error = "archive: bad checksum filename"

	// ErrChecksumMismatch signals that a file's trailing checksum did not
	// match a fresh hash of its data, indicating corruption or truncation.
	ErrChecksumMismatch errors.Error = "archive: checksum mismatch"
)

// FileResource is a memory-mapped, checksum-verified archive file on disk.
// It embeds [Database], so lookups can be called directly on it; its own
// methods cover the file lifecycle.
type FileResource struct {
	Database

	source   Source
	path     string
	checksum uint64
	data     []byte
}

// Source returns the database source this resource was built from.
func (r *FileResource) Source() (s Source) { return r.source }

// Path returns the resource's backing file path.
func (r *FileResource) Path() (p string) { return r.path }

// Checksum returns the resource's content checksum, which is also its
// filename stem.
func (r *FileResource) Checksum() (c uint64) { return r.checksum }

// Close implements the [Database] interface for *FileResource, unmapping
// both the archived trie(s) it wraps and the resource's own file mapping.
func (r *FileResource) Close() (err error) {
	err = r.Database.Close()

	if merr := unix.Munmap(r.data); merr != nil {
		err = errors.Join(err, fmt.Errorf("archive: munmap: %w", merr))
	}

	return err
}

// Delete closes r and removes its backing file. The caller must have
// dropped every other reference to r first; the trie and location store
// live for the mmap's lifetime.
func (r *FileResource) Delete() (err error) {
	if err = r.Close(); err != nil {
		return fmt.Errorf("archive: closing before delete: %w", err)
	}

	return os.Remove(r.path)
}

// CreateGeneric serializes db and writes it to dir as a new archive file,
// following the create sequence: hash the encoded data, abort with
// [ErrAlreadyExists] if "<checksum>.res" is already taken, then atomically
// write the data plus its trailing checksum via [renameio.WriteFile] and
// reopen the result memory-mapped.
func CreateGeneric(dir string, source Source, db *geoipdb.SingleDatabase) (r *FileResource, err error) {
	data, err := encodeGeneric(source, db)
	if err != nil {
		return nil, err
	}

	return create(dir, data)
}

// CreateCombined is [CreateGeneric] for a combined database.
func CreateCombined(dir string, source Source, db *geoipdb.CombinedDatabase) (r *FileResource, err error) {
	data, err := encodeCombined(source, db)
	if err != nil {
		return nil, err
	}

	return create(dir, data)
}

func create(dir string, data []byte) (r *FileResource, err error) {
	if err = os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("archive: creating cache dir: %w", err)
	}

	checksum := xxhash.Sum64(data)

	finalPath := filepath.Join(dir, strconv.FormatUint(checksum, 10)+"."+fileExtension)

	if _, serr := os.Stat(finalPath); serr == nil {
		return nil, fmt.Errorf("%w: %s", ErrAlreadyExists, finalPath)
	} else if !os.IsNotExist(serr) {
		return nil, fmt.Errorf("archive: checking existing archive: %w", serr)
	}

	withChecksum := make([]byte, len(data)+checksumSize)
	copy(withChecksum, data)
	binary.NativeEndian.PutUint64(withChecksum[len(data):], checksum)

	if err = renameio.WriteFile(finalPath, withChecksum, 0o644); err != nil {
		return nil, fmt.Errorf("archive: writing %s: %w", finalPath, err)
	}

	return openPath(finalPath)
}

// Open opens an existing archive file at path, verifying its trailing
// checksum against both a fresh hash of its data and the checksum encoded
// in its filename.
func Open(path string) (r *FileResource, err error) {
	return openPath(path)
}

func openPath(path string) (r *FileResource, err error) {
	stem := strings.TrimSuffix(filepath.Base(path), "."+fileExtension)

	expected, err := strconv.ParseUint(stem, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrBadChecksumName, path)
	}

	f, err := os.Open(path) //nolint:gosec // Path comes from a prior Create or a cache-directory Scan, not arbitrary user input.
	if err != nil {
		return nil, fmt.Errorf("archive: opening %s: %w", path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("archive: statting %s: %w", path, err)
	}

	size := info.Size()
	if size < checksumSize {
		return nil, fmt.Errorf("%w: %s is too short", ErrChecksumMismatch, path)
	}

	mapped, err := unix.Mmap(int(f.Fd()), 0, int(size), unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("archive: mmap %s: %w", path, err)
	}

	dataLen := int(size) - checksumSize
	data := mapped[:dataLen]
	trailer := mapped[dataLen:]

	actual := xxhash.Sum64(data)
	stored := binary.NativeEndian.Uint64(trailer)

	if actual != stored || actual != expected {
		_ = unix.Munmap(mapped)

		return nil, fmt.Errorf("%w: %s", ErrChecksumMismatch, path)
	}

	source, db, err := decode(data)
	if err != nil {
		_ = unix.Munmap(mapped)

		return nil, fmt.Errorf("archive: decoding %s: %w", path, err)
	}

	return &FileResource{
		Database: db,
		source:   source,
		path:     path,
		checksum: actual,
		data:     mapped,
	}, nil
}
