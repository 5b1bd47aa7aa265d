package archive

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Entry is one candidate archive file discovered by [Scan]: either a
// successfully opened resource, or the error encountered opening it. The
// caller (C6's selection manager) inserts Resource on success and
// logs-and-skips on Err, without the scan itself aborting early.
type Entry struct {
	Checksum uint64
	Path     string
	Resource *FileResource
	Err      error
}

// Scan enumerates dir for files whose extension is "res" and whose name
// stem parses as a decimal u64 checksum, opening each in turn. skip, when
// non-nil, is consulted per checksum so an already-loaded archive isn't
// reopened during a refresh.
func Scan(ctx context.Context, dir string, skip func(checksum uint64) (loaded bool)) (entries []Entry, err error) {
	dirEntries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	} else if err != nil {
		return nil, err
	}

	for _, de := range dirEntries {
		select {
		case <-ctx.Done():
			return entries, ctx.Err()
		default:
		}

		if de.IsDir() {
			continue
		}

		name := de.Name()
		if filepath.Ext(name) != "."+fileExtension {
			continue
		}

		stem := strings.TrimSuffix(name, "."+fileExtension)

		checksum, perr := strconv.ParseUint(stem, 10, 64)
		if perr != nil {
			continue
		}

		if skip != nil && skip(checksum) {
			continue
		}

		path := filepath.Join(dir, name)

		r, oerr := Open(path)
		entries = append(entries, Entry{
			Checksum: checksum,
			Path:     path,
			Resource: r,
			Err:      oerr,
		})
	}

	return entries, nil
}
