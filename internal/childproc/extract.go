// Package childproc manages the lifecycle of the privileged capture/
// traceroute child process: locating (self-extracting if necessary) its
// binary, spawning it with the one-shot IPC channel it needs to connect to,
// and tearing it down.
package childproc

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

// EnsureBinary makes sure name exists under destDir and matches the SHA-256
// digest expectedSum, (re-)writing it from embedded if not, then marks it
// executable. embedded is typically backed by a go:embed'd copy of the
// child binary built as a separate artifact.
func EnsureBinary(embedded fs.FS, embeddedPath string, name, destDir string, expectedSum [sha256.Size]byte) (path string, err error) {
	path = filepath.Join(destDir, name)

	needsWrite := true

	if existing, statErr := os.Open(path); statErr == nil {
		sum, hashErr := sha256Reader(existing)
		_ = existing.Close()

		if hashErr == nil && sum == expectedSum {
			needsWrite = false
		}
	}

	if needsWrite {
		data, rerr := fs.ReadFile(embedded, embeddedPath)
		if rerr != nil {
			return "", fmt.Errorf("childproc: reading embedded binary: %w", rerr)
		}

		if werr := os.WriteFile(path, data, 0o644); werr != nil {
			return "", fmt.Errorf("childproc: writing child binary: %w", werr)
		}
	}

	if err = os.Chmod(path, 0o755); err != nil {
		return "", fmt.Errorf("childproc: making child binary executable: %w", err)
	}

	return path, nil
}

func sha256Reader(r *os.File) (sum [sha256.Size]byte, err error) {
	h := sha256.New()

	buf := make([]byte, 8192)
	for {
		n, rerr := r.Read(buf)
		if n > 0 {
			h.Write(buf[:n])
		}

		if rerr != nil {
			if errors.Is(rerr, io.EOF) {
				break
			}

			return sum, rerr
		}
	}

	copy(sum[:], h.Sum(nil))

	return sum, nil
}
