package cache

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// StoreDir is the permanent, filesystem-backed cache declared by the
// storeDir directive. Unlike the fingerprint cache it is keyed by output
// presence: when every declared output file pattern already matches under
// the directory, execution is skipped and outputs bind directly from there.
type StoreDir struct {
	dir string
}

// NewStoreDir returns a StoreDir rooted at dir. The directory is created on
// first Save, not here; Lookup on a missing directory is simply a miss.
func NewStoreDir(dir string) *StoreDir {
	return &StoreDir{dir: filepath.Clean(dir)}
}

// Dir returns the configured directory.
func (s *StoreDir) Dir() string {
	return s.dir
}

// Lookup checks whether every pattern matches at least one existing file
// under the directory. On a hit it returns the matches per pattern, in
// pattern order.
func (s *StoreDir) Lookup(patterns []string) ([][]string, bool, error) {
	if len(patterns) == 0 {
		return nil, false, nil
	}
	matches := make([][]string, len(patterns))
	for i, p := range patterns {
		found, err := filepath.Glob(filepath.Join(s.dir, p))
		if err != nil {
			return nil, false, fmt.Errorf("storeDir: bad pattern %q: %w", p, err)
		}
		if len(found) == 0 {
			return nil, false, nil
		}
		matches[i] = found
	}
	return matches, true, nil
}

// Save copies the given produced files into the directory, creating it if
// needed. File paths are absolute; base names are preserved.
func (s *StoreDir) Save(files []string) error {
	if len(files) == 0 {
		return nil
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("storeDir: %w", err)
	}
	for _, f := range files {
		if err := copyFile(f, filepath.Join(s.dir, filepath.Base(f))); err != nil {
			return fmt.Errorf("storeDir: %w", err)
		}
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	fi, err := in.Stat()
	if err != nil {
		return err
	}

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, fi.Mode().Perm())
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
