// Package cache implements the memoization layer of the engine: blake3
// fingerprints over script text and bound inputs, an ephemeral entry store
// (in-memory or SQLite-backed), and the storeDir permanent cache keyed by
// output presence.
package cache

import (
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/zeebo/blake3"

	"github.com/petrijr/flume/pkg/api"
)

// Fingerprint computes the cache key for an invocation: a blake3 digest over
// the fully substituted script text and the bound value of every input port,
// in declaration order.
//
// File-classified bindings contribute according to the cache mode: standard
// mode hashes identity metadata (staged name, size, mtime) without reading
// content; deep mode streams the full file content through the hasher. With
// caching off no fingerprint exists and the empty string is returned, which
// the scheduler treats as "always execute".
func Fingerprint(inv *api.TaskInvocation) (string, error) {
	mode := inv.Directives.Normalized().Cache
	if mode == api.CacheOff {
		return "", nil
	}

	h := blake3.New()
	writeField(h, "process", inv.Process)
	writeField(h, "script", inv.Script)

	for _, b := range inv.Bindings {
		if err := hashBinding(h, b, mode); err != nil {
			return "", err
		}
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}

func hashBinding(h io.Writer, b api.Binding, mode api.CacheMode) error {
	label := string(b.Spec.Class) + ":" + b.Spec.Name

	if b.Spec.Class == api.FileClass {
		for _, f := range b.Files {
			if err := hashFile(h, label, f, mode); err != nil {
				return err
			}
		}
		return nil
	}

	writeField(h, label, fmt.Sprint(b.Value))
	return nil
}

func hashFile(h io.Writer, label string, f api.StagedFile, mode api.CacheMode) error {
	if mode == api.CacheDeep {
		src, err := os.Open(f.Source)
		if err != nil {
			return fmt.Errorf("fingerprint %s: %w", f.Source, err)
		}
		defer src.Close()

		content := blake3.New()
		if _, err := io.Copy(content, src); err != nil {
			return fmt.Errorf("fingerprint %s: %w", f.Source, err)
		}
		writeField(h, label, f.Name+"|"+hex.EncodeToString(content.Sum(nil)))
		return nil
	}

	// Standard mode: identity metadata only, no content reads.
	fi, err := os.Stat(f.Source)
	if err != nil {
		return fmt.Errorf("fingerprint %s: %w", f.Source, err)
	}
	writeField(h, label, fmt.Sprintf("%s|%s|%d|%d",
		f.Name, filepath.Base(f.Source), fi.Size(), fi.ModTime().UnixNano()))
	return nil
}

// writeField writes a length-prefixed label=value component, so that
// adjacent fields can never be confused for one another.
func writeField(h io.Writer, label, value string) {
	fmt.Fprintf(h, "%d:%s=%d:%s;", len(label), label, len(value), value)
}
