package persist

import (
	"fmt"
	"os"

	"github.com/coreauthz/policyd/storage"
)

// Checkpoint atomically replaces the on-disk store at dir with a full dump
// of backend (spec.md §4.5's "atomic checkpoint"). It generalizes the
// single-file rename pattern the teacher uses for one configuration file
// (config/fileutil.go's atomicWriteFile) to a directory tree: the new
// state is written to a sibling shadow directory in full, then swapped
// into place with two renames, so a crash mid-Dump never leaves dir in a
// half-written state.
func Checkpoint(backend *storage.MemBackend, dir string) error {
	shadow := dir + ".checkpoint.tmp"
	backup := dir + ".checkpoint.bak"

	if err := os.RemoveAll(shadow); err != nil {
		return fmt.Errorf("persist: clear stale checkpoint dir: %w", err)
	}
	if err := os.MkdirAll(shadow, 0o755); err != nil {
		return fmt.Errorf("persist: create checkpoint dir: %w", err)
	}
	defer os.RemoveAll(shadow)

	if err := Dump(backend, NewDirStreamFactory(shadow)); err != nil {
		return fmt.Errorf("persist: dump to checkpoint dir: %w", err)
	}

	if _, err := os.Stat(dir); err == nil {
		if err := os.RemoveAll(backup); err != nil {
			return fmt.Errorf("persist: clear stale backup dir: %w", err)
		}
		if err := os.Rename(dir, backup); err != nil {
			return fmt.Errorf("persist: move live dir aside: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("persist: stat live dir: %w", err)
	}

	if err := os.Rename(shadow, dir); err != nil {
		// Best-effort restore so a failed checkpoint doesn't leave the
		// store without any live directory at all.
		os.Rename(backup, dir)
		return fmt.Errorf("persist: swap checkpoint into place: %w", err)
	}
	os.RemoveAll(backup)
	return nil
}
