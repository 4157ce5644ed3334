package indexbuilder

import (
	"fmt"
	"os"

	"k8s.io/klog/v2"
)

// WriteFile persists a serialized index (as returned by Build) to path,
// creating it if necessary and failing if it already exists with
// content (an index file is written once and never updated in place,
// mirroring the Database's read-only query-time contract in spec.md §5).
func WriteFile(path string, indexBytes []byte) error {
	if ok, statErr := fileHasContent(path); statErr != nil {
		return statErr
	} else if ok {
		return fmt.Errorf("indexbuilder: refusing to overwrite non-empty file %q", path)
	}

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("indexbuilder: create %q: %w", path, err)
	}
	defer file.Close()

	if n, err := file.Write(indexBytes); err != nil {
		return fmt.Errorf("indexbuilder: write %q: %w", path, err)
	} else if n != len(indexBytes) {
		return fmt.Errorf("indexbuilder: short write to %q: wrote %d of %d bytes", path, n, len(indexBytes))
	}

	if err := file.Sync(); err != nil {
		return fmt.Errorf("indexbuilder: sync %q: %w", path, err)
	}

	return nil
}

func fileHasContent(path string) (bool, error) {
	info, statErr := os.Stat(path)
	if statErr != nil {
		if os.IsNotExist(statErr) {
			return false, nil
		}
		return false, statErr
	}
	if info.IsDir() {
		return false, fmt.Errorf("indexbuilder: %q is a directory", path)
	}
	klogV := klog.V(4)
	if klogV.Enabled() {
		klog.Infof("indexbuilder: existing file %q is %d bytes", path, info.Size())
	}
	return info.Size() > 0, nil
}
