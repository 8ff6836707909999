// Package filex holds small filesystem helpers.
package filex

import (
	"fmt"
	"os"
	"path/filepath"
)

// EnsureDir makes sure dir exists and is a directory, creating it (and any
// parents) with mode 0770 when missing. Relative paths are resolved against
// the working directory. The absolute path is returned.
func EnsureDir(dir string) (string, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("abs %s: %w", dir, err)
	}

	info, err := os.Stat(abs)
	switch {
	case err == nil:
		if !info.IsDir() {
			return "", fmt.Errorf("%s is not a directory", abs)
		}
		return abs, nil
	case os.IsNotExist(err):
		if err := os.MkdirAll(abs, 0o770); err != nil {
			return "", fmt.Errorf("mkdir %s: %w", abs, err)
		}
		return abs, nil
	default:
		return "", fmt.Errorf("stat %s: %w", abs, err)
	}
}
