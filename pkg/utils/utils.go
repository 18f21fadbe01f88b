package utils

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
)

// EnsureDirExists verifies path is a directory and creates it, along with
// any missing parents, if it doesn't exist.
func EnsureDirExists(path string) error {
	fi, err := os.Stat(path)
	if err == nil {
		if !fi.IsDir() {
			return errors.New(path + " is not a directory")
		}
		return nil
	}
	if os.IsNotExist(err) {
		return os.MkdirAll(path, 0755)
	}
	return err
}

// Stem returns the base name of p without its final extension.
//
//	Stem("/dumps/vm1.raw") == "vm1"
//	Stem("vm1.raw.zip") == "vm1.raw"
func Stem(p string) string {
	base := filepath.Base(p)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// SamePath reports whether a and b name the same location, after cleaning
// and resolving them to absolute paths.
func SamePath(a, b string) bool {
	absA, err := filepath.Abs(a)
	if err != nil {
		return filepath.Clean(a) == filepath.Clean(b)
	}
	absB, err := filepath.Abs(b)
	if err != nil {
		return filepath.Clean(a) == filepath.Clean(b)
	}
	return absA == absB
}
