package util

import (
	"os"
	"path"
)

// exists returns whether the given file or directory exists or not.
func exists(p string) (bool, error) {
	_, err := os.Stat(p)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return true, err
}

// EnsureDir ensures a directory exists.
func EnsureDir(p string) error {
	e, err := exists(p)
	if err != nil {
		return err
	}
	if !e {
		return os.MkdirAll(p, 0777)
	}
	return nil
}

// EnsurePath ensures a directory exists, given a file path. This calls
// path.Dir(p).
func EnsurePath(p string) error {
	return EnsureDir(path.Dir(p))
}
