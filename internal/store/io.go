package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

const privateFileMode os.FileMode = 0o600

// readFile returns nil, nil when path does not exist.
func readFile(path string) ([]byte, error) {
	b, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	return b, err
}

// readJSON leaves out untouched when path does not exist.
func readJSON(path string, out any) error {
	b, err := readFile(path)
	if err != nil || b == nil {
		return err
	}
	if err := json.Unmarshal(b, out); err != nil {
		return fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}
	return nil
}

func writeJSON(path string, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return writeFile(path, b)
}

// writeFile writes to a sibling temp file and renames it over path, so a
// crash never leaves a half-written file behind.
func writeFile(path string, b []byte) error {
	f, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmp := f.Name()
	defer func() { _ = os.Remove(tmp) }()

	if _, err := f.Write(b); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Chmod(privateFileMode); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// updateJSON loads the map stored at path, applies fn and writes it back.
// fn returning false skips the write.
func updateJSON[K comparable, V any](path string, fn func(m map[K]V) bool) error {
	m := map[K]V{}
	if err := readJSON(path, &m); err != nil {
		return err
	}
	if !fn(m) {
		return nil
	}
	return writeJSON(path, m)
}

func loadJSONMap[K comparable, V any](path string) (map[K]V, error) {
	m := map[K]V{}
	if err := readJSON(path, &m); err != nil {
		return nil, err
	}
	return m, nil
}
