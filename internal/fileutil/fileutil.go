package fileutil

import (
	"bytes"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// ErrEmptyFile reports a file that exists but holds no bytes.
var ErrEmptyFile = errors.New("file is empty")

// WriteAtomic streams r into path through a temp file in the same directory
// and renames it into place, so readers never observe a partial file. It
// returns the number of bytes written.
func WriteAtomic(path string, r io.Reader, mode os.FileMode) (int64, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, fmt.Errorf("create %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.part")
	if err != nil {
		return 0, err
	}
	tmpName := tmp.Name()
	cleanup := func() {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
	}

	written, err := io.Copy(tmp, r)
	if err != nil {
		cleanup()
		return written, err
	}
	if err := tmp.Chmod(mode); err != nil {
		cleanup()
		return written, err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return written, err
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return written, err
	}
	return written, nil
}

// RequireNonEmpty returns the size of path, failing when it is missing, not a
// regular file, or empty.
func RequireNonEmpty(path string) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	if !info.Mode().IsRegular() {
		return 0, fmt.Errorf("%s is not a regular file", path)
	}
	if info.Size() == 0 {
		return 0, fmt.Errorf("%s: %w", path, ErrEmptyFile)
	}
	return info.Size(), nil
}

// CopyFileVerified copies src to dst atomically with SHA256 + size integrity
// verification. dst is left untouched on mismatch.
func CopyFileVerified(src, dst string) error {
	srcInfo, err := os.Stat(src)
	if err != nil {
		return fmt.Errorf("stat source: %w", err)
	}
	srcSize := srcInfo.Size()

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	srcHasher := sha256.New()
	tee := io.TeeReader(in, srcHasher)

	tmp := dst + ".verify"
	written, err := WriteAtomic(tmp, tee, 0o644)
	if err != nil {
		return err
	}
	if written != srcSize {
		_ = os.Remove(tmp)
		return fmt.Errorf("copy size mismatch: source %d bytes, copied %d bytes", srcSize, written)
	}

	dstHasher := sha256.New()
	copied, err := os.Open(tmp)
	if err != nil {
		_ = os.Remove(tmp)
		return err
	}
	_, err = io.Copy(dstHasher, copied)
	_ = copied.Close()
	if err != nil {
		_ = os.Remove(tmp)
		return err
	}
	if !bytes.Equal(srcHasher.Sum(nil), dstHasher.Sum(nil)) {
		_ = os.Remove(tmp)
		return fmt.Errorf("copy hash mismatch: file corrupted during copy")
	}
	return os.Rename(tmp, dst)
}
