// Package ioutils provides file system, archive and image utilities for the
// memories pipeline.
//
// Every function that produces a file writes to a temporary sibling first and
// renames it into place, so an interrupted run never leaves a truncated
// output under its final name.
package ioutils

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"syscall"
	"time"
)

// PartSuffix is appended to in-progress outputs.
const PartSuffix = ".part"

// TempPath returns the in-progress path used while writing path.
func TempPath(path string) string {
	return path + PartSuffix
}

// WriteAtomic creates path by streaming into a temporary sibling and renaming
// it into place once write returns successfully.
//
// The temporary file is removed if write or the rename fails.
//
// Example:
//
//	err := WriteAtomic("/out/abc_combined.jpg", func(w io.Writer) error {
//	    return jpeg.Encode(w, img, &jpeg.Options{Quality: 95})
//	})
func WriteAtomic(path string, write func(w io.Writer) error) (err error) {
	if err := EnsureDir(filepath.Dir(path)); err != nil {
		return err
	}

	tmp := TempPath(path)
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = os.Remove(tmp)
		}
	}()

	if err = write(f); err != nil {
		_ = f.Close()
		return err
	}
	if err = f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// CopyFile copies src to dst atomically.
//
// The destination is created with mode 0644 (or replaced if it exists). The
// source's modification time is preserved.
//
// Parameters:
//   - ctx: Checked before the copy starts
//   - src: Source file path (must exist)
//   - dst: Destination file path
//
// Example:
//
//	err := CopyFile(ctx, "/in/abc.mp4", "/out/abc.mp4")
func CopyFile(ctx context.Context, src, dst string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	sourceFile, err := os.Open(src)
	if err != nil {
		return err
	}
	defer sourceFile.Close()

	info, err := sourceFile.Stat()
	if err != nil {
		return err
	}

	err = WriteAtomic(dst, func(w io.Writer) error {
		_, err := io.Copy(w, sourceFile)
		return err
	})
	if err != nil {
		return err
	}

	return os.Chtimes(dst, info.ModTime(), info.ModTime())
}

// WriteFile writes data to path atomically.
func WriteFile(ctx context.Context, path string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return WriteAtomic(path, func(w io.Writer) error {
		_, err := w.Write(data)
		return err
	})
}

// MoveFile renames src to dst, falling back to copy and delete when the two
// paths are on different file systems.
func MoveFile(ctx context.Context, src, dst string) error {
	if err := EnsureDir(filepath.Dir(dst)); err != nil {
		return err
	}
	err := os.Rename(src, dst)
	if err == nil {
		return nil
	}
	if !errors.Is(err, syscall.EXDEV) {
		return err
	}

	if err := CopyFile(ctx, src, dst); err != nil {
		return fmt.Errorf("move %s: %w", src, err)
	}
	return os.Remove(src)
}

// SetTimes sets both access and modification time of path to t.
func SetTimes(path string, t time.Time) error {
	return os.Chtimes(path, t, t)
}

// EnsureDir creates a directory and all parent directories if they don't exist.
//
// Directories are created with mode 0755 (rwxr-xr-x).
// If the directory already exists, no error is returned.
func EnsureDir(path string) error {
	return os.MkdirAll(path, 0755)
}

// RemoveAll removes path and everything below it. A missing path is not
// an error.
func RemoveAll(path string) error {
	if path == "" || path == "/" {
		return fmt.Errorf("refusing to remove %q", path)
	}
	return os.RemoveAll(path)
}

// ReadHeader returns up to n leading bytes of the file at path.
func ReadHeader(path string, n int) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	buf := make([]byte, n)
	read, err := io.ReadFull(f, buf)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return nil, err
	}
	return buf[:read], nil
}
