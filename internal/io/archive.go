package ioutils

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// ZipEntry describes a regular file inside a zip archive.
type ZipEntry struct {
	// Name is the entry path inside the archive, using forward slashes.
	Name string

	// Size is the uncompressed size.
	Size int64

	// Format is the sniffed content format of the entry.
	Format Format
}

// BaseName returns the last element of the entry path.
func (e ZipEntry) BaseName() string {
	return path.Base(e.Name)
}

// ListZip lists the regular files in a zip archive without extracting them.
//
// Directories, macOS resource forks (__MACOSX/, ._*) and entries with unsafe
// paths are left out. Entries are returned in archive order, each with its
// content format sniffed from the first bytes.
func ListZip(archivePath string) ([]ZipEntry, error) {
	r, err := zip.OpenReader(archivePath)
	if err != nil {
		return nil, fmt.Errorf("open archive %s: %w", archivePath, err)
	}
	defer r.Close()

	var entries []ZipEntry
	for _, f := range r.File {
		if !includeEntry(f) {
			continue
		}

		format, err := sniffEntry(f)
		if err != nil {
			return nil, fmt.Errorf("read %s in %s: %w", f.Name, archivePath, err)
		}

		entries = append(entries, ZipEntry{
			Name:   f.Name,
			Size:   int64(f.UncompressedSize64),
			Format: format,
		})
	}

	return entries, nil
}

// ExtractZip extracts every regular file of a zip archive into destDir.
//
// Each member keeps its path inside the archive, so members sharing a base
// name in different directories never overwrite each other. Members whose
// path would leave destDir are left out, as ListZip does. Each file is
// written atomically. Returns the paths of the extracted files in archive
// order.
//
// Example:
//
//	files, err := ExtractZip(ctx, "/in/mydata~1.zip", "/out/.work/extract/mydata~1")
func ExtractZip(ctx context.Context, archivePath, destDir string) ([]string, error) {
	r, err := zip.OpenReader(archivePath)
	if err != nil {
		return nil, fmt.Errorf("open archive %s: %w", archivePath, err)
	}
	defer r.Close()

	if err := EnsureDir(destDir); err != nil {
		return nil, err
	}

	var files []string
	for _, f := range r.File {
		if err := ctx.Err(); err != nil {
			return files, err
		}
		if !includeEntry(f) {
			continue
		}

		dest, err := MemberDest(destDir, f.Name)
		if err != nil {
			continue
		}
		if err := extractEntry(f, dest); err != nil {
			return files, fmt.Errorf("extract %s: %w", f.Name, err)
		}
		files = append(files, dest)
	}

	return files, nil
}

// MemberDest returns where the archive member name is extracted under
// destDir. Names that are absolute or climb out of destDir are rejected.
func MemberDest(destDir, name string) (string, error) {
	rel, ok := memberRel(name)
	if !ok {
		return "", fmt.Errorf("unsafe archive member path %q", name)
	}
	return filepath.Join(destDir, filepath.FromSlash(rel)), nil
}

// memberRel cleans a member name into a relative slash path.
func memberRel(name string) (string, bool) {
	if name == "" || strings.Contains(name, "\\") || path.IsAbs(name) {
		return "", false
	}
	rel := path.Clean(name)
	if rel == "." || rel == ".." || strings.HasPrefix(rel, "../") {
		return "", false
	}
	return rel, true
}

func includeEntry(f *zip.File) bool {
	if f.FileInfo().IsDir() || !f.Mode().IsRegular() {
		return false
	}
	name := f.Name
	if strings.HasPrefix(name, "__MACOSX/") || strings.HasPrefix(path.Base(name), "._") {
		return false
	}
	_, ok := memberRel(name)
	return ok
}

func sniffEntry(f *zip.File) (Format, error) {
	rc, err := f.Open()
	if err != nil {
		return FormatNone, err
	}
	defer rc.Close()
	return SniffReader(rc)
}

func extractEntry(f *zip.File, dest string) error {
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()

	if err := WriteAtomic(dest, func(w io.Writer) error {
		_, err := io.Copy(w, rc)
		return err
	}); err != nil {
		return err
	}

	if mod := f.Modified; !mod.IsZero() {
		_ = os.Chtimes(dest, mod, mod)
	}
	return nil
}
