// Package zip bundles files from disk into a single archive.
package zip

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"strings"
)

// File is one archive member. Name is the slash separated name inside the
// archive and Path the file it is read from.
type File struct {
	Name string
	Path string
}

// Write streams files into a zip archive on w. Images are already compressed,
// so members are stored rather than deflated.
func Write(w io.Writer, files []File) error {
	zw := zip.NewWriter(w)
	names := make(map[string]struct{}, len(files))
	for _, f := range files {
		name := path.Clean(strings.TrimLeft(strings.ReplaceAll(f.Name, "\\", "/"), "/"))
		if name == "." || name == ".." || strings.HasPrefix(name, "../") {
			zw.Close()
			return fmt.Errorf("zip: invalid member name %q", f.Name)
		}
		if _, dup := names[name]; dup {
			zw.Close()
			return fmt.Errorf("zip: duplicate member %q", name)
		}
		names[name] = struct{}{}
		if err := add(zw, name, f.Path); err != nil {
			zw.Close()
			return err
		}
	}
	return zw.Close()
}

// WriteFile creates dst and writes the archive into it. A partial archive is
// removed on failure.
func WriteFile(dst string, files []File) (err error) {
	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("zip: create archive: %w", err)
	}
	defer func() {
		if cerr := out.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			os.Remove(dst)
		}
	}()
	return Write(out, files)
}

func add(zw *zip.Writer, name, src string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("zip: open %s: %w", src, err)
	}
	defer in.Close()
	info, err := in.Stat()
	if err != nil {
		return fmt.Errorf("zip: stat %s: %w", src, err)
	}
	if !info.Mode().IsRegular() {
		return errors.New("zip: not a regular file: " + src)
	}
	hdr, err := zip.FileInfoHeader(info)
	if err != nil {
		return err
	}
	hdr.Name = name
	hdr.Method = zip.Store
	dst, err := zw.CreateHeader(hdr)
	if err != nil {
		return err
	}
	if _, err := io.Copy(dst, in); err != nil {
		return fmt.Errorf("zip: copy %s: %w", src, err)
	}
	return nil
}
