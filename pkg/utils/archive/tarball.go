package archive

import (
	"archive/tar"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
)

// ErrNotInArchive is returned when a tar stream does not contain a requested file.
var ErrNotInArchive = errors.New("file is not in archive")

// ReadFile reads the content of a regular file named `name` from tar stream.
//
// Names are compared after cleaning and without leading "/" or "./",
// so "status.json", "./status.json" and "/status.json" are the same entry.
//
// # Args
//
// - r io.Reader: tar stream. It is read up to the found entry.
//
// - name string: name of the entry.
//
// - limit int64: max size of content. Larger entries cause error.
//
// # Returns
//
// - []byte: content of the entry.
//
// - error: ErrNotInArchive if no such regular file is found.
func ReadFile(r io.Reader, name string, limit int64) ([]byte, error) {
	want := normalize(name)
	tr := tar.NewReader(r)
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: %s", ErrNotInArchive, name)
		}
		if err != nil {
			return nil, err
		}
		if hdr.Typeflag != tar.TypeReg || normalize(hdr.Name) != want {
			continue
		}
		if limit < hdr.Size {
			return nil, fmt.Errorf("%s is too large (%d bytes > %d bytes)", name, hdr.Size, limit)
		}
		return io.ReadAll(io.LimitReader(tr, limit))
	}
}

// WriteFile writes a tar stream which contains only one regular file.
func WriteFile(w io.Writer, name string, content []byte) error {
	tw := tar.NewWriter(w)
	if err := tw.WriteHeader(&tar.Header{
		Typeflag: tar.TypeReg,
		Name:     normalize(name),
		Size:     int64(len(content)),
		Mode:     0644,
	}); err != nil {
		return err
	}
	if _, err := tw.Write(content); err != nil {
		return err
	}
	return tw.Close()
}

func normalize(name string) string {
	return strings.TrimPrefix(path.Clean("/"+name), "/")
}
