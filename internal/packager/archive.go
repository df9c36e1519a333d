package packager

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/klauspost/compress/flate"

	"github.com/zipbundle/terraform-provider-zipbundle/internal/bundle"
)

// archiveWriter wraps a zip.Writer and counts the entries that were written
// completely.
type archiveWriter struct {
	f       *os.File
	zw      *zip.Writer
	written int
}

func createArchive(path string) (*archiveWriter, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}

	zw := zip.NewWriter(f)
	zw.RegisterCompressor(zip.Deflate, func(out io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(out, flate.DefaultCompression)
	})

	return &archiveWriter{f: f, zw: zw}, nil
}

// add copies the file at src into the archive under name. src is opened
// before the entry header is written so that an unreadable file leaves no
// trace in the archive.
func (a *archiveWriter) add(name, src string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return err
	}
	if info.IsDir() {
		return fmt.Errorf("%s is a directory", src)
	}

	hdr, err := zip.FileInfoHeader(info)
	if err != nil {
		return err
	}
	hdr.Name = name
	hdr.Method = zip.Deflate

	w, err := a.zw.CreateHeader(hdr)
	if err != nil {
		return err
	}
	if _, err := io.Copy(w, in); err != nil {
		return err
	}

	a.written++
	return nil
}

func (a *archiveWriter) close() error {
	return errors.Join(a.zw.Close(), a.f.Close())
}

// EntryHashes reads the archive at path and returns the content hash of
// every file entry, keyed by entry name.
func EntryHashes(path string) (map[string]string, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("packager: open archive: %w", err)
	}
	defer zr.Close()
	zr.RegisterDecompressor(zip.Deflate, flate.NewReader)

	hashes := make(map[string]string, len(zr.File))
	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}
		h, err := hashEntry(f)
		if err != nil {
			return nil, fmt.Errorf("packager: read entry %q: %w", f.Name, err)
		}
		hashes[f.Name] = h
	}
	return hashes, nil
}

func hashEntry(f *zip.File) (string, error) {
	rc, err := f.Open()
	if err != nil {
		return "", err
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return "", err
	}
	return bundle.ComputeFileHashBytes(data), nil
}
