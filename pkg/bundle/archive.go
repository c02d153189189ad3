package bundle

import (
	"archive/tar"
	"fmt"
	"io"
	"os"
	"path"

	"github.com/klauspost/compress/zstd"
)

// ArchiveExtension marks a single-file bundle: a zstd-compressed tar
// holding the manifest and hook source.
const ArchiveExtension = ".bundle"

// maxArchiveFileSize bounds a single file inside a bundle archive.
const maxArchiveFileSize = 4 << 20

// LoadArchive loads a bundle from a .bundle archive.
func LoadArchive(archivePath string) (*Bundle, error) {
	f, err := os.Open(archivePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open archive: %v", err)
	}
	defer f.Close()
	return ReadArchive(f)
}

// ReadArchive loads a bundle from a zstd-compressed tar stream.
func ReadArchive(r io.Reader) (*Bundle, error) {
	zr, err := zstd.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to open zstd stream: %v", err)
	}
	defer zr.Close()

	var manifestData, hooksData []byte
	tr := tar.NewReader(zr)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read archive entry: %v", err)
		}
		if hdr.Typeflag != tar.TypeReg {
			continue
		}
		switch path.Base(hdr.Name) {
		case ManifestFileName:
			manifestData, err = readArchiveFile(tr)
		case HooksFileName:
			hooksData, err = readArchiveFile(tr)
		default:
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %v", hdr.Name, err)
		}
	}

	if manifestData == nil {
		return nil, fmt.Errorf("archive is missing %s", ManifestFileName)
	}
	if hooksData == nil {
		return nil, fmt.Errorf("archive is missing %s", HooksFileName)
	}
	return New(manifestData, hooksData)
}

func readArchiveFile(tr *tar.Reader) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(tr, maxArchiveFileSize+1))
	if err != nil {
		return nil, err
	}
	if len(data) > maxArchiveFileSize {
		return nil, fmt.Errorf("file exceeds %d bytes", maxArchiveFileSize)
	}
	return data, nil
}
