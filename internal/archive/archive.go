// Package archive decides whether a fetched log is delivered as-is or
// wrapped in a zip archive, and performs the compression.
package archive

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zip"
)

// Artifact is a file on local transient storage, owned exclusively by the
// retrieval that created it. The consumer deletes Path once the artifact
// has been fully delivered or delivery has failed.
type Artifact struct {
	Path      string
	IsArchive bool
}

// Decide returns localPath unchanged when sizeBytes is within
// thresholdBytes. Otherwise it compresses the file into a zip archive
// containing only that file under its base name, deletes the uncompressed
// original, and returns the archive.
func Decide(localPath string, sizeBytes, thresholdBytes int64) (Artifact, error) {
	if sizeBytes <= thresholdBytes {
		return Artifact{Path: localPath}, nil
	}

	zipPath := localPath + ".zip"
	if err := zipFile(localPath, zipPath); err != nil {
		os.Remove(zipPath)
		return Artifact{}, err
	}
	if err := removeFn(localPath); err != nil {
		// The caller only knows localPath, so the archive must not outlive
		// this error.
		os.Remove(zipPath)
		return Artifact{}, fmt.Errorf("remove uncompressed original: %w", err)
	}
	return Artifact{Path: zipPath, IsArchive: true}, nil
}

// removeFn is swapped in tests to simulate filesystem failures.
var removeFn = os.Remove

func zipFile(srcPath, zipPath string) error {
	src, err := os.Open(srcPath)
	if err != nil {
		return fmt.Errorf("open %s: %w", srcPath, err)
	}
	defer src.Close()

	out, err := os.Create(zipPath)
	if err != nil {
		return fmt.Errorf("create archive: %w", err)
	}
	defer out.Close()

	zw := zip.NewWriter(out)
	entry, err := zw.CreateHeader(&zip.FileHeader{
		Name:   filepath.Base(srcPath),
		Method: zip.Deflate,
	})
	if err != nil {
		return fmt.Errorf("create archive entry: %w", err)
	}
	if _, err := io.Copy(entry, src); err != nil {
		return fmt.Errorf("compress %s: %w", srcPath, err)
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("finalize archive: %w", err)
	}
	return out.Close()
}
