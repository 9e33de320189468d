// Package logging sets up the process log: everything written through the
// standard logger goes to both stdout and an append-only log file.
package logging

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
)

// Init opens (creating if needed) the log file at path and points the
// standard logger at a stdout+file multi-writer. The returned closer flushes
// and closes the file; call it on shutdown.
//
// A failure to open the file is not fatal: the service keeps logging to
// stdout only and the error is reported to the caller.
func Init(path string) (func() error, error) {
	if path == "" {
		return func() error { return nil }, nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return func() error { return nil }, fmt.Errorf("create log directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return func() error { return nil }, fmt.Errorf("open log file %s: %w", path, err)
	}

	log.SetOutput(io.MultiWriter(os.Stdout, f))
	log.Printf("Logging to file: %s", path)

	return func() error {
		log.SetOutput(os.Stdout)
		return f.Close()
	}, nil
}
