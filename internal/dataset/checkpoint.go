package dataset

import (
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Writer persists full snapshots of the working dataset so an interrupted
// run can resume from the last completed batch.
type Writer struct {
	path string
}

// NewWriter creates a checkpoint writer targeting the given file path.
func NewWriter(path string) *Writer {
	return &Writer{path: path}
}

// Path returns the checkpoint file location.
func (w *Writer) Path() string {
	return w.path
}

// Write persists the snapshot atomically (temp file + rename). The snapshot
// must be a private copy of the working dataset; Write never mutates it.
// Windows-1250 is tried first, UTF-8 when the snapshot contains characters
// the legacy code page cannot represent.
func (w *Writer) Write(snap *Table) error {
	data, enc, err := encodeCSVWithFallback(snap)
	if err != nil {
		return eris.Wrap(err, "dataset: encode checkpoint")
	}
	if enc != EncodingWindows1250 {
		zap.L().Debug("checkpoint fell back to utf-8 encoding", zap.String("path", w.path))
	}

	dir := filepath.Dir(w.path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return eris.Wrap(err, "dataset: create checkpoint dir")
		}
	}

	// Each write gets its own temp file; concurrent workers renaming a
	// shared name could publish a file another writer is still filling.
	tmp, err := os.CreateTemp(dir, filepath.Base(w.path)+".tmp-")
	if err != nil {
		return eris.Wrap(err, "dataset: create checkpoint temp file")
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return eris.Wrap(err, "dataset: write checkpoint")
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return eris.Wrap(err, "dataset: write checkpoint")
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		os.Remove(tmp.Name())
		return eris.Wrap(err, "dataset: write checkpoint")
	}
	if err := os.Rename(tmp.Name(), w.path); err != nil {
		os.Remove(tmp.Name())
		return eris.Wrap(err, "dataset: replace checkpoint")
	}
	return nil
}
