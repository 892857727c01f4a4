// Package persist implements §6's on-disk and database-backed state:
// line-oriented save/restore for each evaluator's working set, and a
// sqlite-backed supplemental log of every strategy decision.
package persist

import (
	"bytes"
	"io"
	"os"
)

// saver can serialize its state to a writer. Each evaluator package
// implements this directly (empirical.Evaluator, bayesian.Evaluator,
// confidence.Evaluator), and holds its own lock for the whole write so
// the snapshot is internally consistent.
type saver interface {
	Save(w io.Writer) error
}

// restorer can repopulate its state from a reader.
type restorer interface {
	Restore(r io.Reader) error
}

// SaveFile serializes s and writes it to path, grounded on the teacher's
// plain os.WriteFile persistence pattern (no temp-file/rename dance: the
// teacher writes manifests and blobs directly).
func SaveFile(path string, s saver) error {
	var buf bytes.Buffer
	if err := s.Save(&buf); err != nil {
		return err
	}
	return os.WriteFile(path, buf.Bytes(), 0o644)
}

// RestoreFile reads path and repopulates r from its contents.
func RestoreFile(path string, r restorer) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return r.Restore(bytes.NewReader(data))
}
