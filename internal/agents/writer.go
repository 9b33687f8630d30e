package agents

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/Iron-Ham/codecrew/internal/errors"
)

// FileWriter writes artifacts to the local filesystem. Files are written to
// a temporary sibling and renamed into place.
type FileWriter struct {
	FileMode os.FileMode
	DirMode  os.FileMode
}

// NewFileWriter creates a FileWriter with 0644 files and 0755 directories.
func NewFileWriter() *FileWriter {
	return &FileWriter{FileMode: 0o644, DirMode: 0o755}
}

// WriteArtifact implements orchestrator.ArtifactWriter. path must be a
// local, slash-separated path; it is resolved under destRoot.
func (w *FileWriter) WriteArtifact(ctx context.Context, path, content, destRoot string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	rel := filepath.FromSlash(path)
	if !filepath.IsLocal(rel) {
		return errors.NewValidationError("artifact path escapes the destination root").
			WithField("path").WithValue(path)
	}

	full := filepath.Join(destRoot, rel)
	if err := os.MkdirAll(filepath.Dir(full), w.DirMode); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", path, err)
	}

	tmp := full + ".tmp"
	if err := os.WriteFile(tmp, []byte(content), w.FileMode); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := os.Rename(tmp, full); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to move %s into place: %w", path, err)
	}
	return nil
}
