package duckdb

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/statusexport/statusexport/internal/query"
	"github.com/statusexport/statusexport/internal/storage"
)

// stageFile copies one dataset file to localPath. A listed size that does not
// match the bytes received means the object changed underneath the run.
func stageFile(ctx context.Context, store storage.ObjectStore, file query.TableFile, localPath string) error {
	reader, err := store.Get(ctx, file.ObjectPath)
	if err != nil {
		return fmt.Errorf("get object %q: %w", file.ObjectPath, err)
	}
	defer func() { _ = reader.Close() }()

	out, err := os.OpenFile(localPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("create local file %q: %w", localPath, err)
	}
	written, err := io.Copy(out, reader)
	if closeErr := out.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return fmt.Errorf("copy object %q: %w", file.ObjectPath, err)
	}
	if file.FileSizeBytes > 0 && written != file.FileSizeBytes {
		return fmt.Errorf("object %q: read %d bytes, listed size %d", file.ObjectPath, written, file.FileSizeBytes)
	}
	return nil
}
