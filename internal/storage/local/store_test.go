package local

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/statusexport/statusexport/internal/storage"
)

func TestPutGetListDelete(t *testing.T) {
	root := t.TempDir()
	store, err := New(root)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	ctx := context.Background()

	for _, key := range []string{"b/part-1.parquet", "a.parquet", "_SUCCESS"} {
		if _, err := store.Put(ctx, key, bytes.NewBufferString(key), int64(len(key)), storage.PutOptions{}); err != nil {
			t.Fatalf("Put(%q) error = %v", key, err)
		}
	}

	objects, err := store.List(ctx, "")
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(objects) != 3 {
		t.Fatalf("List() = %+v", objects)
	}
	if objects[0].Key != "_SUCCESS" || objects[1].Key != "a.parquet" || objects[2].Key != "b/part-1.parquet" {
		t.Fatalf("keys = %q %q %q", objects[0].Key, objects[1].Key, objects[2].Key)
	}

	reader, err := store.Get(ctx, "b/part-1.parquet")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	body, _ := io.ReadAll(reader)
	_ = reader.Close()
	if string(body) != "b/part-1.parquet" {
		t.Fatalf("Get() body = %q", body)
	}

	if err := store.Delete(ctx, "b/part-1.parquet"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := os.Stat(filepath.Join(root, "b")); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected empty directory to be pruned, stat err = %v", err)
	}
	if _, err := store.Get(ctx, "b/part-1.parquet"); !errors.Is(err, storage.ErrObjectNotFound) {
		t.Fatalf("Get() after delete error = %v", err)
	}
	if err := store.Delete(ctx, "b/part-1.parquet"); err != nil {
		t.Fatalf("Delete() of missing object error = %v", err)
	}
}

func TestListMissingRootIsEmpty(t *testing.T) {
	store, err := New(filepath.Join(t.TempDir(), "not-yet-created"))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	objects, err := store.List(context.Background(), "")
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(objects) != 0 {
		t.Fatalf("List() = %+v", objects)
	}
}

func TestRejectsTraversalAndRelativeRoot(t *testing.T) {
	if _, err := New("relative/dir"); err == nil {
		t.Fatal("expected error for relative root")
	}
	store, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if _, err := store.Put(context.Background(), "../escape", bytes.NewBufferString("x"), 1, storage.PutOptions{}); err == nil {
		t.Fatal("expected traversal error")
	}
}

func TestGetMissingObject(t *testing.T) {
	store, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if _, err := store.Get(context.Background(), "nope.parquet"); !errors.Is(err, storage.ErrObjectNotFound) {
		t.Fatalf("Get() error = %v, want ErrObjectNotFound", err)
	}
}
