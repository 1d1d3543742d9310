package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestNewLocalStorage(t *testing.T) {
	storage := NewLocalStorage("/tmp/test")

	if storage == nil {
		t.Fatal("NewLocalStorage() returned nil")
	}

	if storage.basePath != "/tmp/test" {
		t.Errorf("basePath = %q, want %q", storage.basePath, "/tmp/test")
	}
}

func writeFiles(t *testing.T, dir string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		path := filepath.Join(dir, name)
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			t.Fatalf("failed to create dir: %v", err)
		}
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatalf("failed to create file: %v", err)
		}
	}
}

func TestLocalStorageList(t *testing.T) {
	tmpDir := t.TempDir()
	writeFiles(t, tmpDir, map[string]string{
		"MOD11A1.A2020001.h17v04.006.2020010000000.hdf":     "data",
		"MOD11A1.A2020001.h17v04.006.2020010000000.hdf.xml": "<xml/>",
		"MOD11A1.A2020002.h17v04.006.2020010000000.hdf.part": "partial",
		"subdir/nested.hdf": "nested",
	})

	storage := NewLocalStorage(tmpDir)
	files, err := storage.List(context.Background())
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}

	// Partial files and subdirectories are not part of the inventory
	if len(files) != 2 {
		t.Fatalf("len(files) = %d, want 2: %v", len(files), files)
	}
	if files[0].Name != "MOD11A1.A2020001.h17v04.006.2020010000000.hdf" {
		t.Errorf("files[0].Name = %q", files[0].Name)
	}
	if files[0].Size != 4 {
		t.Errorf("files[0].Size = %d, want 4", files[0].Size)
	}
}

func TestLocalStorageListNonExistent(t *testing.T) {
	storage := NewLocalStorage("/nonexistent/path")
	_, err := storage.List(context.Background())
	if err == nil {
		t.Error("List() should error for non-existent path")
	}
}

func TestLocalStorageCreateCommit(t *testing.T) {
	tmpDir := t.TempDir()
	storage := NewLocalStorage(tmpDir)
	name := "MOD11A1.A2020001.h17v04.006.2020010000000.hdf"

	w, err := storage.Create(name)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if _, err := w.Write([]byte("payload")); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	if _, err := os.Stat(storage.Path(name)); !os.IsNotExist(err) {
		t.Error("final file should not exist before Commit")
	}

	if err := storage.Commit(name); err != nil {
		t.Fatalf("Commit() error = %v", err)
	}

	content, err := os.ReadFile(storage.Path(name))
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if string(content) != "payload" {
		t.Errorf("content = %q, want %q", content, "payload")
	}
	if _, err := os.Stat(storage.PartialPath(name)); !os.IsNotExist(err) {
		t.Error("partial file should be gone after Commit")
	}
}

func TestLocalStorageDiscard(t *testing.T) {
	tmpDir := t.TempDir()
	storage := NewLocalStorage(tmpDir)

	// Discarding a missing partial is not an error
	if err := storage.Discard("missing.hdf"); err != nil {
		t.Errorf("Discard() on missing file error = %v", err)
	}

	w, err := storage.Create("a.hdf")
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	_ = w.Close()

	if err := storage.Discard("a.hdf"); err != nil {
		t.Fatalf("Discard() error = %v", err)
	}
	if _, err := os.Stat(storage.PartialPath("a.hdf")); !os.IsNotExist(err) {
		t.Error("partial file should be removed")
	}
}

func TestLocalStorageRemoveEmpty(t *testing.T) {
	const (
		empty    = "MOD11A1.A2020010.h18v04.061.2020011000000.hdf"
		full     = "MOD11A1.A2020009.h18v04.061.2020010000000.hdf"
		manifest = "listfileMOD11A1.061.txt"
		notes    = "notes.txt"
	)
	tmpDir := t.TempDir()
	writeFiles(t, tmpDir, map[string]string{
		empty:    "",
		full:     "data",
		manifest: "",
		notes:    "",
	})

	storage := NewLocalStorage(tmpDir)
	removed, err := storage.RemoveEmpty(context.Background())
	if err != nil {
		t.Fatalf("RemoveEmpty() error = %v", err)
	}

	if len(removed) != 1 || removed[0] != empty {
		t.Errorf("removed = %v, want [%s]", removed, empty)
	}
	if _, err := os.Stat(filepath.Join(tmpDir, empty)); !os.IsNotExist(err) {
		t.Errorf("%s should be removed", empty)
	}
	for _, name := range []string{full, manifest, notes} {
		if _, err := os.Stat(filepath.Join(tmpDir, name)); err != nil {
			t.Errorf("%s should be kept: %v", name, err)
		}
	}
}

func TestLocalStoragePathStaysInBase(t *testing.T) {
	storage := NewLocalStorage("/data")

	if got := storage.Path("../etc/passwd"); got != "/data/passwd" {
		t.Errorf("Path() = %q, want %q", got, "/data/passwd")
	}
}

func TestCheckWritable(t *testing.T) {
	tmpDir := t.TempDir()

	if err := CheckWritable(tmpDir); err != nil {
		t.Errorf("CheckWritable(tempdir) error = %v", err)
	}
	if err := CheckWritable(filepath.Join(tmpDir, "missing")); err == nil {
		t.Error("CheckWritable(missing) should error")
	}

	file := filepath.Join(tmpDir, "file")
	writeFiles(t, tmpDir, map[string]string{"file": "x"})
	if err := CheckWritable(file); err == nil {
		t.Error("CheckWritable(file) should error")
	}
}
