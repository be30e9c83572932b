package backup

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func forEachDestination(t *testing.T, fn func(t *testing.T, d Destination)) {
	t.Helper()

	t.Run("memory", func(t *testing.T) {
		fn(t, NewMemoryDestination())
	})
	t.Run("filesystem", func(t *testing.T) {
		d, err := NewFileSystemDestination(filepath.Join(t.TempDir(), "backups"))
		if err != nil {
			t.Fatalf("NewFileSystemDestination() error = %v", err)
		}
		fn(t, d)
	})
	t.Run("s3", func(t *testing.T) {
		fn(t, NewS3Destination(newFakeS3(), "prices", "unitprice"))
	})
}

func TestDestination_PutGet(t *testing.T) {
	forEachDestination(t, func(t *testing.T, d Destination) {
		data := []byte("snapshot bytes")
		if err := d.Put("db", bytes.NewReader(data), int64(len(data)), 42); err != nil {
			t.Fatalf("Put() error = %v", err)
		}

		var buf bytes.Buffer
		if err := d.Get("db", &buf); err != nil {
			t.Fatalf("Get() error = %v", err)
		}
		if !bytes.Equal(buf.Bytes(), data) {
			t.Errorf("Get() = %q, want %q", buf.Bytes(), data)
		}

		version, err := d.Version("db")
		if err != nil {
			t.Fatalf("Version() error = %v", err)
		}
		if version != 42 {
			t.Errorf("Version() = %d, want 42", version)
		}
	})
}

func TestDestination_PutOverwrites(t *testing.T) {
	forEachDestination(t, func(t *testing.T, d Destination) {
		if err := d.Put("db", strings.NewReader("old"), 3, 1); err != nil {
			t.Fatalf("Put() error = %v", err)
		}
		if err := d.Put("db", strings.NewReader("newer"), 5, 2); err != nil {
			t.Fatalf("Put() error = %v", err)
		}

		var buf bytes.Buffer
		if err := d.Get("db", &buf); err != nil {
			t.Fatalf("Get() error = %v", err)
		}
		if buf.String() != "newer" {
			t.Errorf("Get() = %q, want %q", buf.String(), "newer")
		}
		if v, _ := d.Version("db"); v != 2 {
			t.Errorf("Version() = %d, want 2", v)
		}
	})
}

func TestDestination_Missing(t *testing.T) {
	forEachDestination(t, func(t *testing.T, d Destination) {
		version, err := d.Version("db")
		if err != nil {
			t.Fatalf("Version() error = %v", err)
		}
		if version != 0 {
			t.Errorf("Version() = %d, want 0", version)
		}

		err = d.Get("db", &bytes.Buffer{})
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("Get() error = %v, want ErrNotFound", err)
		}
	})
}

func TestDestination_SizeMismatch(t *testing.T) {
	forEachDestination(t, func(t *testing.T, d Destination) {
		if err := d.Put("db", strings.NewReader("abc"), 10, 1); err == nil {
			t.Fatal("Put() expected error for size mismatch")
		}
		if _, ok := d.(*S3Destination); ok {
			return
		}
		if v, _ := d.Version("db"); v != 0 {
			t.Errorf("Version() = %d after failed Put, want 0", v)
		}
	})
}

func TestDestination_ValidateSetup(t *testing.T) {
	forEachDestination(t, func(t *testing.T, d Destination) {
		if err := d.ValidateSetup(); err != nil {
			t.Errorf("ValidateSetup() error = %v", err)
		}
	})
}

func TestFileSystemDestination_ValidateSetup_RootRemoved(t *testing.T) {
	root := filepath.Join(t.TempDir(), "backups")
	d, err := NewFileSystemDestination(root)
	if err != nil {
		t.Fatalf("NewFileSystemDestination() error = %v", err)
	}
	if err := os.RemoveAll(root); err != nil {
		t.Fatalf("RemoveAll() error = %v", err)
	}

	if err := d.ValidateSetup(); err == nil {
		t.Error("ValidateSetup() expected error for missing root")
	}
}

func TestFileSystemDestination_AtomicWrite(t *testing.T) {
	root := t.TempDir()
	d, err := NewFileSystemDestination(root)
	if err != nil {
		t.Fatalf("NewFileSystemDestination() error = %v", err)
	}

	if err := d.Put("db", strings.NewReader("short"), 100, 1); err == nil {
		t.Fatal("Put() expected error for size mismatch")
	}

	entries, err := os.ReadDir(root)
	if err != nil {
		t.Fatalf("ReadDir() error = %v", err)
	}
	if len(entries) != 0 {
		var names []string
		for _, e := range entries {
			names = append(names, e.Name())
		}
		t.Errorf("backup root has leftover files %v", names)
	}
}

func TestFileSystemDestination_Layout(t *testing.T) {
	root := t.TempDir()
	d, err := NewFileSystemDestination(root)
	if err != nil {
		t.Fatalf("NewFileSystemDestination() error = %v", err)
	}
	if err := d.Put("db", strings.NewReader("x"), 1, 7); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	got, err := os.ReadFile(filepath.Join(root, "db.version"))
	if err != nil {
		t.Fatalf("reading version file: %v", err)
	}
	if string(got) != "7" {
		t.Errorf("version file = %q, want %q", got, "7")
	}
}
