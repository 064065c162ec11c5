package logging

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeAged(t *testing.T, path string, age time.Duration) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte("data"), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
	when := time.Now().Add(-age)
	if err := os.Chtimes(path, when, when); err != nil {
		t.Fatalf("chtimes: %v", err)
	}
}

const day = 24 * time.Hour

func TestCleanup_OldLogs(t *testing.T) {
	baseDir := t.TempDir()

	oldFile := filepath.Join(baseDir, FileName(time.Now().AddDate(0, 0, -60)))
	writeAged(t, oldFile, 60*day)
	recentFile := filepath.Join(baseDir, FileName(time.Now()))
	writeAged(t, recentFile, 0)

	cleaner := NewCleaner(baseDir, 30) // 30 days retention
	deleted, err := cleaner.Cleanup()
	if err != nil {
		t.Fatalf("Cleanup() error = %v", err)
	}

	if deleted != 1 {
		t.Errorf("deleted = %d, want 1", deleted)
	}
	if _, err := os.Stat(oldFile); !os.IsNotExist(err) {
		t.Error("Old file should be deleted")
	}
	if _, err := os.Stat(recentFile); err != nil {
		t.Error("Recent file should still exist")
	}
}

func TestCleanup_KeepsNonLogFiles(t *testing.T) {
	baseDir := t.TempDir()

	other := filepath.Join(baseDir, "notes.txt")
	writeAged(t, other, 90*day)

	deleted, err := NewCleaner(baseDir, 30).Cleanup()
	if err != nil {
		t.Fatalf("Cleanup() error = %v", err)
	}
	if deleted != 0 {
		t.Errorf("deleted = %d, want 0", deleted)
	}
	if _, err := os.Stat(other); err != nil {
		t.Error("non-log file should be kept")
	}
}

func TestCleanup_EmptyDirectories(t *testing.T) {
	baseDir := t.TempDir()

	oldDir := filepath.Join(baseDir, "archive", "2020")
	writeAged(t, filepath.Join(oldDir, "old.log"), 60*day)

	if _, err := NewCleaner(baseDir, 30).Cleanup(); err != nil {
		t.Fatalf("Cleanup() error = %v", err)
	}

	if _, err := os.Stat(filepath.Join(baseDir, "archive")); !os.IsNotExist(err) {
		t.Error("Empty directories should be deleted")
	}
	if _, err := os.Stat(baseDir); err != nil {
		t.Error("Base directory should be kept")
	}
}

func TestCleaner_RetentionDays(t *testing.T) {
	tests := []struct {
		retention int
		want      int
	}{
		{7, 1},
		{30, 0},
		{0, 0},
	}
	for _, tt := range tests {
		baseDir := t.TempDir()
		writeAged(t, filepath.Join(baseDir, "test.log"), 10*day)

		deleted, err := NewCleaner(baseDir, tt.retention).Cleanup()
		if err != nil {
			t.Fatalf("Cleanup() error = %v", err)
		}
		if deleted != tt.want {
			t.Errorf("retention %d: deleted = %d, want %d", tt.retention, deleted, tt.want)
		}
	}
}

func TestCleanup_MissingDir(t *testing.T) {
	deleted, err := NewCleaner(filepath.Join(t.TempDir(), "missing"), 30).Cleanup()
	if err != nil {
		t.Fatalf("Cleanup() error = %v", err)
	}
	if deleted != 0 {
		t.Errorf("deleted = %d, want 0", deleted)
	}
}
