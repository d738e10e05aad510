package bridge

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestParseAdminList(t *testing.T) {
	list := ParseAdminList(" @a:example.org, ,@b:example.org,,")
	if len(list) != 2 {
		t.Fatalf("expected 2 admins, got %v", list)
	}
	if !list.IsAdmin("@a:example.org") || !list.IsAdmin("@b:example.org") {
		t.Fatalf("parsed admins not matched: %v", list)
	}
	if list.IsAdmin("@c:example.org") {
		t.Fatalf("unexpected admin match")
	}
	if list.IsAdmin("@a:example.org ") {
		t.Fatalf("matching must be exact, not fuzzy")
	}
}

func TestMultiAdminList(t *testing.T) {
	multi := MultiAdminList{
		StaticAdminList{"@a:example.org"},
		nil,
		StaticAdminList{"@b:example.org"},
	}
	if !multi.IsAdmin("@a:example.org") || !multi.IsAdmin("@b:example.org") {
		t.Fatalf("combined list missed a member")
	}
	if multi.IsAdmin("@c:example.org") {
		t.Fatalf("unexpected member")
	}
	var empty MultiAdminList
	if empty.IsAdmin("@a:example.org") {
		t.Fatalf("empty list must reject everyone")
	}
}

func TestFileAdminListLoadsAndReloads(t *testing.T) {
	path := filepath.Join(t.TempDir(), "admins.yaml")
	writeAdminFile(t, path, "- \"@a:example.org\"\n")

	list, err := NewFileAdminList(path, nil)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	defer list.Close()

	if !list.IsAdmin("@a:example.org") {
		t.Fatalf("initial admin not loaded")
	}
	if list.IsAdmin("@b:example.org") {
		t.Fatalf("unexpected admin before reload")
	}

	writeAdminFile(t, path, "- \"@a:example.org\"\n- \"@b:example.org\"\n")
	waitFor(t, 3*time.Second, func() bool { return list.IsAdmin("@b:example.org") })
}

func TestFileAdminListKeepsOldListOnBadEdit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "admins.yaml")
	writeAdminFile(t, path, "- \"@a:example.org\"\n")

	list, err := NewFileAdminList(path, nil)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	defer list.Close()

	writeAdminFile(t, path, "{ not yaml [")
	// Give the watcher a moment to see the edit; the old list must survive.
	time.Sleep(200 * time.Millisecond)
	if !list.IsAdmin("@a:example.org") {
		t.Fatalf("valid list discarded after a bad edit")
	}
}

func TestFileAdminListRequiresPath(t *testing.T) {
	if _, err := NewFileAdminList("  ", nil); err == nil {
		t.Fatalf("expected error for empty path")
	}
	if _, err := NewFileAdminList(filepath.Join(t.TempDir(), "missing.yaml"), nil); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func writeAdminFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("condition not met within %s", timeout)
}
