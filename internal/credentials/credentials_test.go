package credentials

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

func newTestStore(t *testing.T) *FileStore {
	t.Helper()
	store, err := NewFileStore(filepath.Join(t.TempDir(), "credentials.json"))
	if err != nil {
		t.Fatalf("NewFileStore() error = %v", err)
	}
	return store
}

func TestLoadMissingFile(t *testing.T) {
	store := newTestStore(t)

	_, err := store.Load()
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Load() error = %v, want ErrNotFound", err)
	}
}

func TestSaveAndLoad(t *testing.T) {
	store := newTestStore(t)

	saved := &Credentials{
		OrganizationID: "org-abc123",
		SessionToken:   "sk-ant-sid01-token",
	}
	if err := store.Save(saved); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	loaded, err := store.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if loaded.OrganizationID != saved.OrganizationID {
		t.Errorf("OrganizationID = %q, want %q", loaded.OrganizationID, saved.OrganizationID)
	}
	if loaded.SessionToken != saved.SessionToken {
		t.Errorf("SessionToken = %q, want %q", loaded.SessionToken, saved.SessionToken)
	}
}

func TestSaveFilePermissions(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("file modes not enforced on windows")
	}
	store := newTestStore(t)

	if err := store.Save(&Credentials{OrganizationID: "org", SessionToken: "tok"}); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	info, err := os.Stat(store.filePath)
	if err != nil {
		t.Fatalf("Stat() error = %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("credentials file mode = %o, want 0600", perm)
	}
}

func TestSaveOverwrites(t *testing.T) {
	store := newTestStore(t)

	if err := store.Save(&Credentials{OrganizationID: "org-1", SessionToken: "old"}); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if err := store.Save(&Credentials{OrganizationID: "org-2", SessionToken: "new"}); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	loaded, err := store.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if loaded.SessionToken != "new" || loaded.OrganizationID != "org-2" {
		t.Errorf("Load() = %+v, want updated credentials", loaded)
	}
}

func TestDelete(t *testing.T) {
	store := newTestStore(t)

	if err := store.Save(&Credentials{OrganizationID: "org", SessionToken: "tok"}); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if err := store.Delete(); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}

	if _, err := store.Load(); !errors.Is(err, ErrNotFound) {
		t.Errorf("Load() after delete error = %v, want ErrNotFound", err)
	}

	// Deleting again is a no-op.
	if err := store.Delete(); err != nil {
		t.Errorf("Delete() on missing file error = %v", err)
	}
}

func TestLoadEmptyToken(t *testing.T) {
	store := newTestStore(t)

	if err := os.WriteFile(store.filePath, []byte(`{"organization_id":"org","session_token":""}`), 0600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	if _, err := store.Load(); !errors.Is(err, ErrNotFound) {
		t.Errorf("Load() error = %v, want ErrNotFound for empty token", err)
	}
}

func TestLoadCorruptFile(t *testing.T) {
	store := newTestStore(t)

	if err := os.WriteFile(store.filePath, []byte("{not json"), 0600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	if _, err := store.Load(); err == nil || errors.Is(err, ErrNotFound) {
		t.Errorf("Load() error = %v, want parse failure", err)
	}
}
