package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/zhouzirui/chatdesk/backend/internal/storage"
)

func TestSQLiteStore_GetMissingKey(t *testing.T) {
	store, err := New("file:settings1?mode=memory&cache=shared")
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer store.Close()

	if _, err := store.Get(context.Background(), "absent"); !storage.IsNotFound(err) {
		t.Fatalf("Get() error = %v, want ErrNotFound", err)
	}
}

func TestSQLiteStore_PutOverwrites(t *testing.T) {
	store, err := New("file:settings2?mode=memory&cache=shared")
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	if err := store.Put(ctx, "k", "first"); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if err := store.Put(ctx, "k", "second"); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	got, err := store.Get(ctx, "k")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got != "second" {
		t.Errorf("Get() = %q, want %q", got, "second")
	}
}

func TestSQLiteStore_SurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.db")
	ctx := context.Background()

	store, err := New(path)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := store.Put(ctx, "chatbot_session_id", "session_abc"); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	store.Close()

	reopened, err := New(path)
	if err != nil {
		t.Fatalf("New() reopen error = %v", err)
	}
	defer reopened.Close()

	got, err := reopened.Get(ctx, "chatbot_session_id")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got != "session_abc" {
		t.Errorf("Get() = %q, want session_abc", got)
	}
}
