package maintenance

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/aolo2/desk/internal/db"
	"github.com/aolo2/desk/internal/protocol"
)

func setupTestService(t *testing.T) (*Service, *db.Store, func()) {
	t.Helper()

	tmpDir, err := os.MkdirTemp("", "desk-maint-test-*")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}

	store, err := db.New(filepath.Join(tmpDir, "test.db"))
	if err != nil {
		os.RemoveAll(tmpDir)
		t.Fatalf("Failed to create store: %v", err)
	}

	svc := New(store, Config{Interval: time.Hour})

	cleanup := func() {
		store.Close()
		os.RemoveAll(tmpDir)
	}

	return svc, store, cleanup
}

func TestStartStop(t *testing.T) {
	svc, _, cleanup := setupTestService(t)
	defer cleanup()

	svc.Start()
	svc.Stop()
}

func TestRunNowPreservesData(t *testing.T) {
	svc, store, cleanup := setupTestService(t)
	defer cleanup()

	err := store.Append(7, db.Stroke{
		ID:     1,
		UserID: 1,
		Color:  0,
		Width:  5,
		Points: []protocol.Point{{X: 0, Y: 0}, {X: 10, Y: 10}},
	})
	if err != nil {
		t.Fatalf("Failed to append: %v", err)
	}

	svc.RunNow()

	snapshot, err := store.Snapshot(7)
	if err != nil {
		t.Fatalf("Failed to snapshot: %v", err)
	}
	if len(snapshot) != 1 {
		t.Errorf("Expected stroke to survive maintenance, got %d", len(snapshot))
	}
}
