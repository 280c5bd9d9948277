package configwatch

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/cubrid-go/memmon/internal/memmon"
)

func TestWatcherAppliesInitialConfig(t *testing.T) {
	memmon.Finalize()
	t.Cleanup(memmon.Finalize)

	state := memmon.Initialize(t.Name(), memmon.WithEnabled(true), memmon.WithSourceRootMarkers([]string{"/src/"}))

	dir := t.TempDir()
	path := filepath.Join(dir, "memmon.json")

	if err := os.WriteFile(path, []byte(`{"source_root_markers":["/custom/"]}`), 0o644); err != nil {
		t.Fatalf("writing initial config: %v", err)
	}

	w, err := New(path, state)
	if err != nil {
		t.Skipf("fsnotify not supported in this environment: %v", err)
	}
	defer w.Close()

	markers := state.SourceRootMarkers()
	if len(markers) != 1 || markers[0] != "/custom/" {
		t.Fatalf("SourceRootMarkers = %v, want [/custom/]", markers)
	}
}

func TestWatcherHotReloadsOnWrite(t *testing.T) {
	memmon.Finalize()
	t.Cleanup(memmon.Finalize)

	state := memmon.Initialize(t.Name(), memmon.WithEnabled(true), memmon.WithSourceRootMarkers([]string{"/src/"}))

	dir := t.TempDir()
	path := filepath.Join(dir, "memmon.json")

	if err := os.WriteFile(path, []byte(`{"source_root_markers":["/src/"]}`), 0o644); err != nil {
		t.Fatalf("writing initial config: %v", err)
	}

	w, err := New(path, state)
	if err != nil {
		t.Skipf("fsnotify not supported in this environment: %v", err)
	}
	defer w.Close()

	if err := os.WriteFile(path, []byte(`{"source_root_markers":["/updated/"]}`), 0o644); err != nil {
		t.Fatalf("rewriting config: %v", err)
	}

	deadline := time.After(2 * time.Second)
	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			markers := state.SourceRootMarkers()
			if len(markers) == 1 && markers[0] == "/updated/" {
				return
			}
		case <-deadline:
			t.Fatalf("timed out waiting for hot reload, markers = %v", state.SourceRootMarkers())
		}
	}
}

func TestWatcherRejectsNilState(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "memmon.json")

	if err := os.WriteFile(path, []byte(`{}`), 0o644); err != nil {
		t.Fatalf("writing config: %v", err)
	}

	if _, err := New(path, nil); err == nil {
		t.Fatal("expected an error for a nil process state")
	}
}
