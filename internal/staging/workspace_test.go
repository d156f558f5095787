package staging

import (
	"os"
	"path/filepath"
	"testing"
)

func TestOpenCreatesWorkspace(t *testing.T) {
	root := t.TempDir()
	ws, err := Open(root, "vid_0123456789ab")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if ws.Dir != filepath.Join(root, "vid_0123456789ab") {
		t.Fatalf("unexpected dir %s", ws.Dir)
	}
	if info, err := os.Stat(ws.Dir); err != nil || !info.IsDir() {
		t.Fatalf("workspace not created: %v", err)
	}
	if filepath.Base(ws.ScenePath(3)) != "scene_03.mp4" || filepath.Base(ws.NormalizedPath(10)) != "norm_10.mp4" {
		t.Fatalf("unexpected scene paths %s %s", ws.ScenePath(3), ws.NormalizedPath(10))
	}
}

func TestOpenRejectsBadIDs(t *testing.T) {
	root := t.TempDir()
	for _, id := range []string{"", "vid_", "../vid_x", "vid_a/b", "job_123"} {
		if _, err := Open(root, id); err == nil {
			t.Errorf("expected error for id %q", id)
		}
	}
	if _, err := Open("", "vid_0123456789ab"); err == nil {
		t.Error("expected error for empty root")
	}
}

func TestPruneIntermediatesKeepsOutputs(t *testing.T) {
	ws, err := Open(t.TempDir(), "vid_0123456789ab")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	for _, path := range []string{
		ws.ScenePath(0), ws.ScenePath(1), ws.NormalizedPath(0),
		filepath.Join(ws.Dir, ".scene_02.mp4.123.part"),
		ws.AssembledPath(), ws.SubtitlePath(),
	} {
		if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	if err := ws.PruneIntermediates(); err != nil {
		t.Fatalf("PruneIntermediates: %v", err)
	}
	entries, err := os.ReadDir(ws.Dir)
	if err != nil {
		t.Fatal(err)
	}
	var names []string
	for _, entry := range entries {
		names = append(names, entry.Name())
	}
	if len(names) != 2 || names[0] != "assembled.mp4" || names[1] != "captions.srt" {
		t.Fatalf("unexpected remaining files %v", names)
	}

	if err := ws.Remove(); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if _, err := os.Stat(ws.Dir); !os.IsNotExist(err) {
		t.Fatal("expected workspace removed")
	}
}
