package versions

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
)

func TestItemRepoLifecycle(t *testing.T) {
	tempDir := t.TempDir()
	svc := New(tempDir)

	initial := Snapshot{
		ItemTypeID: "it-article",
		Status:     "draft",
		Fields: map[string]any{
			"title": "First draft",
			"body": map[string]any{
				"schema": "dast",
				"document": map[string]any{
					"type": "root",
					"children": []any{
						map[string]any{"type": "paragraph", "children": []any{
							map[string]any{"type": "span", "value": "hello"},
						}},
					},
				},
			},
		},
	}

	if err := svc.EnsureItemRepo("item-1", initial, "Avery"); err != nil {
		t.Fatalf("EnsureItemRepo() error = %v", err)
	}
	if _, err := os.Stat(filepath.Join(tempDir, "item-1")); err != nil {
		t.Fatalf("repo directory missing: %v", err)
	}

	// Idempotent
	if err := svc.EnsureItemRepo("item-1", initial, "Avery"); err != nil {
		t.Fatalf("second EnsureItemRepo() error = %v", err)
	}

	updated := initial
	updated.Fields = map[string]any{"title": "Second draft"}
	commit, err := svc.CommitItem("item-1", updated, "Avery", "Update title")
	if err != nil {
		t.Fatalf("CommitItem() error = %v", err)
	}
	if commit.Hash == "" {
		t.Fatal("expected commit hash")
	}

	head, headCommit, err := svc.Head("item-1")
	if err != nil {
		t.Fatalf("Head() error = %v", err)
	}
	if head.Fields["title"] != "Second draft" {
		t.Fatalf("unexpected head snapshot: %+v", head)
	}
	if headCommit.Hash != commit.Hash {
		t.Fatalf("head commit %s, want %s", headCommit.Hash, commit.Hash)
	}

	history, err := svc.History("item-1", 10)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("history entries = %d, want 2", len(history))
	}
	if history[0].Hash != commit.Hash {
		t.Fatalf("newest history entry %s, want %s", history[0].Hash, commit.Hash)
	}

	baseline, err := svc.GetByHash("item-1", history[1].Hash)
	if err != nil {
		t.Fatalf("GetByHash() error = %v", err)
	}
	if baseline.Fields["title"] != "First draft" {
		t.Fatalf("unexpected baseline snapshot: %+v", baseline)
	}
}

func TestHistoryLimit(t *testing.T) {
	tempDir := t.TempDir()
	svc := New(tempDir)

	if err := svc.EnsureItemRepo("item-1", Snapshot{ItemTypeID: "it-a", Status: "draft"}, "Avery"); err != nil {
		t.Fatalf("EnsureItemRepo() error = %v", err)
	}
	for i := 0; i < 5; i++ {
		snapshot := Snapshot{ItemTypeID: "it-a", Status: "draft", Fields: map[string]any{"n": i}}
		if _, err := svc.CommitItem("item-1", snapshot, "Avery", fmt.Sprintf("Edit %d", i)); err != nil {
			t.Fatalf("CommitItem(%d) error = %v", i, err)
		}
	}

	history, err := svc.History("item-1", 3)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(history) != 3 {
		t.Fatalf("history entries = %d, want 3", len(history))
	}
}

func TestConcurrentCommitsSerialize(t *testing.T) {
	tempDir := t.TempDir()
	svc := New(tempDir)

	if err := svc.EnsureItemRepo("item-1", Snapshot{ItemTypeID: "it-a", Status: "draft"}, "Avery"); err != nil {
		t.Fatalf("EnsureItemRepo() error = %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			snapshot := Snapshot{ItemTypeID: "it-a", Status: "draft", Fields: map[string]any{"n": n}}
			if _, err := svc.CommitItem("item-1", snapshot, "Avery", fmt.Sprintf("Edit %d", n)); err != nil {
				t.Errorf("CommitItem(%d) error = %v", n, err)
			}
		}(i)
	}
	wg.Wait()

	history, err := svc.History("item-1", 0)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(history) != 9 {
		t.Fatalf("history entries = %d, want baseline plus 8 edits", len(history))
	}
}

func TestMissingRepo(t *testing.T) {
	svc := New(t.TempDir())
	if _, _, err := svc.Head("missing"); err == nil {
		t.Fatal("expected error for missing repo")
	}
	if _, err := svc.History("missing", 0); err == nil {
		t.Fatal("expected error for missing repo")
	}
}
