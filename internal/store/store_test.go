package store

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func fixedMemoryTime(i int) time.Time {
	return time.Date(2024, time.June, 15, 8, i, 0, 0, time.UTC)
}

func openTestStore(t *testing.T) *Store {
	t.Helper()
	st, err := Open(filepath.Join(t.TempDir(), "tempo.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func TestOpen_RequiresPath(t *testing.T) {
	if _, err := Open(""); err == nil {
		t.Fatalf("expected error for empty path")
	}
}

func TestRelationships_UpsertMergesNotes(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	err := st.UpsertRelationship(ctx, Relationship{
		PersonName:  "Maya",
		Category:    "friend",
		StatusLevel: "healthy",
		Notes:       "met for coffee",
	})
	if err != nil {
		t.Fatal(err)
	}
	// Second update: empty category keeps the stored one, notes append.
	err = st.UpsertRelationship(ctx, Relationship{
		PersonName:  "Maya",
		StatusLevel: "drifting",
		Notes:       "missed her birthday",
	})
	if err != nil {
		t.Fatal(err)
	}

	all, err := st.Relationships(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 1 {
		t.Fatalf("ledger size = %d, want 1", len(all))
	}
	got := all[0]
	if got.Category != "friend" {
		t.Fatalf("category = %q, want friend", got.Category)
	}
	if got.StatusLevel != "drifting" {
		t.Fatalf("status = %q, want drifting", got.StatusLevel)
	}
	if got.Notes != "met for coffee\nmissed her birthday" {
		t.Fatalf("notes = %q", got.Notes)
	}
}

func TestUpsertRelationship_RequiresName(t *testing.T) {
	st := openTestStore(t)
	if err := st.UpsertRelationship(context.Background(), Relationship{}); err == nil {
		t.Fatalf("expected error for empty person name")
	}
}

func TestDeleteRelationship(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	if err := st.UpsertRelationship(ctx, Relationship{PersonName: "Ben", StatusLevel: "close"}); err != nil {
		t.Fatal(err)
	}
	existed, err := st.DeleteRelationship(ctx, "Ben")
	if err != nil {
		t.Fatal(err)
	}
	if !existed {
		t.Fatalf("delete must report the entry existed")
	}
	existed, err = st.DeleteRelationship(ctx, "Ben")
	if err != nil {
		t.Fatal(err)
	}
	if existed {
		t.Fatalf("second delete must report absence")
	}
}

func TestTasks_AddFilterMoveDelete(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	added, err := st.AddTask(ctx, Task{
		Title: "morning run", TaskType: "flexible", DurationMinutes: 30,
		Priority: "high", Category: "health", Date: "2024-06-15",
	})
	if err != nil {
		t.Fatal(err)
	}
	if added.ID == "" {
		t.Fatalf("task id must be generated")
	}
	if _, err := st.AddTask(ctx, Task{Title: "standup", TaskType: "fixed", Time: "09:30", Date: "2024-06-16"}); err != nil {
		t.Fatal(err)
	}

	today, err := st.Tasks(ctx, "2024-06-15")
	if err != nil {
		t.Fatal(err)
	}
	if len(today) != 1 || today[0].Title != "morning run" {
		t.Fatalf("filtered tasks = %+v", today)
	}
	all, err := st.Tasks(ctx, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 2 {
		t.Fatalf("all tasks = %d, want 2", len(all))
	}

	moved, err := st.MoveTasks(ctx, []string{"morning run", "missing"}, "2024-06-16")
	if err != nil {
		t.Fatal(err)
	}
	if moved != 1 {
		t.Fatalf("moved = %d, want 1", moved)
	}
	tomorrow, err := st.Tasks(ctx, "2024-06-16")
	if err != nil {
		t.Fatal(err)
	}
	if len(tomorrow) != 2 {
		t.Fatalf("tomorrow tasks = %d, want 2", len(tomorrow))
	}

	deleted, err := st.DeleteTaskByTitle(ctx, "standup")
	if err != nil {
		t.Fatal(err)
	}
	if deleted != 1 {
		t.Fatalf("deleted = %d, want 1", deleted)
	}
	deleted, err = st.DeleteTaskByTitle(ctx, "standup")
	if err != nil {
		t.Fatal(err)
	}
	if deleted != 0 {
		t.Fatalf("repeat delete = %d, want 0", deleted)
	}
}

func TestMoveTasks_Validation(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	n, err := st.MoveTasks(ctx, nil, "2024-06-16")
	if err != nil || n != 0 {
		t.Fatalf("empty title list: n=%d err=%v", n, err)
	}
	if _, err := st.MoveTasks(ctx, []string{"x"}, " "); err == nil {
		t.Fatalf("expected error for blank target date")
	}
}

func TestMemories_NewestFirstWithLimit(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	for i, content := range []string{"first", "second", "third"} {
		_, err := st.SaveMemory(ctx, Memory{
			Content:   content,
			CreatedAt: fixedMemoryTime(i),
		})
		if err != nil {
			t.Fatal(err)
		}
	}

	got, err := st.Memories(ctx, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("memories = %d, want 2", len(got))
	}
	if got[0].Content != "third" || got[1].Content != "second" {
		t.Fatalf("order = %q, %q", got[0].Content, got[1].Content)
	}
	if got[0].Kind != "fact" {
		t.Fatalf("default kind = %q, want fact", got[0].Kind)
	}
}

func TestSaveMemory_RequiresContent(t *testing.T) {
	st := openTestStore(t)
	if _, err := st.SaveMemory(context.Background(), Memory{Content: "  "}); err == nil {
		t.Fatalf("expected error for blank content")
	}
}

func TestSaveProposal(t *testing.T) {
	st := openTestStore(t)
	schedule := []map[string]any{{"title": "run", "start_time": "07:00", "duration_minutes": 30}}
	p, err := st.SaveProposal(context.Background(), "a calm morning", "front-load focus work", schedule)
	if err != nil {
		t.Fatal(err)
	}
	if p.ID == "" {
		t.Fatalf("proposal id must be generated")
	}
	if !strings.Contains(p.Schedule, `"start_time":"07:00"`) {
		t.Fatalf("schedule json = %q", p.Schedule)
	}
}
