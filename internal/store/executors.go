package store

import (
	"context"
	"fmt"
	"time"

	"github.com/halcyonworks/tempo/kernel/assistant"
)

// NewExecutors binds the nine assistant executors to the sqlite store.
func NewExecutors(st *Store) assistant.Executors {
	return assistant.Executors{
		GetRelationshipStatus: func(ctx context.Context) (any, error) {
			return st.Relationships(ctx)
		},
		GetLifeContext: func(ctx context.Context, q assistant.LifeContextQuery) (any, error) {
			date := q.Date
			if date == "" {
				date = time.Now().Format("2006-01-02")
			}
			tasks, err := st.Tasks(ctx, date)
			if err != nil {
				return nil, err
			}
			memories, err := st.Memories(ctx, 50)
			if err != nil {
				return nil, err
			}
			return map[string]any{
				"date":     date,
				"tasks":    tasks,
				"memories": memories,
			}, nil
		},
		ProposeOrchestration: func(ctx context.Context, p assistant.OrchestrationProposal) (any, error) {
			saved, err := st.SaveProposal(ctx, p.Timeline, p.Reasoning, p.Schedule)
			if err != nil {
				return nil, err
			}
			return map[string]any{"proposal_id": saved.ID, "accepted": true}, nil
		},
		UpdateRelationshipStatus: func(ctx context.Context, u assistant.RelationshipUpdate) (any, error) {
			err := st.UpsertRelationship(ctx, Relationship{
				PersonName:  u.PersonName,
				Category:    u.Category,
				Relation:    u.Relation,
				StatusLevel: u.StatusLevel,
				Notes:       u.NotesUpdate,
			})
			if err != nil {
				return nil, err
			}
			return fmt.Sprintf("relationship with %s updated", u.PersonName), nil
		},
		AddTask: func(ctx context.Context, d assistant.TaskDraft) (any, error) {
			task, err := st.AddTask(ctx, Task{
				Title:           d.Title,
				TaskType:        d.TaskType,
				DurationMinutes: d.DurationMinutes,
				Priority:        d.Priority,
				Category:        d.Category,
				Time:            d.Time,
				Date:            d.Date,
				Recurrence:      d.Recurrence,
			})
			if err != nil {
				return nil, err
			}
			return task, nil
		},
		DeleteTask: func(ctx context.Context, d assistant.TaskDeletion) (any, error) {
			n, err := st.DeleteTaskByTitle(ctx, d.Title)
			if err != nil {
				return nil, err
			}
			if n == 0 {
				return nil, fmt.Errorf("no task titled %q", d.Title)
			}
			return fmt.Sprintf("deleted %d task(s)", n), nil
		},
		DeleteRelationshipStatus: func(ctx context.Context, d assistant.RelationshipDeletion) (any, error) {
			existed, err := st.DeleteRelationship(ctx, d.PersonName)
			if err != nil {
				return nil, err
			}
			if !existed {
				return nil, fmt.Errorf("no relationship entry for %q", d.PersonName)
			}
			return fmt.Sprintf("removed %s from the ledger", d.PersonName), nil
		},
		SaveMemory: func(ctx context.Context, d assistant.MemoryDraft) (any, error) {
			saved, err := st.SaveMemory(ctx, Memory{Content: d.Content, Kind: d.Kind})
			if err != nil {
				return nil, err
			}
			return map[string]any{"memory_id": saved.ID}, nil
		},
		MoveTasks: func(ctx context.Context, mv assistant.TaskMove) (any, error) {
			n, err := st.MoveTasks(ctx, mv.TaskTitles, mv.TargetDate)
			if err != nil {
				return nil, err
			}
			return fmt.Sprintf("moved %d task(s) to %s", n, mv.TargetDate), nil
		},
	}
}
