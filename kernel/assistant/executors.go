package assistant

import (
	"context"
	"fmt"

	"github.com/halcyonworks/tempo/kernel/tool"
)

// Tool names exposed to the remote model. The declared parameter schemas are
// derived from the typed argument structs below, so the model-visible
// contract and the executor expectations cannot drift.
const (
	ToolGetRelationshipStatus    = "get_relationship_status"
	ToolGetLifeContext           = "get_life_context"
	ToolProposeOrchestration     = "propose_orchestration"
	ToolUpdateRelationshipStatus = "update_relationship_status"
	ToolAddTask                  = "add_task"
	ToolDeleteTask               = "delete_task"
	ToolDeleteRelationshipStatus = "delete_relationship_status"
	ToolSaveMemory               = "save_memory"
	ToolMoveTasks                = "move_tasks"
)

// LifeContextQuery optionally narrows the task inventory to one date.
type LifeContextQuery struct {
	Date string `json:"date,omitempty" desc:"Date to load context for, YYYY-MM-DD. Defaults to today."`
}

// ScheduleEntry is one placed task inside an orchestration proposal.
type ScheduleEntry struct {
	Title           string `json:"title" desc:"Task title exactly as it appears in the inventory."`
	StartTime       string `json:"start_time" desc:"Proposed start time, HH:MM 24h."`
	DurationMinutes int    `json:"duration_minutes" desc:"Planned duration in minutes."`
}

// OrchestrationProposal is the model's suggested rearrangement of the day.
type OrchestrationProposal struct {
	Timeline  string          `json:"timeline" desc:"Human-readable timeline of the proposed day."`
	Reasoning string          `json:"reasoning" desc:"Why the day was arranged this way."`
	Schedule  []ScheduleEntry `json:"schedule" desc:"Complete ordered schedule covering every task of the day."`
}

// RelationshipUpdate creates or updates one relationship ledger entry.
type RelationshipUpdate struct {
	PersonName  string `json:"person_name" desc:"Name of the person."`
	NotesUpdate string `json:"notes_update" desc:"New notes to merge into the entry."`
	StatusLevel string `json:"status_level" enum:"close|healthy|drifting|strained|dormant" desc:"Current connection level."`
	Category    string `json:"category,omitempty" enum:"family|friend|partner|colleague|community" desc:"Relationship category."`
	Relation    string `json:"relation,omitempty" desc:"How the person relates to the user, e.g. sister, manager."`
}

// TaskDraft creates one task in the inventory.
type TaskDraft struct {
	Title           string `json:"title" desc:"Short task title."`
	TaskType        string `json:"task_type" enum:"fixed|flexible" desc:"Fixed tasks have a set time; flexible ones can be moved."`
	DurationMinutes int    `json:"duration_minutes" desc:"Estimated duration in minutes."`
	Priority        string `json:"priority" enum:"high|medium|low" desc:"Task priority."`
	Category        string `json:"category" enum:"work|health|relationships|personal|errands" desc:"Life area."`
	Time            string `json:"time,omitempty" desc:"Start time HH:MM 24h, required for fixed tasks."`
	Date            string `json:"date,omitempty" desc:"Date YYYY-MM-DD. Defaults to the session's subject date."`
	Recurrence      string `json:"recurrence,omitempty" enum:"daily|weekly|monthly" desc:"Repeat cadence."`
}

// TaskDeletion removes one task by title.
type TaskDeletion struct {
	Title string `json:"title" desc:"Title of the task to delete."`
}

// RelationshipDeletion removes one relationship ledger entry.
type RelationshipDeletion struct {
	PersonName string `json:"person_name" desc:"Name of the person to remove."`
}

// MemoryDraft saves one memory about the user.
type MemoryDraft struct {
	Content string `json:"content" desc:"The memory content, one self-contained fact."`
	Kind    string `json:"kind" enum:"fact|preference|event|insight" desc:"What kind of memory this is."`
}

// TaskMove reschedules a set of tasks onto a target date.
type TaskMove struct {
	TaskTitles []string `json:"task_titles" desc:"Titles of the tasks to move."`
	TargetDate string   `json:"target_date" desc:"Destination date YYYY-MM-DD."`
}

// Executors are the nine host-supplied functions behind the tool registry.
// They are the only point where state external to this package is read or
// mutated; each returns a JSON-serializable value or an error. An executor
// error becomes that call's structured error result and never aborts
// sibling calls in the same batch.
type Executors struct {
	GetRelationshipStatus    func(context.Context) (any, error)
	GetLifeContext           func(context.Context, LifeContextQuery) (any, error)
	ProposeOrchestration     func(context.Context, OrchestrationProposal) (any, error)
	UpdateRelationshipStatus func(context.Context, RelationshipUpdate) (any, error)
	AddTask                  func(context.Context, TaskDraft) (any, error)
	DeleteTask               func(context.Context, TaskDeletion) (any, error)
	DeleteRelationshipStatus func(context.Context, RelationshipDeletion) (any, error)
	SaveMemory               func(context.Context, MemoryDraft) (any, error)
	MoveTasks                func(context.Context, TaskMove) (any, error)
}

func (e Executors) validate() error {
	missing := []string{}
	if e.GetRelationshipStatus == nil {
		missing = append(missing, ToolGetRelationshipStatus)
	}
	if e.GetLifeContext == nil {
		missing = append(missing, ToolGetLifeContext)
	}
	if e.ProposeOrchestration == nil {
		missing = append(missing, ToolProposeOrchestration)
	}
	if e.UpdateRelationshipStatus == nil {
		missing = append(missing, ToolUpdateRelationshipStatus)
	}
	if e.AddTask == nil {
		missing = append(missing, ToolAddTask)
	}
	if e.DeleteTask == nil {
		missing = append(missing, ToolDeleteTask)
	}
	if e.DeleteRelationshipStatus == nil {
		missing = append(missing, ToolDeleteRelationshipStatus)
	}
	if e.SaveMemory == nil {
		missing = append(missing, ToolSaveMemory)
	}
	if e.MoveTasks == nil {
		missing = append(missing, ToolMoveTasks)
	}
	if len(missing) > 0 {
		return fmt.Errorf("assistant: unbound executors: %v", missing)
	}
	return nil
}

// tools builds the model-visible tool registry bound to the executor set.
func (e Executors) tools() ([]tool.Tool, error) {
	if err := e.validate(); err != nil {
		return nil, err
	}

	type noArgs struct{}
	specs := []struct {
		name        string
		description string
		build       func(name, description string) (tool.Tool, error)
	}{
		{
			ToolGetRelationshipStatus,
			"Get the current relationship ledger: every tracked person with category, relation, connection level and notes.",
			func(name, description string) (tool.Tool, error) {
				return tool.NewFunction(name, description, func(ctx context.Context, _ noArgs) (map[string]any, error) {
					return wrapResult(e.GetRelationshipStatus(ctx))
				})
			},
		},
		{
			ToolGetLifeContext,
			"Get the user's life context: the task inventory for a date plus saved memories.",
			func(name, description string) (tool.Tool, error) {
				return tool.NewFunction(name, description, func(ctx context.Context, args LifeContextQuery) (map[string]any, error) {
					return wrapResult(e.GetLifeContext(ctx, args))
				})
			},
		},
		{
			ToolProposeOrchestration,
			"Propose a reorganized schedule for the day. Include every task of the day in the schedule, not only the moved ones.",
			func(name, description string) (tool.Tool, error) {
				return tool.NewFunction(name, description, func(ctx context.Context, args OrchestrationProposal) (map[string]any, error) {
					return wrapResult(e.ProposeOrchestration(ctx, args))
				})
			},
		},
		{
			ToolUpdateRelationshipStatus,
			"Create or update a relationship ledger entry for a person.",
			func(name, description string) (tool.Tool, error) {
				return tool.NewFunction(name, description, func(ctx context.Context, args RelationshipUpdate) (map[string]any, error) {
					return wrapResult(e.UpdateRelationshipStatus(ctx, args))
				})
			},
		},
		{
			ToolAddTask,
			"Add a task to the inventory.",
			func(name, description string) (tool.Tool, error) {
				return tool.NewFunction(name, description, func(ctx context.Context, args TaskDraft) (map[string]any, error) {
					return wrapResult(e.AddTask(ctx, args))
				})
			},
		},
		{
			ToolDeleteTask,
			"Delete a task from the inventory by exact title.",
			func(name, description string) (tool.Tool, error) {
				return tool.NewFunction(name, description, func(ctx context.Context, args TaskDeletion) (map[string]any, error) {
					return wrapResult(e.DeleteTask(ctx, args))
				})
			},
		},
		{
			ToolDeleteRelationshipStatus,
			"Remove a person from the relationship ledger.",
			func(name, description string) (tool.Tool, error) {
				return tool.NewFunction(name, description, func(ctx context.Context, args RelationshipDeletion) (map[string]any, error) {
					return wrapResult(e.DeleteRelationshipStatus(ctx, args))
				})
			},
		},
		{
			ToolSaveMemory,
			"Save a memory about the user for future sessions.",
			func(name, description string) (tool.Tool, error) {
				return tool.NewFunction(name, description, func(ctx context.Context, args MemoryDraft) (map[string]any, error) {
					return wrapResult(e.SaveMemory(ctx, args))
				})
			},
		},
		{
			ToolMoveTasks,
			"Move tasks, identified by title, onto a target date.",
			func(name, description string) (tool.Tool, error) {
				return tool.NewFunction(name, description, func(ctx context.Context, args TaskMove) (map[string]any, error) {
					return wrapResult(e.MoveTasks(ctx, args))
				})
			},
		},
	}

	out := make([]tool.Tool, 0, len(specs))
	for _, spec := range specs {
		built, err := spec.build(spec.name, spec.description)
		if err != nil {
			return nil, err
		}
		out = append(out, built)
	}
	return out, nil
}

// wrapResult normalizes executor output into the wire result shape keyed
// by "result".
func wrapResult(v any, err error) (map[string]any, error) {
	if err != nil {
		return nil, err
	}
	if v == nil {
		v = true
	}
	return map[string]any{"result": v}, nil
}
