package assistant

import (
	"context"
	"iter"
	"sync"
	"testing"
	"time"

	"github.com/halcyonworks/tempo/kernel/model"
)

var fixedNow = time.Date(2024, time.June, 15, 10, 0, 0, 0, time.UTC)

// scriptStep is one scripted Generate invocation: either a response sequence
// or a terminal error.
type scriptStep struct {
	responses []*model.Response
	err       error
}

// stubLLM replays scripted steps in order and records every request it saw.
type stubLLM struct {
	mu       sync.Mutex
	steps    []scriptStep
	requests []model.Request
}

func (s *stubLLM) Name() string { return "stub" }

func (s *stubLLM) Generate(ctx context.Context, req *model.Request) iter.Seq2[*model.Response, error] {
	s.mu.Lock()
	s.requests = append(s.requests, *req)
	var step scriptStep
	if len(s.steps) > 0 {
		step = s.steps[0]
		s.steps = s.steps[1:]
	}
	s.mu.Unlock()

	return func(yield func(*model.Response, error) bool) {
		if step.err != nil {
			yield(nil, step.err)
			return
		}
		for _, res := range step.responses {
			if !yield(res, nil) {
				return
			}
		}
	}
}

func (s *stubLLM) requestCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}

func (s *stubLLM) request(i int) model.Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requests[i]
}

func finalText(text string) *model.Response {
	return &model.Response{
		Message:      model.Message{Role: model.RoleAssistant, Text: text},
		TurnComplete: true,
		Usage:        model.Usage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15},
	}
}

func finalCalls(calls ...model.ToolCall) *model.Response {
	return &model.Response{
		Message: model.Message{Role: model.RoleAssistant, ToolCalls: calls},
	}
}

func partial(text, thought string) *model.Response {
	return &model.Response{
		Message: model.Message{Role: model.RoleAssistant, Text: text, Thought: thought},
		Partial: true,
	}
}

// blockingLLM parks every Generate call until its context is cancelled.
type blockingLLM struct {
	once    sync.Once
	started chan struct{}
}

func newBlockingLLM() *blockingLLM {
	return &blockingLLM{started: make(chan struct{})}
}

func (b *blockingLLM) Name() string { return "blocking" }

func (b *blockingLLM) Generate(ctx context.Context, req *model.Request) iter.Seq2[*model.Response, error] {
	return func(yield func(*model.Response, error) bool) {
		b.once.Do(func() { close(b.started) })
		<-ctx.Done()
		yield(nil, ctx.Err())
	}
}

// stallingStreamLLM yields one partial chunk, then parks until its context
// is cancelled.
type stallingStreamLLM struct {
	once    sync.Once
	started chan struct{}
}

func newStallingStreamLLM() *stallingStreamLLM {
	return &stallingStreamLLM{started: make(chan struct{})}
}

func (s *stallingStreamLLM) Name() string { return "stalling" }

func (s *stallingStreamLLM) Generate(ctx context.Context, req *model.Request) iter.Seq2[*model.Response, error] {
	return func(yield func(*model.Response, error) bool) {
		if !yield(partial("Working on it", ""), nil) {
			return
		}
		s.once.Do(func() { close(s.started) })
		<-ctx.Done()
		yield(nil, ctx.Err())
	}
}

// callLog records executor invocations by tool name.
type callLog struct {
	mu    sync.Mutex
	names []string
}

func (l *callLog) add(name string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.names = append(l.names, name)
}

func (l *callLog) snapshot() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, len(l.names))
	copy(out, l.names)
	return out
}

// testExecutors binds all nine executors to a shared call log. Individual
// tests override fields to inject failures.
func testExecutors(log *callLog) Executors {
	record := func(name string) func(context.Context) (any, error) {
		return func(context.Context) (any, error) {
			log.add(name)
			return "ok", nil
		}
	}
	return Executors{
		GetRelationshipStatus: record(ToolGetRelationshipStatus),
		GetLifeContext: func(ctx context.Context, q LifeContextQuery) (any, error) {
			log.add(ToolGetLifeContext)
			return map[string]any{"date": q.Date}, nil
		},
		ProposeOrchestration: func(ctx context.Context, p OrchestrationProposal) (any, error) {
			log.add(ToolProposeOrchestration)
			return "accepted", nil
		},
		UpdateRelationshipStatus: func(ctx context.Context, u RelationshipUpdate) (any, error) {
			log.add(ToolUpdateRelationshipStatus)
			return "updated " + u.PersonName, nil
		},
		AddTask: func(ctx context.Context, d TaskDraft) (any, error) {
			log.add(ToolAddTask)
			return "added " + d.Title, nil
		},
		DeleteTask: func(ctx context.Context, d TaskDeletion) (any, error) {
			log.add(ToolDeleteTask)
			return "deleted", nil
		},
		DeleteRelationshipStatus: func(ctx context.Context, d RelationshipDeletion) (any, error) {
			log.add(ToolDeleteRelationshipStatus)
			return "deleted", nil
		},
		SaveMemory: func(ctx context.Context, d MemoryDraft) (any, error) {
			log.add(ToolSaveMemory)
			return "saved", nil
		},
		MoveTasks: func(ctx context.Context, mv TaskMove) (any, error) {
			log.add(ToolMoveTasks)
			return "moved", nil
		},
	}
}

func newTestManager(t *testing.T, llm model.LLM, execs Executors) *Manager {
	t.Helper()
	m, err := New(Config{
		Model:          llm,
		Clock:          func() time.Time { return fixedNow },
		RetryBaseDelay: time.Millisecond,
	}, execs)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(m.Close)
	return m
}
