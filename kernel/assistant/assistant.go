// Package assistant owns the conversation session with the remote model:
// it classifies each session into a temporal mode, composes the system
// instruction, dispatches model-issued tool calls to host-supplied
// executors, and reconciles streamed partial output with finalized
// tool-call results.
package assistant

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/halcyonworks/tempo/kernel/model"
	"github.com/halcyonworks/tempo/kernel/temporal"
	"github.com/halcyonworks/tempo/kernel/tool"
)

const (
	defaultMaxToolRounds  = 8
	defaultMaxRetries     = 3
	defaultRetryBaseDelay = time.Second
)

// Config controls Manager behavior.
type Config struct {
	Model  model.LLM
	Logger *zap.Logger
	// MaxToolRounds caps tool-call round trips within one turn. A model that
	// keeps requesting calls past the cap fails the turn instead of looping
	// forever. Zero means the default of 8.
	MaxToolRounds int
	// MaxRetries bounds transient-failure retries for non-streaming sends.
	// Zero means the default of 3; negative disables retries.
	MaxRetries int
	// RetryBaseDelay scales the exponential backoff. The delay before retry
	// n is RetryBaseDelay * 2^n plus jitter in [0, RetryBaseDelay). Zero
	// means one second, which yields the documented 2s/4s/8s ladder.
	RetryBaseDelay time.Duration
	// Clock supplies the current time; nil means time.Now. Tests inject a
	// fixed clock to make mode classification deterministic.
	Clock func() time.Time
}

// Manager owns the active session handle and the current temporal mode.
// Exactly one session is active at a time; starting a new one cancels the
// previous session's in-flight work before it is discarded.
type Manager struct {
	model          model.LLM
	logger         *zap.Logger
	tools          []tool.Tool
	toolMap        map[string]tool.Tool
	decls          []model.ToolDefinition
	maxToolRounds  int
	maxRetries     int
	retryBaseDelay time.Duration
	clock          func() time.Time

	mu   sync.Mutex
	sess *sessionState
}

type sessionState struct {
	id      string
	mode    temporal.Mode
	system  string
	history []model.Message
	ctx     context.Context
	cancel  context.CancelFunc
}

// New builds a Manager over the given model and executor set. All nine
// executors must be bound.
func New(cfg Config, execs Executors) (*Manager, error) {
	if cfg.Model == nil {
		return nil, fmt.Errorf("assistant: model is required")
	}
	tools, err := execs.tools()
	if err != nil {
		return nil, err
	}
	toolMap, err := tool.BuildMap(tools)
	if err != nil {
		return nil, err
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	maxToolRounds := cfg.MaxToolRounds
	if maxToolRounds <= 0 {
		maxToolRounds = defaultMaxToolRounds
	}
	maxRetries := cfg.MaxRetries
	if maxRetries == 0 {
		maxRetries = defaultMaxRetries
	}
	if maxRetries < 0 {
		maxRetries = 0
	}
	retryBaseDelay := cfg.RetryBaseDelay
	if retryBaseDelay <= 0 {
		retryBaseDelay = defaultRetryBaseDelay
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Manager{
		model:          cfg.Model,
		logger:         logger,
		tools:          tools,
		toolMap:        toolMap,
		decls:          tool.Declarations(tools),
		maxToolRounds:  maxToolRounds,
		maxRetries:     maxRetries,
		retryBaseDelay: retryBaseDelay,
		clock:          clock,
	}, nil
}

// StartSession replaces the active session with a fresh one built from the
// given context text. An empty context is synthesized from the current
// wall clock. The previous session's in-flight work is cancelled before the
// new session becomes active. The pinned temporal mode is returned.
func (m *Manager) StartSession(contextText string) temporal.Mode {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.startSessionLocked(contextText)
}

func (m *Manager) startSessionLocked(contextText string) temporal.Mode {
	now := m.clock()
	contextText = strings.TrimSpace(contextText)
	if contextText == "" {
		contextText = synthesizeContext(now)
		m.logger.Warn("assistant: session started without context, synthesizing from wall clock")
	}
	contextText = ensureTimezone(contextText, now)

	mode, err := temporal.ClassifyStrict(contextText, now)
	if err != nil {
		m.logger.Warn("assistant: temporal classification fell back to active", zap.Error(err))
	}

	if m.sess != nil {
		m.sess.cancel()
	}
	ctx, cancel := context.WithCancel(context.Background())
	m.sess = &sessionState{
		id:     uuid.NewString(),
		mode:   mode,
		system: composeSystemInstruction(mode, contextText),
		ctx:    ctx,
		cancel: cancel,
	}
	m.logger.Info("assistant: session started",
		zap.String("session_id", m.sess.id),
		zap.String("mode", string(mode)),
	)
	return mode
}

// Close cancels the active session, if any.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sess != nil {
		m.sess.cancel()
		m.sess = nil
	}
}

// Mode reports the active session's pinned temporal mode.
func (m *Manager) Mode() (temporal.Mode, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sess == nil {
		return "", false
	}
	return m.sess.mode, true
}

// SessionID reports the active session identifier.
func (m *Manager) SessionID() (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sess == nil {
		return "", false
	}
	return m.sess.id, true
}

// History returns a snapshot of the active session's transcript.
func (m *Manager) History() []model.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sess == nil {
		return nil
	}
	out := make([]model.Message, len(m.sess.history))
	copy(out, m.sess.history)
	return out
}

// ensureSession returns the active session, starting a synthesized-context
// one when none exists. The implicit start is a documented fallback for
// callers that send before starting a session; it is logged as a warning.
func (m *Manager) ensureSession() *sessionState {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sess == nil {
		m.logger.Warn("assistant: send without active session, starting default session")
		m.startSessionLocked("")
	}
	return m.sess
}

// commit installs the turn's transcript, unless the session was replaced
// while the turn was in flight.
func (m *Manager) commit(sess *sessionState, messages []model.Message) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sess == sess {
		sess.history = messages
	}
}

func synthesizeContext(now time.Time) string {
	return fmt.Sprintf("Current Date: %s\nCurrent Time: %s\nMode: live\n",
		now.Format("Monday, January 2, 2006"),
		now.Format("3:04 PM"),
	)
}

func ensureTimezone(contextText string, now time.Time) string {
	for line := range strings.Lines(contextText) {
		if strings.HasPrefix(strings.ToLower(strings.TrimSpace(line)), "timezone:") {
			return contextText
		}
	}
	name := now.Location().String()
	if name == "" || name == "Local" {
		name, _ = now.Zone()
	}
	return strings.TrimRight(contextText, "\n") + "\nTimezone: " + name + "\n"
}

func composeSystemInstruction(mode temporal.Mode, contextText string) string {
	return temporal.BaseInstruction + "\n\n" + temporal.Instruction(mode) + "\n\n" + contextText
}
