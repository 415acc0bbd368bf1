package assistant

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"sort"

	"go.uber.org/zap"

	"github.com/halcyonworks/tempo/kernel/model"
	"github.com/halcyonworks/tempo/kernel/temporal"
)

// SendRequest is one logical user turn.
type SendRequest struct {
	Text string
	// MediaDataURI optionally attaches inline media encoded as a data URI
	// ("data:<mime>;base64,<payload>"). The media part precedes the text
	// part on the wire.
	MediaDataURI string
	// ClockTime overrides the local-time text embedded in the per-message
	// system note. Empty means the manager's clock formats it.
	ClockTime string
}

// Reply is the model's final answer for one turn, after every tool-call
// round trip has been resolved.
type Reply struct {
	Text    string
	Thought string
	Mode    temporal.Mode
	Usage   model.Usage
	Rounds  int
}

// UpdateFunc receives accumulated text and thought during a streaming turn.
// Accumulated text is monotonically non-decreasing across one turn,
// including the continuation streams that follow tool-call resolution.
type UpdateFunc func(text, thought string)

// ErrToolRoundsExceeded fails a turn whose model never stops requesting
// tool calls.
var ErrToolRoundsExceeded = errors.New("assistant: tool call rounds exceeded")

// Send dispatches one non-streaming turn. The outgoing message is the
// optional media part followed by the text part with its mode/time system
// note. Transient send failures are retried with exponential backoff. Tool
// calls are executed in batches and their results returned to the model
// until a response arrives with no pending calls; that response's text is
// returned.
func (m *Manager) Send(ctx context.Context, req SendRequest) (*Reply, error) {
	return m.dispatch(ctx, req, nil, false)
}

// SendStream dispatches one streaming turn, forwarding accumulated partial
// output to onUpdate as it arrives. Streaming sends are not retried; any
// failure during a stream propagates to the caller. Tool results are sent
// back as further streams until the turn resolves, under the same round cap
// as Send.
func (m *Manager) SendStream(ctx context.Context, req SendRequest, onUpdate UpdateFunc) (*Reply, error) {
	if onUpdate == nil {
		onUpdate = func(string, string) {}
	}
	return m.dispatch(ctx, req, onUpdate, true)
}

func (m *Manager) dispatch(ctx context.Context, req SendRequest, onUpdate UpdateFunc, stream bool) (*Reply, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	sess := m.ensureSession()

	// The turn observes both the caller's context and the session's
	// cancellation token, so replacing the session aborts in-flight work.
	turnCtx, cancelTurn := context.WithCancel(ctx)
	defer cancelTurn()
	stop := context.AfterFunc(sess.ctx, cancelTurn)
	defer stop()

	userMsg, err := m.buildUserMessage(req, sess.mode)
	if err != nil {
		return nil, err
	}

	messages := make([]model.Message, 0, len(sess.history)+4)
	messages = append(messages, model.Message{Role: model.RoleSystem, Text: sess.system})
	messages = append(messages, sess.history...)
	messages = append(messages, userMsg)

	reply := &Reply{Mode: sess.mode}
	dup := map[string]int{}
	var accText, accThought string

	for round := 0; ; round++ {
		modelReq := &model.Request{Messages: messages, Tools: m.decls, Stream: stream}

		var resp *model.Response
		if stream {
			streamed := false
			resp, err = collectLast(turnCtx, m.model.Generate(turnCtx, modelReq), func(partial *model.Response) error {
				streamed = true
				accText += partial.Message.Text
				accThought += partial.Message.Thought
				onUpdate(accText, accThought)
				return nil
			})
			if err == nil && resp != nil && !streamed && resp.Message.Text+resp.Message.Thought != "" {
				// Provider finalized without incremental chunks.
				accText += resp.Message.Text
				accThought += resp.Message.Thought
				onUpdate(accText, accThought)
			}
		} else {
			resp, err = m.withRetry(turnCtx, func() (*model.Response, error) {
				return collectLast(turnCtx, m.model.Generate(turnCtx, modelReq), nil)
			})
		}
		if err != nil {
			m.logger.Error("assistant: send failed", zap.Error(err), zap.Int("round", round))
			return nil, err
		}
		if resp == nil {
			return nil, fmt.Errorf("assistant: empty model response")
		}

		assistantMsg := resp.Message
		if assistantMsg.Role == "" {
			assistantMsg.Role = model.RoleAssistant
		}
		messages = append(messages, assistantMsg)
		reply.Usage.PromptTokens += resp.Usage.PromptTokens
		reply.Usage.CompletionTokens += resp.Usage.CompletionTokens
		reply.Usage.TotalTokens += resp.Usage.TotalTokens

		if len(assistantMsg.ToolCalls) == 0 {
			if stream {
				reply.Text = accText
				reply.Thought = accThought
			} else {
				reply.Text = assistantMsg.Text
				reply.Thought = assistantMsg.Thought
			}
			reply.Rounds = round
			break
		}
		if round >= m.maxToolRounds {
			m.logger.Error("assistant: model kept requesting tool calls past the round cap",
				zap.Int("cap", m.maxToolRounds))
			return nil, fmt.Errorf("%w (cap %d)", ErrToolRoundsExceeded, m.maxToolRounds)
		}

		responses := m.runToolCalls(turnCtx, assistantMsg.ToolCalls, dup)
		messages = append(messages, model.Message{Role: model.RoleTool, ToolResponses: responses})
	}

	// Strip the leading system message before committing; it is composed
	// fresh for every turn from session state.
	m.commit(sess, messages[1:])
	return reply, nil
}

// runToolCalls executes one batch sequentially, pairing every result with
// its originating call name. A failing executor yields a structured error
// result for that call only; sibling calls still run.
func (m *Manager) runToolCalls(ctx context.Context, calls []model.ToolCall, dup map[string]int) []model.ToolResponse {
	out := make([]model.ToolResponse, 0, len(calls))
	for _, call := range calls {
		out = append(out, model.ToolResponse{
			ID:     call.ID,
			Name:   call.Name,
			Result: m.runOneTool(ctx, call, dup),
		})
	}
	return out
}

func (m *Manager) runOneTool(ctx context.Context, call model.ToolCall, dup map[string]int) (result map[string]any) {
	defer func() {
		if recovered := recover(); recovered != nil {
			m.logger.Error("assistant: executor panicked",
				zap.String("tool", call.Name), zap.Any("panic", recovered))
			result = map[string]any{"error": fmt.Sprintf("Failed: %v", recovered)}
		}
	}()

	sig := callSignature(call)
	dup[sig]++
	if dup[sig] > 2 {
		m.logger.Warn("assistant: duplicate tool call suppressed", zap.String("tool", call.Name))
		return map[string]any{"error": "duplicate tool call detected"}
	}

	t, ok := m.toolMap[call.Name]
	if !ok {
		m.logger.Warn("assistant: unknown tool requested", zap.String("tool", call.Name))
		return map[string]any{"error": fmt.Sprintf("unknown tool %q", call.Name)}
	}
	res, err := t.Run(ctx, call.Args)
	if err != nil {
		m.logger.Warn("assistant: tool execution failed",
			zap.String("tool", call.Name), zap.Error(err))
		return map[string]any{"error": "Failed: " + err.Error()}
	}
	if res == nil {
		res = map[string]any{"result": true}
	}
	return res
}

func (m *Manager) buildUserMessage(req SendRequest, mode temporal.Mode) (model.Message, error) {
	msg := model.Message{Role: model.RoleUser}
	if req.MediaDataURI != "" {
		blob, err := ParseDataURI(req.MediaDataURI)
		if err != nil {
			return model.Message{}, err
		}
		msg.Media = append(msg.Media, *blob)
	}
	clockTime := req.ClockTime
	if clockTime == "" {
		clockTime = m.clock().Format("Monday, January 2, 2006 at 3:04 PM")
	}
	msg.Text = fmt.Sprintf("%s\n\n[System note: Current time is %s. %s]",
		req.Text, clockTime, temporal.Reminder(mode))
	return msg, nil
}

// collectLast drains a response sequence, forwarding partial chunks and
// returning the final response.
func collectLast(ctx context.Context, seq iter.Seq2[*model.Response, error], onPartial func(*model.Response) error) (*model.Response, error) {
	var last *model.Response
	for res, err := range seq {
		if err != nil {
			return nil, err
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		if res == nil {
			continue
		}
		if res.Partial {
			if onPartial != nil {
				if err := onPartial(res); err != nil {
					return nil, err
				}
			}
			continue
		}
		last = res
	}
	return last, nil
}

func callSignature(call model.ToolCall) string {
	raw, err := json.Marshal(normalizeArgs(call.Args))
	if err != nil {
		return call.Name
	}
	return call.Name + ":" + string(raw)
}

func normalizeArgs(input map[string]any) any {
	if input == nil {
		return nil
	}
	keys := make([]string, 0, len(input))
	for k := range input {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]any, 0, len(keys)*2)
	for _, k := range keys {
		out = append(out, k, input[k])
	}
	return out
}
