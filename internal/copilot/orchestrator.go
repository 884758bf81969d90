package copilot

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/PrayashLimbu/Community---My-Gate-RBAC-based-AI-copilot-system/internal/model"
	"github.com/PrayashLimbu/Community---My-Gate-RBAC-based-AI-copilot-system/pkg/logger"
	"github.com/PrayashLimbu/Community---My-Gate-RBAC-based-AI-copilot-system/prometheus"
	"go.uber.org/zap"
)

const (
	DefaultHistoryLimit = 20

	failureText      = "Sorry, there was an error processing your request with the assistant."
	unreadableText   = "I received a response, but couldn't understand its format."
	noSummaryText    = "Actions completed, but no summary is available."
	readyAcknowledge = "Okay, I'm ready. How can I assist with visitors?"
)

// ErrEmptyHistory is returned when a chat request carries no usable turn.
var ErrEmptyHistory = errors.New("message history is required and must contain at least one message")

// Turn is one prior chat message as sent by the client. Role is "user" or "model".
type Turn struct {
	Role string `json:"role"`
	Text string `json:"text"`
}

// Action records one tool call executed during an exchange.
type Action struct {
	Tool   string `json:"tool"`
	Result Result `json:"result"`
}

// Reply is the outcome of one exchange.
type Reply struct {
	Text    string   `json:"reply"`
	Actions []Action `json:"actions,omitempty"`
}

// Orchestrator runs one chat exchange: a first model pass with the tool menu, serial
// execution of the requested tools, and a second pass that summarises their results.
type Orchestrator struct {
	model        Model
	bridge       *Bridge
	log          *zap.Logger
	historyLimit int
}

// NewOrchestrator creates an orchestrator. historyLimit <= 0 means DefaultHistoryLimit.
func NewOrchestrator(m Model, bridge *Bridge, log *zap.Logger, historyLimit int) *Orchestrator {
	if historyLimit <= 0 {
		historyLimit = DefaultHistoryLimit
	}
	return &Orchestrator{model: m, bridge: bridge, log: log, historyLimit: historyLimit}
}

// Respond answers the last user turn in history on behalf of requester. Model failures
// are reported in Reply.Text; the only error is ErrEmptyHistory.
func (o *Orchestrator) Respond(ctx context.Context, requester model.User, history []Turn) (*Reply, error) {
	turns := o.boundHistory(history)
	if len(turns) == 0 {
		return nil, ErrEmptyHistory
	}
	log := logger.FromContextOr(ctx, o.log)

	messages := make([]Message, 0, len(turns)+2)
	messages = append(messages,
		Message{Role: RoleSystem, Content: o.instructions(ctx, requester)},
		Message{Role: RoleAssistant, Content: readyAcknowledge},
	)
	messages = append(messages, turns...)

	first, err := o.infer(ctx, "first", Request{Messages: messages, Tools: o.bridge.Tools()})
	if err != nil {
		log.Error("Assistant model call failed", zap.Uint("requester_id", requester.ID), zap.Error(err))
		return &Reply{Text: failureText}, nil
	}

	if len(first.ToolCalls) == 0 {
		text := strings.TrimSpace(first.Text)
		if text == "" {
			return &Reply{Text: unreadableText}, nil
		}
		return &Reply{Text: text}, nil
	}

	// Calls run in order; a later call may target a visitor created by an earlier one.
	calls := make([]ToolCall, len(first.ToolCalls))
	actions := make([]Action, 0, len(first.ToolCalls))
	followUp := make([]Message, 0, len(first.ToolCalls))
	for i, call := range first.ToolCalls {
		if call.ID == "" {
			call.ID = fmt.Sprintf("call_%d", i)
		}
		// Echoed back on the second pass, so the arguments must be a JSON object.
		if !json.Valid(call.Args) || bytes.Equal(bytes.TrimSpace(call.Args), []byte("null")) {
			call.Args = json.RawMessage("{}")
		}
		calls[i] = call

		result := o.bridge.Execute(ctx, requester, call)
		actions = append(actions, Action{Tool: call.Name, Result: result})

		payload, err := json.Marshal(result)
		if err != nil {
			payload = []byte(`{"status":"error","message":"result could not be encoded"}`)
		}
		followUp = append(followUp, Message{Role: RoleTool, ToolCallID: call.ID, Content: string(payload)})
	}

	messages = append(messages, Message{Role: RoleAssistant, Content: first.Text, ToolCalls: calls})
	messages = append(messages, followUp...)

	second, err := o.infer(ctx, "second", Request{Messages: messages})
	if err != nil {
		// The tools already committed, so the reply still reports what happened.
		log.Warn("Assistant summary call failed", zap.Uint("requester_id", requester.ID), zap.Error(err))
		return &Reply{Text: fallbackSummary(actions), Actions: actions}, nil
	}
	if text := strings.TrimSpace(second.Text); text != "" {
		return &Reply{Text: text, Actions: actions}, nil
	}
	return &Reply{Text: fallbackSummary(actions), Actions: actions}, nil
}

func (o *Orchestrator) infer(ctx context.Context, pass string, req Request) (*Inference, error) {
	started := time.Now()
	out, err := o.model.Infer(ctx, req)
	switch {
	case err != nil:
		prometheus.ObserveModelCall(pass, "error", started)
		return nil, err
	case out == nil:
		prometheus.ObserveModelCall(pass, "empty", started)
		return &Inference{}, nil
	}
	prometheus.ObserveModelCall(pass, "ok", started)
	return out, nil
}

func (o *Orchestrator) boundHistory(history []Turn) []Message {
	out := make([]Message, 0, len(history))
	for _, t := range history {
		text := strings.TrimSpace(t.Text)
		if text == "" {
			continue
		}
		role := RoleUser
		if t.Role == "model" || t.Role == RoleAssistant {
			role = RoleAssistant
		}
		out = append(out, Message{Role: role, Content: text})
	}
	if len(out) > o.historyLimit {
		out = out[len(out)-o.historyLimit:]
	}
	return out
}

func (o *Orchestrator) instructions(ctx context.Context, requester model.User) string {
	return fmt.Sprintf(`You are a helpful assistant for a community gate management app. The user is '%s', who has the role of '%s'.
Based on the user's request and the visitor list, decide which action(s) to call.
- You can create multiple visitor passes at once (e.g., for a family).
- You can list visitors by status (pending, approved, etc.).
- You can combine actions (e.g., create a visitor and then approve them if the user asks).
- Always use the visitor ID for approving, denying or checking in.
- If a visitor name is ambiguous (e.g., 'approve Ramesh' when there are two), ask for the ID.

%s
After you call function(s) and get the results, reply with a single, concise, natural language confirmation.
If no function call is needed, just provide a brief, helpful conversational response.`,
		requester.Username, requester.Role, o.bridge.Context(ctx, requester))
}

func fallbackSummary(actions []Action) string {
	var succeeded []string
	for _, a := range actions {
		if a.Result.Status != StatusSuccess {
			continue
		}
		switch {
		case a.Result.Message != "":
			succeeded = append(succeeded, a.Result.Message)
		case a.Result.VisitorListText != "":
			succeeded = append(succeeded, strings.TrimSpace(a.Result.VisitorListText))
		}
	}
	if len(succeeded) == 0 {
		return noSummaryText
	}
	return "Done. " + strings.Join(succeeded, " ")
}
