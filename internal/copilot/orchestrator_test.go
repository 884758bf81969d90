package copilot_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/PrayashLimbu/Community---My-Gate-RBAC-based-AI-copilot-system/internal/copilot"
	"github.com/PrayashLimbu/Community---My-Gate-RBAC-based-AI-copilot-system/internal/model"
	"github.com/PrayashLimbu/Community---My-Gate-RBAC-based-AI-copilot-system/internal/testdb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// scriptedModel answers each pass with the next step. A step may inspect the request,
// which lets the second pass react to results of the first.
type scriptedModel struct {
	mu       sync.Mutex
	steps    []func(copilot.Request) (*copilot.Inference, error)
	requests []copilot.Request
}

func (m *scriptedModel) Infer(_ context.Context, req copilot.Request) (*copilot.Inference, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, req)
	if len(m.steps) == 0 {
		return nil, errors.New("unexpected model call")
	}
	step := m.steps[0]
	m.steps = m.steps[1:]
	return step(req)
}

func text(s string) func(copilot.Request) (*copilot.Inference, error) {
	return func(copilot.Request) (*copilot.Inference, error) { return &copilot.Inference{Text: s}, nil }
}

func calls(cs ...copilot.ToolCall) func(copilot.Request) (*copilot.Inference, error) {
	return func(copilot.Request) (*copilot.Inference, error) { return &copilot.Inference{ToolCalls: cs}, nil }
}

func fails(err error) func(copilot.Request) (*copilot.Inference, error) {
	return func(copilot.Request) (*copilot.Inference, error) { return nil, err }
}

func userSays(s string) []copilot.Turn {
	return []copilot.Turn{{Role: "user", Text: s}}
}

func TestRespond_DirectReply(t *testing.T) {
	w := newWorld(t)
	m := &scriptedModel{steps: []func(copilot.Request) (*copilot.Inference, error){text("  Hello! How can I help?  ")}}
	o := copilot.NewOrchestrator(m, w.bridge, zap.NewNop(), 0)

	reply, err := o.Respond(context.Background(), w.resident, userSays("hi"))
	require.NoError(t, err)
	assert.Equal(t, "Hello! How can I help?", reply.Text)
	assert.Empty(t, reply.Actions)

	require.Len(t, m.requests, 1)
	first := m.requests[0]
	assert.Len(t, first.Tools, 5)
	assert.Equal(t, copilot.RoleSystem, first.Messages[0].Role)
	assert.Contains(t, first.Messages[0].Content, w.resident.Username)
	assert.Contains(t, first.Messages[0].Content, "RESIDENT")
	last := first.Messages[len(first.Messages)-1]
	assert.Equal(t, copilot.RoleUser, last.Role)
	assert.Equal(t, "hi", last.Content)
}

func TestRespond_EmptyFirstPass(t *testing.T) {
	w := newWorld(t)
	m := &scriptedModel{steps: []func(copilot.Request) (*copilot.Inference, error){text("")}}
	o := copilot.NewOrchestrator(m, w.bridge, zap.NewNop(), 0)

	reply, err := o.Respond(context.Background(), w.resident, userSays("hi"))
	require.NoError(t, err)
	assert.Equal(t, "I received a response, but couldn't understand its format.", reply.Text)
}

func TestRespond_FirstPassFailureIsGeneric(t *testing.T) {
	w := newWorld(t)
	m := &scriptedModel{steps: []func(copilot.Request) (*copilot.Inference, error){
		fails(errors.New("429 quota exceeded for project 1234")),
	}}
	o := copilot.NewOrchestrator(m, w.bridge, zap.NewNop(), 0)

	reply, err := o.Respond(context.Background(), w.resident, userSays("approve everyone"))
	require.NoError(t, err)
	assert.Equal(t, "Sorry, there was an error processing your request with the assistant.", reply.Text)
	assert.NotContains(t, reply.Text, "quota")
}

func TestRespond_EmptyHistory(t *testing.T) {
	w := newWorld(t)
	o := copilot.NewOrchestrator(&scriptedModel{}, w.bridge, zap.NewNop(), 0)

	_, err := o.Respond(context.Background(), w.resident, nil)
	assert.ErrorIs(t, err, copilot.ErrEmptyHistory)

	_, err = o.Respond(context.Background(), w.resident, []copilot.Turn{{Role: "user", Text: "   "}})
	assert.ErrorIs(t, err, copilot.ErrEmptyHistory)
}

func TestRespond_HistoryIsBounded(t *testing.T) {
	w := newWorld(t)
	m := &scriptedModel{steps: []func(copilot.Request) (*copilot.Inference, error){text("ok")}}
	o := copilot.NewOrchestrator(m, w.bridge, zap.NewNop(), 3)

	history := make([]copilot.Turn, 0, 10)
	for i := 0; i < 10; i++ {
		role := "user"
		if i%2 == 1 {
			role = "model"
		}
		history = append(history, copilot.Turn{Role: role, Text: fmt.Sprintf("turn %d", i)})
	}

	_, err := o.Respond(context.Background(), w.resident, history)
	require.NoError(t, err)

	msgs := m.requests[0].Messages
	// system prompt + acknowledgement + last three turns
	require.Len(t, msgs, 5)
	assert.Equal(t, "turn 7", msgs[2].Content)
	assert.Equal(t, copilot.RoleAssistant, msgs[2].Role)
	assert.Equal(t, "turn 9", msgs[4].Content)
}

func TestRespond_CreateThenApproveInOneBatch(t *testing.T) {
	w := newWorld(t)
	ctx := context.Background()

	// The approve targets the id the create is about to produce; serial execution makes it visible.
	var nextID uint
	require.NoError(t, w.db.Model(&model.Visitor{}).Select("COALESCE(MAX(id), 0) + 1").Scan(&nextID).Error)

	m := &scriptedModel{steps: []func(copilot.Request) (*copilot.Inference, error){
		calls(
			copilot.ToolCall{ID: "c1", Name: "create_visitor", Args: json.RawMessage(`{"names":["X"]}`)},
			copilot.ToolCall{ID: "c2", Name: "approve_visitor", Args: json.RawMessage(fmt.Sprintf(`{"visitor_id":"%d"}`, nextID))},
		),
		text("Created X and approved them."),
	}}
	o := copilot.NewOrchestrator(m, w.bridge, zap.NewNop(), 0)

	reply, err := o.Respond(ctx, w.resident, userSays("add X and approve"))
	require.NoError(t, err)
	assert.Equal(t, "Created X and approved them.", reply.Text)
	require.Len(t, reply.Actions, 2)
	assert.Equal(t, copilot.StatusSuccess, reply.Actions[0].Result.Status)
	assert.Equal(t, []uint{nextID}, reply.Actions[0].Result.VisitorIDs)
	assert.Equal(t, copilot.StatusSuccess, reply.Actions[1].Result.Status, reply.Actions[1].Result.Message)

	var v model.Visitor
	require.NoError(t, w.db.First(&v, nextID).Error)
	assert.Equal(t, model.StatusApproved, v.Status)

	// second pass sees both results, no tools, and tool messages paired to call ids
	require.Len(t, m.requests, 2)
	second := m.requests[1]
	assert.Nil(t, second.Tools)
	n := len(second.Messages)
	assert.Equal(t, copilot.RoleAssistant, second.Messages[n-3].Role)
	assert.Len(t, second.Messages[n-3].ToolCalls, 2)
	assert.Equal(t, "c1", second.Messages[n-2].ToolCallID)
	assert.Equal(t, "c2", second.Messages[n-1].ToolCallID)
	assert.Contains(t, second.Messages[n-1].Content, `"status":"success"`)
}

func TestRespond_PartialFailureKeepsGoing(t *testing.T) {
	w := newWorld(t)
	pending := testdb.Visitor(t, w.db, "Ramesh", w.home, model.StatusPending)

	m := &scriptedModel{steps: []func(copilot.Request) (*copilot.Inference, error){
		calls(
			copilot.ToolCall{Name: "approve_visitor", Args: json.RawMessage(`{"visitor_id":"99999"}`)},
			copilot.ToolCall{Name: "fly_to_moon"},
			copilot.ToolCall{Name: "approve_visitor", Args: json.RawMessage(fmt.Sprintf(`{"visitor_id":%d}`, pending.ID))},
		),
		text(""),
	}}
	o := copilot.NewOrchestrator(m, w.bridge, zap.NewNop(), 0)

	reply, err := o.Respond(context.Background(), w.resident, userSays("approve them"))
	require.NoError(t, err)
	require.Len(t, reply.Actions, 3)
	assert.Equal(t, copilot.StatusError, reply.Actions[0].Result.Status)
	assert.Equal(t, copilot.StatusError, reply.Actions[1].Result.Status)
	assert.Equal(t, copilot.StatusSuccess, reply.Actions[2].Result.Status)

	assert.Equal(t, fmt.Sprintf("Done. Visitor Ramesh (ID: %d) approved.", pending.ID), reply.Text)

	// generated call ids keep tool messages paired
	second := m.requests[1].Messages
	assert.Equal(t, "call_0", second[len(second)-3].ToolCallID)
	assert.Equal(t, "call_2", second[len(second)-1].ToolCallID)
}

func TestRespond_SecondPassFailureStillReportsActions(t *testing.T) {
	w := newWorld(t)
	pending := testdb.Visitor(t, w.db, "Ramesh", w.home, model.StatusPending)

	m := &scriptedModel{steps: []func(copilot.Request) (*copilot.Inference, error){
		calls(copilot.ToolCall{Name: "deny_visitor", Args: json.RawMessage(fmt.Sprintf(`{"visitor_id":%d,"reason":"unknown"}`, pending.ID))}),
		fails(errors.New("connection reset")),
	}}
	o := copilot.NewOrchestrator(m, w.bridge, zap.NewNop(), 0)

	reply, err := o.Respond(context.Background(), w.resident, userSays("deny Ramesh"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(reply.Text, "Done. "))
	assert.Contains(t, reply.Text, "denied")

	var v model.Visitor
	require.NoError(t, w.db.First(&v, pending.ID).Error)
	assert.Equal(t, model.StatusDenied, v.Status)
}

func TestRespond_NoSuccessNoSummary(t *testing.T) {
	w := newWorld(t)
	m := &scriptedModel{steps: []func(copilot.Request) (*copilot.Inference, error){
		calls(copilot.ToolCall{Name: "checkin_visitor", Args: json.RawMessage(`{"visitor_id":1}`)}),
		text("   "),
	}}
	o := copilot.NewOrchestrator(m, w.bridge, zap.NewNop(), 0)

	reply, err := o.Respond(context.Background(), w.resident, userSays("check in 1"))
	require.NoError(t, err)
	assert.Equal(t, "Actions completed, but no summary is available.", reply.Text)
}

func TestRespond_MalformedArgumentsEchoedAsEmptyObject(t *testing.T) {
	w := newWorld(t)
	m := &scriptedModel{steps: []func(copilot.Request) (*copilot.Inference, error){
		calls(
			copilot.ToolCall{ID: "c1", Name: "list_visitors"},
			copilot.ToolCall{ID: "c2", Name: "approve_visitor", Args: json.RawMessage(`{"visitor_id":`)},
		),
		text("Here you go."),
	}}
	o := copilot.NewOrchestrator(m, w.bridge, zap.NewNop(), 0)

	_, err := o.Respond(context.Background(), w.resident, userSays("show and approve"))
	require.NoError(t, err)
	require.Len(t, m.requests, 2)

	second := m.requests[1].Messages
	assistant := second[len(second)-3]
	require.Equal(t, copilot.RoleAssistant, assistant.Role)
	require.Len(t, assistant.ToolCalls, 2)
	for _, tc := range assistant.ToolCalls {
		assert.JSONEq(t, `{}`, string(tc.Args), tc.ID)
	}
}
