package copilot

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/PrayashLimbu/Community---My-Gate-RBAC-based-AI-copilot-system/internal/lifecycle"
	"github.com/PrayashLimbu/Community---My-Gate-RBAC-based-AI-copilot-system/internal/model"
	"github.com/PrayashLimbu/Community---My-Gate-RBAC-based-AI-copilot-system/pkg/logger"
	"github.com/PrayashLimbu/Community---My-Gate-RBAC-based-AI-copilot-system/prometheus"
	"go.uber.org/zap"
)

// Result statuses.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

const (
	chatDenyReason   = "Denied via chat assistant"
	genericToolError = "Something went wrong while running that action. Please try again."
	noVisitorsText   = "There are no relevant visitors right now."

	residentSnapshotSize = 10
	staffSnapshotSize    = 20
)

// Result is what a tool returns to the model.
type Result struct {
	Status          string           `json:"status"`
	Message         string           `json:"message,omitempty"`
	VisitorIDs      []uint           `json:"visitor_ids,omitempty"`
	Visitors        []VisitorSummary `json:"visitors,omitempty"`
	VisitorListText string           `json:"visitor_list_text,omitempty"`
}

// VisitorSummary is the model-facing view of a visitor.
type VisitorSummary struct {
	ID            uint       `json:"id"`
	Name          string     `json:"name"`
	Status        string     `json:"status"`
	ScheduledTime *time.Time `json:"scheduled_time,omitempty"`
}

func failure(format string, args ...any) Result {
	return Result{Status: StatusError, Message: fmt.Sprintf(format, args...)}
}

// Bridge exposes the lifecycle engine as a fixed tool menu. It holds no business rules;
// every permission and state check is the engine's.
type Bridge struct {
	engine *lifecycle.Engine
	log    *zap.Logger
	tools  map[string]tool
	order  []string
}

type tool struct {
	spec ToolSpec
	run  func(ctx context.Context, requester model.User, args json.RawMessage) Result
}

// NewBridge builds the tool menu on top of engine.
func NewBridge(engine *lifecycle.Engine, log *zap.Logger) *Bridge {
	b := &Bridge{engine: engine, log: log, tools: map[string]tool{}}
	b.register(ToolSpec{
		Name:        "create_visitor",
		Description: "Create one or more new visitor passes for the resident's household.",
		Parameters: object(map[string]any{
			"names": map[string]any{
				"type":        "array",
				"items":       map[string]any{"type": "string"},
				"description": "One or more visitor names, e.g. ['John Doe', 'Jane Smith'].",
			},
			"purpose":      str("Optional purpose of the visit, e.g. dinner party, delivery."),
			"time_details": str("Optional date or time for the visit, e.g. 'tonight 8pm', 'tomorrow'."),
		}, "names"),
	}, b.createVisitor)
	b.register(ToolSpec{
		Name:        "list_visitors",
		Description: "List visitors the user can see, optionally filtered by status.",
		Parameters: object(map[string]any{
			"status": map[string]any{
				"type":        "string",
				"enum":        []string{"PENDING", "APPROVED", "CHECKED_IN", "CHECKED_OUT", "DENIED", "ALL"},
				"description": "Status to filter by. Default is ALL.",
			},
		}),
	}, b.listVisitors)
	b.register(ToolSpec{
		Name:        "approve_visitor",
		Description: "Approve a pending visitor pass using its ID.",
		Parameters:  object(map[string]any{"visitor_id": str("The visitor ID.")}, "visitor_id"),
	}, b.approveVisitor)
	b.register(ToolSpec{
		Name:        "deny_visitor",
		Description: "Deny a pending visitor pass using its ID.",
		Parameters: object(map[string]any{
			"visitor_id": str("The visitor ID."),
			"reason":     str("Optional reason for the denial."),
		}, "visitor_id"),
	}, b.denyVisitor)
	b.register(ToolSpec{
		Name:        "checkin_visitor",
		Description: "Check in an approved visitor at the gate. Guards and admins only.",
		Parameters:  object(map[string]any{"visitor_id": str("The visitor ID.")}, "visitor_id"),
	}, b.checkinVisitor)
	return b
}

func (b *Bridge) register(spec ToolSpec, run func(context.Context, model.User, json.RawMessage) Result) {
	b.tools[spec.Name] = tool{spec: spec, run: run}
	b.order = append(b.order, spec.Name)
}

// Tools returns the menu in a stable order.
func (b *Bridge) Tools() []ToolSpec {
	specs := make([]ToolSpec, 0, len(b.order))
	for _, name := range b.order {
		specs = append(specs, b.tools[name].spec)
	}
	return specs
}

// Execute runs one tool call as requester. It never returns an error: every failure is a
// Result with status "error".
func (b *Bridge) Execute(ctx context.Context, requester model.User, call ToolCall) (res Result) {
	log := logger.FromContextOr(ctx, b.log)
	defer func() {
		if r := recover(); r != nil {
			log.Error("Tool panicked", zap.String("tool", call.Name), zap.Any("panic", r))
			res = failure(genericToolError)
		}
		prometheus.RecordToolCall(call.Name, res.Status)
	}()

	t, ok := b.tools[call.Name]
	if !ok {
		log.Warn("Unknown tool requested", zap.String("tool", call.Name))
		return failure("Unknown tool requested: %s", call.Name)
	}

	args := call.Args
	if len(bytes.TrimSpace(args)) == 0 || bytes.Equal(bytes.TrimSpace(args), []byte("null")) {
		args = json.RawMessage("{}")
	}

	res = t.run(ctx, requester, args)
	log.Info("Tool executed",
		zap.String("tool", call.Name),
		zap.Uint("requester_id", requester.ID),
		zap.String("status", res.Status))
	return res
}

// Context renders the visitors most relevant to requester for the model instructions.
func (b *Bridge) Context(ctx context.Context, requester model.User) string {
	q := lifecycle.ListQuery{Limit: staffSnapshotSize}
	if requester.Role == model.RoleResident {
		q = lifecycle.ListQuery{Status: string(model.StatusPending), Limit: residentSnapshotSize}
	}

	visitors, err := b.engine.List(ctx, requester, q)
	if err != nil {
		if lifecycle.KindOf(err) == lifecycle.KindDependency {
			logger.FromContextOr(ctx, b.log).Warn("Could not load visitor snapshot", zap.Error(err))
		}
		return noVisitorsText
	}
	if len(visitors) == 0 {
		return noVisitorsText
	}

	var sb strings.Builder
	sb.WriteString("Here are the relevant visitors:\n")
	for _, v := range visitors {
		fmt.Fprintf(&sb, "- ID %d: %s (Status: %s)\n", v.ID, v.Name, v.Status)
	}
	return sb.String()
}

type createArgs struct {
	Names       nameList `json:"names"`
	Purpose     string   `json:"purpose"`
	TimeDetails string   `json:"time_details"`
}

func (b *Bridge) createVisitor(ctx context.Context, requester model.User, raw json.RawMessage) Result {
	var args createArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return failure("Invalid arguments for create_visitor: names must be a list of strings.")
	}
	if args.Names == nil {
		return failure("Missing required argument: names")
	}

	created, err := b.engine.Create(ctx, requester, lifecycle.CreateInput{
		Names:        args.Names,
		Purpose:      args.Purpose,
		ScheduleHint: args.TimeDetails,
	})
	if err != nil {
		return b.engineFailure(ctx, "create_visitor", err)
	}

	labels := make([]string, 0, len(created.Visitors))
	ids := make([]uint, 0, len(created.Visitors))
	for _, v := range created.Visitors {
		labels = append(labels, fmt.Sprintf("'%s' (ID %d)", v.Name, v.ID))
		ids = append(ids, v.ID)
	}
	return Result{
		Status: StatusSuccess,
		Message: fmt.Sprintf("Successfully created %d visitor(s): %s%s.",
			len(created.Visitors), strings.Join(labels, ", "), created.ScheduleNote),
		VisitorIDs: ids,
		Visitors:   summarize(created.Visitors),
	}
}

type listArgs struct {
	Status string `json:"status"`
}

func (b *Bridge) listVisitors(ctx context.Context, requester model.User, raw json.RawMessage) Result {
	var args listArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return failure("Invalid arguments for list_visitors: status must be a string.")
	}

	visitors, err := b.engine.List(ctx, requester, lifecycle.ListQuery{Status: args.Status})
	if err != nil {
		return b.engineFailure(ctx, "list_visitors", err)
	}

	if len(visitors) == 0 {
		filter := ""
		if st, ok := model.ParseStatus(args.Status); ok {
			filter = fmt.Sprintf(" with status '%s'", st)
		}
		return Result{Status: StatusSuccess, VisitorListText: fmt.Sprintf("No visitors found%s.", filter)}
	}

	var sb strings.Builder
	sb.WriteString("Here are the recent visitors:\n")
	for _, v := range visitors {
		fmt.Fprintf(&sb, "- ID %d: %s (%s)", v.ID, v.Name, v.Status)
		if v.ScheduledTime != nil {
			sb.WriteString(" @ " + v.ScheduledTime.Format("Jan 02, 03:04 PM"))
		}
		sb.WriteString("\n")
	}
	return Result{Status: StatusSuccess, VisitorListText: sb.String(), Visitors: summarize(visitors)}
}

type targetArgs struct {
	VisitorID *visitorID `json:"visitor_id"`
	Reason    string     `json:"reason"`
}

func (b *Bridge) parseTarget(name string, raw json.RawMessage) (targetArgs, *Result) {
	var args targetArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		res := failure("Invalid arguments for %s: visitor_id must be a visitor ID.", name)
		return args, &res
	}
	if args.VisitorID == nil {
		res := failure("Missing required argument: visitor_id")
		return args, &res
	}
	return args, nil
}

func (b *Bridge) approveVisitor(ctx context.Context, requester model.User, raw json.RawMessage) Result {
	args, bad := b.parseTarget("approve_visitor", raw)
	if bad != nil {
		return *bad
	}
	v, err := b.engine.Approve(ctx, requester, uint(*args.VisitorID))
	if err != nil {
		return b.engineFailure(ctx, "approve_visitor", err)
	}
	return transitioned(v, "approved")
}

func (b *Bridge) denyVisitor(ctx context.Context, requester model.User, raw json.RawMessage) Result {
	args, bad := b.parseTarget("deny_visitor", raw)
	if bad != nil {
		return *bad
	}
	reason := strings.TrimSpace(args.Reason)
	if reason == "" {
		reason = chatDenyReason
	}
	v, err := b.engine.Deny(ctx, requester, uint(*args.VisitorID), reason)
	if err != nil {
		return b.engineFailure(ctx, "deny_visitor", err)
	}
	return transitioned(v, "denied")
}

func (b *Bridge) checkinVisitor(ctx context.Context, requester model.User, raw json.RawMessage) Result {
	args, bad := b.parseTarget("checkin_visitor", raw)
	if bad != nil {
		return *bad
	}
	v, err := b.engine.CheckIn(ctx, requester, uint(*args.VisitorID))
	if err != nil {
		return b.engineFailure(ctx, "checkin_visitor", err)
	}
	return transitioned(v, "checked in")
}

func transitioned(v *model.Visitor, verb string) Result {
	return Result{
		Status:     StatusSuccess,
		Message:    fmt.Sprintf("Visitor %s (ID: %d) %s.", v.Name, v.ID, verb),
		VisitorIDs: []uint{v.ID},
		Visitors:   summarize([]model.Visitor{*v}),
	}
}

func (b *Bridge) engineFailure(ctx context.Context, toolName string, err error) Result {
	var le *lifecycle.Error
	if errors.As(err, &le) {
		return Result{Status: StatusError, Message: le.Message}
	}
	logger.FromContextOr(ctx, b.log).Error("Tool failed", zap.String("tool", toolName), zap.Error(err))
	return failure(genericToolError)
}

func summarize(visitors []model.Visitor) []VisitorSummary {
	out := make([]VisitorSummary, 0, len(visitors))
	for _, v := range visitors {
		out = append(out, VisitorSummary{ID: v.ID, Name: v.Name, Status: string(v.Status), ScheduledTime: v.ScheduledTime})
	}
	return out
}

func object(props map[string]any, required ...string) map[string]any {
	schema := map[string]any{"type": "object", "properties": props}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

func str(description string) map[string]any {
	return map[string]any{"type": "string", "description": description}
}

// visitorID accepts 12, "12" and " 12 ". Models send either.
type visitorID uint

func (id *visitorID) UnmarshalJSON(data []byte) error {
	var n json.Number
	if err := json.Unmarshal(data, &n); err == nil {
		return id.set(n.String())
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	return id.set(s)
}

func (id *visitorID) set(s string) error {
	v, err := strconv.ParseUint(strings.TrimSpace(s), 10, 32)
	if err != nil || v == 0 {
		return fmt.Errorf("invalid visitor id %q", s)
	}
	*id = visitorID(v)
	return nil
}

// nameList accepts a list of names or a single name.
type nameList []string

func (n *nameList) UnmarshalJSON(data []byte) error {
	var list []string
	if err := json.Unmarshal(data, &list); err == nil {
		*n = list
		return nil
	}
	var one string
	if err := json.Unmarshal(data, &one); err != nil {
		return err
	}
	*n = nameList{one}
	return nil
}
