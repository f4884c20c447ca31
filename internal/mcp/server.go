// Package mcp provides an MCP (Model Context Protocol) server that exposes the
// task list as MCP tools for AI assistants.
package mcp

import (
	"context"
	"errors"
	"fmt"
	"time"

	gomcp "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/valter-silva-au/todo/internal/core"
	"github.com/valter-silva-au/todo/internal/observability"
	"github.com/valter-silva-au/todo/pkg/models"
)

// Server wraps the task store and exposes it as MCP tools.
type Server struct {
	server      *gomcp.Server
	store       core.TaskStore
	metricsCalc observability.MetricsCalculator
	alertEngine observability.AlertEngine
	now         func() time.Time
}

// NewServer creates a new MCP server over store. metricsCalc and alertEngine
// may be nil if observability is disabled.
func NewServer(store core.TaskStore, metricsCalc observability.MetricsCalculator, alertEngine observability.AlertEngine, version string) *Server {
	if version == "" {
		version = "dev"
	}

	s := &Server{
		store:       store,
		metricsCalc: metricsCalc,
		alertEngine: alertEngine,
		now:         time.Now,
	}

	s.server = gomcp.NewServer(
		&gomcp.Implementation{Name: "todo", Version: version},
		nil,
	)

	s.registerTools()

	return s
}

// Run starts the MCP server on stdio, blocking until the client disconnects
// or the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	return s.server.Run(ctx, &gomcp.StdioTransport{})
}

// MCPServer returns the underlying mcp.Server for testing purposes.
func (s *Server) MCPServer() *gomcp.Server {
	return s.server
}

// --- Tool input/output types ---

type taskIDInput struct {
	TaskID string `json:"task_id" jsonschema:"required,the task identifier returned by list_tasks or add_task"`
}

type attachmentOutput struct {
	Name string `json:"name"`
	Type string `json:"type"`
	Size int64  `json:"size"`
}

type taskOutput struct {
	ID          string             `json:"id"`
	Text        string             `json:"text"`
	Done        bool               `json:"done"`
	Priority    string             `json:"priority"`
	DueDate     string             `json:"due_date,omitempty"`
	Deadline    string             `json:"deadline,omitempty"`
	Position    int                `json:"position"`
	Attachments []attachmentOutput `json:"attachments,omitempty"`
	CreatedAt   string             `json:"created_at,omitempty"`
}

type listTasksInput struct {
	Search   string `json:"search,omitempty" jsonschema:"case-insensitive substring to match against task text"`
	Priority string `json:"priority,omitempty" jsonschema:"filter by priority (all, high, medium, low)"`
	Status   string `json:"status,omitempty" jsonschema:"filter by status (all, active, completed)"`
}

type listTasksOutput struct {
	Active    []taskOutput `json:"active"`
	Completed []taskOutput `json:"completed"`
	Count     int          `json:"count"`
	Total     int          `json:"total"`
}

type addTaskInput struct {
	Text     string `json:"text" jsonschema:"required,the task text"`
	DueDate  string `json:"due_date,omitempty" jsonschema:"optional due date as YYYY-MM-DD"`
	Priority string `json:"priority,omitempty" jsonschema:"high, medium or low (default medium)"`
}

type updateTaskInput struct {
	TaskID   string  `json:"task_id" jsonschema:"required,the task identifier"`
	Text     *string `json:"text,omitempty" jsonschema:"new task text"`
	DueDate  *string `json:"due_date,omitempty" jsonschema:"new due date as YYYY-MM-DD, or empty to clear it"`
	Priority *string `json:"priority,omitempty" jsonschema:"new priority (high, medium, low)"`
}

type moveTaskInput struct {
	From int `json:"from" jsonschema:"current zero-based position in the full list"`
	To   int `json:"to" jsonschema:"target zero-based position in the full list"`
}

type messageOutput struct {
	Message string `json:"message"`
}

type getProgressInput struct{}

type progressOutput struct {
	Completed int    `json:"completed"`
	Total     int    `json:"total"`
	Percent   int    `json:"percent"`
	Message   string `json:"message"`
}

type getMetricsInput struct {
	Since string `json:"since,omitempty" jsonschema:"time window for metrics (e.g. 7d, 30d, 24h). Defaults to 7d."`
}

type metricsOutput struct {
	TasksCreated    int            `json:"tasks_created"`
	TasksUpdated    int            `json:"tasks_updated"`
	TasksCompleted  int            `json:"tasks_completed"`
	TasksReopened   int            `json:"tasks_reopened"`
	TasksDeleted    int            `json:"tasks_deleted"`
	TasksByPriority map[string]int `json:"tasks_by_priority"`
	RemindersFired  int            `json:"reminders_fired"`
	SaveFailures    int            `json:"save_failures"`
	EventCount      int            `json:"event_count"`
	OldestEvent     string         `json:"oldest_event,omitempty"`
	NewestEvent     string         `json:"newest_event,omitempty"`
}

type getAlertsInput struct{}

type alertOutput struct {
	ID          string `json:"id"`
	TaskID      string `json:"task_id,omitempty"`
	Condition   string `json:"condition"`
	Severity    string `json:"severity"`
	Message     string `json:"message"`
	TriggeredAt string `json:"triggered_at"`
}

type getAlertsOutput struct {
	Alerts []alertOutput `json:"alerts"`
	Count  int           `json:"count"`
}

// --- Tool registration ---

func (s *Server) registerTools() {
	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "get_task",
		Description: "Get a task by ID, including its deadline status and attachment names.",
	}, s.handleGetTask)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "list_tasks",
		Description: "List tasks split into active and completed, each sorted by priority. Supports search, priority and status filters.",
	}, s.handleListTasks)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "add_task",
		Description: "Add a task. Text must be non-empty and not duplicate an existing task (case-insensitive).",
	}, s.handleAddTask)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "update_task",
		Description: "Change a task's text, due date or priority. Omitted fields keep their current value.",
	}, s.handleUpdateTask)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "toggle_task",
		Description: "Flip a task between done and not done.",
	}, s.handleToggleTask)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "delete_task",
		Description: "Delete a task.",
	}, s.handleDeleteTask)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "move_task",
		Description: "Move a task from one position to another in the manual order.",
	}, s.handleMoveTask)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "get_progress",
		Description: "Get completed and total task counts with the completion percentage.",
	}, s.handleGetProgress)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "get_metrics",
		Description: "Get aggregated counts from the event log: tasks created, completed, deleted and reminders fired.",
	}, s.handleGetMetrics)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "get_alerts",
		Description: "Evaluate and return active alerts (overdue tasks, tasks due soon, failed saves).",
	}, s.handleGetAlerts)
}

// --- Tool handlers ---

func (s *Server) handleGetTask(_ context.Context, _ *gomcp.CallToolRequest, input taskIDInput) (*gomcp.CallToolResult, taskOutput, error) {
	if input.TaskID == "" {
		return errorResult("task_id is required"), taskOutput{}, nil
	}

	task, err := s.store.Get(input.TaskID)
	if err != nil {
		return errorResult(fmt.Sprintf("getting task %s: %s", input.TaskID, err)), taskOutput{}, nil
	}
	pos, _ := s.store.IndexOf(task.ID)

	return nil, s.taskToOutput(*task, pos), nil
}

func (s *Server) handleListTasks(_ context.Context, _ *gomcp.CallToolRequest, input listTasksInput) (*gomcp.CallToolResult, listTasksOutput, error) {
	filter := models.Filter{
		Search:   input.Search,
		Priority: models.Priority(input.Priority),
		Status:   models.StatusFilter(input.Status),
	}
	if filter.Priority != "" && filter.Priority != models.PriorityAll && !filter.Priority.Valid() {
		return errorResult(fmt.Sprintf("invalid priority %q: must be one of all, high, medium, low", input.Priority)), listTasksOutput{}, nil
	}
	if !filter.Status.Valid() {
		return errorResult(fmt.Sprintf("invalid status %q: must be one of all, active, completed", input.Status)), listTasksOutput{}, nil
	}

	canonical := s.store.Tasks()
	index := core.NewIndex(canonical)
	view := core.Project(canonical, filter)

	out := listTasksOutput{
		Active:    make([]taskOutput, 0, len(view.Active)),
		Completed: make([]taskOutput, 0, len(view.Completed)),
		Count:     len(view.Active) + len(view.Completed),
		Total:     view.Total,
	}
	for _, t := range view.Active {
		out.Active = append(out.Active, s.taskToOutput(t, index[t.ID]))
	}
	for _, t := range view.Completed {
		out.Completed = append(out.Completed, s.taskToOutput(t, index[t.ID]))
	}

	return nil, out, nil
}

func (s *Server) handleAddTask(_ context.Context, _ *gomcp.CallToolRequest, input addTaskInput) (*gomcp.CallToolResult, taskOutput, error) {
	if input.Priority != "" && !models.Priority(input.Priority).Valid() {
		return errorResult(fmt.Sprintf("invalid priority %q: must be one of high, medium, low", input.Priority)), taskOutput{}, nil
	}
	due, err := parseDueDate(input.DueDate)
	if err != nil {
		return errorResult(err.Error()), taskOutput{}, nil
	}

	task, err := s.store.Create(core.CreateInput{
		Text:     input.Text,
		DueDate:  due,
		Priority: models.Priority(input.Priority),
	})
	if err != nil {
		return errorResult(fmt.Sprintf("adding task: %s", err)), taskOutput{}, nil
	}
	pos, _ := s.store.IndexOf(task.ID)

	return nil, s.taskToOutput(*task, pos), nil
}

func (s *Server) handleUpdateTask(_ context.Context, _ *gomcp.CallToolRequest, input updateTaskInput) (*gomcp.CallToolResult, taskOutput, error) {
	if input.TaskID == "" {
		return errorResult("task_id is required"), taskOutput{}, nil
	}
	current, err := s.store.Get(input.TaskID)
	if err != nil {
		return errorResult(fmt.Sprintf("updating task %s: %s", input.TaskID, err)), taskOutput{}, nil
	}

	in := core.UpdateInput{
		Text:        current.Text,
		DueDate:     current.DueDate,
		Priority:    current.Priority,
		Attachments: core.CarryOver(current.Attachments),
	}
	if input.Text != nil {
		in.Text = *input.Text
	}
	if input.DueDate != nil {
		due, err := parseDueDate(*input.DueDate)
		if err != nil {
			return errorResult(err.Error()), taskOutput{}, nil
		}
		in.DueDate = due
	}
	if input.Priority != nil {
		p := models.Priority(*input.Priority)
		if !p.Valid() {
			return errorResult(fmt.Sprintf("invalid priority %q: must be one of high, medium, low", *input.Priority)), taskOutput{}, nil
		}
		in.Priority = p
	}

	task, err := s.store.Update(input.TaskID, in)
	if err != nil {
		return errorResult(fmt.Sprintf("updating task %s: %s", input.TaskID, err)), taskOutput{}, nil
	}
	pos, _ := s.store.IndexOf(task.ID)

	return nil, s.taskToOutput(*task, pos), nil
}

func (s *Server) handleToggleTask(_ context.Context, _ *gomcp.CallToolRequest, input taskIDInput) (*gomcp.CallToolResult, taskOutput, error) {
	if input.TaskID == "" {
		return errorResult("task_id is required"), taskOutput{}, nil
	}
	task, err := s.store.ToggleDone(input.TaskID)
	if err != nil {
		return errorResult(fmt.Sprintf("toggling task %s: %s", input.TaskID, err)), taskOutput{}, nil
	}
	pos, _ := s.store.IndexOf(task.ID)

	return nil, s.taskToOutput(*task, pos), nil
}

func (s *Server) handleDeleteTask(_ context.Context, _ *gomcp.CallToolRequest, input taskIDInput) (*gomcp.CallToolResult, messageOutput, error) {
	if input.TaskID == "" {
		return errorResult("task_id is required"), messageOutput{}, nil
	}
	if err := s.store.Delete(input.TaskID); err != nil {
		return errorResult(fmt.Sprintf("deleting task %s: %s", input.TaskID, err)), messageOutput{}, nil
	}
	return nil, messageOutput{Message: fmt.Sprintf("task %s deleted", input.TaskID)}, nil
}

func (s *Server) handleMoveTask(_ context.Context, _ *gomcp.CallToolRequest, input moveTaskInput) (*gomcp.CallToolResult, messageOutput, error) {
	n := len(s.store.Tasks())
	if input.From < 0 || input.From >= n || input.To < 0 || input.To >= n {
		return errorResult(fmt.Sprintf("positions must be between 0 and %d", n-1)), messageOutput{}, nil
	}
	s.store.Reorder(input.From, input.To)
	return nil, messageOutput{Message: fmt.Sprintf("moved task from %d to %d", input.From, input.To)}, nil
}

func (s *Server) handleGetProgress(_ context.Context, _ *gomcp.CallToolRequest, _ getProgressInput) (*gomcp.CallToolResult, progressOutput, error) {
	p := core.ComputeProgress(s.store.Tasks())
	return nil, progressOutput{
		Completed: p.Completed,
		Total:     p.Total,
		Percent:   p.Percent,
		Message:   p.Message,
	}, nil
}

func (s *Server) handleGetMetrics(_ context.Context, _ *gomcp.CallToolRequest, input getMetricsInput) (*gomcp.CallToolResult, metricsOutput, error) {
	if s.metricsCalc == nil {
		return errorResult("metrics calculator not available (observability may be disabled)"), emptyMetricsOutput(), nil
	}

	sinceStr := input.Since
	if sinceStr == "" {
		sinceStr = "7d"
	}

	sinceTime, err := parseSince(sinceStr)
	if err != nil {
		return errorResult(fmt.Sprintf("parsing since duration: %s", err)), emptyMetricsOutput(), nil
	}

	metrics, err := s.metricsCalc.Calculate(sinceTime)
	if err != nil {
		return errorResult(fmt.Sprintf("calculating metrics: %s", err)), emptyMetricsOutput(), nil
	}

	out := metricsOutput{
		TasksCreated:    metrics.TasksCreated,
		TasksUpdated:    metrics.TasksUpdated,
		TasksCompleted:  metrics.TasksCompleted,
		TasksReopened:   metrics.TasksReopened,
		TasksDeleted:    metrics.TasksDeleted,
		TasksByPriority: metrics.TasksByPriority,
		RemindersFired:  metrics.RemindersFired,
		SaveFailures:    metrics.SaveFailures,
		EventCount:      metrics.EventCount,
	}
	if out.TasksByPriority == nil {
		out.TasksByPriority = make(map[string]int)
	}
	if metrics.OldestEvent != nil {
		out.OldestEvent = metrics.OldestEvent.Format(time.RFC3339)
	}
	if metrics.NewestEvent != nil {
		out.NewestEvent = metrics.NewestEvent.Format(time.RFC3339)
	}

	return nil, out, nil
}

func (s *Server) handleGetAlerts(_ context.Context, _ *gomcp.CallToolRequest, _ getAlertsInput) (*gomcp.CallToolResult, getAlertsOutput, error) {
	if s.alertEngine == nil {
		return errorResult("alert engine not available (observability may be disabled)"), getAlertsOutput{}, nil
	}

	alerts, err := s.alertEngine.Evaluate(s.store.Tasks(), s.now())
	if err != nil {
		return errorResult(fmt.Sprintf("evaluating alerts: %s", err)), getAlertsOutput{}, nil
	}

	out := getAlertsOutput{
		Alerts: make([]alertOutput, len(alerts)),
		Count:  len(alerts),
	}
	for i, a := range alerts {
		out.Alerts[i] = alertOutput{
			ID:          a.ID,
			TaskID:      a.TaskID,
			Condition:   a.Condition,
			Severity:    string(a.Severity),
			Message:     a.Message,
			TriggeredAt: a.TriggeredAt.Format(time.RFC3339),
		}
	}

	return nil, out, nil
}

// --- Helpers ---

func (s *Server) taskToOutput(t models.Task, position int) taskOutput {
	out := taskOutput{
		ID:       t.ID,
		Text:     t.Text,
		Done:     t.Done,
		Priority: string(t.Priority),
		Deadline: core.DeadlineStatus(t, s.now()),
		Position: position,
	}
	if t.DueDate != nil {
		out.DueDate = *t.DueDate
	}
	if !t.CreatedAt.IsZero() {
		out.CreatedAt = t.CreatedAt.Format(time.RFC3339)
	}
	for _, a := range t.Attachments {
		out.Attachments = append(out.Attachments, attachmentOutput{Name: a.Name, Type: a.Type, Size: a.Size})
	}
	return out
}

func parseDueDate(s string) (*string, error) {
	if s == "" {
		return nil, nil
	}
	if _, err := time.Parse(models.DateLayout, s); err != nil {
		return nil, errors.New("due_date must be formatted YYYY-MM-DD")
	}
	return &s, nil
}

func emptyMetricsOutput() metricsOutput {
	return metricsOutput{
		TasksByPriority: make(map[string]int),
	}
}

func errorResult(msg string) *gomcp.CallToolResult {
	return &gomcp.CallToolResult{
		Content: []gomcp.Content{&gomcp.TextContent{Text: msg}},
		IsError: true,
	}
}

// parseSince parses a human-friendly duration string like "7d", "30d", or "24h"
// into the corresponding time in the past.
func parseSince(s string) (time.Time, error) {
	now := time.Now().UTC()

	if len(s) < 2 {
		return time.Time{}, fmt.Errorf("invalid duration %q", s)
	}

	suffix := s[len(s)-1]
	numStr := s[:len(s)-1]
	var num int
	if _, err := fmt.Sscanf(numStr, "%d", &num); err != nil {
		return time.Time{}, fmt.Errorf("invalid duration %q: %w", s, err)
	}

	switch suffix {
	case 'd':
		return now.AddDate(0, 0, -num), nil
	case 'h':
		return now.Add(-time.Duration(num) * time.Hour), nil
	default:
		return time.Time{}, fmt.Errorf("unsupported duration suffix %q (use d or h)", string(suffix))
	}
}
