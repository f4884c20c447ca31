package web

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/valter-silva-au/todo/internal/core"
	"github.com/valter-silva-au/todo/pkg/models"
	"go.uber.org/zap"
)

const maxAttachmentSize = 10 << 20 // 10MB

type attachmentResponse struct {
	Name string `json:"name"`
	Type string `json:"type"`
	Size int64  `json:"size"`
}

type taskResponse struct {
	ID          string               `json:"id"`
	Text        string               `json:"text"`
	Done        bool                 `json:"done"`
	DueDate     *string              `json:"dueDate"`
	Priority    models.Priority      `json:"priority"`
	Deadline    string               `json:"deadline,omitempty"`
	Position    int                  `json:"position"`
	Attachments []attachmentResponse `json:"attachments"`
	CreatedAt   time.Time            `json:"createdAt"`
}

type taskRequest struct {
	Text     string  `json:"text"`
	DueDate  *string `json:"dueDate"`
	Priority string  `json:"priority"`
}

type moveRequest struct {
	From *int `json:"from"`
	To   *int `json:"to"`
}

func (s *Server) handleList(c *gin.Context) {
	store, ok := s.store(c)
	if !ok {
		return
	}
	filter := models.Filter{
		Search:   c.Query("search"),
		Priority: models.Priority(c.Query("priority")),
		Status:   models.StatusFilter(c.Query("status")),
	}
	if filter.Priority != "" && filter.Priority != models.PriorityAll && !filter.Priority.Valid() {
		s.badRequest(c, fmt.Sprintf("invalid priority %q", filter.Priority))
		return
	}
	if !filter.Status.Valid() {
		s.badRequest(c, fmt.Sprintf("invalid status %q", filter.Status))
		return
	}

	canonical := store.Tasks()
	index := core.NewIndex(canonical)
	view := core.Project(canonical, filter)

	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"active":    s.toResponses(view.Active, index),
		"completed": s.toResponses(view.Completed, index),
		"count":     len(view.Active) + len(view.Completed),
		"total":     view.Total,
	})
}

func (s *Server) handleGet(c *gin.Context) {
	store, ok := s.store(c)
	if !ok {
		return
	}
	task, err := store.Get(c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	s.respondTask(c, http.StatusOK, store, task)
}

func (s *Server) handleCreate(c *gin.Context) {
	store, ok := s.store(c)
	if !ok {
		return
	}
	var req taskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, err.Error())
		return
	}
	if msg := validateRequest(req); msg != "" {
		s.badRequest(c, msg)
		return
	}

	task, err := store.Create(core.CreateInput{
		Text:     req.Text,
		DueDate:  req.DueDate,
		Priority: models.Priority(req.Priority),
	})
	if err != nil {
		s.fail(c, err)
		return
	}
	s.respondTask(c, http.StatusCreated, store, task)
}

// handleUpdate replaces text, due date and priority. Attachments are kept.
func (s *Server) handleUpdate(c *gin.Context) {
	store, ok := s.store(c)
	if !ok {
		return
	}
	var req taskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, err.Error())
		return
	}
	if msg := validateRequest(req); msg != "" {
		s.badRequest(c, msg)
		return
	}
	id := c.Param("id")
	current, err := store.Get(id)
	if err != nil {
		s.fail(c, err)
		return
	}

	task, err := store.Update(id, core.UpdateInput{
		Text:        req.Text,
		DueDate:     req.DueDate,
		Priority:    models.Priority(req.Priority),
		Attachments: core.CarryOver(current.Attachments),
	})
	if err != nil {
		s.fail(c, err)
		return
	}
	s.respondTask(c, http.StatusOK, store, task)
}

func (s *Server) handleToggle(c *gin.Context) {
	store, ok := s.store(c)
	if !ok {
		return
	}
	task, err := store.ToggleDone(c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	s.respondTask(c, http.StatusOK, store, task)
}

func (s *Server) handleDelete(c *gin.Context) {
	store, ok := s.store(c)
	if !ok {
		return
	}
	if err := store.Delete(c.Param("id")); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Task deleted",
	})
}

func (s *Server) handleMove(c *gin.Context) {
	store, ok := s.store(c)
	if !ok {
		return
	}
	var req moveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, err.Error())
		return
	}
	n := len(store.Tasks())
	if req.From == nil || req.To == nil || *req.From < 0 || *req.From >= n || *req.To < 0 || *req.To >= n {
		s.badRequest(c, fmt.Sprintf("from and to must be between 0 and %d", n-1))
		return
	}
	store.Reorder(*req.From, *req.To)
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Task moved",
	})
}

func (s *Server) handleProgress(c *gin.Context) {
	store, ok := s.store(c)
	if !ok {
		return
	}
	p := core.ComputeProgress(store.Tasks())
	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"completed": p.Completed,
		"total":     p.Total,
		"percent":   p.Percent,
		"message":   p.Message,
	})
}

// handleAttach adds the uploaded "file" form field to the task through an
// edit session.
func (s *Server) handleAttach(c *gin.Context) {
	store, ok := s.store(c)
	if !ok {
		return
	}
	header, err := c.FormFile("file")
	if err != nil {
		s.badRequest(c, "file form field required")
		return
	}
	if header.Size > maxAttachmentSize {
		s.badRequest(c, "attachment exceeds maximum size of 10MB")
		return
	}
	f, err := header.Open()
	if err != nil {
		s.fail(c, err)
		return
	}
	data, err := io.ReadAll(io.LimitReader(f, maxAttachmentSize+1))
	_ = f.Close()
	if err != nil {
		s.fail(c, err)
		return
	}
	mime := header.Header.Get("Content-Type")
	if mime == "" || mime == "application/octet-stream" {
		mime = http.DetectContentType(data)
	}

	sess, err := store.BeginEdit(c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	defer sess.Cancel()
	if _, err := sess.AddFile(header.Filename, mime, data); err != nil {
		s.fail(c, err)
		return
	}
	task, err := sess.Save()
	if err != nil {
		s.fail(c, err)
		return
	}
	s.respondTask(c, http.StatusCreated, store, task)
}

func (s *Server) handleDownload(c *gin.Context) {
	store, ok := s.store(c)
	if !ok {
		return
	}
	task, err := store.Get(c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	i, ok := s.attachmentIndex(c, task)
	if !ok {
		return
	}
	a, err := store.Codec().FromStorable(task.Attachments[i])
	if err != nil {
		s.fail(c, err)
		return
	}
	store.Codec().ReleasePreview(&a)

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", a.Name))
	c.Data(http.StatusOK, a.Type, a.Data)
}

func (s *Server) handleDetach(c *gin.Context) {
	store, ok := s.store(c)
	if !ok {
		return
	}
	task, err := store.Get(c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	i, ok := s.attachmentIndex(c, task)
	if !ok {
		return
	}
	sess, err := store.BeginEdit(task.ID)
	if err != nil {
		s.fail(c, err)
		return
	}
	defer sess.Cancel()
	if err := sess.Remove(i); err != nil {
		s.fail(c, err)
		return
	}
	updated, err := sess.Save()
	if err != nil {
		s.fail(c, err)
		return
	}
	s.respondTask(c, http.StatusOK, store, updated)
}

// --- Helpers ---

func (s *Server) attachmentIndex(c *gin.Context, task *models.Task) (int, bool) {
	i, err := strconv.Atoi(c.Param("index"))
	if err != nil || i < 0 || i >= len(task.Attachments) {
		c.JSON(http.StatusNotFound, gin.H{
			"success": false,
			"error":   "attachment not found",
		})
		return 0, false
	}
	return i, true
}

func (s *Server) respondTask(c *gin.Context, status int, store core.TaskStore, task *models.Task) {
	pos, _ := store.IndexOf(task.ID)
	c.JSON(status, gin.H{
		"success": true,
		"data":    s.toResponse(*task, pos),
	})
}

func (s *Server) toResponses(tasks []models.Task, index map[string]int) []taskResponse {
	out := make([]taskResponse, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, s.toResponse(t, index[t.ID]))
	}
	return out
}

func (s *Server) toResponse(t models.Task, position int) taskResponse {
	out := taskResponse{
		ID:          t.ID,
		Text:        t.Text,
		Done:        t.Done,
		DueDate:     t.DueDate,
		Priority:    t.Priority,
		Deadline:    core.DeadlineStatus(t, s.now()),
		Position:    position,
		Attachments: make([]attachmentResponse, 0, len(t.Attachments)),
		CreatedAt:   t.CreatedAt,
	}
	for _, a := range t.Attachments {
		out.Attachments = append(out.Attachments, attachmentResponse{Name: a.Name, Type: a.Type, Size: a.Size})
	}
	return out
}

func (s *Server) badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{
		"success": false,
		"error":   msg,
	})
}

// fail maps store errors to HTTP status codes.
func (s *Server) fail(c *gin.Context, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		s.logger.Error("api request failed", zap.String("path", c.FullPath()), zap.Error(err))
	}
	c.JSON(status, gin.H{
		"success": false,
		"error":   err.Error(),
	})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, core.ErrEmptyText):
		return http.StatusBadRequest
	case errors.Is(err, core.ErrDuplicateText), errors.Is(err, core.ErrSessionClosed):
		return http.StatusConflict
	case errors.Is(err, core.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, core.ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, core.ErrCodec):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func validateRequest(req taskRequest) string {
	if req.Priority != "" && !models.Priority(req.Priority).Valid() {
		return fmt.Sprintf("invalid priority %q: must be one of high, medium, low", req.Priority)
	}
	if req.DueDate != nil && *req.DueDate != "" {
		if _, err := time.Parse(models.DateLayout, *req.DueDate); err != nil {
			return "dueDate must be formatted YYYY-MM-DD"
		}
	}
	return ""
}
