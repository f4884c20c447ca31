// Package web exposes the task list over a JSON HTTP API built on gin.
package web

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/valter-silva-au/todo/internal/core"
	"go.uber.org/zap"
)

// StoreProvider returns the task store for a signed-in user.
type StoreProvider func(ctx context.Context, userID string) (core.TaskStore, error)

// Options configures the API server.
type Options struct {
	// Tokens maps bearer tokens to user IDs.
	Tokens map[string]string
	// DefaultUser serves requests that carry no Authorization header. Empty
	// means such requests are rejected.
	DefaultUser string
	Logger      *zap.Logger
}

// Server is the todo HTTP API server.
type Server struct {
	router *gin.Engine
	stores StoreProvider
	opts   Options
	logger *zap.Logger
	now    func() time.Time
}

const userKey = "todo.user"

// NewServer creates a new API server over stores.
func NewServer(stores StoreProvider, opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	router := gin.New()
	router.Use(gin.Recovery())

	s := &Server{
		router: router,
		stores: stores,
		opts:   opts,
		logger: opts.Logger,
		now:    time.Now,
	}
	router.Use(s.logRequests)

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := router.Group("/api", s.authenticate)
	{
		api.GET("/tasks", s.handleList)
		api.POST("/tasks", s.handleCreate)
		api.POST("/tasks/move", s.handleMove)
		api.GET("/tasks/:id", s.handleGet)
		api.PUT("/tasks/:id", s.handleUpdate)
		api.DELETE("/tasks/:id", s.handleDelete)
		api.POST("/tasks/:id/toggle", s.handleToggle)
		api.POST("/tasks/:id/attachments", s.handleAttach)
		api.GET("/tasks/:id/attachments/:index", s.handleDownload)
		api.DELETE("/tasks/:id/attachments/:index", s.handleDetach)
		api.GET("/progress", s.handleProgress)
	}

	return s
}

// Handler returns the HTTP handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	s.logger.Info("api server listening", zap.String("addr", addr))

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		<-errCh
		return nil
	}
}

// authenticate resolves the bearer token to a user and aborts with 401 when
// there is none.
func (s *Server) authenticate(c *gin.Context) {
	header := c.GetHeader("Authorization")
	user := ""
	switch {
	case header == "":
		user = s.opts.DefaultUser
	case strings.HasPrefix(header, "Bearer "):
		user = s.opts.Tokens[strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))]
	}
	if user == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
			"success": false,
			"error":   core.ErrUnauthenticated.Error(),
		})
		return
	}
	c.Set(userKey, user)
	c.Next()
}

func (s *Server) logRequests(c *gin.Context) {
	start := time.Now()
	c.Next()
	s.logger.Debug("request",
		zap.String("method", c.Request.Method),
		zap.String("path", c.FullPath()),
		zap.Int("status", c.Writer.Status()),
		zap.Duration("latency", time.Since(start)))
}

// store resolves the caller's task store, writing an error response when it
// cannot.
func (s *Server) store(c *gin.Context) (core.TaskStore, bool) {
	store, err := s.stores(c.Request.Context(), c.GetString(userKey))
	if err != nil {
		s.fail(c, err)
		return nil, false
	}
	return store, true
}
