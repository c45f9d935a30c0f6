// Package httpapi provides the HTTP API of intaked: capture submission,
// queue sync, undo, and the debrief flow. Pipeline errors reach this layer
// already classified; handlers only translate the taxonomy to status codes.
package httpapi

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/intaked/internal/capture"
	"github.com/fyrsmithlabs/intaked/internal/debrief"
	"github.com/fyrsmithlabs/intaked/internal/logging"
	"github.com/fyrsmithlabs/intaked/internal/patterns"
	"github.com/fyrsmithlabs/intaked/internal/pipeline"
	"github.com/fyrsmithlabs/intaked/internal/queue"
	"github.com/fyrsmithlabs/intaked/internal/softdelete"
	"github.com/fyrsmithlabs/intaked/internal/store"
)

// Server provides HTTP endpoints for intaked.
type Server struct {
	echo     *echo.Echo
	pipeline *pipeline.Pipeline
	deleter  *softdelete.Service
	debrief  *debrief.Manager
	patterns patterns.Store
	review   string
	logger   *zap.Logger
	config   *Config
}

// Config holds HTTP server configuration.
type Config struct {
	Host string
	Port int
}

// Deps carries the server's collaborators.
type Deps struct {
	Pipeline *pipeline.Pipeline
	Deleter  *softdelete.Service
	Debrief  *debrief.Manager
	Patterns patterns.Store
	// ReviewCollection names the backlog collection the debrief flow drains.
	ReviewCollection string
}

// NewServer creates a new HTTP server.
func NewServer(deps Deps, logger *zap.Logger, cfg *Config) (*Server, error) {
	if deps.Pipeline == nil {
		return nil, fmt.Errorf("pipeline cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required for request tracking and debugging")
	}
	if cfg == nil {
		cfg = &Config{
			Host: "localhost",
			Port: 9820,
		}
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			// Put the request ID on the context so downstream layers
			// correlate their logs with this request.
			req := c.Request()
			ctx := logging.WithRequestID(req.Context(), c.Response().Header().Get(echo.HeaderXRequestID))
			c.SetRequest(req.WithContext(ctx))

			start := time.Now()
			err := next(c)

			fields := append([]zap.Field{
				zap.String("method", c.Request().Method),
				zap.String("uri", c.Request().RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", time.Since(start)),
			}, logging.ContextFields(c.Request().Context())...)
			logger.Info("http request", fields...)

			return err
		}
	})

	s := &Server{
		echo:     e,
		pipeline: deps.Pipeline,
		deleter:  deps.Deleter,
		debrief:  deps.Debrief,
		patterns: deps.Patterns,
		review:   deps.ReviewCollection,
		logger:   logger,
		config:   cfg,
	}
	s.registerRoutes()
	return s, nil
}

// registerRoutes sets up the HTTP endpoints.
func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	v1 := s.echo.Group("/api/v1")
	v1.POST("/captures", s.handleCapture)
	v1.POST("/sync", s.handleSync)
	v1.GET("/queue", s.handleQueue)
	v1.DELETE("/records/:id", s.handleDelete)
	v1.POST("/records/:id/restore", s.handleRestore)
	v1.POST("/undo", s.handleUndo)
	v1.POST("/debrief/start", s.handleDebriefStart)
	v1.POST("/debrief/reply", s.handleDebriefReply)
	v1.GET("/patterns/disused", s.handleDisusedPatterns)
}

// CaptureRequest is the request body for POST /api/v1/captures.
type CaptureRequest struct {
	ChannelID string `json:"channel_id"`
	MessageID string `json:"message_id"`
	Text      string `json:"text"`
	// AudioBase64, when set, makes this a voice capture transcribed
	// server-side; Text is ignored.
	AudioBase64 string `json:"audio_base64,omitempty"`
}

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status       string `json:"status"`
	QueuePending int    `json:"queue_pending"`
}

func (s *Server) handleHealth(c echo.Context) error {
	pending, err := s.pipeline.PendingCount(c.Request().Context())
	if err != nil {
		s.logger.Warn("failed to read queue depth", zap.Error(err))
	}
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok", QueuePending: pending})
}

func (s *Server) handleCapture(c echo.Context) error {
	var req CaptureRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	ctx := logging.WithChannelID(c.Request().Context(), req.ChannelID)
	c.SetRequest(c.Request().WithContext(ctx))
	var res pipeline.Result
	var err error
	if req.AudioBase64 != "" {
		var audio []byte
		audio, err = base64.StdEncoding.DecodeString(req.AudioBase64)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid audio encoding")
		}
		res, err = s.pipeline.ProcessVoice(ctx, req.ChannelID, req.MessageID, audio)
	} else {
		res, err = s.pipeline.Process(ctx, capture.Capture{
			ChannelID:  req.ChannelID,
			MessageID:  req.MessageID,
			Text:       req.Text,
			Source:     capture.SourceText,
			ReceivedAt: time.Now().UTC(),
		})
	}
	if err != nil {
		return s.captureError(err)
	}
	return c.JSON(http.StatusOK, res)
}

func (s *Server) captureError(err error) error {
	var vErr *store.ValidationError
	if errors.As(err, &vErr) {
		return echo.NewHTTPError(http.StatusUnprocessableEntity, vErr.Message)
	}
	if errors.Is(err, capture.ErrTranscription) {
		return echo.NewHTTPError(http.StatusUnprocessableEntity, "could not transcribe audio")
	}
	return echo.NewHTTPError(http.StatusInternalServerError, "capture failed")
}

// SyncResponse is the response body for POST /api/v1/sync.
type SyncResponse struct {
	queue.Result
	AllSuccessful bool `json:"all_successful"`
}

func (s *Server) handleSync(c echo.Context) error {
	res, err := s.pipeline.Sync(c.Request().Context())
	if errors.Is(err, queue.ErrDrainInProgress) {
		return echo.NewHTTPError(http.StatusConflict, "a sync is already running")
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "sync failed")
	}
	return c.JSON(http.StatusOK, SyncResponse{Result: res, AllSuccessful: res.AllSuccessful()})
}

// QueueResponse is the response body for GET /api/v1/queue.
type QueueResponse struct {
	Pending int            `json:"pending"`
	Failed  []queue.Action `json:"failed"`
}

func (s *Server) handleQueue(c echo.Context) error {
	ctx := c.Request().Context()
	pending, err := s.pipeline.PendingCount(ctx)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to read queue")
	}
	failed, err := s.pipeline.FailedActions(ctx)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to read queue")
	}
	if failed == nil {
		failed = []queue.Action{}
	}
	return c.JSON(http.StatusOK, QueueResponse{Pending: pending, Failed: failed})
}

func (s *Server) handleDelete(c echo.Context) error {
	res, err := s.deleter.SoftDelete(c.Request().Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "record not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "delete failed")
	}
	return c.JSON(http.StatusOK, res)
}

func (s *Server) handleUndo(c echo.Context) error {
	rec, err := s.deleter.UndoLast(c.Request().Context())
	switch {
	case errors.Is(err, softdelete.ErrUndoExpired):
		pipeline.UndoTotal.WithLabelValues("expired").Inc()
		return echo.NewHTTPError(http.StatusGone, "can no longer undo")
	case errors.Is(err, softdelete.ErrNothingToUndo):
		pipeline.UndoTotal.WithLabelValues("nothing").Inc()
		return echo.NewHTTPError(http.StatusNotFound, "nothing to undo")
	case err != nil:
		return echo.NewHTTPError(http.StatusInternalServerError, "undo failed")
	}
	pipeline.UndoTotal.WithLabelValues("restored").Inc()
	return c.JSON(http.StatusOK, rec)
}

func (s *Server) handleRestore(c echo.Context) error {
	rec, err := s.deleter.RestoreByID(c.Request().Context(), c.Param("id"))
	switch {
	case errors.Is(err, softdelete.ErrUndoExpired):
		pipeline.UndoTotal.WithLabelValues("expired").Inc()
		return echo.NewHTTPError(http.StatusGone, "can no longer undo")
	case errors.Is(err, softdelete.ErrNothingToUndo):
		pipeline.UndoTotal.WithLabelValues("nothing").Inc()
		return echo.NewHTTPError(http.StatusNotFound, "no deletion recorded for this record")
	case err != nil:
		return echo.NewHTTPError(http.StatusInternalServerError, "restore failed")
	}
	pipeline.UndoTotal.WithLabelValues("restored").Inc()
	return c.JSON(http.StatusOK, rec)
}

// DebriefRequest is the request body for the debrief endpoints.
type DebriefRequest struct {
	ChannelID string `json:"channel_id"`
	Input     string `json:"input,omitempty"`
}

// DebriefResponse is the response body for the debrief endpoints.
type DebriefResponse struct {
	SessionID string           `json:"session_id"`
	State     debrief.State    `json:"state"`
	Prompt    string           `json:"prompt"`
	Summary   *debrief.Summary `json:"summary,omitempty"`
}

func (s *Server) handleDebriefStart(c echo.Context) error {
	var req DebriefRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.ChannelID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "channel_id is required")
	}

	session, prompt, err := s.debrief.Start(c.Request().Context(), req.ChannelID, s.review)
	if errors.Is(err, debrief.ErrNoBacklog) {
		return echo.NewHTTPError(http.StatusNotFound, "review backlog is empty")
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to start debrief")
	}
	return c.JSON(http.StatusOK, DebriefResponse{
		SessionID: session.ID,
		State:     session.State,
		Prompt:    prompt,
	})
}

func (s *Server) handleDebriefReply(c echo.Context) error {
	var req DebriefRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.ChannelID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "channel_id is required")
	}

	out, err := s.debrief.HandleInput(c.Request().Context(), req.ChannelID, req.Input)
	if errors.Is(err, debrief.ErrNoActiveSession) {
		return echo.NewHTTPError(http.StatusNotFound, "no active debrief session")
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to advance debrief")
	}
	return c.JSON(http.StatusOK, DebriefResponse{
		SessionID: out.Session.ID,
		State:     out.Session.State,
		Prompt:    out.Prompt,
		Summary:   out.Summary,
	})
}

func (s *Server) handleDisusedPatterns(c echo.Context) error {
	since := time.Now().AddDate(0, -1, 0)
	if raw := c.QueryParam("idle"); raw != "" {
		idle, err := time.ParseDuration(raw)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid idle duration")
		}
		since = time.Now().Add(-idle)
	}
	disused, err := s.patterns.Disused(c.Request().Context(), since)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to list patterns")
	}
	if disused == nil {
		disused = []patterns.Pattern{}
	}
	return c.JSON(http.StatusOK, disused)
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.logger.Info("starting http server", zap.String("addr", addr))
	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	return s.echo.Shutdown(ctx)
}
