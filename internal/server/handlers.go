package server

import (
	"errors"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/codebox-sh/codebox/internal/bash"
	"github.com/codebox-sh/codebox/internal/events"
	"github.com/codebox-sh/codebox/internal/providers/jupyter"
	"github.com/codebox-sh/codebox/internal/viewer"
)

func (s *Server) handleRoot(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"name":    "codebox-runtime",
		"version": Version,
		"status":  "running",
	})
}

func (s *Server) handleAlive(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "alive"})
}

func (s *Server) handleServerInfo(c *gin.Context) {
	idle := time.Since(s.lastActivity()).Seconds()
	c.JSON(http.StatusOK, gin.H{
		"uptime":    time.Since(s.startTime).Seconds(),
		"idle_time": idle,
		"resources": s.system.Stats(),
	})
}

func (s *Server) handleSystemStats(c *gin.Context) {
	c.JSON(http.StatusOK, s.system.Stats())
}

// handleReset tears down a session's terminal process and starts a
// fresh one under the same id.
func (s *Server) handleReset(c *gin.Context) {
	var req struct {
		SessionID string `json:"session_id"`
	}
	// Body is optional; an empty one resets the default session.
	_ = c.ShouldBindJSON(&req)

	if err := s.sessions.Reset(req.SessionID); err != nil {
		s.log.Error("session reset failed",
			zap.String("session_id", req.SessionID),
			zap.Error(err),
		)
		c.JSON(http.StatusInternalServerError, gin.H{"detail": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "reset", "session_id": sessionOrDefault(req.SessionID)})
}

// handleExecuteAction decodes one action dict, dispatches it and
// returns exactly one observation dict. Execution failures become
// error observations; only an undecodable request is an HTTP error.
func (s *Server) handleExecuteAction(c *gin.Context) {
	raw, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "unreadable request body"})
		return
	}

	act, err := events.ActionFromDict(raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": err.Error()})
		return
	}

	start := time.Now()
	obs := s.dispatch(c, act)
	status := "ok"
	if _, isErr := obs.(events.ErrorObservation); isErr {
		status = "error"
	}
	s.metrics.RecordAction(act.Action(), status, time.Since(start))
	s.log.Debug("action executed",
		zap.String("request_id", c.GetString(requestIDKey)),
		zap.String("action", act.Action()),
		zap.String("status", status),
		zap.Duration("duration", time.Since(start)),
	)

	c.JSON(http.StatusOK, events.ObservationToDict(obs))
}

func (s *Server) dispatch(c *gin.Context, act events.Action) events.Observation {
	switch a := act.(type) {
	case events.CmdRunAction:
		return s.runCommand(a)
	case events.IPythonRunCellAction:
		return s.jupyter.Run(c.Request.Context(), a)
	case events.FileReadAction:
		return s.files.Read(a)
	case events.FileWriteAction:
		return s.files.Write(a)
	case events.FileEditAction:
		return s.files.Edit(a)
	default:
		return events.ErrorObservation{
			Content:   "unsupported action type: " + act.Action(),
			ErrorType: "unsupported_action",
		}
	}
}

// runCommand executes a shell action against its session and folds
// typed session errors into error observations the controller can
// react to.
func (s *Server) runCommand(act events.CmdRunAction) events.Observation {
	sess, err := s.sessions.GetOrCreate(act.SessionID)
	if err != nil {
		return events.ErrorObservation{
			Content:   "failed to create session: " + err.Error(),
			ErrorType: "session_create_failed",
		}
	}

	obs, err := sess.Execute(act)
	if err != nil {
		errType := classifyError(err)
		if errType == "multi_statement" || errType == "parse_error" {
			s.metrics.RecordValidationError(errType)
		}
		return events.ErrorObservation{Content: err.Error(), ErrorType: errType}
	}

	s.metrics.RecordCommand(obs.Classifier, obs.Truncated)
	switch obs.Classifier {
	case events.ClassifierTimeoutSoft:
		s.metrics.RecordTimeout("soft")
	case events.ClassifierTimeoutHard:
		s.metrics.RecordTimeout("hard")
	}
	return *obs
}

func classifyError(err error) string {
	var multiErr *bash.MultiStatementError
	var parseErr *bash.ParseError
	var desyncErr *bash.DesyncError

	switch {
	case errors.As(err, &multiErr):
		return "multi_statement"
	case errors.As(err, &parseErr):
		return "parse_error"
	case errors.As(err, &desyncErr):
		return "desync"
	case errors.Is(err, bash.ErrCommandInFlight):
		return "command_in_flight"
	case errors.Is(err, bash.ErrAwaitingInput):
		return "awaiting_input"
	case errors.Is(err, bash.ErrNotAwaitingInput):
		return "not_awaiting_input"
	case errors.Is(err, bash.ErrEmptyCommand):
		return "empty_command"
	case errors.Is(err, bash.ErrSessionClosed):
		return "session_closed"
	default:
		return "runtime_error"
	}
}

// handleViewFile renders a workspace file as an HTML preview page.
func (s *Server) handleViewFile(c *gin.Context) {
	path := c.Query("path")
	if path == "" {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "path query parameter is required"})
		return
	}

	html, err := viewer.GenerateHTML(path)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, os.ErrNotExist) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"detail": err.Error()})
		return
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(html))
}

func (s *Server) handlePlugins(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"plugins": []gin.H{
			{
				"name":        s.jupyter.Name(),
				"enabled":     s.cfg.Jupyter.Enabled,
				"initialized": s.jupyter.Initialized(),
				"python_path": s.jupyter.PythonPath(),
			},
		},
	})
}

func (s *Server) handleInitializePlugin(c *gin.Context) {
	name := c.Param("name")
	if name != jupyter.PluginName {
		c.JSON(http.StatusNotFound, gin.H{"detail": "unknown plugin: " + name})
		return
	}
	if err := s.jupyter.Initialize(c.Request.Context()); err != nil {
		s.log.Error("plugin initialization failed", zap.String("plugin", name), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"detail": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":      "initialized",
		"plugin":      name,
		"python_path": s.jupyter.PythonPath(),
	})
}

func sessionOrDefault(id string) string {
	if id == "" {
		return bash.DefaultSessionID
	}
	return id
}
