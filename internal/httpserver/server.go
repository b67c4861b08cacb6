// Package httpserver exposes the chat client over HTTP: a JSON API for the
// conversation UI and a WebSocket voice channel for microphone audio and
// spoken replies.
package httpserver

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/pascalm94/Artips/internal/session"
	"github.com/pascalm94/Artips/internal/store"
	"github.com/pascalm94/Artips/internal/voices"
)

// Server bundles the router and the session orchestrator.
type Server struct {
	echo *echo.Echo
	orch *session.Orchestrator
}

// New constructs the HTTP server with all routes registered.
func New(orch *session.Orchestrator) *Server {
	s := &Server{echo: newRouter(), orch: orch}

	e := s.echo
	e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })

	e.GET("/api/state", s.getState)
	e.GET("/api/conversations", s.listConversations)
	e.POST("/api/conversations", s.createConversation)
	e.GET("/api/conversations/:id", s.getConversation)
	e.POST("/api/conversations/:id/select", s.selectConversation)
	e.PUT("/api/conversations/:id/title", s.renameConversation)
	e.DELETE("/api/conversations/:id", s.deleteConversation)

	e.POST("/api/messages", s.postMessage)
	e.POST("/api/messages/:id/replay", s.replayMessage)

	e.GET("/api/voices", s.listVoices)
	e.PUT("/api/voice", s.setVoice)
	e.POST("/api/error/dismiss", s.dismissError)

	e.GET("/ws/voice", s.voiceWebSocket)

	return s
}

// Handler exposes the router for an http.Server.
func (s *Server) Handler() http.Handler { return s.echo }

func (s *Server) getState(c echo.Context) error {
	return c.JSON(http.StatusOK, s.orch.State())
}

func (s *Server) listConversations(c echo.Context) error {
	return c.JSON(http.StatusOK, s.orch.State().Conversations)
}

func (s *Server) createConversation(c echo.Context) error {
	return c.JSON(http.StatusCreated, s.orch.CreateConversation())
}

func (s *Server) getConversation(c echo.Context) error {
	conv, err := s.orch.GetConversation(c.Param("id"))
	if err != nil {
		return conversationError(c, err)
	}
	return c.JSON(http.StatusOK, conv)
}

func (s *Server) selectConversation(c echo.Context) error {
	conv, err := s.orch.SelectConversation(c.Param("id"))
	if err != nil {
		return conversationError(c, err)
	}
	return c.JSON(http.StatusOK, conv)
}

func (s *Server) renameConversation(c echo.Context) error {
	var req struct {
		Title string `json:"title"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorBody("invalid request body"))
	}
	if err := s.orch.RenameConversation(c.Param("id"), req.Title); err != nil {
		return conversationError(c, err)
	}
	return c.JSON(http.StatusOK, s.orch.State())
}

func (s *Server) deleteConversation(c echo.Context) error {
	if err := s.orch.DeleteConversation(c.Param("id")); err != nil {
		return conversationError(c, err)
	}
	return c.JSON(http.StatusOK, s.orch.State())
}

func (s *Server) postMessage(c echo.Context) error {
	var req struct {
		Text string `json:"text"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorBody("invalid request body"))
	}
	// Failures surface through the state's error banner; the snapshot is the
	// response either way.
	_ = s.orch.SubmitUserText(c.Request().Context(), req.Text)
	return c.JSON(http.StatusOK, s.orch.State())
}

func (s *Server) replayMessage(c echo.Context) error {
	if err := s.orch.Replay(c.Param("id")); err != nil {
		return c.JSON(http.StatusNotFound, errorBody(err.Error()))
	}
	return c.NoContent(http.StatusAccepted)
}

func (s *Server) listVoices(c echo.Context) error {
	return c.JSON(http.StatusOK, voices.List())
}

func (s *Server) setVoice(c echo.Context) error {
	var req struct {
		ID string `json:"id"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorBody("invalid request body"))
	}
	if err := s.orch.SetVoice(req.ID); err != nil {
		return c.JSON(http.StatusBadRequest, errorBody(err.Error()))
	}
	return c.JSON(http.StatusOK, s.orch.State())
}

func (s *Server) dismissError(c echo.Context) error {
	s.orch.DismissError()
	return c.JSON(http.StatusOK, s.orch.State())
}

func conversationError(c echo.Context, err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return c.JSON(http.StatusNotFound, errorBody("conversation not found"))
	}
	return c.JSON(http.StatusInternalServerError, errorBody(err.Error()))
}

func errorBody(msg string) map[string]string {
	return map[string]string{"error": msg}
}
