package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"AgentDesk/internal/agent"
	"AgentDesk/internal/tool"
)

type agentView struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Personality string `json:"personality,omitempty"`
}

type toolView struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Integration string `json:"integration"`
}

type sessionView struct {
	ID           string       `json:"id"`
	AgentID      string       `json:"agent_id"`
	Integrations []string     `json:"integrations"`
	Tools        []toolView   `json:"tools"`
	State        string       `json:"state"`
	Turns        []agent.Turn `json:"turns"`
}

type openSessionRequest struct {
	SessionID    string   `json:"session_id"`
	AgentID      string   `json:"agent_id" binding:"required"`
	Integrations []string `json:"integrations"`
}

type sendMessageRequest struct {
	Text string `json:"text" binding:"required"`
}

func toolViews(descs []tool.Descriptor) []toolView {
	out := make([]toolView, 0, len(descs))
	for _, d := range descs {
		out = append(out, toolView{Name: string(d.Name), Description: d.Description, Integration: string(d.Integration)})
	}
	return out
}

func newSessionView(sess *agent.Session) sessionView {
	tags := sess.Integrations()
	integrations := make([]string, 0, len(tags))
	for _, tag := range tags {
		integrations = append(integrations, string(tag))
	}
	return sessionView{
		ID:           sess.ID(),
		AgentID:      sess.AgentID(),
		Integrations: integrations,
		Tools:        toolViews(sess.Tools()),
		State:        string(sess.State()),
		Turns:        sess.Turns(),
	}
}

func (s *Server) handleListAgents(c *gin.Context) {
	if s.deps.Sessions == nil {
		unavailable(c, "session manager")
		return
	}
	profiles := s.deps.Sessions.Profiles()
	out := make([]agentView, 0, len(profiles))
	for _, p := range profiles {
		out = append(out, agentView{ID: p.ID, Name: p.Name, Personality: p.Personality})
	}
	c.JSON(http.StatusOK, out)
}

// handleListTools 返回给定集成开关下可用的工具；不带参数时返回全部工具。
func (s *Server) handleListTools(c *gin.Context) {
	registry, err := tool.Default()
	if err != nil {
		writeError(c, err)
		return
	}
	raw := strings.TrimSpace(c.Query("integrations"))
	if raw == "" {
		c.JSON(http.StatusOK, toolViews(registry.Descriptors()))
		return
	}
	c.JSON(http.StatusOK, toolViews(tool.ActiveTools(registry, tool.ParseIntegrations(raw))))
}

func (s *Server) handleOpenSession(c *gin.Context) {
	if s.deps.Sessions == nil {
		unavailable(c, "session manager")
		return
	}
	var req openSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "agent_id is required")
		return
	}
	sess, err := s.deps.Sessions.Open(c.Request.Context(), agent.OpenRequest{
		SessionID:    req.SessionID,
		AgentID:      req.AgentID,
		Integrations: tool.ParseIntegrations(req.Integrations...),
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, newSessionView(sess))
}

func (s *Server) handleListSessions(c *gin.Context) {
	if s.deps.Sessions == nil {
		unavailable(c, "session manager")
		return
	}
	limit := 20
	if raw := c.Query("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	summaries, err := s.deps.Sessions.Summaries(c.Request.Context(), limit)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, summaries)
}

func (s *Server) handleGetSession(c *gin.Context) {
	if s.deps.Sessions == nil {
		unavailable(c, "session manager")
		return
	}
	sess, err := s.deps.Sessions.Get(c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, newSessionView(sess))
}

func (s *Server) handleCloseSession(c *gin.Context) {
	if s.deps.Sessions == nil {
		unavailable(c, "session manager")
		return
	}
	s.deps.Sessions.Close(c.Param("id"))
	c.Status(http.StatusNoContent)
}

// handleSendMessage 处理一个用户轮次。同一会话已有轮次在处理时返回 409。
func (s *Server) handleSendMessage(c *gin.Context) {
	if s.deps.Sessions == nil {
		unavailable(c, "session manager")
		return
	}
	var req sendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "text is required")
		return
	}
	outcome, err := s.deps.Sessions.Send(c.Request.Context(), c.Param("id"), req.Text)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, outcome)
}
