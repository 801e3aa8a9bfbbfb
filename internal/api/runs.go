package api

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"AgentDesk/internal/task"
)

type submitRunRequest struct {
	ID                 string   `json:"id"`
	AgentID            string   `json:"agent_id" binding:"required"`
	TaskName           string   `json:"task_name"`
	WorkflowDefinition string   `json:"workflow_definition" binding:"required"`
	ToolsToUse         []string `json:"tools_to_use"`
}

func (s *Server) handleSubmitRun(c *gin.Context) {
	if s.deps.Tasks == nil {
		unavailable(c, "workflow runner")
		return
	}
	var req submitRunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "agent_id and workflow_definition are required")
		return
	}
	if s.deps.Sessions != nil {
		if _, ok := s.deps.Sessions.Profile(req.AgentID); !ok {
			badRequest(c, "unknown agent "+strconv.Quote(req.AgentID))
			return
		}
	}
	run, err := s.deps.Tasks.Submit(c.Request.Context(), task.SubmitRequest{
		ID:                 req.ID,
		AgentID:            req.AgentID,
		TaskName:           req.TaskName,
		WorkflowDefinition: req.WorkflowDefinition,
		ToolsToUse:         req.ToolsToUse,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, run)
}

func (s *Server) handleGetRun(c *gin.Context) {
	if s.deps.Tasks == nil {
		unavailable(c, "workflow runner")
		return
	}
	run, err := s.deps.Tasks.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, run)
}

func (s *Server) handleListRuns(c *gin.Context) {
	if s.deps.Tasks == nil {
		unavailable(c, "workflow runner")
		return
	}
	opts, ok := listOptions(c)
	if !ok {
		return
	}
	runs, err := s.deps.Tasks.List(c.Request.Context(), opts...)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, runs)
}

func (s *Server) handleRunStats(c *gin.Context) {
	if s.deps.Tasks == nil {
		unavailable(c, "workflow runner")
		return
	}
	opts, ok := listOptions(c)
	if !ok {
		return
	}
	stats, err := s.deps.Tasks.Stats(c.Request.Context(), opts...)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// listOptions 解析运行列表的查询参数，出错时已写入响应。
func listOptions(c *gin.Context) ([]task.ListOption, bool) {
	var opts []task.ListOption
	for _, key := range []string{"limit", "offset"} {
		raw := c.Query(key)
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			badRequest(c, key+" must be a non-negative integer")
			return nil, false
		}
		if key == "limit" {
			opts = append(opts, task.WithLimit(n))
		} else {
			opts = append(opts, task.WithOffset(n))
		}
	}
	if raw := c.Query("status"); raw != "" {
		var statuses []task.Status
		for _, part := range strings.Split(raw, ",") {
			status := task.Status(strings.ToLower(strings.TrimSpace(part)))
			if !task.IsValidStatus(status) {
				badRequest(c, "unknown status "+strconv.Quote(part))
				return nil, false
			}
			statuses = append(statuses, status)
		}
		opts = append(opts, task.WithStatuses(statuses...))
	}
	if raw := c.Query("since"); raw != "" {
		ts, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			badRequest(c, "since must be RFC3339")
			return nil, false
		}
		opts = append(opts, task.WithUpdatedSince(ts))
	}
	if raw := c.Query("has_result"); raw != "" {
		has, err := strconv.ParseBool(raw)
		if err != nil {
			badRequest(c, "has_result must be a boolean")
			return nil, false
		}
		opts = append(opts, task.WithResultPresence(has))
	}
	if c.Query("order") == "asc" {
		opts = append(opts, task.WithSortOrder(task.SortByUpdatedAsc))
	}
	if agentID := c.Query("agent_id"); agentID != "" {
		opts = append(opts, task.WithAgent(agentID))
	}
	if q := c.Query("q"); q != "" {
		opts = append(opts, task.WithQuery(q))
	}
	return opts, true
}
