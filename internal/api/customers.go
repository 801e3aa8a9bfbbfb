package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"AgentDesk/internal/customer"
	xerrors "AgentDesk/internal/errors"
)

type customerPage struct {
	Customers []customer.Record `json:"customers"`
	Total     int               `json:"total"`
}

// handleListCustomers 只读列出客户：无过滤条件时返回最近更新的记录。
func (s *Server) handleListCustomers(c *gin.Context) {
	if s.deps.Customers == nil {
		unavailable(c, "customer store")
		return
	}
	limit := customer.RecentLimit
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			badRequest(c, "limit must be a positive integer")
			return
		}
		limit = parsed
	}
	filter := customer.Filter{
		Name:    c.Query("name"),
		Email:   c.Query("email"),
		Company: c.Query("company"),
		Phone:   c.Query("phone"),
		Status:  customer.Status(c.Query("status")),
	}

	ctx := c.Request.Context()
	if filter.Empty() {
		records, err := s.deps.Customers.Store().Recent(ctx, limit)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, customerPage{Customers: records, Total: len(records)})
		return
	}

	result, err := s.deps.Customers.Search(ctx, filter, limit)
	if err != nil {
		if xerrors.CodeOf(err) == xerrors.CodeNotFound {
			c.JSON(http.StatusOK, customerPage{Customers: []customer.Record{}})
			return
		}
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, customerPage{Customers: result.Records, Total: result.Total})
}
