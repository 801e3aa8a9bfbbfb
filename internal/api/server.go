package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"AgentDesk/internal/agent"
	"AgentDesk/internal/customer"
	"AgentDesk/internal/observability/metrics"
	"AgentDesk/internal/task"
)

// Dependencies 汇总 HTTP 层依赖的服务。Tasks 与 Customers 可以为空，对应接口返回 503。
type Dependencies struct {
	Sessions  *agent.SessionManager
	Tasks     *task.Service
	Customers *customer.Resolver
}

// Server 负责暴露 REST 接口。
type Server struct {
	addr   string
	deps   Dependencies
	engine *gin.Engine
}

// NewServer 构造 API 服务实例并注册路由。
func NewServer(addr string, deps Dependencies) *Server {
	gin.SetMode(gin.ReleaseMode)
	s := &Server{addr: addr, deps: deps, engine: gin.New()}
	s.routes()
	return s
}

// Handler 返回完整的路由处理器，便于测试或嵌入其他服务。
func (s *Server) Handler() http.Handler { return s.engine }

func (s *Server) routes() {
	r := s.engine
	r.Use(gin.Recovery(), instrument())

	r.GET("/healthz", s.handleHealth)
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	v1 := r.Group("/api/v1")
	v1.GET("/agents", s.handleListAgents)
	v1.GET("/tools", s.handleListTools)

	v1.POST("/sessions", s.handleOpenSession)
	v1.GET("/sessions", s.handleListSessions)
	v1.GET("/sessions/:id", s.handleGetSession)
	v1.DELETE("/sessions/:id", s.handleCloseSession)
	v1.POST("/sessions/:id/messages", s.handleSendMessage)

	v1.GET("/customers", s.handleListCustomers)

	v1.POST("/runs", s.handleSubmitRun)
	v1.GET("/runs", s.handleListRuns)
	v1.GET("/runs/stats", s.handleRunStats)
	v1.GET("/runs/:id", s.handleGetRun)
}

// Start 启动 HTTP 服务，直到上下文取消或出现错误。
func (s *Server) Start(ctx context.Context) error {
	server := &http.Server{
		Addr:              s.addr,
		Handler:           withContext(ctx, s.engine),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// instrument 按路由模板记录请求数与耗时，避免把会话 ID 写进指标标签。
func instrument() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		metrics.ObserveHTTPRequest(route, c.Request.Method, c.Writer.Status(), time.Since(start))
	}
}

// withContext 确保请求处理能够感知根上下文取消。
func withContext(ctx context.Context, handler http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-ctx.Done():
			http.Error(w, "server is shutting down", http.StatusServiceUnavailable)
			return
		default:
		}
		handler.ServeHTTP(w, r)
	})
}
