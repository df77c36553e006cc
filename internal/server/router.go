package server

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/loykin/lokcaldev/internal/auth"
	mng "github.com/loykin/lokcaldev/internal/manager"
	"github.com/loykin/lokcaldev/internal/service"
)

// Router exposes the manager over HTTP.
// Endpoints, relative to basePath:
//
//	POST   /auth/login                    {"password": ...} -> bearer token
//	GET    /services                      reconcile and list every service
//	GET    /services/:id                  last known state of one service
//	GET    /services/:id/usage            CPU and memory of a running service
//	POST   /services/:id/start|stop|restart
//	GET    /history                       query: service=...&limit=...
//	POST   /nginx/reload
//	POST   /nginx/test
//	POST   /mariadb/initialize
//	GET    /php/versions
//	GET    /logs                          list log files
//	GET    /logs/read                     query: file=...&lines=500
//	POST   /logs/clear                    query: file=...
//	POST   /logs/tail                     query: file=...
//	DELETE /logs/tail
//	GET    /logs/stream                   websocket of tailed lines
//
// basePath may be empty or start with '/'; no trailing slash.
// With auth set, every endpoint but login requires credentials.
type Router struct {
	mgr      *mng.Manager
	auth     *auth.Service
	basePath string
	log      *slog.Logger
}

func NewRouter(mgr *mng.Manager, basePath string, log *slog.Logger) *Router {
	if log == nil {
		log = slog.Default()
	}
	return &Router{mgr: mgr, basePath: sanitizeBase(basePath), log: log}
}

// WithAuth protects the API with a.
func (r *Router) WithAuth(a *auth.Service) *Router {
	r.auth = a
	return r
}

// Handler returns an http.Handler powered by gin that can be mounted in any server/mux.
func (r *Router) Handler() http.Handler {
	g := gin.New()
	g.Use(gin.Recovery(), r.requestLog())
	base := g.Group(r.basePath)
	base.POST("/auth/login", r.handleLogin)
	group := base.Group("", r.auth.GinAuth())

	svc := group.Group("/services")
	svc.GET("", r.handleList)
	svc.GET("/:id", r.withID(r.handleGet))
	svc.GET("/:id/usage", r.withID(r.handleUsage))
	svc.POST("/:id/start", r.withID(r.lifecycle(r.mgr.Start)))
	svc.POST("/:id/stop", r.withID(r.lifecycle(r.mgr.Stop)))
	svc.POST("/:id/restart", r.withID(r.lifecycle(r.mgr.Restart)))

	group.GET("/history", r.handleHistory)
	group.POST("/nginx/reload", r.handleNginxReload)
	group.POST("/nginx/test", r.handleNginxTest)
	group.POST("/mariadb/initialize", r.handleMariaDBInit)
	group.GET("/php/versions", r.handlePHPVersions)

	lg := group.Group("/logs")
	lg.GET("", r.handleLogList)
	lg.GET("/read", r.handleLogRead)
	lg.POST("/clear", r.handleLogClear)
	lg.POST("/tail", r.handleTailStart)
	lg.DELETE("/tail", r.handleTailStop)
	lg.GET("/stream", r.handleStream)
	return g
}

func (r *Router) requestLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		r.log.Debug("http request", "method", c.Request.Method, "path", c.Request.URL.Path, "status", c.Writer.Status())
	}
}

func (r *Router) withID(next func(*gin.Context, string)) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")
		if !isSafeName(id) {
			writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid service id: allowed [A-Za-z0-9._-]"})
			return
		}
		next(c, id)
	}
}

func (r *Router) handleLogin(c *gin.Context) {
	var req auth.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid body: " + err.Error()})
		return
	}
	tok, err := r.auth.Login(req.Password)
	if err != nil {
		r.log.Warn("login rejected", "remote", c.ClientIP(), "error", err)
		writeError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, tok)
}

func (r *Router) handleList(c *gin.Context) {
	list, err := r.mgr.ListAll(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, list)
}

func (r *Router) handleGet(c *gin.Context, id string) {
	info, err := r.mgr.Get(id)
	if err != nil {
		writeError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, info)
}

func (r *Router) handleUsage(c *gin.Context, id string) {
	u, err := r.mgr.Usage(id)
	if err != nil {
		writeError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, u)
}

// lifecycle runs op and answers with the resulting state. A client that
// disconnects stops waiting; the operation itself still completes.
func (r *Router) lifecycle(op func(ctx context.Context, id string) error) func(*gin.Context, string) {
	return func(c *gin.Context, id string) {
		if err := op(c.Request.Context(), id); err != nil {
			writeError(c, err)
			return
		}
		info, err := r.mgr.Get(id)
		if err != nil {
			writeError(c, err)
			return
		}
		writeJSON(c, http.StatusOK, info)
	}
}

func (r *Router) handleHistory(c *gin.Context) {
	id := c.Query("service")
	if id != "" && !isSafeName(id) {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid service id"})
		return
	}
	limit, err := intQuery(c, "limit", 100)
	if err != nil {
		writeError(c, err)
		return
	}
	events, err := r.mgr.History(c.Request.Context(), id, limit)
	if err != nil {
		writeError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, events)
}

type outputResp struct {
	OK     bool   `json:"ok"`
	Output string `json:"output"`
}

func (r *Router) handleNginxReload(c *gin.Context) {
	if err := r.mgr.ReloadNginx(c.Request.Context()); err != nil {
		writeError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, okResp{OK: true})
}

func (r *Router) handleNginxTest(c *gin.Context) {
	out, err := r.mgr.TestNginxConfig(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, outputResp{OK: true, Output: out})
}

func (r *Router) handleMariaDBInit(c *gin.Context) {
	if err := r.mgr.InitializeDatabase(c.Request.Context()); err != nil {
		writeError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, okResp{OK: true})
}

func (r *Router) handlePHPVersions(c *gin.Context) {
	writeJSON(c, http.StatusOK, r.mgr.PHPVersions())
}

func intQuery(c *gin.Context, key string, def int) (int, error) {
	s := c.Query(key)
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, service.Errorf(service.OpGet, "", service.ErrInvalidArgument, "%s must be a non-negative integer", key)
	}
	return n, nil
}
