package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/relaypilot/relaypilot/internal/supervisor"
)

// Router exposes the supervisor over HTTP for the operator scripts that
// launched it. Read paths never block on supervisor internals; they serve
// the published snapshot.
// Endpoints:
//
//	GET  {basePath}/status                 full snapshot
//	GET  {basePath}/status/:worker         one worker's entry
//	GET  {basePath}/healthz                supervisor liveness
//	POST {basePath}/reload                 same semantics as SIGHUP
//	POST {basePath}/workers/:worker/reset  clear a fail-stopped restart window
//
// basePath may be empty or start with '/'; no trailing slash.
type Router struct {
	sup      *supervisor.Supervisor
	basePath string
}

func NewRouter(sup *supervisor.Supervisor, basePath string) *Router {
	return &Router{sup: sup, basePath: sanitizeBase(basePath)}
}

// Handler returns an http.Handler powered by gin that can be mounted in
// any server or mux.
func (r *Router) Handler() http.Handler {
	g := gin.New()
	g.Use(gin.Recovery())
	group := g.Group(r.basePath)
	group.GET("/status", r.handleStatus)
	group.GET("/status/:worker", r.handleWorkerStatus)
	group.GET("/healthz", r.handleHealthz)
	group.POST("/reload", r.handleReload)
	group.POST("/workers/:worker/reset", r.handleReset)
	return g
}

// NewServer starts a standalone HTTP server on addr using this router.
func NewServer(addr, basePath string, sup *supervisor.Supervisor) (*http.Server, error) {
	r := NewRouter(sup, basePath)
	server := &http.Server{
		Addr:              addr,
		Handler:           r.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	go func() { _ = server.ListenAndServe() }()
	return server, nil
}

type errorResp struct {
	Error string `json:"error"`
}

type okResp struct {
	OK bool `json:"ok"`
}

func (r *Router) handleStatus(c *gin.Context) {
	writeJSON(c, http.StatusOK, r.sup.Snapshot())
}

func (r *Router) handleWorkerStatus(c *gin.Context) {
	name := c.Param("worker")
	if !isSafeName(name) {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid worker name"})
		return
	}
	snap := r.sup.Snapshot()
	for _, ws := range snap.Workers {
		if ws.ID == name {
			writeJSON(c, http.StatusOK, ws)
			return
		}
	}
	writeJSON(c, http.StatusNotFound, errorResp{Error: "unknown worker: " + name})
}

type healthzResp struct {
	Status string `json:"status"`
	State  string `json:"state"`
	Uptime string `json:"uptime"`
}

func (r *Router) handleHealthz(c *gin.Context) {
	snap := r.sup.Snapshot()
	resp := healthzResp{Status: "ok", State: snap.State, Uptime: snap.Uptime.String()}
	code := http.StatusOK
	if snap.State != supervisor.StateRunning.String() {
		resp.Status = "unavailable"
		code = http.StatusServiceUnavailable
	}
	writeJSON(c, code, resp)
}

func (r *Router) handleReload(c *gin.Context) {
	if err := r.sup.Reload(); err != nil {
		writeJSON(c, http.StatusConflict, errorResp{Error: err.Error()})
		return
	}
	writeJSON(c, http.StatusOK, okResp{OK: true})
}

func (r *Router) handleReset(c *gin.Context) {
	name := c.Param("worker")
	if !isSafeName(name) {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid worker name"})
		return
	}
	if err := r.sup.ResetWorker(name); err != nil {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: err.Error()})
		return
	}
	writeJSON(c, http.StatusOK, okResp{OK: true})
}
