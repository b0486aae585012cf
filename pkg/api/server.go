// Package api exposes the bridge over HTTP: state exchange with the UI,
// the outbox drain, agent turns, chat feedback, and profile management.
package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/graphweave/bridge/pkg/chat"
	"github.com/graphweave/bridge/pkg/config"
	"github.com/graphweave/bridge/pkg/layout"
	"github.com/graphweave/bridge/pkg/mirror"
	"github.com/graphweave/bridge/pkg/models"
	"github.com/graphweave/bridge/pkg/pipeline"
	"github.com/graphweave/bridge/pkg/profile"
	"github.com/graphweave/bridge/pkg/queue"
	"github.com/graphweave/bridge/pkg/scheduler"
	"github.com/graphweave/bridge/pkg/trace"
)

// Server holds the wired subsystems behind the HTTP surface.
type Server struct {
	cfg      *config.Config
	mirror   *mirror.Mirror
	queues   *queue.Manager
	outbox   *pipeline.Outbox
	chat     *chat.Channel
	tracer   *trace.Tracer
	layout   *layout.Engine
	sched    *scheduler.Scheduler
	turns    TurnHandler
	profiles profile.Store

	// githubTokenURL is swapped out in tests.
	githubTokenURL string
	httpClient     *http.Client
}

// NewServer wires the HTTP surface. All dependencies are required except
// sched, which may be nil in partial setups.
func NewServer(cfg *config.Config, m *mirror.Mirror, q *queue.Manager,
	outbox *pipeline.Outbox, ch *chat.Channel, tr *trace.Tracer,
	eng *layout.Engine, sched *scheduler.Scheduler, turns TurnHandler,
	profiles profile.Store) *Server {
	return &Server{
		cfg:      cfg,
		mirror:   m,
		queues:   q,
		outbox:   outbox,
		chat:     ch,
		tracer:   tr,
		layout:   eng,
		sched:    sched,
		turns:    turns,
		profiles: profiles,

		githubTokenURL: githubTokenURL,
		httpClient:     &http.Client{Timeout: 15 * time.Second},
	}
}

// Router builds the gin engine with all routes registered.
func (s *Server) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger())

	if !s.cfg.Server.TrustProxy {
		_ = r.SetTrustedProxies(nil)
	}

	v1 := r.Group("/api/v1")
	{
		v1.GET("/health", s.health)

		v1.GET("/state", s.getState)
		v1.POST("/state", s.postState)
		v1.GET("/layout-settings", s.layoutSettings)

		v1.GET("/pending-actions", s.pendingActions)
		v1.POST("/actions/:id/complete", s.completeAction)
		v1.POST("/actions/:id/feedback", s.actionFeedback)

		v1.POST("/agent/turn", s.agentTurn)
		v1.GET("/chat/:cid/messages", s.chatMessages)
		v1.GET("/trace/:cid", s.traceTimeline)
		v1.GET("/scheduler/metrics", s.schedulerMetrics)

		v1.GET("/profiles", s.listProfiles)
		v1.POST("/profiles", s.storeProfile)
		v1.GET("/profiles/active", s.activeProfile)
		v1.POST("/profiles/:id/activate", s.activateProfile)
		v1.DELETE("/profiles/:id", s.deleteProfile)

		if s.cfg.GitHub.ClientID != "" && s.cfg.GitHub.ClientSecret != "" {
			v1.POST("/oauth/github", s.githubOAuth)
		}
	}
	return r
}

// requestLogger logs one line per request at debug level.
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		slog.Debug("HTTP request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start))
	}
}

func (s *Server) health(c *gin.Context) {
	resp := gin.H{
		"status": "ok",
		"state":  s.mirror.Summary(),
		"queues": s.queues.AllStats(),
		"outbox": s.outbox.Depth(),
	}
	if s.sched != nil {
		resp["scheduler"] = s.sched.Metrics()
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) getState(c *gin.Context) {
	c.JSON(http.StatusOK, s.mirror.Snapshot())
}

func (s *Server) postState(c *gin.Context) {
	var snap models.StateSnapshot
	if err := c.ShouldBindJSON(&snap); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid snapshot: " + err.Error()})
		return
	}
	s.mirror.SmartMerge(&snap)
	c.JSON(http.StatusOK, gin.H{"success": true, "state": s.mirror.Summary()})
}

func (s *Server) layoutSettings(c *gin.Context) {
	c.JSON(http.StatusOK, s.layout.CurrentSettings())
}

func (s *Server) chatMessages(c *gin.Context) {
	cid := c.Param("cid")
	c.JSON(http.StatusOK, gin.H{"cid": cid, "messages": s.chat.Messages(cid)})
}

func (s *Server) traceTimeline(c *gin.Context) {
	cid := c.Param("cid")
	c.JSON(http.StatusOK, gin.H{"cid": cid, "spans": s.tracer.Timeline(cid)})
}

func (s *Server) schedulerMetrics(c *gin.Context) {
	if s.sched == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "scheduler not wired"})
		return
	}
	c.JSON(http.StatusOK, s.sched.Metrics())
}
