// Package api exposes an Orchestrator over HTTP.
package api

import (
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/unbasical/bundleota/internal/pkg/api/apicommon"
	"github.com/unbasical/bundleota/internal/pkg/metrics"
)

// updateAPI serializes the operations that change the active bundle.
type updateAPI struct {
	config *apicommon.Config
	busy   sync.Mutex
}

func BuildApp(config *apicommon.Config) *gin.Engine {
	log.Debug("Building app")
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger())
	if config.MetricsEnabled {
		r.Use(metrics.PrometheusMiddleware())
		r.GET("/metrics", gin.WrapH(metrics.Handler()))
	}
	r.GET("/api/v1/ping", ping)

	a := &updateAPI{config: config}
	v1 := r.Group(apicommon.ApiBasePathV1)
	updates := v1.Group(apicommon.UpdatesApiPath)
	updates.POST("archive", a.exclusive(a.archiveUpdate))
	updates.POST("git", a.exclusive(a.gitUpdate))
	updates.DELETE("git", a.exclusive(a.removeGitUpdate))

	bundle := v1.Group(apicommon.BundleApiPath)
	bundle.DELETE("", a.exclusive(a.removeBundle))
	bundle.POST("rollback", a.exclusive(a.rollback))
	bundle.GET("version", a.version)
	bundle.GET("metadata", a.metadata)
	v1.POST("restart", a.restart)
	return r
}

func ping(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"message": "pong",
	})
}

// exclusive rejects a request while another exclusive request is in flight.
func (a *updateAPI) exclusive(h gin.HandlerFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !a.busy.TryLock() {
			RespondWithError(c, http.StatusConflict, "busy", errUpdateInProgress, "")
			return
		}
		defer a.busy.Unlock()
		h(c)
	}
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		log.WithFields(log.Fields{
			"method": c.Request.Method,
			"path":   c.Request.URL.Path,
			"status": c.Writer.Status(),
		}).Debug("handled request")
	}
}
