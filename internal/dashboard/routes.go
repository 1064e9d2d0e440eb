package dashboard

import (
	"net/http"
	"strconv"

	"github.com/daryaKuto/glowrange/internal/history"
	"github.com/daryaKuto/glowrange/internal/session"
	"github.com/daryaKuto/glowrange/internal/targets"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

const defaultSessionLimit = 50

// registerRoutes sets up all dashboard routes on the Gin router.
func registerRoutes(router *gin.Engine, opts StartOpts) {
	api := router.Group("/api")
	api.GET("/sessions", handleSessionList(opts.DB))
	api.GET("/sessions/:gameId", handleSessionDetail(opts.DB))
	api.GET("/active", handleActive(opts.Status))
	api.GET("/devices", handleDevices(opts.Roster))
	api.GET("/events", handleSSE(opts.Status))
}

func handleSessionList(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit := defaultSessionLimit
		if raw := c.Query("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n < 0 {
				c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a non-negative integer"})
				return
			}
			limit = n
		}

		recs, err := history.Fetch(db, limit)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"sessions": recs})
	}
}

func handleSessionDetail(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		rec, err := history.Get(db, c.Param("gameId"))
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
			return
		}
		c.JSON(http.StatusOK, rec)
	}
}

func handleActive(status func() session.Status) gin.HandlerFunc {
	return func(c *gin.Context) {
		if status == nil {
			c.JSON(http.StatusOK, session.Status{State: session.StateIdle})
			return
		}
		c.JSON(http.StatusOK, status())
	}
}

func handleDevices(roster targets.Roster) gin.HandlerFunc {
	return func(c *gin.Context) {
		if roster == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "no cloud connection"})
			return
		}
		devices, err := roster.ListDevices(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"devices": devices})
	}
}
