package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// HealthCheck checks one dependency. A nil check reports the dependency as
// disabled.
type HealthCheck func(ctx context.Context) error

type HealthHandler struct {
	appName   string
	env       string
	startedAt time.Time
	checks    map[string]HealthCheck
}

type dependencyStatus struct {
	OK      bool   `json:"ok"`
	Message string `json:"message,omitempty"`
}

func NewHealthHandler(appName, env string, startedAt time.Time, checks map[string]HealthCheck) *HealthHandler {
	return &HealthHandler{
		appName:   appName,
		env:       env,
		startedAt: startedAt,
		checks:    checks,
	}
}

func (h *HealthHandler) Check(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	allOK := true
	dependencies := make(gin.H, len(h.checks))
	for name, check := range h.checks {
		status := runCheck(ctx, check)
		if !status.OK {
			allOK = false
		}
		dependencies[name] = status
	}

	statusCode := http.StatusOK
	status := "healthy"
	if !allOK {
		statusCode = http.StatusServiceUnavailable
		status = "unhealthy"
	}

	c.JSON(statusCode, gin.H{
		"status":       status,
		"app":          h.appName,
		"env":          h.env,
		"uptime_sec":   int(time.Since(h.startedAt).Seconds()),
		"dependencies": dependencies,
	})
}

func runCheck(ctx context.Context, check HealthCheck) dependencyStatus {
	if check == nil {
		return dependencyStatus{OK: true, Message: "disabled"}
	}
	if err := check(ctx); err != nil {
		return dependencyStatus{OK: false, Message: err.Error()}
	}
	return dependencyStatus{OK: true}
}
