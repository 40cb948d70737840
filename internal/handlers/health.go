package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/gotchufam/internal/monitoring"
	"github.com/charlesng35/gotchufam/pkg/response"
)

// HealthHandler exposes liveness and readiness reports.
type HealthHandler struct {
	manager *monitoring.HealthManager
}

// NewHealthHandler wraps a configured health manager.
func NewHealthHandler(manager *monitoring.HealthManager) *HealthHandler {
	if manager == nil {
		manager = monitoring.NewHealthManager()
	}
	return &HealthHandler{manager: manager}
}

// Ready GET /health and /health/ready
func (h *HealthHandler) Ready(c *gin.Context) {
	writeHealthReport(c, h.manager.EvaluateReadiness(requestContext(c)))
}

// Live GET /health/live
func (h *HealthHandler) Live(c *gin.Context) {
	writeHealthReport(c, h.manager.EvaluateLiveness(requestContext(c)))
}

func writeHealthReport(c *gin.Context, report monitoring.HealthReport) {
	body := gin.H{
		"health":     report.Status,
		"checks":     report.Checks,
		"checked_at": time.Now().UTC(),
	}
	if report.Success {
		response.OK(c, body)
		return
	}
	body["status"] = response.StatusError
	body["error_id"] = "unhealthy"
	c.JSON(http.StatusServiceUnavailable, body)
}
