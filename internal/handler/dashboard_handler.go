package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/testschool/assessment-backend/internal/response"
	"github.com/testschool/assessment-backend/internal/service"
)

// DashboardHandler serves aggregate platform statistics.
type DashboardHandler struct {
	dashboardService *service.DashboardService
}

// NewDashboardHandler creates a new DashboardHandler.
func NewDashboardHandler(dashboardService *service.DashboardService) *DashboardHandler {
	return &DashboardHandler{dashboardService: dashboardService}
}

// GetDashboard godoc
// GET /admin/v1/dashboard
// Returns headline counts, level distribution, completion-reason counts,
// and average scores per step.
func (h *DashboardHandler) GetDashboard(c *gin.Context) {
	data, err := h.dashboardService.GetDashboardData(c.Request.Context())
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, data)
}
