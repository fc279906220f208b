package handler

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/testschool/assessment-backend/internal/model"
	"github.com/testschool/assessment-backend/internal/repository"
	"github.com/testschool/assessment-backend/internal/response"
	"github.com/testschool/assessment-backend/internal/service"
)

// ResultsHandler serves completed-attempt listings and exports for staff.
type ResultsHandler struct {
	assessmentService *service.AssessmentService
	exportService     *service.ExportService
}

// NewResultsHandler creates a new ResultsHandler.
func NewResultsHandler(assessmentService *service.AssessmentService, exportService *service.ExportService) *ResultsHandler {
	return &ResultsHandler{
		assessmentService: assessmentService,
		exportService:     exportService,
	}
}

// stepFilter parses an optional ?step= query parameter.
func stepFilter(c *gin.Context) (*model.Step, bool) {
	raw := c.Query("step")
	if raw == "" {
		return nil, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || !model.Step(n).Valid() {
		return nil, false
	}
	step := model.Step(n)
	return &step, true
}

// ListResults godoc
// GET /admin/v1/results?page=&per_page=&step=
// Lists completed attempts with account data.
func (h *ResultsHandler) ListResults(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	perPage, _ := strconv.Atoi(c.DefaultQuery("per_page", "20"))
	if page < 1 {
		page = 1
	}
	if perPage < 1 || perPage > 100 {
		perPage = 20
	}

	step, ok := stepFilter(c)
	if !ok {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidStep)
		return
	}

	results, total, err := h.assessmentService.ListResults(c.Request.Context(), page, perPage, step)
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	if results == nil {
		results = []repository.ResultRow{}
	}

	pagination := &response.Pagination{
		Page:       page,
		PerPage:    perPage,
		TotalItems: int(total),
		TotalPages: (int(total) + perPage - 1) / perPage,
	}

	response.SuccessWithPagination(c, http.StatusOK, gin.H{"results": results}, pagination)
}

// ExportResults godoc
// GET /admin/v1/results/export?step=
// Streams all completed attempts as an XLSX workbook.
func (h *ResultsHandler) ExportResults(c *gin.Context) {
	step, ok := stepFilter(c)
	if !ok {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidStep)
		return
	}

	data, err := h.exportService.ResultsXLSX(c.Request.Context(), step)
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	filename := fmt.Sprintf("results-%s.xlsx", time.Now().Format("2006-01-02"))
	c.Header("Content-Disposition", `attachment; filename="`+filename+`"`)
	c.Data(http.StatusOK, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", data)
}
