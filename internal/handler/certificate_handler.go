package handler

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/testschool/assessment-backend/internal/middleware"
	"github.com/testschool/assessment-backend/internal/model"
	"github.com/testschool/assessment-backend/internal/response"
	"github.com/testschool/assessment-backend/internal/service"
)

// CertificateHandler serves issued certificates and their PDF renditions.
type CertificateHandler struct {
	certificateService *service.CertificateService
}

// NewCertificateHandler creates a new CertificateHandler.
func NewCertificateHandler(certificateService *service.CertificateService) *CertificateHandler {
	return &CertificateHandler{certificateService: certificateService}
}

// ListMine godoc
// GET /api/v1/certificates
// Returns the authenticated user's certificates.
func (h *CertificateHandler) ListMine(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	certs, err := h.certificateService.ListByUser(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}
	if certs == nil {
		certs = []model.Certificate{}
	}

	response.Success(c, http.StatusOK, gin.H{"certificates": certs})
}

// Get godoc
// GET /api/v1/certificates/:certId
// Returns certificate metadata. Staff tokens may read any certificate.
func (h *CertificateHandler) Get(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	cert, err := h.certificateService.Get(c.Request.Context(), c.Param("certId"), claims.UserID, claims.TokenType == service.TokenTypeStaff)
	if err != nil {
		h.failGet(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"certificate": cert})
}

// Download godoc
// GET /api/v1/certificates/:certId/download
// Streams the certificate as a PDF document.
func (h *CertificateHandler) Download(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	cert, err := h.certificateService.Get(c.Request.Context(), c.Param("certId"), claims.UserID, claims.TokenType == service.TokenTypeStaff)
	if err != nil {
		h.failGet(c, err)
		return
	}

	pdf, err := h.certificateService.RenderPDF(c.Request.Context(), cert)
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrCertificateRender)
		return
	}

	filename := fmt.Sprintf("certificate-%s.pdf", cert.ID)
	c.Header("Content-Disposition", `attachment; filename="`+filename+`"`)
	c.Data(http.StatusOK, "application/pdf", pdf)
}

func (h *CertificateHandler) failGet(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrCertificateNotFound):
		response.Fail(c, http.StatusNotFound, response.ErrCertificateMissing)
	case errors.Is(err, service.ErrNotCertificateOwner):
		response.Fail(c, http.StatusForbidden, response.ErrForbidden)
	default:
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
	}
}
