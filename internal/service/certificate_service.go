package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"github.com/signintech/gopdf"
	"github.com/testschool/assessment-backend/internal/config"
	"github.com/testschool/assessment-backend/internal/model"
	"github.com/testschool/assessment-backend/internal/repository"
)

// Common certificate errors.
var (
	ErrCertificateNotFound = errors.New("certificate not found")
	ErrNotCertificateOwner = errors.New("certificate belongs to another user")
)

// CertificateService retrieves issued certificates and renders them as PDF
// documents. Issuance itself happens inside attempt completion.
type CertificateService struct {
	cfg      *config.Config
	certRepo *repository.CertificateRepository
	userRepo *repository.UserRepository
	log      zerolog.Logger
}

// NewCertificateService creates a new CertificateService.
func NewCertificateService(
	cfg *config.Config,
	certRepo *repository.CertificateRepository,
	userRepo *repository.UserRepository,
	log zerolog.Logger,
) *CertificateService {
	return &CertificateService{
		cfg:      cfg,
		certRepo: certRepo,
		userRepo: userRepo,
		log:      log.With().Str("component", "certificate_service").Logger(),
	}
}

// Get retrieves a certificate, enforcing ownership unless staff is true.
func (s *CertificateService) Get(ctx context.Context, certID string, userID int, staff bool) (*model.Certificate, error) {
	id, err := uuid.Parse(certID)
	if err != nil {
		return nil, ErrCertificateNotFound
	}
	cert, err := s.certRepo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrCertificateNotFound
		}
		return nil, fmt.Errorf("get certificate: %w", err)
	}
	if !staff && cert.UserID != userID {
		return nil, ErrNotCertificateOwner
	}
	return cert, nil
}

// ListByUser retrieves the user's certificates.
func (s *CertificateService) ListByUser(ctx context.Context, userID int) ([]model.Certificate, error) {
	return s.certRepo.ListByUser(ctx, userID)
}

// RenderPDF produces the certificate document as a PDF. Rendering reads
// stored data only; a failed render never touches the stored results.
func (s *CertificateService) RenderPDF(ctx context.Context, cert *model.Certificate) ([]byte, error) {
	user, err := s.userRepo.GetByID(ctx, cert.UserID)
	if err != nil {
		return nil, fmt.Errorf("get certificate holder: %w", err)
	}

	pdf := gopdf.GoPdf{}
	pdf.Start(gopdf.Config{PageSize: *gopdf.PageSizeA4Landscape})
	pdf.AddPage()

	if err := pdf.AddTTFFont("main", s.cfg.CertificateFontPath); err != nil {
		return nil, fmt.Errorf("load certificate font: %w", err)
	}

	pageWidth := gopdf.PageSizeA4Landscape.W

	// Border
	pdf.SetLineWidth(2)
	pdf.SetStrokeColor(30, 60, 110)
	pdf.Rectangle(24, 24, pageWidth-24, gopdf.PageSizeA4Landscape.H-24, "D", 0, 0)

	centered := func(y float64, size float64, text string) error {
		if err := pdf.SetFont("main", "", size); err != nil {
			return err
		}
		width, err := pdf.MeasureTextWidth(text)
		if err != nil {
			return err
		}
		pdf.SetXY((pageWidth-width)/2, y)
		return pdf.Text(text)
	}

	lines := []struct {
		y    float64
		size float64
		text string
	}{
		{110, 30, "Certificate of Digital Competency"},
		{170, 14, "This certifies that"},
		{215, 24, user.Name},
		{265, 14, "has achieved competency level"},
		{320, 42, string(cert.LevelAchieved)},
		{380, 12, fmt.Sprintf("Issued on %s", cert.IssuedAt.Format("2 January 2006"))},
		{405, 10, fmt.Sprintf("Certificate ID: %s", cert.ID)},
	}
	for _, line := range lines {
		if err := centered(line.y, line.size, line.text); err != nil {
			return nil, fmt.Errorf("render certificate: %w", err)
		}
	}

	var buf bytes.Buffer
	if _, err := pdf.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("write certificate pdf: %w", err)
	}

	s.log.Debug().Str("certificate_id", cert.ID.String()).Msg("Certificate rendered")
	return buf.Bytes(), nil
}
