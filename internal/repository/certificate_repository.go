package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testschool/assessment-backend/internal/model"
)

// CertificateRepository handles certificate data access.
type CertificateRepository struct {
	pool *pgxpool.Pool
}

// NewCertificateRepository creates a new CertificateRepository.
func NewCertificateRepository(pool *pgxpool.Pool) *CertificateRepository {
	return &CertificateRepository{pool: pool}
}

// Create inserts a certificate for a completed attempt.
func (r *CertificateRepository) Create(ctx context.Context, c *model.Certificate) error {
	return r.pool.QueryRow(ctx,
		`INSERT INTO certificates (user_id, test_id, level_achieved)
		 VALUES ($1, $2, $3)
		 RETURNING id, issued_at`,
		c.UserID, c.TestID, c.LevelAchieved,
	).Scan(&c.ID, &c.IssuedAt)
}

// GetByID retrieves a certificate by id.
func (r *CertificateRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Certificate, error) {
	c := &model.Certificate{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, user_id, test_id, level_achieved, issued_at
		 FROM certificates WHERE id = $1`, id,
	).Scan(&c.ID, &c.UserID, &c.TestID, &c.LevelAchieved, &c.IssuedAt)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// GetByTestID retrieves the certificate issued for an attempt, if any.
func (r *CertificateRepository) GetByTestID(ctx context.Context, testID uuid.UUID) (*model.Certificate, error) {
	c := &model.Certificate{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, user_id, test_id, level_achieved, issued_at
		 FROM certificates WHERE test_id = $1`, testID,
	).Scan(&c.ID, &c.UserID, &c.TestID, &c.LevelAchieved, &c.IssuedAt)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// ListByUser retrieves the user's certificates, newest first.
func (r *CertificateRepository) ListByUser(ctx context.Context, userID int) ([]model.Certificate, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, user_id, test_id, level_achieved, issued_at
		 FROM certificates WHERE user_id = $1
		 ORDER BY issued_at DESC`, userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var certs []model.Certificate
	for rows.Next() {
		var c model.Certificate
		if err := rows.Scan(&c.ID, &c.UserID, &c.TestID, &c.LevelAchieved, &c.IssuedAt); err != nil {
			return nil, err
		}
		certs = append(certs, c)
	}
	if certs == nil {
		certs = []model.Certificate{}
	}
	return certs, rows.Err()
}
