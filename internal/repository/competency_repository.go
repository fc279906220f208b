package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testschool/assessment-backend/internal/model"
)

// CompetencyRepository handles competency data access.
type CompetencyRepository struct {
	pool *pgxpool.Pool
}

// NewCompetencyRepository creates a new CompetencyRepository.
func NewCompetencyRepository(pool *pgxpool.Pool) *CompetencyRepository {
	return &CompetencyRepository{pool: pool}
}

// List retrieves all competencies ordered by name.
func (r *CompetencyRepository) List(ctx context.Context) ([]model.Competency, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, name, description, created_at FROM competencies ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var competencies []model.Competency
	for rows.Next() {
		var c model.Competency
		if err := rows.Scan(&c.ID, &c.Name, &c.Description, &c.CreatedAt); err != nil {
			return nil, err
		}
		competencies = append(competencies, c)
	}
	if competencies == nil {
		competencies = []model.Competency{}
	}
	return competencies, rows.Err()
}

// GetByID retrieves a competency by id.
func (r *CompetencyRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Competency, error) {
	c := &model.Competency{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, name, description, created_at FROM competencies WHERE id = $1`, id,
	).Scan(&c.ID, &c.Name, &c.Description, &c.CreatedAt)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// Create inserts a new competency.
func (r *CompetencyRepository) Create(ctx context.Context, c *model.Competency) error {
	return r.pool.QueryRow(ctx,
		`INSERT INTO competencies (name, description)
		 VALUES ($1, $2)
		 RETURNING id, created_at`,
		c.Name, c.Description,
	).Scan(&c.ID, &c.CreatedAt)
}

// Delete removes a competency. Questions under it are removed by cascade.
func (r *CompetencyRepository) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM competencies WHERE id = $1`, id)
	return err
}
