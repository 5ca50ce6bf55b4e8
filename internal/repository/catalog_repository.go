package repository

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/traincal/scheduling-api/internal/models"
)

// CatalogRepository looks up catalog courses and training locations. Both are
// managed by the surrounding application; the engine only reads them.
type CatalogRepository struct {
	db *sqlx.DB
}

// NewCatalogRepository creates a new catalog repository.
func NewCatalogRepository(db *sqlx.DB) *CatalogRepository {
	return &CatalogRepository{db: db}
}

// FindCourseByID loads a catalog course by id.
func (r *CatalogRepository) FindCourseByID(ctx context.Context, id string) (*models.CatalogCourse, error) {
	const query = `SELECT id, code, title, base_price, active, created_at FROM catalog_courses WHERE id = $1`
	var course models.CatalogCourse
	if err := r.db.GetContext(ctx, &course, query, id); err != nil {
		return nil, err
	}
	return &course, nil
}

// FindLocationByID loads a location by id.
func (r *CatalogRepository) FindLocationByID(ctx context.Context, id string) (*models.Location, error) {
	const query = `SELECT id, name, capacity, active, created_at FROM locations WHERE id = $1`
	var location models.Location
	if err := r.db.GetContext(ctx, &location, query, id); err != nil {
		return nil, err
	}
	return &location, nil
}
