package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/halaqa-api/internal/models"
)

const halaqaColumns = `id, academy_id, teacher_id, name, type, capacity, created_at, updated_at`

// HalaqaRepository reads the halaqa directory maintained by the academy platform.
type HalaqaRepository struct {
	db *sqlx.DB
}

// NewHalaqaRepository constructs the repository.
func NewHalaqaRepository(db *sqlx.DB) *HalaqaRepository {
	return &HalaqaRepository{db: db}
}

// FindByID returns a halaqa by identifier.
func (r *HalaqaRepository) FindByID(ctx context.Context, id string) (*models.Halaqa, error) {
	query := `SELECT ` + halaqaColumns + ` FROM halaqas WHERE id = $1`
	var halaqa models.Halaqa
	if err := r.db.GetContext(ctx, &halaqa, query, id); err != nil {
		return nil, err
	}
	return &halaqa, nil
}

// List returns halaqas matching the filter along with the total count.
func (r *HalaqaRepository) List(ctx context.Context, filter models.HalaqaFilter) ([]models.Halaqa, int, error) {
	var conditions []string
	var args []interface{}
	if filter.AcademyID != "" {
		args = append(args, filter.AcademyID)
		conditions = append(conditions, fmt.Sprintf("academy_id = $%d", len(args)))
	}
	if filter.TeacherID != "" {
		args = append(args, filter.TeacherID)
		conditions = append(conditions, fmt.Sprintf("teacher_id = $%d", len(args)))
	}
	if filter.Type != "" {
		args = append(args, filter.Type)
		conditions = append(conditions, fmt.Sprintf("type = $%d", len(args)))
	}
	clause := ""
	if len(conditions) > 0 {
		clause = " WHERE " + strings.Join(conditions, " AND ")
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}

	query := fmt.Sprintf(`SELECT %s FROM halaqas%s ORDER BY name ASC LIMIT %d OFFSET %d`, halaqaColumns, clause, size, (page-1)*size)
	var halaqas []models.Halaqa
	if err := r.db.SelectContext(ctx, &halaqas, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list halaqas: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM halaqas"+clause, args...); err != nil {
		return nil, 0, fmt.Errorf("count halaqas: %w", err)
	}
	return halaqas, total, nil
}
